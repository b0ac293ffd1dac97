package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"netsentry/config"
	"netsentry/core"
	"netsentry/logger"
	"netsentry/models"
)

var (
	captureInterface string
	captureProtocol  string
	captureDeep      bool
	logsLimit        int
	logsThreatLevel  string
	logsSearch       string
	logsSummaries    bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Controls capture sessions from the command line",
}

// cliEngine builds an engine without the internal clock: CLI invocations are
// one-shot, the running service owns auto-stop.
func cliEngine() *core.Engine {
	identity := core.NewStaticProvider(config.AppConfig.Auth.Username, config.AppConfig.Auth.Password)
	return core.NewEngine(appStore, identity, core.HeuristicClassifier{}, core.NewBroadcaster(), core.EngineConfig{
		AutoStopSeconds: config.AppConfig.Capture.AutoStopSeconds,
	})
}

var captureStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts a new capture session",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := cliEngine()
		session, err := engine.Start(models.CaptureSettings{
			InterfaceName:  captureInterface,
			ProtocolFilter: captureProtocol,
			DeepInspection: captureDeep,
		})
		if err != nil {
			if errors.Is(err, core.ErrSessionConflict) {
				return fmt.Errorf("a capture session is already running")
			}
			return err
		}
		fmt.Printf("Capture session %d started on interface %s\n", session.ID, session.Settings.InterfaceName)
		return nil
	},
}

var captureStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stops the running capture session and writes its report",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := cliEngine()
		resumed, err := engine.Resume()
		if err != nil {
			return err
		}
		if !resumed {
			return fmt.Errorf("no capture session is running")
		}

		session, err := engine.Stop(models.SessionStatusCompleted)
		if err != nil {
			if errors.Is(err, core.ErrNotRunning) {
				return fmt.Errorf("no capture session is running")
			}
			return err
		}
		fmt.Printf("Capture session %d stopped (%s)\n", session.ID, session.Status)
		return nil
	},
}

var captureStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the current capture session, if any",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := cliEngine()
		resumed, err := engine.Resume()
		if err != nil {
			return err
		}
		if !resumed {
			fmt.Println("No capture session is running.")
			return nil
		}

		snapshot := engine.Snapshot()
		fmt.Printf("Session %d running: %ds elapsed of %ds, %d packets, %d URLs (%d critical / %d high / %d medium)\n",
			snapshot.SessionID, snapshot.ElapsedSeconds, snapshot.AutoStopSeconds,
			snapshot.Counters.PacketsCaptured, snapshot.Counters.UrlsDetected,
			snapshot.Counters.CriticalCount, snapshot.Counters.HighCount, snapshot.Counters.MediumCount)
		return nil
	},
}

var captureLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Lists security log entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, total, err := appStore.GetSecurityLogEntries(models.SecurityLogFilters{
			FilterThreatLevel: logsThreatLevel,
			FilterSearchText:  logsSearch,
			SummariesOnly:     logsSummaries,
			Limit:             logsLimit,
		})
		if err != nil {
			logger.Error("capture logs: query failed: %v", err)
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tLEVEL\tACTION\tSOURCE\tURL")
		for _, entry := range entries {
			url := ""
			if entry.URL.Valid {
				url = entry.URL.String
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				entry.Timestamp.Format("2006-01-02 15:04:05"), entry.ThreatLevel, entry.Action, entry.Source, url)
		}
		w.Flush()
		fmt.Printf("%d of %d entries\n", len(entries), total)
		return nil
	},
}

func init() {
	captureStartCmd.Flags().StringVar(&captureInterface, "interface", "", "Network interface to record in the session settings")
	captureStartCmd.Flags().StringVar(&captureProtocol, "protocol", "", "Protocol filter to record in the session settings")
	captureStartCmd.Flags().BoolVar(&captureDeep, "deep-inspection", true, "Enable deep inspection for the session")

	captureLogsCmd.Flags().IntVar(&logsLimit, "limit", 50, "Maximum entries to print (0 for all)")
	captureLogsCmd.Flags().StringVar(&logsThreatLevel, "threat-level", "", "Filter by threat level (safe, low, medium, high, critical)")
	captureLogsCmd.Flags().StringVar(&logsSearch, "search", "", "Case-insensitive text filter over URL, source and details")
	captureLogsCmd.Flags().BoolVar(&logsSummaries, "summaries", false, "Only show per-session summary entries")

	captureCmd.AddCommand(captureStartCmd)
	captureCmd.AddCommand(captureStopCmd)
	captureCmd.AddCommand(captureStatusCmd)
	captureCmd.AddCommand(captureLogsCmd)
	rootCmd.AddCommand(captureCmd)
}
