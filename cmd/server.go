package cmd

import (
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"netsentry/api"
	"netsentry/config"
	"netsentry/core"
	"netsentry/logger"
)

var standaloneServerPort string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the API server without a live feed (use 'start' for the full service)",
	Run: func(cmd *cobra.Command, args []string) {
		portToUse := standaloneServerPort
		if !cmd.Flags().Changed("port") && config.AppConfig.Server.Port != "" {
			portToUse = config.AppConfig.Server.Port
		}
		if portToUse == "" {
			portToUse = "8689"
		}

		logger.Info("--- Server Command: Run ---")

		identity := core.NewStaticProvider(config.AppConfig.Auth.Username, config.AppConfig.Auth.Password)
		engine := core.NewEngine(appStore, identity, core.HeuristicClassifier{}, core.NewBroadcaster(), core.EngineConfig{
			AutoStopSeconds: config.AppConfig.Capture.AutoStopSeconds,
			TickInterval:    time.Second,
		})
		if resumed, err := engine.Resume(); err != nil {
			logger.Error("Server Command: Failed to resume persisted session: %v", err)
		} else if resumed {
			logger.Info("Server Command: Resumed a running capture session from a previous run.")
		}

		apiRouter := api.NewRouter(engine, appStore, identity, config.AppConfig.Auth.Password != "")
		mainMux := http.NewServeMux()
		mainMux.Handle("/api/", http.StripPrefix("/api", apiRouter))

		logger.Info("Server Command: Listening on :%s...", portToUse)
		if err := http.ListenAndServe(":"+portToUse, mainMux); err != nil {
			logger.Fatal("Could not start server: %v", err)
		}
	},
}

func init() {
	serverCmd.Flags().StringVarP(&standaloneServerPort, "port", "p", "8689", "Port for the server to listen on (if run standalone)")
	rootCmd.AddCommand(serverCmd)
}
