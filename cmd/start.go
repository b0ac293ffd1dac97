package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"netsentry/api"
	"netsentry/config"
	"netsentry/core"
	"netsentry/logger"
)

var (
	startServerPort string
	startProxyPort  string
	startDemoFeed   bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts the capture engine, event feed and API server",
	Long: `Starts the capture engine together with its event feed and the API
server. With --proxy-port (or capture.proxy_port in the config) events come
from real traffic through a local HTTP proxy; otherwise a synthetic demo
feed generates them. Press Ctrl+C to gracefully shut down.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger.Info("--- Start Command: Run ---")

		actualServerPort := startServerPort
		if !cmd.Flags().Changed("server-port") {
			actualServerPort = config.AppConfig.Server.Port
		}
		if actualServerPort == "" {
			logger.Error("Start Command: Server port is empty after checking flag and config, defaulting to 8689")
			actualServerPort = "8689"
		}

		actualProxyPort := startProxyPort
		if !cmd.Flags().Changed("proxy-port") {
			actualProxyPort = config.AppConfig.Capture.ProxyPort
		}

		identity := core.NewStaticProvider(config.AppConfig.Auth.Username, config.AppConfig.Auth.Password)
		engine := core.NewEngine(appStore, identity, core.HeuristicClassifier{}, core.NewBroadcaster(), core.EngineConfig{
			AutoStopSeconds: config.AppConfig.Capture.AutoStopSeconds,
			TickInterval:    time.Second,
		})

		resumed, err := engine.Resume()
		if err != nil {
			logger.Error("Start Command: Failed to resume persisted session: %v", err)
		} else if resumed {
			logger.Info("Start Command: Resumed a running capture session from a previous run.")
		}

		var feed core.Feed
		if actualProxyPort != "" {
			feed = core.NewProxyFeed(actualProxyPort)
			logger.Info("Start Command: Using live proxy feed on port %s", actualProxyPort)
		} else if startDemoFeed {
			feed = core.NewDemoFeed(time.Duration(config.AppConfig.Capture.FeedIntervalSeconds) * time.Second)
			logger.Info("Start Command: Using synthetic demo feed")
		}
		if feed != nil {
			removeFeed := engine.AttachFeed(feed)
			defer removeFeed()
			if err := feed.Connect(); err != nil {
				logger.Error("Start Command: Failed to connect feed: %v", err)
			}
			defer feed.Disconnect()
		}

		var wg sync.WaitGroup
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		wg.Add(1)
		go func(parentCtx context.Context) {
			defer wg.Done()
			logger.Info("Start Command Goroutine(API): Starting API server on port %s...", actualServerPort)

			apiRouter := api.NewRouter(engine, appStore, identity, config.AppConfig.Auth.Password != "")
			mainMux := http.NewServeMux()
			mainMux.Handle("/api/", http.StripPrefix("/api", apiRouter))

			server := &http.Server{
				Addr:    ":" + actualServerPort,
				Handler: mainMux,
			}

			go func() {
				<-parentCtx.Done()
				logger.Info("Start Command Goroutine(API): Shutdown signal received...")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Error("Start Command Goroutine(API): Graceful shutdown failed: %v", err)
				} else {
					logger.Info("Start Command Goroutine(API): Gracefully stopped.")
				}
			}()

			logger.Info("Start Command Goroutine(API): Listening on :%s", actualServerPort)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Start Command Goroutine(API): ListenAndServe error: %v", err)
				cancel()
			}
			logger.Info("Start Command Goroutine(API): Finished.")
		}(ctx)

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

		logger.Info("Start Command: All services launched. Press Ctrl+C to exit.")

		select {
		case sig := <-sigs:
			logger.Info("Start Command: Received signal: %s. Initiating shutdown...", sig)
		case <-ctx.Done():
			logger.Info("Start Command: Context cancelled (likely due to a service error). Initiating shutdown...")
		}

		cancel()
		engine.DetachFeeds()

		shutdownComplete := make(chan struct{})
		go func() {
			wg.Wait()
			close(shutdownComplete)
		}()

		select {
		case <-shutdownComplete:
			logger.Info("Start Command: All services shut down.")
		case <-time.After(10 * time.Second):
			logger.Error("Start Command: Shutdown timed out. Forcing exit.")
		}

		logger.Info("Start Command: Exited.")
	},
}

func init() {
	startCmd.Flags().StringVar(&startServerPort, "server-port", "8689", "Port for the API server (overrides config)")
	startCmd.Flags().StringVar(&startProxyPort, "proxy-port", "", "Port for the live capture proxy (overrides config; empty disables)")
	startCmd.Flags().BoolVar(&startDemoFeed, "demo-feed", true, "Emit synthetic traffic when no proxy feed is configured")
	rootCmd.AddCommand(startCmd)
}
