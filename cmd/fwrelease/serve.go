package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fwrelease/internal/history"
	"fwrelease/internal/server"

	"github.com/spf13/cobra"
)

var (
	serveDBPath string
	host        string
	port        int
	testMode    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve build history over HTTP",
	Long: `Start a read-only HTTP server reporting the latest build of each configured
output and the recent build runs.

Endpoints:
  GET /health               configured outputs
  GET /status/{outputName}  latest and recent builds of one output
  GET /runs                 recent runs (?limit=1..100)
  GET /runs/{runID}         one run and its builds`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveDBPath, "db", getEnvOrDefault("FWRELEASE_DB_PATH", ""), "Path to SQLite history database (default from config)")
	serveCmd.Flags().StringVar(&host, "host", getEnvOrDefault("FWRELEASE_HOST", ""), "Host to bind to (default from config)")
	serveCmd.Flags().IntVarP(&port, "port", "p", getEnvOrDefaultInt("FWRELEASE_PORT", 0), "Port to listen on (default from config)")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", os.Getenv("FWRELEASE_TEST_MODE") == "1", "Enable test mode (no history, no rate limit)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if host == "" {
		host = cfg.Server.Host
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	logger, logFileHandle, err := setupLogging(logFile, true)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	// test mode serves /health only; status and run lookups need the db
	var hist *history.History
	if !testMode {
		dbPath := cfg.HistoryDB
		if serveDBPath != "" {
			dbPath = serveDBPath
		}
		if hist, err = history.NewHistory(dbPath); err != nil {
			return fmt.Errorf("failed to open history database %s: %w", dbPath, err)
		}
		defer hist.Close()
	}

	srv := server.NewServer(cfg, hist, logger)
	srv.TestMode = testMode

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("status server starting", "config", cfg.Path(), "outputs", len(cfg.Builds), "addr", fmt.Sprintf("%s:%d", host, port), "test_mode", testMode)
	if err := srv.Start(ctx, host, port); err != nil {
		logger.Error("status server stopped", "error", err)
		return err
	}
	return nil
}
