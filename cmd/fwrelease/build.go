package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fwrelease/internal/build"
	"fwrelease/internal/console"
	"fwrelease/internal/history"

	"github.com/spf13/cobra"
)

var (
	buildDBPath    string
	buildNoHistory bool
	buildTimeout   int
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build every configuration and package the release",
	Long: `Build the sketch once per configured (mode, identifier, output) tuple.

For each configuration the header is patched, the sketch is compiled and the
binary, version file and build info are exported to the output directory.
The header is restored when the run ends, including on failure or Ctrl+C.
Successful outputs are then copied into the versioned release directory and
archived.

Exits non-zero unless every configuration succeeded.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildDBPath, "db", getEnvOrDefault("FWRELEASE_DB_PATH", ""), "Path to SQLite history database (default from config)")
	buildCmd.Flags().BoolVar(&buildNoHistory, "no-history", false, "Do not record the run in the history database")
	buildCmd.Flags().IntVar(&buildTimeout, "timeout", getEnvOrDefaultInt("FWRELEASE_BUILD_TIMEOUT", 0), "Per-configuration compile timeout in seconds (0 uses config)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if buildTimeout > 0 {
		cfg.Toolchain.Timeout = buildTimeout
	}

	logger, logFileHandle, err := setupLogging(logFile, false)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	out := console.Stdout()

	tc, err := build.NewArduinoCLI(cfg.Toolchain.Command, cfg.Toolchain.FQBN, cfg.Toolchain.Partitions, cfg.SketchDir, cfg.Toolchain.ExtraArgs)
	if err != nil {
		return err
	}

	var hist *history.History
	if !buildNoHistory {
		dbPath := cfg.HistoryDB
		if buildDBPath != "" {
			dbPath = buildDBPath
		}
		hist, err = history.NewHistory(dbPath)
		if err != nil {
			// history is optional, a broken database must not block a release
			logger.Warn("history disabled", "db", dbPath, "error", err)
			out.Warn("Build history disabled: %v", err)
			hist = nil
		} else {
			defer hist.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := build.NewRunner(cfg, tc, hist, logger, out)
	if _, err := runner.Run(ctx); err != nil {
		return err
	}
	return nil
}
