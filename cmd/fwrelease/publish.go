package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"fwrelease/internal/console"
	"fwrelease/internal/publish"
	"fwrelease/internal/release"
	"fwrelease/internal/security"
	"fwrelease/pkg/fileutil"

	"github.com/spf13/cobra"
)

var (
	publishArchive string
	publishNotes   string
)

var publishCmd = &cobra.Command{
	Use:   "publish [VERSION]",
	Short: "Publish a packaged release on GitHub",
	Long: `Create (or reuse) the GitHub release v<VERSION> on publish.repo and upload
the release archive and notes as assets. Assets already attached are skipped.

Without VERSION the release the latest symlink points at is published.

The token is taken from publish.token, GH_TOKEN or GITHUB_TOKEN, in that order.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishArchive, "archive", "", "Archive to upload (default from release.root)")
	publishCmd.Flags().StringVar(&publishNotes, "notes", "", "Release notes file used as the release body (default from the release directory)")
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Publish.Repo == "" {
		return errors.New("publish.repo is not set in the configuration")
	}

	logger, logFileHandle, err := setupLogging(logFile, false)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	out := console.Stdout()
	var version string
	if len(args) == 1 {
		version = args[0]
	} else if version, err = release.LatestVersion(cfg.Release.Root); err != nil {
		return err
	}
	if err := security.ValidateVersion(version); err != nil {
		return err
	}

	token := cfg.Publish.Token
	if token != "" && cfg.Path() != "" {
		if err := security.CheckPrivate(cfg.Path()); err != nil {
			out.Warn("%v", err)
			logger.Warn("config holding a token has insecure permissions", "config", cfg.Path())
		}
	}
	if token == "" {
		token = getEnvOrDefault("GH_TOKEN", os.Getenv("GITHUB_TOKEN"))
	}

	packager := &release.Packager{
		Root:          cfg.Release.Root,
		ArchivePrefix: cfg.Release.ArchivePrefix,
		ArchiveFormat: cfg.Release.ArchiveFormat,
	}
	archive := publishArchive
	if archive == "" {
		archive = filepath.Join(cfg.Release.Root, packager.ArchiveName(version))
	}
	notesPath := publishNotes
	if notesPath == "" {
		notesPath = filepath.Join(cfg.Release.Root, release.DirName(version), release.NotesFile)
	}

	if !fileutil.FileExists(archive) {
		return fmt.Errorf("release archive not found: %s", archive)
	}
	assets := []string{archive}

	body := fmt.Sprintf("%s firmware %s", cfg.Product, release.DirName(version))
	if data, err := os.ReadFile(notesPath); err == nil {
		body = string(data)
		assets = append(assets, notesPath)
	} else {
		out.Warn("Release notes not found: %s", notesPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	publisher, err := publish.NewPublisher(ctx, cfg.Publish.Repo, token, logger, out)
	if err != nil {
		return err
	}

	logger.Info("publishing release", "repo", cfg.Publish.Repo, "version", version, "token", security.RedactToken(token))
	result, err := publisher.Publish(ctx, version, body, assets)
	if err != nil {
		logger.Error("publish failed", "repo", cfg.Publish.Repo, "error", err)
		return err
	}

	out.Success("Release %s: %s", result.Tag, result.URL)
	out.Printf("Uploaded: %d, already attached: %d\n", len(result.Uploaded), len(result.Skipped))
	return nil
}
