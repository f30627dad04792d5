// Package build drives the multi-configuration firmware build: it patches the
// configuration header for each build, compiles, collects the binary and
// hands the successful outputs to the release packager.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"fwrelease/internal/config"
	"fwrelease/internal/console"
	"fwrelease/internal/firmware"
	"fwrelease/internal/history"
	"fwrelease/internal/release"
)

// Runner executes every configured build in order against one header.
type Runner struct {
	Builds    []config.BuildConfig
	OutputDir string

	Toolchain Toolchain
	Guard     *firmware.Guard
	Mutator   *firmware.Mutator
	Schema    firmware.Schema
	Invoker   *Invoker
	Collector *Collector
	Packager  *release.Packager // nil disables packaging
	History   *history.History  // nil disables recording
	Lock      *RunLock

	Title   string
	Logger  *slog.Logger
	Console *console.Console
}

// SchemaFor returns the header declaration names configured in cfg.
func SchemaFor(cfg *config.Config) firmware.Schema {
	return firmware.Schema{
		ModeName:       cfg.Source.ModeName,
		IdentifierName: cfg.Source.IdentifierName,
		IdentifierSize: cfg.Source.IdentifierSize,
		DebugName:      cfg.Source.DebugName,
		VersionName:    cfg.Source.VersionName,
	}
}

// NewRunner wires a runner from cfg. hist may be nil.
func NewRunner(cfg *config.Config, tc Toolchain, hist *history.History, logger *slog.Logger, out *console.Console) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if out == nil {
		out = console.Discard()
	}

	schema := SchemaFor(cfg)
	guard := firmware.NewGuard(cfg.Source.File, cfg.Source.BackupPath)

	return &Runner{
		Builds:    cfg.Builds,
		OutputDir: cfg.OutputDir,
		Toolchain: tc,
		Guard:     guard,
		Mutator:   firmware.NewMutator(guard, schema, logger),
		Schema:    schema,
		Invoker: &Invoker{
			Toolchain: tc,
			BuildDir:  cfg.SharedBuildDir,
			Timeout:   time.Duration(cfg.Toolchain.Timeout) * time.Second,
		},
		Collector: &Collector{
			BuildDir: cfg.SharedBuildDir,
			Pattern:  cfg.Toolchain.ArtifactPattern,
			Source:   cfg.Source.File,
			Schema:   schema,
		},
		Packager: &release.Packager{
			Root:          cfg.Release.Root,
			OutputDir:     cfg.OutputDir,
			SupportDir:    cfg.Release.SupportDir,
			NotesDirs:     []string{cfg.Notes.Dir, cfg.SketchDir},
			ArchivePrefix: cfg.Release.ArchivePrefix,
			ArchiveFormat: cfg.Release.ArchiveFormat,
			Logger:        logger,
			Console:       out,
		},
		History: hist,
		Lock:    NewRunLock(),
		Title:   fmt.Sprintf("%s Multi-Configuration Builder", cfg.Product),
		Logger:  logger,
		Console: out,
	}
}

// Run builds every configuration, restores the header, and packages the
// successful outputs. The returned summary is non-nil whenever any build was
// attempted. The error is ErrBuildCancelled after an interruption,
// ErrBuildsFailed when some configuration did not succeed, or the cause when
// the run could not proceed at all.
func (r *Runner) Run(ctx context.Context) (summary *Summary, err error) {
	log := r.Logger
	out := r.Console

	if r.Lock != nil {
		if err := r.Lock.TryLock(r.Guard.Source()); err != nil {
			return nil, err
		}
		defer r.Lock.Unlock(r.Guard.Source())
	}

	out.Header(r.Title)

	banner, err := r.Toolchain.Check(ctx)
	if err != nil {
		out.Error("Toolchain not found!")
		log.Error("toolchain check failed", "error", err)
		return nil, err
	}
	out.Success("Toolchain found: %s", banner)

	out.Step("Backing up %s...", filepath.Base(r.Guard.Source()))
	if err := r.Guard.Backup(); err != nil {
		log.Error("backup failed", "source", r.Guard.Source(), "error", err)
		return nil, err
	}
	defer func() {
		if rerr := r.restore(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	summary = &Summary{RunID: uuid.NewString()}
	log.Info("build run started", "run_id", summary.RunID, "configurations", len(r.Builds))

	run := &history.RunRecord{ID: summary.RunID}
	r.recordRun(ctx, run)

	for i, cfg := range r.Builds {
		if ctx.Err() != nil {
			summary.Cancelled = true
			for _, rest := range r.Builds[i:] {
				res := Result{Config: rest, Status: StatusSkipped, ExitCode: -1, Err: ctx.Err()}
				summary.Results = append(summary.Results, res)
				r.recordBuild(ctx, summary.RunID, &res)
			}
			break
		}

		res, ferr := r.buildOne(ctx, cfg)
		if ferr != nil {
			res.Status = StatusFailed
			res.Err = ferr
			summary.Results = append(summary.Results, res)
			r.recordBuild(ctx, summary.RunID, &res)
			r.completeRun(ctx, run, summary)
			return summary, ferr
		}
		summary.Results = append(summary.Results, res)
		r.recordBuild(ctx, summary.RunID, &res)
	}

	if summary.Cancelled || ctx.Err() != nil {
		summary.Cancelled = true
		out.Warn("Build cancelled by user")
		log.Warn("build run cancelled", "run_id", summary.RunID)
	}

	if rerr := r.restore(); rerr != nil {
		return summary, rerr
	}

	summary.Version, err = r.Schema.ReadVersion(r.Guard.Source())
	if err != nil {
		log.Warn("failed to read firmware version", "error", err)
		summary.Version = firmware.UnknownVersion
	}

	out.Header("Build Summary")
	out.Tally("Successful", summary.Succeeded(), true)
	out.Tally("Failed", summary.Failed(), false)
	out.Printf("\nInternal Build directory: %s\n", r.OutputDir)

	if r.Packager != nil && summary.Succeeded() > 0 && !summary.Cancelled {
		bundle, perr := r.Packager.Package(ctx, summary.Version, summary.SuccessfulOutputs())
		if perr != nil {
			out.Error("Failed to copy to external release directory: %v", perr)
			log.Error("release packaging failed", "version", summary.Version, "error", perr)
		}
		summary.Bundle = bundle
	}

	r.completeRun(ctx, run, summary)
	r.printBuilt(summary)

	log.Info("build run finished",
		"run_id", summary.RunID,
		"version", summary.Version,
		"succeeded", summary.Succeeded(),
		"failed", summary.Failed())

	if summary.Cancelled {
		return summary, ErrBuildCancelled
	}
	if !summary.AllSucceeded() {
		return summary, ErrBuildsFailed
	}
	out.Printf("\nDone!\n")
	return summary, nil
}

// buildOne runs a single configuration. The returned error is reserved for
// failures that must stop the whole run; build failures land in the Result.
func (r *Runner) buildOne(ctx context.Context, cfg config.BuildConfig) (Result, error) {
	log := r.Logger.With("output", cfg.Output)
	out := r.Console

	outDir := filepath.Join(r.OutputDir, cfg.Output)
	res := Result{
		Config:   cfg,
		LogPath:  filepath.Join(outDir, LogFile),
		ExitCode: -1,
	}

	out.Header("Building: " + cfg.Label())
	start := time.Now()

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return res, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := ClearOutput(outDir); err != nil {
		return res, err
	}

	out.Step("Configuring: %s=%d, %s=%s", r.Schema.ModeName, cfg.Mode, r.Schema.IdentifierName, cfg.Identifier)
	missing, err := r.Mutator.Apply(firmware.Params{Mode: cfg.Mode, Identifier: cfg.Identifier})
	if err != nil {
		out.Error("Failed to configure %s: %v", cfg.Output, err)
		log.Error("mutation failed", "error", err)
		return res, err
	}
	for _, name := range missing {
		out.Warn("%s not declared in %s, left unchanged", name, filepath.Base(r.Guard.Source()))
	}
	out.Printf("  %s set to: %d\n", r.Schema.ModeName, cfg.Mode)
	out.Printf("  %s set to: %s\n", r.Schema.IdentifierName, cfg.Identifier)

	if err := r.Collector.ClearStale(); err != nil {
		return res, err
	}

	out.Step("Compiling...")
	log.Info("compiling", "command", r.Invoker.CommandLine(), "log", res.LogPath)

	code, err := r.Invoker.Invoke(ctx, res.LogPath)
	res.ExitCode = code
	if err != nil || code != 0 {
		res.Status = StatusFailed
		res.Err = err
		if res.Err == nil {
			res.Err = fmt.Errorf("compiler exited with status %d", code)
		}
		out.Error("Compilation failed")
		out.Printf("See log: %s\n", res.LogPath)
		log.Error("compile failed", "exit_code", code, "error", res.Err, "log", res.LogPath)
		res.Duration = time.Since(start)
		return res, nil
	}
	out.Success("Compilation successful")

	rec, err := r.Collector.Collect(cfg, outDir)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		if errors.Is(err, ErrArtifactMissing) {
			res.Status = StatusNoArtifact
			out.Error("Binary not found")
		} else {
			res.Status = StatusFailed
			out.Error("Failed to collect binary: %v", err)
		}
		log.Error("collect failed", "error", err)
		return res, nil
	}

	res.Status = StatusSuccess
	res.Record = rec
	out.Success("Binary exported: %s (%.2f MB)", release.FirmwareFile, rec.SizeMB())
	out.Success("Version file created: %s (%s)", release.VersionFile, rec.Version)
	log.Info("build succeeded", "version", rec.Version, "size_bytes", rec.SizeBytes, "duration", res.Duration)
	return res, nil
}

func (r *Runner) restore() error {
	if !r.Guard.Armed() {
		return nil
	}
	r.Console.Step("Restoring original %s...", filepath.Base(r.Guard.Source()))
	if err := r.Guard.Restore(); err != nil {
		r.Console.Error("Failed to restore %s: %v", r.Guard.Source(), err)
		r.Logger.Error("restore failed", "source", r.Guard.Source(), "backup", r.Guard.BackupPath(), "error", err)
		return err
	}
	return nil
}

func (r *Runner) printBuilt(summary *Summary) {
	r.Console.Printf("\nBuilt configurations:\n")
	for _, res := range summary.Results {
		if res.Record == nil {
			continue
		}
		r.Console.Printf("  %s: %s (%.2f MB)\n", res.Config.Output, release.FirmwareFile, res.Record.SizeMB())
	}
}

// History writes never change the outcome of a run; they use a context that
// survives cancellation so an interrupted run is still recorded.

func (r *Runner) recordRun(ctx context.Context, run *history.RunRecord) {
	if r.History == nil {
		return
	}
	if err := r.History.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		r.Logger.Error("failed to record run", "run_id", run.ID, "error", err)
	}
}

func (r *Runner) recordBuild(ctx context.Context, runID string, res *Result) {
	if r.History == nil {
		return
	}

	rec := &history.BuildRecord{
		RunID:      runID,
		OutputName: res.Config.Output,
		Mode:       res.Config.Mode,
		Identifier: res.Config.Identifier,
		Status:     res.Status,
		LogPath:    res.LogPath,
	}
	if res.Status != StatusSkipped {
		secs := res.Duration.Seconds()
		rec.DurationSeconds = &secs
	}
	if res.Record != nil {
		rec.Version = &res.Record.Version
		rec.SizeBytes = &res.Record.SizeBytes
		rec.BuiltAt = res.Record.BuiltAt.UTC()
	}
	if res.Err != nil {
		msg := res.Err.Error()
		rec.ErrorMessage = &msg
	}

	if _, err := r.History.RecordBuild(context.WithoutCancel(ctx), rec); err != nil {
		r.Logger.Error("failed to record build", "run_id", runID, "output", res.Config.Output, "error", err)
	}
}

func (r *Runner) completeRun(ctx context.Context, run *history.RunRecord, summary *Summary) {
	if r.History == nil {
		return
	}

	run.Version = summary.Version
	run.Succeeded = summary.Succeeded()
	run.Failed = summary.Failed()
	switch {
	case summary.Cancelled:
		run.Status = history.RunCancelled
	case summary.AllSucceeded():
		run.Status = history.RunSucceeded
	case summary.Succeeded() > 0:
		run.Status = history.RunPartial
	default:
		run.Status = history.RunFailed
	}
	if summary.Bundle != nil && summary.Bundle.Archive != "" {
		archive := summary.Bundle.Archive
		run.ArchivePath = &archive
	}

	if err := r.History.CompleteRun(context.WithoutCancel(ctx), run); err != nil {
		r.Logger.Error("failed to complete run record", "run_id", run.ID, "error", err)
	}
}
