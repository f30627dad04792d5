package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"fwrelease/internal/config"
	"fwrelease/internal/firmware"
	"fwrelease/internal/history"
	"fwrelease/internal/release"
)

const sampleHeader = `#ifndef GLOBALS_H
#define GLOBALS_H

#define FIRMWARE_VERSION "v5.37"
#define SYSTEM 1
#define DEBUG 1

char UNIT[15] = "KSNDMC_TWS";

#endif
`

// fakeToolchain compiles by copying the current header into the build dir,
// so tests can see exactly what each build was configured with.
type fakeToolchain struct {
	mu         sync.Mutex
	source     string
	checkErr   error
	fail       map[string]bool
	noArtifact map[string]bool
	onCompile  func(identifier string)
	seen       []string
}

func (f *fakeToolchain) Check(ctx context.Context) (string, error) {
	if f.checkErr != nil {
		return "", f.checkErr
	}
	return "fake-cli 1.0", nil
}

func (f *fakeToolchain) Compile(ctx context.Context, buildDir string, log io.Writer) (int, error) {
	content, err := os.ReadFile(f.source)
	if err != nil {
		return -1, err
	}

	f.mu.Lock()
	f.seen = append(f.seen, string(content))
	f.mu.Unlock()

	id := identifierOf(string(content))
	fmt.Fprintf(log, "compiling %s\n", id)

	if f.onCompile != nil {
		f.onCompile(id)
	}
	if f.fail[id] {
		fmt.Fprintln(log, "error: compilation failed")
		return 1, nil
	}
	if f.noArtifact[id] {
		return 0, nil
	}
	return 0, os.WriteFile(filepath.Join(buildDir, "sketch.ino.bin"), content, 0644)
}

func identifierOf(header string) string {
	for _, line := range strings.Split(header, "\n") {
		if strings.HasPrefix(line, "char UNIT[15]") {
			parts := strings.Split(line, `"`)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return ""
}

type fixture struct {
	dir  string
	cfg  *config.Config
	tc   *fakeToolchain
	hist *history.History
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "globals.h"), []byte(sampleHeader), 0644); err != nil {
		t.Fatal(err)
	}
	os.MkdirAll(filepath.Join(dir, "flash_files"), 0755)
	os.WriteFile(filepath.Join(dir, "flash_files", "bootloader.bin"), []byte("boot"), 0644)

	cfg := config.Default(dir)
	cfg.Source.BackupPath = filepath.Join(dir, "scratch", "globals.h.backup")
	cfg.Builds = []config.BuildConfig{
		{Mode: 0, Identifier: "KSNDMC_TRG", Output: "KSNDMC_TRG"},
		{Mode: 1, Identifier: "KSNDMC_TWS", Output: "KSNDMC_TWS"},
		{Mode: 2, Identifier: "SPATIKA_GEN", Output: "SPATIKA_ADDON"},
	}

	hist, err := history.NewHistory(filepath.Join(dir, "history.db"))
	if err != nil {
		t.Fatalf("NewHistory() error = %v", err)
	}
	t.Cleanup(func() { hist.Close() })

	return &fixture{
		dir:  dir,
		cfg:  cfg,
		tc:   &fakeToolchain{source: cfg.Source.File},
		hist: hist,
	}
}

func (f *fixture) runner() *Runner {
	return NewRunner(f.cfg, f.tc, f.hist, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func (f *fixture) assertRestored(t *testing.T) {
	t.Helper()
	got, err := os.ReadFile(f.cfg.Source.File)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != sampleHeader {
		t.Errorf("header not restored:\n%s", got)
	}
}

func TestRunner_AllSucceed(t *testing.T) {
	f := newFixture(t)

	summary, err := f.runner().Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	f.assertRestored(t)

	if !summary.AllSucceeded() || summary.Succeeded() != 3 {
		t.Fatalf("summary = %d ok / %d failed", summary.Succeeded(), summary.Failed())
	}
	if summary.Version != "v5.37" {
		t.Errorf("Version = %q", summary.Version)
	}

	for i, seen := range f.tc.seen {
		want := f.cfg.Builds[i]
		if !strings.Contains(seen, fmt.Sprintf("#define SYSTEM %d", want.Mode)) {
			t.Errorf("build %d compiled without SYSTEM %d", i, want.Mode)
		}
		if identifierOf(seen) != want.Identifier {
			t.Errorf("build %d compiled with UNIT %q", i, identifierOf(seen))
		}
		if !strings.Contains(seen, "#define DEBUG 0") {
			t.Errorf("build %d compiled with debug on", i)
		}
	}

	for _, b := range f.cfg.Builds {
		out := filepath.Join(f.cfg.OutputDir, b.Output)
		version, err := os.ReadFile(filepath.Join(out, release.VersionFile))
		if err != nil {
			t.Fatalf("%s: version file missing: %v", b.Output, err)
		}
		if string(version) != "v5.37" {
			t.Errorf("%s: version = %q", b.Output, version)
		}
		info, err := os.ReadFile(filepath.Join(out, InfoFile))
		if err != nil {
			t.Fatalf("%s: build info missing: %v", b.Output, err)
		}
		if !strings.Contains(string(info), "UNIT: "+b.Identifier) {
			t.Errorf("%s: build info = %s", b.Output, info)
		}
		if _, err := os.Stat(filepath.Join(f.cfg.Release.Root, "v5.37", b.Output, release.FirmwareFile)); err != nil {
			t.Errorf("%s not released: %v", b.Output, err)
		}
	}

	if summary.Bundle == nil || summary.Bundle.Archive == "" {
		t.Fatal("release archive should be created")
	}
	if filepath.Base(summary.Bundle.Archive) != "AIO9_v5.37.zip" {
		t.Errorf("Archive = %s", summary.Bundle.Archive)
	}

	run, err := f.hist.GetRun(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Status != history.RunSucceeded || run.Succeeded != 3 || run.Version != "v5.37" {
		t.Errorf("run record = %+v", run)
	}
	builds, _ := f.hist.GetRunBuilds(context.Background(), summary.RunID)
	if len(builds) != 3 {
		t.Errorf("recorded %d builds, want 3", len(builds))
	}
}

func TestRunner_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.tc.fail = map[string]bool{"KSNDMC_TWS": true}
	f.tc.noArtifact = map[string]bool{"SPATIKA_GEN": true}

	summary, err := f.runner().Run(context.Background())
	if !errors.Is(err, ErrBuildsFailed) {
		t.Fatalf("Run() error = %v, want ErrBuildsFailed", err)
	}
	f.assertRestored(t)

	wantStatus := []string{StatusSuccess, StatusFailed, StatusNoArtifact}
	for i, res := range summary.Results {
		if res.Status != wantStatus[i] {
			t.Errorf("%s: status = %s, want %s", res.Config.Output, res.Status, wantStatus[i])
		}
	}
	if summary.Results[1].ExitCode != 1 {
		t.Errorf("exit code = %d", summary.Results[1].ExitCode)
	}

	logData, err := os.ReadFile(summary.Results[1].LogPath)
	if err != nil || !strings.Contains(string(logData), "compilation failed") {
		t.Errorf("build log = %q, err = %v", logData, err)
	}

	entries, err := os.ReadDir(filepath.Join(f.cfg.OutputDir, "KSNDMC_TWS"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != LogFile {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("failed output folder holds %v, want only %s", names, LogFile)
	}

	released, _ := os.ReadDir(filepath.Join(f.cfg.Release.Root, "v5.37"))
	var names []string
	for _, e := range released {
		if e.IsDir() && e.Name() != "flash_files" {
			names = append(names, e.Name())
		}
	}
	if len(names) != 1 || names[0] != "KSNDMC_TRG" {
		t.Errorf("released outputs = %v", names)
	}

	run, _ := f.hist.GetRun(context.Background(), summary.RunID)
	if run == nil || run.Status != history.RunPartial {
		t.Errorf("run record = %+v", run)
	}
}

func TestRunner_StaleArtifactNotReused(t *testing.T) {
	f := newFixture(t)
	f.cfg.Builds = f.cfg.Builds[:1]
	f.tc.noArtifact = map[string]bool{"KSNDMC_TRG": true}

	os.MkdirAll(f.cfg.SharedBuildDir, 0755)
	os.WriteFile(filepath.Join(f.cfg.SharedBuildDir, "old.ino.bin"), []byte("stale"), 0644)

	out := filepath.Join(f.cfg.OutputDir, "KSNDMC_TRG")
	os.MkdirAll(out, 0755)
	os.WriteFile(filepath.Join(out, release.FirmwareFile), []byte("previous run"), 0644)

	summary, err := f.runner().Run(context.Background())
	if !errors.Is(err, ErrBuildsFailed) {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Results[0].Status != StatusNoArtifact {
		t.Errorf("status = %s, stale binary must not be collected", summary.Results[0].Status)
	}
	if _, err := os.Stat(filepath.Join(out, release.FirmwareFile)); !os.IsNotExist(err) {
		t.Error("previous run's binary should be cleared")
	}
	if summary.Bundle != nil {
		t.Error("nothing should be packaged without a success")
	}
	if _, err := os.Stat(f.cfg.Release.Root); !os.IsNotExist(err) {
		t.Error("release root should not be created")
	}
}

func TestRunner_ToolchainMissing(t *testing.T) {
	f := newFixture(t)
	f.tc.checkErr = fmt.Errorf("%w: arduino-cli", ErrToolchainUnavailable)

	summary, err := f.runner().Run(context.Background())
	if !errors.Is(err, ErrToolchainUnavailable) {
		t.Fatalf("Run() error = %v", err)
	}
	if summary != nil {
		t.Error("no summary expected when nothing was attempted")
	}
	if len(f.tc.seen) != 0 {
		t.Error("no compile should run")
	}
	if _, err := os.Stat(f.cfg.Source.BackupPath); !os.IsNotExist(err) {
		t.Error("no backup should be taken")
	}
	f.assertRestored(t)
}

func TestRunner_CancelSkipsRemaining(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.tc.onCompile = func(string) { cancel() }

	summary, err := f.runner().Run(ctx)
	if !errors.Is(err, ErrBuildCancelled) {
		t.Fatalf("Run() error = %v, want ErrBuildCancelled", err)
	}
	f.assertRestored(t)

	if !summary.Cancelled {
		t.Error("summary should be marked cancelled")
	}
	if len(f.tc.seen) != 1 {
		t.Errorf("compiled %d times, want 1", len(f.tc.seen))
	}
	for _, res := range summary.Results[1:] {
		if res.Status != StatusSkipped {
			t.Errorf("%s: status = %s, want skipped", res.Config.Output, res.Status)
		}
	}
	if summary.Bundle != nil {
		t.Error("cancelled run must not be packaged")
	}

	run, _ := f.hist.GetRun(context.Background(), summary.RunID)
	if run == nil || run.Status != history.RunCancelled {
		t.Errorf("run record = %+v", run)
	}
}

func TestRunner_CancelAfterLastBuild(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	last := f.cfg.Builds[len(f.cfg.Builds)-1].Identifier
	f.tc.onCompile = func(id string) {
		if id == last {
			cancel()
		}
	}

	summary, err := f.runner().Run(ctx)
	if !errors.Is(err, ErrBuildCancelled) {
		t.Fatalf("Run() error = %v, want ErrBuildCancelled", err)
	}
	f.assertRestored(t)

	if !summary.AllSucceeded() {
		t.Errorf("every configuration built, got %d failed", summary.Failed())
	}
	if summary.Bundle != nil {
		t.Error("cancelled run must not be packaged")
	}
	if _, err := os.Stat(f.cfg.Release.Root); !os.IsNotExist(err) {
		t.Error("release root should not be created")
	}
}

func TestRunner_PanicRestoresHeader(t *testing.T) {
	f := newFixture(t)
	f.tc.onCompile = func(id string) {
		if id == "KSNDMC_TWS" {
			panic("toolchain crashed")
		}
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic should reach the caller")
			}
		}()
		f.runner().Run(context.Background())
	}()

	f.assertRestored(t)
	if _, err := os.Stat(LockPath(f.cfg.Source.File)); !os.IsNotExist(err) {
		t.Error("lock file should be removed after a panic")
	}
}

func TestRunner_MutationFailureRestoresHeader(t *testing.T) {
	f := newFixture(t)
	r := f.runner()

	// after the first build the header is mutated; the next Apply reads from
	// a guard that was never backed up and fails
	unarmed := firmware.NewGuard(f.cfg.Source.File, filepath.Join(f.dir, "unused.backup"))
	f.tc.onCompile = func(string) {
		r.Mutator = firmware.NewMutator(unarmed, r.Schema, r.Logger)
	}

	summary, err := r.Run(context.Background())
	if !errors.Is(err, firmware.ErrMutation) {
		t.Fatalf("Run() error = %v, want ErrMutation", err)
	}
	f.assertRestored(t)

	if len(f.tc.seen) != 1 {
		t.Errorf("compiled %d times, the run must stop at the failed mutation", len(f.tc.seen))
	}
	if len(summary.Results) != 2 || summary.Results[1].Status != StatusFailed {
		t.Errorf("results = %+v", summary.Results)
	}
	if summary.Bundle != nil {
		t.Error("aborted run must not be packaged")
	}
}

func TestRunner_WithoutHistory(t *testing.T) {
	f := newFixture(t)
	f.cfg.Builds = f.cfg.Builds[:1]

	r := NewRunner(f.cfg, f.tc, nil, nil, nil)
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	f.assertRestored(t)
}

func TestRunner_RefusesConcurrentRun(t *testing.T) {
	f := newFixture(t)
	if err := os.WriteFile(LockPath(f.cfg.Source.File), []byte("1"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := f.runner().Run(context.Background())
	if !errors.Is(err, ErrBuildInProgress) {
		t.Fatalf("Run() error = %v, want ErrBuildInProgress", err)
	}
	if len(f.tc.seen) != 0 {
		t.Error("no compile should run while locked")
	}
}
