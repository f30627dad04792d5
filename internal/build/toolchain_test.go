package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"fwrelease/internal/config"
	"fwrelease/internal/firmware"
)

func TestArduinoCLIArgs(t *testing.T) {
	a, err := NewArduinoCLI("arduino-cli", "esp32:esp32:esp32", "/p/partitions.csv", "/p", `--warnings all --build-property "compiler.c.extra_flags=-DX"`)
	if err != nil {
		t.Fatalf("NewArduinoCLI() error = %v", err)
	}

	got := strings.Join(a.Args("/tmp/shared"), " ")
	want := "arduino-cli compile --fqbn esp32:esp32:esp32" +
		" --build-property build.partitions=custom" +
		" --build-property build.custom_partitions=/p/partitions.csv" +
		" --build-path /tmp/shared --export-binaries" +
		" --warnings all --build-property compiler.c.extra_flags=-DX /p"
	if got != want {
		t.Errorf("Args() =\n%s\nwant\n%s", got, want)
	}
}

func TestNewArduinoCLI_BadExtraArgs(t *testing.T) {
	if _, err := NewArduinoCLI("arduino-cli", "fqbn", "p.csv", ".", `--flag "unterminated`); err == nil {
		t.Error("expected error for unterminated quote")
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "fake-cli")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestArduinoCLI_CheckAndCompile(t *testing.T) {
	script := writeScript(t, `
if [ "$1" = "version" ]; then
  echo "fake-cli Version: 1.2.3"
  exit 0
fi
echo "compiling"
echo "boom" >&2
exit 3
`)
	sketch := t.TempDir()
	a := &ArduinoCLI{Command: script, FQBN: "x", Partitions: "p.csv", SketchDir: sketch}

	banner, err := a.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if banner != "fake-cli Version: 1.2.3" {
		t.Errorf("Check() = %q", banner)
	}

	inv := &Invoker{Toolchain: a, BuildDir: filepath.Join(t.TempDir(), "shared")}
	logPath := filepath.Join(t.TempDir(), "out", LogFile)
	code, err := inv.Invoke(context.Background(), logPath)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}

	logData, _ := os.ReadFile(logPath)
	if !strings.Contains(string(logData), "compiling") || !strings.Contains(string(logData), "boom") {
		t.Errorf("log should hold stdout and stderr, got %q", logData)
	}
	if !strings.Contains(inv.CommandLine(), "--export-binaries") {
		t.Errorf("CommandLine() = %q", inv.CommandLine())
	}
}

func TestArduinoCLI_CheckMissing(t *testing.T) {
	a := &ArduinoCLI{Command: filepath.Join(t.TempDir(), "does-not-exist")}
	_, err := a.Check(context.Background())
	if !errors.Is(err, ErrToolchainUnavailable) {
		t.Errorf("Check() error = %v, want ErrToolchainUnavailable", err)
	}
}

func TestInvoker_Timeout(t *testing.T) {
	script := writeScript(t, "sleep 5\n")
	a := &ArduinoCLI{Command: script, SketchDir: t.TempDir()}
	inv := &Invoker{Toolchain: a, BuildDir: t.TempDir(), Timeout: 100 * time.Millisecond}

	logPath := filepath.Join(t.TempDir(), LogFile)
	start := time.Now()
	code, _ := inv.Invoke(context.Background(), logPath)
	if time.Since(start) > 4*time.Second {
		t.Error("timeout did not stop the compile")
	}
	if code == 0 {
		t.Error("timed out compile must not report success")
	}
	logData, _ := os.ReadFile(logPath)
	if !strings.Contains(string(logData), "stopped") {
		t.Errorf("log should note the timeout, got %q", logData)
	}
}

func TestCollector(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "globals.h")
	os.WriteFile(source, []byte(sampleHeader), 0644)
	buildDir := filepath.Join(dir, "shared")
	os.MkdirAll(buildDir, 0755)

	c := &Collector{
		BuildDir: buildDir,
		Pattern:  config.DefaultArtifactPattern,
		Source:   source,
		Schema:   firmware.DefaultSchema(),
		Now:      func() time.Time { return time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC) },
	}
	cfg := config.BuildConfig{Mode: 2, Identifier: "SPATIKA_GEN", Output: "SPATIKA_ADDON"}
	outDir := filepath.Join(dir, "out")

	if _, err := c.Collect(cfg, outDir); !errors.Is(err, ErrArtifactMissing) {
		t.Fatalf("Collect() error = %v, want ErrArtifactMissing", err)
	}

	os.WriteFile(filepath.Join(buildDir, "sketch.ino.bin"), make([]byte, 1024*1024+512*1024), 0644)
	rec, err := c.Collect(cfg, outDir)
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if rec.Version != "v5.37" {
		t.Errorf("Version = %q", rec.Version)
	}
	if rec.SizeMB() != 1.5 {
		t.Errorf("SizeMB() = %v", rec.SizeMB())
	}

	info, _ := os.ReadFile(rec.InfoPath)
	for _, want := range []string{"SYSTEM: 2", "UNIT: SPATIKA_GEN", "Output: SPATIKA_ADDON", "Build Date: 2025-03-01 10:30:00", "Binary Size: 1.50 MB"} {
		if !strings.Contains(string(info), want) {
			t.Errorf("build info missing %q:\n%s", want, info)
		}
	}

	if err := c.ClearStale(); err != nil {
		t.Fatalf("ClearStale() error = %v", err)
	}
	if matches, _ := filepath.Glob(filepath.Join(buildDir, "*.ino.bin")); len(matches) != 0 {
		t.Errorf("stale artifacts left: %v", matches)
	}

	if err := ClearOutput(outDir); err != nil {
		t.Fatalf("ClearOutput() error = %v", err)
	}
	if _, err := os.Stat(rec.BinaryPath); !os.IsNotExist(err) {
		t.Error("binary should be cleared")
	}
}

func TestRunLock(t *testing.T) {
	source := filepath.Join(t.TempDir(), "globals.h")
	rl := NewRunLock()

	if err := rl.TryLock(source); err != nil {
		t.Fatalf("first TryLock() error = %v", err)
	}
	if err := rl.TryLock(source); !errors.Is(err, ErrBuildInProgress) {
		t.Errorf("second TryLock() error = %v", err)
	}

	other := NewRunLock()
	if err := other.TryLock(source); !errors.Is(err, ErrBuildInProgress) {
		t.Errorf("lock file should block another process, got %v", err)
	}

	rl.Unlock(source)
	if _, err := os.Stat(LockPath(source)); !os.IsNotExist(err) {
		t.Error("lock file should be removed on unlock")
	}
	if err := other.TryLock(source); err != nil {
		t.Errorf("TryLock() after unlock error = %v", err)
	}
	other.Unlock(source)
}

func TestSummary(t *testing.T) {
	s := &Summary{Results: []Result{
		{Config: config.BuildConfig{Output: "A"}, Status: StatusSuccess},
		{Config: config.BuildConfig{Output: "B"}, Status: StatusFailed},
		{Config: config.BuildConfig{Output: "C"}, Status: StatusSuccess},
		{Config: config.BuildConfig{Output: "D"}, Status: StatusSkipped},
	}}

	if s.Succeeded() != 2 || s.Failed() != 2 {
		t.Errorf("counts = %d/%d", s.Succeeded(), s.Failed())
	}
	if s.AllSucceeded() {
		t.Error("AllSucceeded() should be false")
	}
	if got := strings.Join(s.SuccessfulOutputs(), ","); got != "A,C" {
		t.Errorf("SuccessfulOutputs() = %s", got)
	}
	if (&Summary{}).AllSucceeded() {
		t.Error("empty summary is not a success")
	}
}
