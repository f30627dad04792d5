package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fwrelease/pkg/cmdutil"
)

// Invoker runs one compile with its output captured to a log file.
type Invoker struct {
	Toolchain Toolchain
	BuildDir  string
	Timeout   time.Duration // zero means no limit
}

// Invoke compiles into the shared build dir, writing combined output to
// logPath. Success is decided by the exit code alone.
func (i *Invoker) Invoke(ctx context.Context, logPath string) (int, error) {
	if err := os.MkdirAll(i.BuildDir, 0755); err != nil {
		return -1, fmt.Errorf("failed to create build directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return -1, fmt.Errorf("failed to create output directory: %w", err)
	}

	logFile, err := os.Create(logPath)
	if err != nil {
		return -1, fmt.Errorf("failed to create build log: %w", err)
	}
	defer logFile.Close()

	if i.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.Timeout)
		defer cancel()
	}

	code, err := i.Toolchain.Compile(ctx, i.BuildDir, logFile)
	if err != nil {
		fmt.Fprintf(logFile, "\n[fwrelease] failed to run toolchain: %v\n", err)
		return code, err
	}
	if ctx.Err() == context.DeadlineExceeded {
		fmt.Fprintf(logFile, "\n[fwrelease] compile exceeded %s and was stopped\n", i.Timeout)
	}
	return code, nil
}

// CommandLine returns a printable compile command, when the toolchain exposes one.
func (i *Invoker) CommandLine() string {
	if a, ok := i.Toolchain.(*ArduinoCLI); ok {
		return cmdutil.FormatCommand(a.Args(i.BuildDir))
	}
	return ""
}
