package cmdutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
)

// ExecOptions configures a command run. The zero value runs in the current
// directory with the parent environment and captures combined output.
type ExecOptions struct {
	Dir     string
	Timeout time.Duration // zero means no limit beyond ctx
	Env     []string      // KEY=value entries; nil inherits the parent's
	Stdin   io.Reader

	// Output, when set, receives stdout and stderr as the command runs
	// instead of them being captured into Result.Output.
	Output io.Writer
}

// Result describes a finished command.
type Result struct {
	Output   []byte
	ExitCode int // -1 if the process never started or died on a signal
	Duration time.Duration
}

// Run executes cmdParts[0] with the remaining parts as arguments. A non-nil
// Result is returned even on error so callers can report output and exit code.
func Run(ctx context.Context, opts ExecOptions, cmdParts []string) (*Result, error) {
	result := &Result{ExitCode: -1}
	if len(cmdParts) == 0 {
		return result, errors.New("empty command")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, cmdParts[0], cmdParts[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdin = opts.Stdin

	var captured bytes.Buffer
	sink := opts.Output
	if sink == nil {
		sink = &captured
	}
	cmd.Stdout = sink
	cmd.Stderr = sink

	start := time.Now()
	err := cmd.Run()
	result.Duration = time.Since(start)
	result.Output = captured.Bytes()
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return result, fmt.Errorf("%s timed out after %s: %w", cmdParts[0], opts.Timeout, err)
		}
		return result, fmt.Errorf("%s: %w", cmdParts[0], err)
	}
	return result, nil
}

// RunWithTimeout runs a command in workDir and returns its combined output.
func RunWithTimeout(ctx context.Context, workDir string, timeout time.Duration, cmdParts []string) ([]byte, error) {
	result, err := Run(ctx, ExecOptions{Dir: workDir, Timeout: timeout}, cmdParts)
	return result.Output, err
}

// IsExitError reports whether err means the command ran and exited non-zero,
// as opposed to never starting at all.
func IsExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// ParseCommandString splits a configured command such as
// "sendmail -t -oi" into its parts. An empty command is an error.
func ParseCommandString(cmdStr string) ([]string, error) {
	parts, err := shellquote.Split(cmdStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command string: %w", err)
	}
	if len(parts) == 0 {
		return nil, errors.New("empty command string")
	}
	return parts, nil
}

// SplitArgs parses an optional shell-quoted argument string.
// Unlike ParseCommandString an empty string yields no arguments.
func SplitArgs(args string) ([]string, error) {
	if strings.TrimSpace(args) == "" {
		return nil, nil
	}
	parts, err := shellquote.Split(args)
	if err != nil {
		return nil, fmt.Errorf("failed to parse arguments: %w", err)
	}
	return parts, nil
}

// FormatCommand renders cmdParts for logs, quoting only the parts that need it.
func FormatCommand(cmdParts []string) string {
	if len(cmdParts) == 0 {
		return "<empty command>"
	}

	quoted := make([]string, len(cmdParts))
	for i, part := range cmdParts {
		if strings.ContainsAny(part, " \t\n\"'") {
			quoted[i] = shellquote.Join(part)
		} else {
			quoted[i] = part
		}
	}
	return strings.Join(quoted, " ")
}
