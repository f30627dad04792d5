package build

import (
	"context"
	"fmt"
	"io"
	"strings"

	"fwrelease/pkg/cmdutil"
)

// Toolchain compiles the sketch for whatever configuration is currently
// written into the header.
type Toolchain interface {
	// Check verifies the toolchain is installed and returns its version banner.
	Check(ctx context.Context) (string, error)

	// Compile builds into buildDir, streaming combined output to log.
	// A non-zero exit code is a result, not an error; the error is reserved
	// for failures to run the compiler at all.
	Compile(ctx context.Context, buildDir string, log io.Writer) (int, error)
}

// ArduinoCLI drives arduino-cli.
type ArduinoCLI struct {
	Command    string
	FQBN       string
	Partitions string
	SketchDir  string
	ExtraArgs  []string
}

// NewArduinoCLI builds a toolchain from config values. extraArgs is a
// shell-quoted string.
func NewArduinoCLI(command, fqbn, partitions, sketchDir, extraArgs string) (*ArduinoCLI, error) {
	extra, err := cmdutil.SplitArgs(extraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid toolchain extra_args: %w", err)
	}
	return &ArduinoCLI{
		Command:    command,
		FQBN:       fqbn,
		Partitions: partitions,
		SketchDir:  sketchDir,
		ExtraArgs:  extra,
	}, nil
}

// Args returns the full compile command line.
func (a *ArduinoCLI) Args(buildDir string) []string {
	args := []string{
		a.Command, "compile",
		"--fqbn", a.FQBN,
		"--build-property", "build.partitions=custom",
		"--build-property", "build.custom_partitions=" + a.Partitions,
		"--build-path", buildDir,
		"--export-binaries",
	}
	args = append(args, a.ExtraArgs...)
	return append(args, a.SketchDir)
}

// Check runs "<command> version".
func (a *ArduinoCLI) Check(ctx context.Context) (string, error) {
	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{}, []string{a.Command, "version"})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrToolchainUnavailable, a.Command, err)
	}
	return strings.TrimSpace(string(result.Output)), nil
}

// Compile runs the compile command line.
func (a *ArduinoCLI) Compile(ctx context.Context, buildDir string, log io.Writer) (int, error) {
	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{
		Dir:    a.SketchDir,
		Output: log,
	}, a.Args(buildDir))
	if err != nil && !cmdutil.IsExitError(err) {
		return -1, err
	}
	return result.ExitCode, nil
}
