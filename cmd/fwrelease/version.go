package main

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"fwrelease/internal/build"
	"fwrelease/internal/console"

	"github.com/spf13/cobra"
)

var (
	gitCommit = "unknown"
	buildDate = "unknown"

	versionToolchain bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Show the fwrelease build and, with --toolchain, the version of the
configured arduino-cli.`,
	Args: cobra.NoArgs,
	RunE: runVersion,
}

func init() {
	versionCmd.Flags().BoolVar(&versionToolchain, "toolchain", false, "Also query the configured toolchain")
}

func runVersion(cmd *cobra.Command, args []string) error {
	commit, date := gitCommit, buildDate
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "unknown":
				commit = s.Value
			case s.Key == "vcs.time" && date == "unknown":
				date = s.Value
			}
		}
	}

	fmt.Printf("fwrelease %s (%s, built %s)\n", version, commit, date)
	fmt.Printf("  %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	if !versionToolchain {
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tc := cfg.Toolchain
	cli, err := build.NewArduinoCLI(tc.Command, tc.FQBN, tc.Partitions, cfg.SketchDir, tc.ExtraArgs)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	v, err := cli.Check(ctx)
	if err != nil {
		console.Stdout().Check(tc.Command, false)
		return err
	}
	fmt.Printf("  %s\n", v)
	return nil
}
