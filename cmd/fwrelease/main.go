package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev" // set with -ldflags "-X main.version=..."

var rootCmd = &cobra.Command{
	Use:   "fwrelease",
	Short: "Multi-configuration firmware build and release tool",
	Long: `fwrelease builds one firmware sketch in several configurations, packages the
binaries into a versioned release, and announces it.

Each configuration patches the sketch's configuration header, compiles it with
arduino-cli and collects the binary. The header is always restored afterwards.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", getEnvOrDefault("FWRELEASE_CONFIG", ""), "Path to fwrelease.yaml")
	rootCmd.PersistentFlags().StringVar(&logFile, "log", getEnvOrDefault("FWRELEASE_LOG_FILE", "./fwrelease.log"), "Path to log file")

	rootCmd.AddGroup(
		&cobra.Group{ID: "release", Title: "Release Commands:"},
		&cobra.Group{ID: "inspect", Title: "Inspection Commands:"},
	)
	for _, c := range []*cobra.Command{buildCmd, notesCmd, changelogCmd, sendCmd, publishCmd} {
		c.GroupID = "release"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{historyCmd, serveCmd} {
		c.GroupID = "inspect"
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(initCmd, versionCmd)
}
