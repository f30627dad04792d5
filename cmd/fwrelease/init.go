package main

import (
	"os"

	"fwrelease/internal/config"
	"fwrelease/internal/console"
	"fwrelease/internal/setup"

	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter fwrelease.yaml",
	Long: `Write a starter configuration with the default build configurations.

When stdin is a terminal you are asked for the product name, sketch directory,
release root, mail recipients, mail transport and GitHub repository. Otherwise
the defaults are written.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.ConfigFileName
	}

	out := console.Stdout()
	answers := setup.DefaultAnswers()

	if setup.IsInteractive() {
		out.Header("fwrelease setup")
		out.Printf("Press Enter to accept the value in brackets.\n")
		setup.NewPrompter(os.Stdin, os.Stdout).Ask(&answers)
	} else {
		out.Warn("stdin is not a terminal, writing defaults")
	}

	if err := setup.WriteConfig(path, setup.Starter(answers), initForce); err != nil {
		return err
	}
	out.Success("Configuration written to %s", path)
	if len(answers.To) == 0 {
		out.Warn("No mail recipients set; edit mail.to before running 'fwrelease send'")
	}
	return nil
}
