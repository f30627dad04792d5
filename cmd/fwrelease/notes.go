package main

import (
	"fmt"
	"time"

	"fwrelease/internal/build"
	"fwrelease/internal/console"
	"fwrelease/internal/notes"

	"github.com/spf13/cobra"
)

var notesNoChangelog bool

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Generate release notes for the current firmware version",
	Long: `Generate release notes for the version declared in the configuration header.

The previous release is the newest RELEASE_NOTES_v*.md in the notes directory
other than the current version. Critical fixes, new features and improvements
are pulled from the project documents named in notes.docs.

The notes are written to the notes directory and the sketch directory, and
the changelog is rebuilt unless --no-changelog is given.`,
	Args: cobra.NoArgs,
	RunE: runNotes,
}

var changelogCmd = &cobra.Command{
	Use:   "changelog",
	Short: "Rebuild the changelog from saved release notes",
	Args:  cobra.NoArgs,
	RunE:  runChangelog,
}

func init() {
	notesCmd.Flags().BoolVar(&notesNoChangelog, "no-changelog", false, "Do not rebuild the changelog")
}

func runNotes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := console.Stdout()

	out.Header(fmt.Sprintf("%s Release Notes Generator", cfg.Product))

	current, err := build.SchemaFor(cfg).ReadVersion(cfg.Source.File)
	if err != nil {
		return fmt.Errorf("failed to read current version: %w", err)
	}
	out.Printf("Current Version: %s\n", current)

	previous, err := notes.PreviousRelease(cfg.Notes.Dir, current)
	if err != nil {
		return err
	}
	if previous != nil {
		out.Printf("Previous Version: %s\n", previous.Version)
		out.Printf("Previous Release Notes: %s\n", previous.Path)
	} else {
		out.Printf("Previous Version: None found (first release)\n")
	}

	out.Step("Generating release notes...")
	changes := notes.ExtractChanges(cfg.SketchDir, cfg.Notes.Docs)
	content, err := notes.Render(cfg.Product, current, previous, changes, time.Now())
	if err != nil {
		return err
	}

	primary, secondary, err := notes.Save(cfg.Notes.Dir, cfg.SketchDir, current, content)
	if err != nil {
		return err
	}
	out.Success("Release notes saved to:")
	out.Printf("  - %s\n  - %s\n", primary, secondary)

	if !notesNoChangelog {
		out.Step("Updating %s...", cfg.Notes.Changelog)
		if err := notes.Changelog(cfg.Product, cfg.Notes.Dir, cfg.Notes.Changelog); err != nil {
			return err
		}
		out.Success("Changelog updated: %s", cfg.Notes.Changelog)
	}

	out.Header("Release Notes Generation Complete!")
	out.Printf("Next steps:\n")
	out.Printf("1. Review and edit the generated release notes\n")
	out.Printf("2. Add specific details about changes\n")
	out.Printf("3. Commit the release notes to version control\n")
	return nil
}

func runChangelog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := notes.Changelog(cfg.Product, cfg.Notes.Dir, cfg.Notes.Changelog); err != nil {
		return err
	}
	console.Stdout().Success("Changelog updated: %s", cfg.Notes.Changelog)
	return nil
}
