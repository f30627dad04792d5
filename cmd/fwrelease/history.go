package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"fwrelease/internal/history"
	"fwrelease/internal/security"

	"github.com/spf13/cobra"
)

var (
	historyDBPath string
	historyLimit  int
	historyJSON   bool
	historyLatest bool
)

var historyCmd = &cobra.Command{
	Use:   "history [OUTPUT]",
	Short: "Show recorded build runs",
	Long: `Show the most recent build runs, or the build history of one output.

Examples:
  fwrelease history
  fwrelease history --latest
  fwrelease history KSNDMC_TRG --limit 5`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDBPath, "db", getEnvOrDefault("FWRELEASE_DB_PATH", ""), "Path to SQLite history database (default from config)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of entries to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print JSON instead of a table")
	historyCmd.Flags().BoolVar(&historyLatest, "latest", false, "Show the latest build of every configured output")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if historyLimit < 1 {
		return fmt.Errorf("--limit must be positive, got %d", historyLimit)
	}

	dbPath := cfg.HistoryDB
	if historyDBPath != "" {
		dbPath = historyDBPath
	}
	hist, err := history.NewHistory(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer hist.Close()

	ctx := cmd.Context()

	if historyLatest {
		latest, err := hist.GetLatestPerOutput(ctx)
		if err != nil {
			return err
		}
		if historyJSON {
			return printJSON(latest)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "OUTPUT\tSTATUS\tVERSION\tSIZE\tBUILT AT")
		for _, b := range cfg.Builds {
			rec, ok := latest[b.Output]
			if !ok {
				fmt.Fprintf(tw, "%s\tnever built\t-\t-\t-\n", b.Output)
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.Output, rec.Status, deref(rec.Version), size(rec.SizeBytes), rec.BuiltAt.Local().Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	}

	if len(args) == 1 {
		output := args[0]
		if err := security.ValidateOutputName(output); err != nil {
			return err
		}
		builds, err := hist.GetBuildHistory(ctx, output, historyLimit)
		if err != nil {
			return err
		}
		if historyJSON {
			return printJSON(builds)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "BUILT AT\tSTATUS\tVERSION\tSIZE\tRUN")
		for _, b := range builds {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.BuiltAt.Local().Format("2006-01-02 15:04:05"), b.Status, deref(b.Version), size(b.SizeBytes), b.RunID)
		}
		return tw.Flush()
	}

	runs, err := hist.GetRecentRuns(ctx, historyLimit)
	if err != nil {
		return err
	}
	if historyJSON {
		return printJSON(runs)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tVERSION\tOK\tFAILED\tRUN")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status, r.Version, r.Succeeded, r.Failed, r.ID)
	}
	return tw.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func size(n *int64) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f MB", float64(*n)/(1024*1024))
}
