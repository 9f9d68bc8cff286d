package main

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/stealthfetch/internal/config"
	"github.com/nao1215/stealthfetch/internal/database"
	"github.com/nao1215/stealthfetch/internal/model"
)

// NewHistoryCmd creates the history command.
// It reads runs archived with --db.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse and compare archived runs",
		Long: `History reads runs archived with --db.

Examples:
  # List archived runs, newest first
  stealthfetch history list

  # Print the report of one run as Markdown
  stealthfetch history show --markdown 3f0c9a52-...

  # Show which URLs changed status between two runs
  stealthfetch history compare <older-run-id> <newer-run-id>`,
	}

	cmd.PersistentFlags().String("db-dir", config.XDGDataDir(),
		"Directory of the result database")

	cmd.AddCommand(newHistoryListCmd())
	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryCompareCmd())

	return cmd
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withResultDB(cmd, func(ctx context.Context, db *database.ResultDB) error {
				runs, err := db.ListRuns(ctx)
				if err != nil {
					return err
				}
				return writeRunList(cmd.OutOrStdout(), runs)
			})
		},
	}
}

func newHistoryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the report of an archived run",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShowCmd,
	}

	cmd.Flags().BoolP("json", "j", false, "Output JSON report")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown report")
	cmd.Flags().Bool("xlsx", false, "Output XLSX report (requires --output)")
	cmd.Flags().StringP("output", "o", "", "Write report to specified file path")

	return cmd
}

func newHistoryCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <older-run-id> <newer-run-id>",
		Short: "Compare the per-URL outcome of two archived runs",
		Args:  cobra.ExactArgs(2),
		RunE:  runHistoryCompareCmd,
	}

	cmd.Flags().BoolP("json", "j", false, "Output comparison result in JSON format")

	return cmd
}

// withResultDB opens the result database for the duration of fn.
func withResultDB(cmd *cobra.Command, fn func(ctx context.Context, db *database.ResultDB) error) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	return fn(commandContext(cmd), db)
}

// writeRunList prints runs as a table.
func writeRunList(w io.Writer, runs []database.RunRecord) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No archived runs found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tMODE\tSTARTED\tTOTAL\tOK\tFAILED\tBLOCKED\tSEED")
	for _, run := range runs {
		seed := run.Seed
		if seed == "" {
			seed = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			run.RunID,
			run.Mode,
			run.StartedAt.Local().Format(time.DateTime),
			run.Summary.Total,
			run.Summary.Succeeded,
			run.Summary.Failed,
			run.Summary.Blocked,
			seed,
		)
	}
	return tw.Flush()
}

// runHistoryShowCmd executes the history show command.
func runHistoryShowCmd(cmd *cobra.Command, args []string) error {
	r := &flagReader{cmd: cmd}
	cfg := config.NewConfig()
	cfg.JSONReport = r.boolean("json")
	cfg.MarkdownReport = r.boolean("markdown")
	cfg.XLSXReport = r.boolean("xlsx")
	cfg.ReportFile = r.str("output")
	cfg.Verbose = getVerboseFlag(cmd)
	if r.err != nil {
		return r.err
	}

	// Validate needs a target; the run ID stands in for it.
	cfg.Targets = args
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	return withResultDB(cmd, func(ctx context.Context, db *database.ResultDB) error {
		set, err := db.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		return outputReport(cmd.OutOrStdout(), cfg, set)
	})
}

// StatusChange records a URL whose outcome differs between two runs.
type StatusChange struct {
	URL    string `json:"url"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// RunComparison is the per-URL difference between two runs.
type RunComparison struct {
	Older     string         `json:"older_run_id"`
	Newer     string         `json:"newer_run_id"`
	Changed   []StatusChange `json:"changed,omitempty"`
	Added     []string       `json:"added,omitempty"`
	Removed   []string       `json:"removed,omitempty"`
	Unchanged int            `json:"unchanged"`
}

// runHistoryCompareCmd executes the history compare command.
func runHistoryCompareCmd(cmd *cobra.Command, args []string) error {
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	return withResultDB(cmd, func(ctx context.Context, db *database.ResultDB) error {
		older, err := db.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		newer, err := db.GetRun(ctx, args[1])
		if err != nil {
			return err
		}

		comparison := compareRuns(older, newer)
		if jsonOutput {
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(comparison)
		}
		writeComparisonText(cmd.OutOrStdout(), comparison)
		return nil
	})
}

// outcomeLabel summarizes a result as "200", "404 blocked" or "error".
func outcomeLabel(r model.Result) string {
	switch {
	case r.Failed():
		return "error"
	case r.Blocked:
		return fmt.Sprintf("%d blocked", r.StatusCode)
	default:
		return strconv.Itoa(r.StatusCode)
	}
}

// compareRuns matches results by URL. When a URL occurs more than once in a
// run, its last result counts.
func compareRuns(older, newer *model.ResultSet) *RunComparison {
	before := make(map[string]string, len(older.Results))
	for _, r := range older.Results {
		before[r.URL] = outcomeLabel(r)
	}
	after := make(map[string]string, len(newer.Results))
	for _, r := range newer.Results {
		after[r.URL] = outcomeLabel(r)
	}

	c := &RunComparison{Older: older.RunID, Newer: newer.RunID}
	for url, now := range after {
		was, ok := before[url]
		switch {
		case !ok:
			c.Added = append(c.Added, url)
		case was != now:
			c.Changed = append(c.Changed, StatusChange{URL: url, Before: was, After: now})
		default:
			c.Unchanged++
		}
	}
	for url := range before {
		if _, ok := after[url]; !ok {
			c.Removed = append(c.Removed, url)
		}
	}

	slices.SortFunc(c.Changed, func(a, b StatusChange) int {
		return cmp.Compare(a.URL, b.URL)
	})
	slices.Sort(c.Added)
	slices.Sort(c.Removed)
	return c
}

// writeComparisonText prints a comparison for humans.
func writeComparisonText(w io.Writer, c *RunComparison) {
	fmt.Fprintf(w, "Comparing %s -> %s\n\n", c.Older, c.Newer)

	if len(c.Changed) == 0 && len(c.Added) == 0 && len(c.Removed) == 0 {
		fmt.Fprintf(w, "No differences (%d URLs unchanged)\n", c.Unchanged)
		return
	}

	if len(c.Changed) > 0 {
		fmt.Fprintf(w, "Changed (%d):\n", len(c.Changed))
		for _, ch := range c.Changed {
			fmt.Fprintf(w, "  %s: %s -> %s\n", ch.URL, ch.Before, ch.After)
		}
		fmt.Fprintln(w)
	}
	if len(c.Added) > 0 {
		fmt.Fprintf(w, "Only in newer run (%d):\n", len(c.Added))
		for _, u := range c.Added {
			fmt.Fprintf(w, "  %s\n", u)
		}
		fmt.Fprintln(w)
	}
	if len(c.Removed) > 0 {
		fmt.Fprintf(w, "Only in older run (%d):\n", len(c.Removed))
		for _, u := range c.Removed {
			fmt.Fprintf(w, "  %s\n", u)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Unchanged: %d\n", c.Unchanged)
}
