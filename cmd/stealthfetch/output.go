package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nao1215/stealthfetch/internal/config"
	"github.com/nao1215/stealthfetch/internal/database"
	"github.com/nao1215/stealthfetch/internal/model"
	"github.com/nao1215/stealthfetch/internal/report"
)

// commandContext returns the command's context, which is unset when a
// command runs without Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
// In-flight requests stop and the partial results are still reported.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(commandContext(cmd))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

// newResultSet starts a result set for one run.
func newResultSet(mode model.Mode, seed string) *model.ResultSet {
	return &model.ResultSet{
		RunID:     uuid.NewString(),
		Mode:      mode,
		Seed:      seed,
		StartedAt: time.Now(),
		Results:   make([]model.Result, 0),
	}
}

// progressLabel is the short status shown in progress lines.
func progressLabel(r model.Result) string {
	switch {
	case r.Failed():
		return "ERR"
	case r.Blocked:
		return "BLK"
	default:
		return strconv.Itoa(r.StatusCode)
	}
}

// finishRun closes the result set, writes the report and archives the run.
// Report and archive errors are returned; the archive is attempted even when
// the run was cancelled.
func finishRun(ctx context.Context, cmd *cobra.Command, cfg *config.Config, set *model.ResultSet, logger *slog.Logger) error {
	set.FinishedAt = time.Now()

	if err := outputReport(cmd.OutOrStdout(), cfg, set); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := saveResultSet(context.WithoutCancel(ctx), cfg, set, logger); err != nil {
		return err
	}
	return nil
}

// outputReport outputs the result set in the requested format to stdout,
// or to cfg.ReportFile with a text summary on stdout.
func outputReport(stdout io.Writer, cfg *config.Config, set *model.ResultSet) error {
	if cfg.ReportFile == "" {
		_, err := newReportWriter(stdout, cfg).Write(set)
		return err
	}

	// Create directories if they don't exist
	dir := filepath.Dir(cfg.ReportFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Create/overwrite the output file with secure permissions (0600)
	// Reports may contain session cookies echoed back by the target.
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	// The terminal still gets the text summary when the report goes to a file.
	w := report.NewMultiWriter(newReportWriter(f, cfg), report.NewSimpleWriter(stdout))
	_, err = w.Write(set)
	return err
}

// newReportWriter selects the writer for the configured format.
func newReportWriter(output io.Writer, cfg *config.Config) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	case cfg.XLSXReport:
		return report.NewXLSXWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}

// saveResultSet archives the run when --db is set.
func saveResultSet(ctx context.Context, cfg *config.Config, set *model.ResultSet, logger *slog.Logger) error {
	if !cfg.SaveToDB {
		return nil
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.SaveResultSet(ctx, set); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	logger.Info("results saved to database", "run_id", set.RunID, "path", db.Path())
	return nil
}
