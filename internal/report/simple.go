package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/stealthfetch/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors so the output can be piped to files or other tools unchanged.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose adds previews and handler data under each result.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the result set in human-readable format.
func (w *SimpleWriter) Write(set *model.ResultSet) (int, error) {
	var sb strings.Builder
	summary := set.Summary()

	w.writeHeader(&sb, set, summary)
	w.writeSummary(&sb, set, summary)
	w.writeResults(&sb, set)
	w.writeFailures(&sb, set)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func rule(sb *strings.Builder, ch string) {
	sb.WriteString(strings.Repeat(ch, 70))
	sb.WriteString("\n")
}

func section(sb *strings.Builder, title string) {
	rule(sb, "-")
	sb.WriteString(title)
	sb.WriteString("\n")
	rule(sb, "-")
	sb.WriteString("\n")
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, set *model.ResultSet, summary model.Summary) {
	sb.WriteString("\n")
	rule(sb, "=")
	sb.WriteString("                       STEALTHFETCH REPORT\n")
	rule(sb, "=")
	sb.WriteString("\n")

	fmt.Fprintf(sb, "Run:        %s\n", set.RunID)
	fmt.Fprintf(sb, "Mode:       %s\n", cases.Title(language.English).String(string(set.Mode)))
	if set.Seed != "" {
		fmt.Fprintf(sb, "Seed:       %s\n", set.Seed)
	}
	if !set.StartedAt.IsZero() {
		fmt.Fprintf(sb, "Started:    %s\n", set.StartedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if summary.Duration > 0 {
		fmt.Fprintf(sb, "Duration:   %s\n", summary.Duration.Round(time.Millisecond))
	}
	sb.WriteString("\n")
}

// writeSummary writes the aggregate counts and the status breakdown.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, set *model.ResultSet, summary model.Summary) {
	section(sb, "SUMMARY")

	fmt.Fprintf(sb, "  TOTAL:      %d\n", summary.Total)
	fmt.Fprintf(sb, "  SUCCEEDED:  %d\n", summary.Succeeded)
	fmt.Fprintf(sb, "  NON-200:    %d\n", summary.NonOK)
	fmt.Fprintf(sb, "  FAILED:     %d\n", summary.Failed)
	fmt.Fprintf(sb, "  BLOCKED:    %d\n", summary.Blocked)
	fmt.Fprintf(sb, "  BYTES:      %d\n", summary.Bytes)
	sb.WriteString("\n")

	counts := set.StatusCounts()
	if len(counts) == 0 {
		return
	}
	sb.WriteString("  By status:\n")
	for _, code := range sortedStatuses(counts) {
		fmt.Fprintf(sb, "    %-6s %d\n", statusLabel(code), counts[code])
	}
	sb.WriteString("\n")
}

// writeResults lists every result in the order it completed.
func (w *SimpleWriter) writeResults(sb *strings.Builder, set *model.ResultSet) {
	if len(set.Results) == 0 && !w.showEmpty {
		return
	}

	section(sb, "RESULTS")

	if len(set.Results) == 0 {
		sb.WriteString("  No results\n\n")
		return
	}

	for i := range set.Results {
		r := &set.Results[i]
		fmt.Fprintf(sb, "  [%s] %s %s\n", statusLabel(r.StatusCode), outcome(r), r.URL)
		if !w.verbose {
			continue
		}
		if r.Proxy != "" {
			fmt.Fprintf(sb, "    Proxy: %s\n", r.Proxy)
		}
		if r.ElapsedMs > 0 {
			fmt.Fprintf(sb, "    Elapsed: %dms\n", r.ElapsedMs)
		}
		if r.Data != nil {
			fmt.Fprintf(sb, "    Data: %s\n", truncateString(fmt.Sprint(r.Data), 200))
		} else if r.HTMLPreview != "" {
			preview := strings.Join(strings.Fields(r.HTMLPreview), " ")
			fmt.Fprintf(sb, "    Preview: %s\n", truncateString(preview, 200))
		}
	}
	sb.WriteString("\n")
}

// writeFailures repeats failed results with their error text.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, set *model.ResultSet) {
	var failed []*model.Result
	for i := range set.Results {
		if set.Results[i].Failed() {
			failed = append(failed, &set.Results[i])
		}
	}
	if len(failed) == 0 && !w.showEmpty {
		return
	}

	section(sb, "FAILURES")

	if len(failed) == 0 {
		sb.WriteString("  No failures\n\n")
		return
	}
	for _, r := range failed {
		fmt.Fprintf(sb, "  * %s\n", r.URL)
		fmt.Fprintf(sb, "    Error: %s\n", r.Error)
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	rule(sb, "=")
	sb.WriteString("Report generated by stealthfetch\n")
	sb.WriteString("https://github.com/nao1215/stealthfetch\n")
	rule(sb, "=")
}
