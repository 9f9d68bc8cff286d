package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/stealthfetch/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation: tables, GitHub alerts and mermaid charts come from one builder.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the result set in Markdown format.
func (w *MarkdownWriter) Write(set *model.ResultSet) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := set.Summary()

	w.writeHeader(md, set, summary)
	w.writeSummary(md, set, summary)
	w.writeResults(md, set)
	w.writeFailures(md, set)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report title and run information table.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, set *model.ResultSet, summary model.Summary) {
	md.H1("Stealthfetch Report")
	md.PlainText("")

	rows := [][]string{
		{"Run", "`" + set.RunID + "`"},
		{"Mode", cases.Title(language.English).String(string(set.Mode))},
	}
	if set.Seed != "" {
		rows = append(rows, []string{"Seed", "`" + set.Seed + "`"})
	}
	if !set.StartedAt.IsZero() {
		rows = append(rows, []string{"Started", set.StartedAt.Format("2006-01-02 15:04:05 MST")})
	}
	if summary.Duration > 0 {
		rows = append(rows, []string{"Duration", summary.Duration.Round(time.Millisecond).String()})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeSummary writes the counts table, the status chart and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, set *model.ResultSet, summary model.Summary) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"✅ Succeeded", strconv.Itoa(summary.Succeeded)},
			{"🟡 Non-200", strconv.Itoa(summary.NonOK)},
			{"❌ Failed", strconv.Itoa(summary.Failed)},
			{"🛑 Blocked", strconv.Itoa(summary.Blocked)},
			{"**Total**", "**" + strconv.Itoa(summary.Total) + "**"},
		},
	})
	md.PlainText("")

	if summary.Total > 0 {
		w.writePieChart(md, set.StatusCounts())
	}

	w.writeAlert(md, summary)
}

// writePieChart writes a mermaid pie chart of the status code distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, counts map[int]int) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Status Code Distribution"),
		piechart.WithShowData(true),
	)

	for _, code := range sortedStatuses(counts) {
		chart.LabelAndIntValue(statusLabel(code), uint64(counts[code]))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the worst outcome in the run.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary model.Summary) {
	switch {
	case summary.Total == 0:
		md.Note("No URLs were fetched.")
	case summary.Blocked > 0:
		md.Cautionf(
			"%d response(s) looked like anti-bot blocks. Consider slower pacing or more proxies.",
			summary.Blocked,
		)
	case summary.Failed > 0:
		md.Warningf("%d URL(s) failed without a response.", summary.Failed)
	case summary.NonOK > 0:
		md.Importantf("%d response(s) had a status other than 200.", summary.NonOK)
	default:
		md.Tip("Every URL returned 200.")
	}
	md.PlainText("")
}

// writeResults writes one table row per result.
func (w *MarkdownWriter) writeResults(md *markdown.Markdown, set *model.ResultSet) {
	md.H2("Results")
	md.PlainText("")

	if len(set.Results) == 0 {
		md.PlainText("No results.")
		md.PlainText("")
		return
	}

	title := cases.Title(language.English)
	rows := make([][]string, len(set.Results))
	for i := range set.Results {
		r := &set.Results[i]
		proxy := r.Proxy
		if proxy == "" {
			proxy = "-"
		}
		rows[i] = []string{
			escapeCell(truncateString(r.URL, 60)),
			statusLabel(r.StatusCode),
			title.String(outcome(r)),
			strconv.Itoa(r.ContentLength),
			strconv.FormatInt(r.ElapsedMs, 10),
			escapeCell(proxy),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Outcome", "Bytes", "Elapsed (ms)", "Proxy"},
		Rows:   rows,
	})
	md.PlainText("")

	for i := range set.Results {
		r := &set.Results[i]
		if r.Data != nil {
			md.Details(r.URL, "```\n"+truncateString(fmt.Sprint(r.Data), 1000)+"\n```")
		}
	}
	md.PlainText("")
}

// writeFailures lists error messages for failed results.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, set *model.ResultSet) {
	var items []string
	for i := range set.Results {
		r := &set.Results[i]
		if r.Failed() {
			items = append(items, "`"+r.URL+"`: "+r.Error)
		}
	}
	if len(items) == 0 {
		return
	}

	md.H2("Failures")
	md.PlainText("")
	md.BulletList(items...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [stealthfetch](https://github.com/nao1215/stealthfetch)*")
}

// escapeCell keeps a value from breaking the table layout.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
