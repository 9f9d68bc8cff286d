package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/nao1215/stealthfetch/internal/model"
)

// Sheet names used by XLSXWriter.
const (
	ResultsSheet = "Results"
	SummarySheet = "Summary"
)

// resultColumns is the header row of the results sheet.
var resultColumns = []any{
	"URL", "Status", "Outcome", "Success", "Blocked", "Bytes",
	"Elapsed (ms)", "Proxy", "Content Hash", "Fetched At", "Error", "Preview",
}

// XLSXWriter outputs reports as an Excel workbook.
//
// The workbook has a Results sheet with one row per URL and a Summary
// sheet with the aggregate counts and the status code breakdown. The
// output is binary, so it should go to a file rather than a terminal.
type XLSXWriter struct {
	baseWriter

	// previewLength caps the preview column so cells stay readable.
	previewLength int
}

// XLSXWriterOption configures an XLSXWriter.
type XLSXWriterOption func(*XLSXWriter)

// WithPreviewColumnLength caps the preview column at n runes.
func WithPreviewColumnLength(n int) XLSXWriterOption {
	return func(w *XLSXWriter) {
		if n > 0 {
			w.previewLength = n
		}
	}
}

// NewXLSXWriter creates an XLSXWriter that outputs to the given writer.
func NewXLSXWriter(output io.Writer, opts ...XLSXWriterOption) *XLSXWriter {
	w := &XLSXWriter{
		baseWriter:    newBaseWriter(output),
		previewLength: 200,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write builds the workbook and writes it to the output.
func (w *XLSXWriter) Write(set *model.ResultSet) (n int, err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}
	if err := w.writeResults(f, set); err != nil {
		return 0, err
	}
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return 0, fmt.Errorf("create summary sheet: %w", err)
	}
	if err := w.writeSummary(f, set); err != nil {
		return 0, err
	}

	written, err := f.WriteTo(w.output)
	return int(written), err
}

func (w *XLSXWriter) writeResults(f *excelize.File, set *model.ResultSet) error {
	if err := f.SetSheetRow(ResultsSheet, "A1", &resultColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := boldRow(f, ResultsSheet, len(resultColumns)); err != nil {
		return err
	}

	for i := range set.Results {
		r := &set.Results[i]
		row := []any{
			r.URL,
			statusCell(r.StatusCode),
			outcome(r),
			r.Success,
			r.Blocked,
			r.ContentLength,
			r.ElapsedMs,
			r.Proxy,
			r.ContentHash,
			r.FetchedAt.Format("2006-01-02 15:04:05"),
			r.Error,
			truncateString(r.HTMLPreview, w.previewLength),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ResultsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(ResultsSheet, "A", "A", 60); err != nil {
		return err
	}
	return f.SetPanes(ResultsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func (w *XLSXWriter) writeSummary(f *excelize.File, set *model.ResultSet) error {
	summary := set.Summary()
	rows := [][]any{
		{"Property", "Value"},
		{"Run", set.RunID},
		{"Mode", string(set.Mode)},
		{"Seed", set.Seed},
		{"Total", summary.Total},
		{"Succeeded", summary.Succeeded},
		{"Non-200", summary.NonOK},
		{"Failed", summary.Failed},
		{"Blocked", summary.Blocked},
		{"Bytes", summary.Bytes},
		{"Duration (ms)", summary.Duration.Milliseconds()},
		{},
		{"Status", "Count"},
	}
	counts := set.StatusCounts()
	for _, code := range sortedStatuses(counts) {
		rows = append(rows, []any{statusLabel(code), counts[code]})
	}

	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}
	if err := boldRow(f, SummarySheet, 2); err != nil {
		return err
	}
	return f.SetColWidth(SummarySheet, "A", "B", 24)
}

// boldRow makes the first row of sheet bold across cols columns.
func boldRow(f *excelize.File, sheet string, cols int) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(cols, 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

// statusCell leaves the status empty for failed results.
func statusCell(code int) any {
	if code == 0 {
		return ""
	}
	return code
}
