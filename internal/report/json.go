package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/stealthfetch/internal/model"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
//
// Design decision: We use standard encoding/json rather than a third-party
// JSON library. Result.Data holds whatever a page handler returned, and
// encoding/json is what those handlers (and json.Number) are built around.
type JSONWriter struct {
	baseWriter

	// version is the stealthfetch version recorded in the envelope.
	version string

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the tool version in the output envelope.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// JSONReport is the envelope written by JSONWriter.
//
// Design decision: We wrap the result set rather than adding fields to
// ResultSet so output-specific metadata stays out of the core record.
type JSONReport struct {
	// Version is the stealthfetch version that generated this report.
	Version string `json:"version,omitempty"`

	// Summary is the aggregate for quick access.
	Summary model.Summary `json:"summary"`

	// StatusCounts maps status codes to result counts. Failures count under "0".
	StatusCounts map[int]int `json:"status_counts"`

	// Run is the full result set.
	Run *model.ResultSet `json:"run"`
}

// NewJSONReport creates a JSONReport wrapper with version information.
func NewJSONReport(set *model.ResultSet, version string) *JSONReport {
	return &JSONReport{
		Version:      version,
		Summary:      set.Summary(),
		StatusCounts: set.StatusCounts(),
		Run:          set,
	}
}

// Write outputs the result set in JSON format.
func (w *JSONWriter) Write(set *model.ResultSet) (int, error) {
	return w.writeJSON(NewJSONReport(set, w.version))
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}
