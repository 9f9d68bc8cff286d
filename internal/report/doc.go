// Package report provides report generation and output functionality.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown with a mermaid status chart for sharing
//   - XLSXWriter: A spreadsheet with one row per fetched URL
//
// Design decision: We separate report writing from report data structures
// (which are in the model package) so that new output formats can be added
// without touching the records the session and crawler produce.
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
