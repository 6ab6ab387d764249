// Package report writes the outcome of a deamp run.
//
// This package contains writers for different output formats:
//   - SimpleWriter: human-readable text for the terminal
//   - JSONWriter: structured JSON for tool integration
//   - MarkdownWriter: Markdown for sharing, with a status chart
//
// Every writer receives all pages of a run at once and writes one report
// covering them, so the JSON output is always a single document.
package report
