package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/deamp/internal/model"
)

// JSONWriter outputs reports in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// version is written into the report when set.
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

// WithVersion records the deamp version in the report.
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

// JSONReport is the document written by JSONWriter.
type JSONReport struct {
	// Version is the deamp version that generated this report.
	Version string `json:"version,omitempty"`

	// Totals aggregates all pages.
	Totals Totals `json:"totals"`

	// Pages holds one entry per processed page, each with its summary.
	Pages []JSONPage `json:"pages"`
}

// JSONPage is a page with its summary attached.
type JSONPage struct {
	*model.Page
	Summary model.Summary `json:"summary"`
}

// NewJSONReport builds the report document for pages.
func NewJSONReport(pages []*model.Page, version string) *JSONReport {
	r := &JSONReport{
		Version: version,
		Totals:  Summarize(pages),
		Pages:   make([]JSONPage, 0, len(pages)),
	}
	for _, p := range pages {
		if p == nil {
			continue
		}
		r.Pages = append(r.Pages, JSONPage{Page: p, Summary: p.Summary()})
	}
	return r
}

// Write outputs the report in JSON format.
func (w *JSONWriter) Write(pages []*model.Page) (int, error) {
	return w.writeJSON(NewJSONReport(pages, w.version))
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
