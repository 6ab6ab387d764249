package report

import (
	"io"
	"strings"

	"github.com/nao1215/deamp/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the report for pages to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(pages []*model.Page) (int, error)
}

// MultiWriter writes the same report to several Writers, e.g. a text
// summary to the terminal and JSON to a file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(pages []*model.Page) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(pages)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// Totals aggregates a run.
type Totals struct {
	// Pages is the number of pages processed.
	Pages int `json:"pages"`

	// Failed is the number of pages that hit an error or timed out.
	Failed int `json:"failed"`

	// Links sums the per-page link summaries.
	Links model.Summary `json:"links"`
}

// Summarize computes the totals of pages. Nil pages, which were never
// started, are skipped.
func Summarize(pages []*model.Page) Totals {
	t := Totals{Links: model.Summary{Counts: make(map[model.LinkStatus]int, len(model.AllStatuses))}}
	for _, p := range pages {
		if p == nil {
			continue
		}
		t.Pages++
		if p.Error != nil || p.ErrorMessage != "" || p.TimedOut {
			t.Failed++
		}
		s := p.Summary()
		t.Links.Total += s.Total
		t.Links.BadgesHidden += s.BadgesHidden
		for status, n := range s.Counts {
			t.Links.Counts[status] += n
		}
	}
	return t
}

// StatusLabel returns a display label for status, "No Destination" for
// "no-destination".
func StatusLabel(status model.LinkStatus) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(status), "-", " "))
}

// pageStatus describes how processing of a page ended.
func pageStatus(p *model.Page) string {
	switch {
	case p.TimedOut:
		return "Timed out"
	case p.ErrorMessage != "":
		return "Error: " + p.ErrorMessage
	default:
		return "Complete"
	}
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
