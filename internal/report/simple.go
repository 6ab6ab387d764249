package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/deamp/internal/model"
)

// SimpleWriter outputs human-readable text reports for the terminal.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether statuses with no links are listed.
	showEmpty bool

	// verbose lists every link of every page.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to list statuses with no links.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables per-link output.
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

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(pages []*model.Page) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb)
	for _, p := range pages {
		if p != nil {
			w.writePage(&sb, p)
		}
	}
	w.writeTotals(&sb, Summarize(pages))

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          DEAMP REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")
}

// writePage writes one page's section.
func (w *SimpleWriter) writePage(sb *strings.Builder, p *model.Page) {
	fmt.Fprintf(sb, "Source:     %s\n", p.Source)
	if p.URL != "" {
		fmt.Fprintf(sb, "URL:        %s\n", p.URL)
	}
	if p.OutputPath != "" {
		fmt.Fprintf(sb, "Output:     %s\n", p.OutputPath)
	}
	fmt.Fprintf(sb, "Processed:  %s\n", p.DateProcessed.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Passes:     %d\n", p.Passes)
	if len(p.IgnoredHostnames) > 0 {
		fmt.Fprintf(sb, "Ignoring:   %s\n", strings.Join(p.IgnoredHostnames, ", "))
	}
	fmt.Fprintf(sb, "Status:     %s\n\n", pageStatus(p))

	w.writeCounts(sb, p.Summary())

	if w.verbose && len(p.Links) > 0 {
		sb.WriteString("  Links:\n")
		for _, l := range p.Links {
			fmt.Fprintf(sb, "    [%s] %s", StatusLabel(l.Status), l.ID)
			switch {
			case l.Canonical != "":
				fmt.Fprintf(sb, " -> %s", l.Canonical)
			case l.Destination != "":
				fmt.Fprintf(sb, " (%s)", l.Destination)
			}
			if l.Error != "" {
				fmt.Fprintf(sb, ": %s", l.Error)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// writeCounts writes one line per status.
func (w *SimpleWriter) writeCounts(sb *strings.Builder, s model.Summary) {
	for _, status := range model.AllStatuses {
		n := s.Count(status)
		if n == 0 && !w.showEmpty {
			continue
		}
		fmt.Fprintf(sb, "  %-16s %d\n", StatusLabel(status)+":", n)
	}
	fmt.Fprintf(sb, "  %-16s %d\n", "Badges hidden:", s.BadgesHidden)
	fmt.Fprintf(sb, "  %-16s %d\n\n", "Total:", s.Total)
}

func (w *SimpleWriter) writeTotals(sb *strings.Builder, t Totals) {
	sb.WriteString("TOTAL\n\n")
	fmt.Fprintf(sb, "  %-16s %d\n", "Pages:", t.Pages)
	if t.Failed > 0 {
		fmt.Fprintf(sb, "  %-16s %d\n", "Failed:", t.Failed)
	}
	w.writeCounts(sb, t.Links)
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
