package report

import (
	"io"
	"strconv"

	"github.com/nao1215/deamp/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format for sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(pages []*model.Page) (int, error) {
	md := markdown.NewMarkdown(w.output)
	totals := Summarize(pages)

	md.H1("deamp Report")
	md.PlainText("")

	w.writeSummary(md, totals)

	for _, p := range pages {
		if p != nil {
			w.writePage(md, p)
		}
	}

	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeSummary writes the totals table, chart and alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, t Totals) {
	md.H2("Summary")
	md.PlainText("")

	rows := [][]string{
		{"Pages", strconv.Itoa(t.Pages)},
		{"Failed pages", strconv.Itoa(t.Failed)},
	}
	for _, status := range model.AllStatuses {
		rows = append(rows, []string{StatusLabel(status), strconv.Itoa(t.Links.Count(status))})
	}
	rows = append(rows,
		[]string{"Badges hidden", strconv.Itoa(t.Links.BadgesHidden)},
		[]string{"**Total links**", "**" + strconv.Itoa(t.Links.Total) + "**"},
	)
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if t.Links.Total > 0 {
		w.writePieChart(md, t.Links)
	}
	w.writeAlert(md, t)
}

// writePieChart writes a mermaid pie chart of link statuses.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Link Outcomes"),
		piechart.WithShowData(true),
	)

	for _, status := range model.AllStatuses {
		if n := s.Count(status); n > 0 {
			chart.LabelAndIntValue(StatusLabel(status), uint64(n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the run's outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, t Totals) {
	switch {
	case t.Failed > 0:
		md.Warningf("%d of %d page(s) could not be processed completely.", t.Failed, t.Pages)
	case t.Links.Count(model.StatusMalformed) > 0:
		md.Importantf("%d link(s) had a destination that could not be parsed and were left as is.",
			t.Links.Count(model.StatusMalformed))
	case t.Links.Count(model.StatusRewritten) == 0:
		md.Note("No links were rewritten.")
	default:
		md.Tip("All proxied links point at their publishers.")
	}
	md.PlainText("")
}

// writePage writes one page's section.
func (w *MarkdownWriter) writePage(md *markdown.Markdown, p *model.Page) {
	md.H2(p.Source)
	md.PlainText("")

	rows := [][]string{
		{"Processed", p.DateProcessed.Format("2006-01-02 15:04:05 MST")},
		{"Passes", strconv.Itoa(p.Passes)},
		{"Status", pageStatus(p)},
	}
	if p.URL != "" {
		rows = append(rows, []string{"URL", "`" + p.URL + "`"})
	}
	if p.OutputPath != "" {
		rows = append(rows, []string{"Output", "`" + p.OutputPath + "`"})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	if len(p.IgnoredHostnames) > 0 {
		md.PlainText("Ignored hostnames:")
		md.PlainText("")
		md.BulletList(p.IgnoredHostnames...)
		md.PlainText("")
	}

	if len(p.Links) == 0 {
		md.PlainText("No result links found.")
		md.PlainText("")
		return
	}

	w.writeLinksTable(md, p.Links)
}

// writeLinksTable writes one row per link.
func (w *MarkdownWriter) writeLinksTable(md *markdown.Markdown, links []model.LinkOutcome) {
	rows := make([][]string, len(links))
	for i, l := range links {
		target := l.Canonical
		if target == "" {
			target = l.Destination
		}
		if target == "" {
			target = "-"
		}
		hostname := l.Hostname
		if hostname == "" {
			hostname = "-"
		}
		badge := "-"
		if l.BadgeHidden {
			badge = "hidden"
		}

		rows[i] = []string{
			truncateString(l.ID, 24),
			StatusLabel(l.Status),
			hostname,
			truncateString(target, 60),
			badge,
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Link", "Status", "Hostname", "Target", "Badge"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, l := range links {
		if l.Error != "" {
			md.Details(l.ID, l.Error)
		}
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [deamp](https://github.com/nao1215/deamp)*")
}
