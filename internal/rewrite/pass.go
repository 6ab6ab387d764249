package rewrite

import (
	"log/slog"

	"github.com/nao1215/deamp/internal/canonical"
	"github.com/nao1215/deamp/internal/dom"
	"github.com/nao1215/deamp/internal/model"
	"golang.org/x/net/html"
)

// Rewriter runs rewrite passes over documents.
type Rewriter struct {
	markers   Markers
	locator   *Locator
	canonical *canonical.Canonicalizer
	logger    *slog.Logger
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithMarkers overrides the link and badge markers.
func WithMarkers(m Markers) Option {
	return func(r *Rewriter) {
		r.markers = m
	}
}

// WithCanonicalizer sets the canonicalizer used for destinations.
func WithCanonicalizer(c *canonical.Canonicalizer) Option {
	return func(r *Rewriter) {
		r.canonical = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Rewriter) {
		r.logger = logger
	}
}

// New creates a Rewriter. Markers not set through WithMarkers fall back to
// DefaultMarkers.
func New(opts ...Option) *Rewriter {
	r := &Rewriter{markers: DefaultMarkers()}
	for _, opt := range opts {
		opt(r)
	}
	r.markers = r.markers.Merge(DefaultMarkers())
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.canonical == nil {
		r.canonical = canonical.New(canonical.WithLogger(r.logger))
	}
	r.locator = NewLocator(r.markers)
	return r
}

// Markers returns the markers in use.
func (r *Rewriter) Markers() Markers {
	return r.markers
}

// PassResult lists what one pass decided for every result link, in
// document order.
type PassResult struct {
	Outcomes []model.LinkOutcome
}

// Count returns the number of outcomes with status.
func (p PassResult) Count(status model.LinkStatus) int {
	n := 0
	for _, o := range p.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Changed reports whether the pass rewrote or reverted anything.
func (p PassResult) Changed() bool {
	return p.Count(model.StatusRewritten) > 0 || p.Count(model.StatusReverted) > 0
}

// Pass scans doc once with the given ignore list. Hostnames are compared
// after canonical.NormalizeHost, so ignored should hold normalized names.
// A failure on one link never stops the scan.
func (r *Rewriter) Pass(doc *dom.Document, ledger *Ledger, ignored []string) PassResult {
	ignoredSet := make(map[string]struct{}, len(ignored))
	for _, h := range ignored {
		ignoredSet[h] = struct{}{}
	}

	anchors := doc.Find(nil, r.markers.anchorSelector())
	result := PassResult{Outcomes: make([]model.LinkOutcome, 0, len(anchors))}
	for _, anchor := range anchors {
		result.Outcomes = append(result.Outcomes, r.processAnchor(doc, ledger, ignoredSet, anchor))
	}
	return result
}

func (r *Rewriter) processAnchor(doc *dom.Document, ledger *Ledger, ignored map[string]struct{}, anchor *html.Node) model.LinkOutcome {
	id, _ := doc.Attr(anchor, r.markers.LinkID)
	outcome := model.LinkOutcome{ID: id}

	dest, ok := r.destination(doc, anchor)
	if !ok {
		outcome.Status = model.StatusNoDestination
		return outcome
	}
	outcome.Destination = dest

	host, err := canonical.Hostname(dest)
	if err != nil {
		r.logger.Debug("skipping link with malformed destination", "id", id, "url", dest, "error", err)
		outcome.Status = model.StatusMalformed
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Hostname = host

	if _, skip := ignored[host]; skip {
		if _, rewritten := ledger.Lookup(id); !rewritten {
			r.logger.Debug("ignoring link", "id", id, "hostname", host)
			outcome.Status = model.StatusIgnored
			return outcome
		}
		if err := ledger.Revert(doc, id); err != nil {
			r.logger.Warn("failed to revert link", "id", id, "error", err)
			outcome.Status = model.StatusIgnored
			outcome.Error = err.Error()
			return outcome
		}
		r.logger.Debug("reverted link", "id", id, "hostname", host)
		outcome.Status = model.StatusReverted
		return outcome
	}

	if rec, rewritten := ledger.Lookup(id); rewritten {
		r.logger.Debug("link already rewritten", "id", id)
		outcome.Status = model.StatusSettled
		outcome.Canonical = rec.Canonical()
		outcome.BadgeHidden = rec.Badge() != nil
		return outcome
	}

	canonicalURL, err := r.canonical.Canonicalize(dest)
	if err != nil {
		r.logger.Debug("skipping link with malformed destination", "id", id, "url", dest, "error", err)
		outcome.Status = model.StatusMalformed
		outcome.Error = err.Error()
		return outcome
	}

	rec := r.install(doc, anchor, id, canonicalURL)
	if err := ledger.Install(id, rec); err != nil {
		// Another anchor with the same identifier won the race.
		rec.restore(doc)
		r.logger.Debug("link already rewritten", "id", id, "error", err)
		outcome.Status = model.StatusSettled
		return outcome
	}

	r.logger.Info("rewrote link", "id", id, "from", dest, "to", canonicalURL)
	outcome.Status = model.StatusRewritten
	outcome.Canonical = canonicalURL
	outcome.BadgeHidden = rec.badge != nil
	return outcome
}

// destination resolves the effective destination of anchor. The proxy
// attribute wins when non-empty. A present current-destination attribute
// comes next, even when empty. The resolved href is the last resort.
func (r *Rewriter) destination(doc *dom.Document, anchor *html.Node) (string, bool) {
	if v, _ := doc.Attr(anchor, r.markers.ProxyDestination); v != "" {
		return v, true
	}
	if v, ok := doc.Attr(anchor, r.markers.CurrentDestination); ok {
		return v, v != ""
	}
	href, ok := doc.Attr(anchor, "href")
	if !ok {
		return "", false
	}
	if resolved, ok := doc.ResolveURL(href); ok {
		return resolved, true
	}
	return href, true
}

// install applies the rewrite to the document and returns its record.
func (r *Rewriter) install(doc *dom.Document, anchor *html.Node, id, canonicalURL string) *Record {
	rec := &Record{
		id:        id,
		anchor:    anchor,
		badge:     r.locator.Locate(doc, anchor),
		canonical: canonicalURL,
	}
	rec.originalHref, rec.hadHref = doc.Attr(anchor, "href")
	if rec.badge != nil {
		display := doc.Display(rec.badge)
		rec.badgeDisplay = &display
	}

	location := doc.Location()
	rec.listener = dom.NewListener(func(e *dom.Event) {
		e.StopImmediatePropagation()
		e.PreventDefault()
		location.Assign(rec.Canonical())
	}, dom.Capture())

	doc.AddClickListener(anchor, rec.listener)
	doc.SetAttr(anchor, "href", canonicalURL)
	if rec.badge != nil {
		doc.SetDisplay(rec.badge, dom.DisplayNone)
	}
	return rec
}
