package rewrite

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nao1215/deamp/internal/dom"
	"github.com/nao1215/deamp/internal/model"
	"golang.org/x/net/html"
)

const resultsPage = `<!DOCTYPE html>
<html><head><title>news - Search</title></head>
<body>
<div id="search">
  <div class="g">
    <a id="proxied" data-ved="ved-1" href="https://www.google.com/amp/s/example.com/amp/story" data-amp-cur="https://example.com/amp/story?amp=1&amp;x=2">
      Story <span id="badge-1" aria-label="AMP logo">⚡</span>
    </a>
  </div>
  <div class="card-section" id="card">
    <span id="badge-2" aria-label="AMP logo" style="display: inline">⚡</span>
    <a id="featured" data-ved="ved-2" data-amp-hlt="1" data-amp-cur="https://news.example.org/a/amp/">Featured</a>
  </div>
  <a id="plain" data-ved="ved-3" href="https://plain.example.net/page">Plain</a>
  <a id="empty-cur" data-ved="ved-4" data-cur="" href="https://example.com/skip">No destination</a>
  <a id="broken" data-ved="ved-5" data-amp-cur="not a url">Broken</a>
  <a id="relative" data-ved="ved-6" href="/url?q=1">Relative</a>
  <a id="untracked" href="https://example.com/amp/untracked">Untracked</a>
</div>
</body></html>`

// newTestRewriter returns a Rewriter that logs nowhere.
func newTestRewriter(t *testing.T, opts ...Option) *Rewriter {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(append([]Option{WithLogger(logger)}, opts...)...)
}

// parseResults parses resultsPage.
func parseResults(t *testing.T) *dom.Document {
	t.Helper()

	doc, err := dom.ParseString(resultsPage, "https://www.google.com/search?q=news")
	if err != nil {
		t.Fatalf("failed to parse results page: %v", err)
	}
	return doc
}

// node returns the element with the given id.
func node(t *testing.T, doc *dom.Document, id string) *html.Node {
	t.Helper()

	nodes := doc.Find(nil, "#"+id)
	if len(nodes) != 1 {
		t.Fatalf("expected one #%s, got %d", id, len(nodes))
	}
	return nodes[0]
}

// outcomesByID indexes a pass result by link identifier.
func outcomesByID(result PassResult) map[string]model.LinkOutcome {
	m := make(map[string]model.LinkOutcome, len(result.Outcomes))
	for _, o := range result.Outcomes {
		m[o.ID] = o
	}
	return m
}

func href(t *testing.T, doc *dom.Document, id string) string {
	t.Helper()

	v, _ := doc.Attr(node(t, doc, id), "href")
	return v
}

// TestPass_FirstPass tests the decision taken for each kind of link.
func TestPass_FirstPass(t *testing.T) {
	t.Parallel()

	doc := parseResults(t)
	ledger := NewLedger()
	result := newTestRewriter(t).Pass(doc, ledger, nil)

	if len(result.Outcomes) != 6 {
		t.Fatalf("expected 6 outcomes, got %d", len(result.Outcomes))
	}

	tests := []struct {
		id        string
		status    model.LinkStatus
		canonical string
		badge     bool
	}{
		{"ved-1", model.StatusRewritten, "https://example.com/story?x=2", true},
		{"ved-2", model.StatusRewritten, "https://news.example.org/a/", true},
		{"ved-3", model.StatusRewritten, "https://plain.example.net/page", false},
		{"ved-4", model.StatusNoDestination, "", false},
		{"ved-5", model.StatusMalformed, "", false},
		{"ved-6", model.StatusRewritten, "https://www.google.com/url?q=1", false},
	}

	outcomes := outcomesByID(result)
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()

			got := outcomes[tt.id]
			if got.Status != tt.status {
				t.Errorf("status = %s, want %s", got.Status, tt.status)
			}
			if got.Canonical != tt.canonical {
				t.Errorf("canonical = %q, want %q", got.Canonical, tt.canonical)
			}
			if got.BadgeHidden != tt.badge {
				t.Errorf("badge hidden = %v, want %v", got.BadgeHidden, tt.badge)
			}
		})
	}

	if got := href(t, doc, "proxied"); got != "https://example.com/story?x=2" {
		t.Errorf("proxied href = %q", got)
	}
	if got := href(t, doc, "featured"); got != "https://news.example.org/a/" {
		t.Errorf("featured href = %q", got)
	}
	if got := href(t, doc, "empty-cur"); got != "https://example.com/skip" {
		t.Errorf("link without destination was modified: %q", got)
	}
	if got := href(t, doc, "untracked"); got != "https://example.com/amp/untracked" {
		t.Errorf("untracked link was modified: %q", got)
	}
	if got := doc.Display(node(t, doc, "badge-1")); got != dom.DisplayNone {
		t.Errorf("badge-1 display = %q", got)
	}
	if got := doc.Display(node(t, doc, "badge-2")); got != dom.DisplayNone {
		t.Errorf("featured snippet badge display = %q", got)
	}
	if ledger.Len() != 4 {
		t.Errorf("expected 4 records, got %v", ledger.IDs())
	}
	if !result.Changed() {
		t.Error("first pass should report changes")
	}
}

// TestPass_Click tests that a rewritten link navigates straight to the
// canonical URL and hides the click from host handlers.
func TestPass_Click(t *testing.T) {
	t.Parallel()

	doc := parseResults(t)
	anchor := node(t, doc, "proxied")

	hostCalled := false
	doc.AddClickListener(anchor, dom.NewListener(func(*dom.Event) { hostCalled = true }))
	doc.AddEventListener(dom.EventClick, dom.NewListener(func(*dom.Event) { hostCalled = true }))

	newTestRewriter(t).Pass(doc, NewLedger(), nil)
	e := doc.Click(node(t, doc, "badge-1"))

	if hostCalled {
		t.Error("host click handler ran")
	}
	if !e.DefaultPrevented() {
		t.Error("default action was not prevented")
	}
	history := doc.Location().History()
	if len(history) != 1 || history[0] != "https://example.com/story?x=2" {
		t.Errorf("unexpected navigations: %v", history)
	}
}

// TestPass_Idempotent tests that a second pass changes nothing.
func TestPass_Idempotent(t *testing.T) {
	t.Parallel()

	doc := parseResults(t)
	ledger := NewLedger()
	r := newTestRewriter(t)

	r.Pass(doc, ledger, nil)
	first := doc.String()
	rec, _ := ledger.Lookup("ved-1")

	second := r.Pass(doc, ledger, nil)

	if doc.String() != first {
		t.Error("second pass changed the document")
	}
	if second.Changed() {
		t.Error("second pass reported changes")
	}
	if got := second.Count(model.StatusSettled); got != 4 {
		t.Errorf("expected 4 settled links, got %d", got)
	}
	if got := doc.ClickListenerCount(node(t, doc, "proxied")); got != 1 {
		t.Errorf("expected one click listener, got %d", got)
	}
	again, _ := ledger.Lookup("ved-1")
	if again != rec {
		t.Error("record was replaced")
	}
	if orig, ok := again.OriginalHref(); !ok || orig != "https://www.google.com/amp/s/example.com/amp/story" {
		t.Errorf("original href was re-captured: %q", orig)
	}
}

// TestPass_Revert tests that ignoring a rewritten host restores the link.
func TestPass_Revert(t *testing.T) {
	t.Parallel()

	doc := parseResults(t)
	ledger := NewLedger()
	r := newTestRewriter(t)

	before := doc.String()
	r.Pass(doc, ledger, nil)

	result := r.Pass(doc, ledger, []string{"example.com", "news.example.org", "plain.example.net", "www.google.com"})
	if got := result.Count(model.StatusReverted); got != 4 {
		t.Fatalf("expected 4 reverted links, got %d", got)
	}

	if doc.String() != before {
		t.Errorf("document not restored:\n%s", doc.String())
	}
	for _, id := range []string{"proxied", "featured", "plain", "relative"} {
		if got := doc.ClickListenerCount(node(t, doc, id)); got != 0 {
			t.Errorf("%s still has %d click listeners", id, got)
		}
	}
	if got := doc.Display(node(t, doc, "badge-2")); got != "inline" {
		t.Errorf("featured badge display = %q, want inline", got)
	}
	if _, ok := doc.Attr(node(t, doc, "badge-1"), "style"); ok {
		t.Error("badge-1 gained a style attribute")
	}
	if ledger.Len() != 0 {
		t.Errorf("ledger not empty: %v", ledger.IDs())
	}

	doc.Click(node(t, doc, "proxied"))
	if got := doc.Location().Href(); got != "https://www.google.com/amp/s/example.com/amp/story" {
		t.Errorf("reverted link navigated to %q", got)
	}

	result = r.Pass(doc, ledger, nil)
	if got := result.Count(model.StatusRewritten); got != 4 {
		t.Errorf("expected links to be rewritten again, got %d", got)
	}
}

// TestPass_IgnoredOnFirstEncounter tests that ignored hosts are never rewritten.
func TestPass_IgnoredOnFirstEncounter(t *testing.T) {
	t.Parallel()

	doc := parseResults(t)
	ledger := NewLedger()

	result := newTestRewriter(t).Pass(doc, ledger, []string{"example.com"})

	if got := outcomesByID(result)["ved-1"].Status; got != model.StatusIgnored {
		t.Errorf("status = %s, want ignored", got)
	}
	if got := href(t, doc, "proxied"); got != "https://www.google.com/amp/s/example.com/amp/story" {
		t.Errorf("ignored link was rewritten to %q", got)
	}
	if got := doc.Display(node(t, doc, "badge-1")); got != "" {
		t.Errorf("ignored link badge display = %q", got)
	}
	if _, ok := ledger.Lookup("ved-1"); ok {
		t.Error("ignored link has a record")
	}
}

// TestPass_DuplicateIDs tests that the second anchor with a known
// identifier is left alone.
func TestPass_DuplicateIDs(t *testing.T) {
	t.Parallel()

	doc, err := dom.ParseString(`<html><body>
<a id="one" data-ved="same" href="https://example.com/amp/one">One</a>
<a id="two" data-ved="same" href="https://example.com/amp/two">Two</a>
</body></html>`, "")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	result := newTestRewriter(t).Pass(doc, NewLedger(), nil)

	if result.Outcomes[0].Status != model.StatusRewritten || result.Outcomes[1].Status != model.StatusSettled {
		t.Errorf("unexpected outcomes: %+v", result.Outcomes)
	}
	if got := href(t, doc, "two"); got != "https://example.com/amp/two" {
		t.Errorf("duplicate anchor was rewritten to %q", got)
	}
}

// TestPass_CustomMarkers tests marker overrides.
func TestPass_CustomMarkers(t *testing.T) {
	t.Parallel()

	doc, err := dom.ParseString(`<html><body>
<a id="link" data-result="r1" data-origin="https://example.com/lite/page">Page <i class="lite-badge">L</i></a>
</body></html>`, "")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	markers := Markers{LinkID: "data-result", ProxyDestination: "data-origin", Badge: "i.lite-badge"}
	r := newTestRewriter(t, WithMarkers(markers))
	if r.Markers().CurrentDestination != "data-cur" {
		t.Errorf("unset marker was not defaulted: %+v", r.Markers())
	}

	result := r.Pass(doc, NewLedger(), nil)
	if len(result.Outcomes) != 1 || result.Outcomes[0].Status != model.StatusRewritten {
		t.Fatalf("unexpected outcomes: %+v", result.Outcomes)
	}
	if !result.Outcomes[0].BadgeHidden {
		t.Error("custom badge was not hidden")
	}
}

// TestLedger tests the ledger operations.
func TestLedger(t *testing.T) {
	t.Parallel()

	doc := parseResults(t)
	ledger := NewLedger()

	if err := ledger.Revert(doc, "missing"); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("expected ErrNotInstalled, got %v", err)
	}

	anchor := node(t, doc, "plain")
	rec := &Record{id: "b", anchor: anchor, listener: dom.NewListener(func(*dom.Event) {})}
	if err := ledger.Install("b", rec); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if err := ledger.Install("b", rec); !errors.Is(err, ErrAlreadyInstalled) {
		t.Errorf("expected ErrAlreadyInstalled, got %v", err)
	}
	if err := ledger.Install("a", &Record{id: "a", anchor: anchor}); err != nil {
		t.Fatalf("install failed: %v", err)
	}

	ids := ledger.IDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("IDs() = %v", ids)
	}

	if err := ledger.Revert(doc, "b"); err != nil {
		t.Errorf("revert without badge failed: %v", err)
	}
	if _, ok := doc.Attr(anchor, "href"); ok {
		t.Error("href should be removed when there was none before")
	}
	if _, ok := ledger.Lookup("b"); ok {
		t.Error("record still present after revert")
	}
}

// TestMarkers_Validate tests marker validation.
func TestMarkers_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Markers)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Markers) {}},
		{name: "empty link id", mutate: func(m *Markers) { m.LinkID = "" }, wantErr: true},
		{name: "broken badge selector", mutate: func(m *Markers) { m.Badge = "span[" }, wantErr: true},
		{name: "class selector badge", mutate: func(m *Markers) { m.Badge = ".amp-icon" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := DefaultMarkers()
			tt.mutate(&m)
			err := m.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidMarkers) {
				t.Errorf("expected ErrInvalidMarkers, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestLocator tests badge lookup.
func TestLocator(t *testing.T) {
	t.Parallel()

	doc, err := dom.ParseString(`<html><body>
<div><span aria-label="AMP logo" id="outside"></span>
<a id="snippet-no-card" data-ved="x" data-amp-hlt="1" href="https://example.com/">x</a>
<a id="no-marker" data-ved="y" href="https://example.com/">y</a>
</div></body></html>`, "")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	l := NewLocator(DefaultMarkers())
	if got := l.Locate(doc, node(t, doc, "snippet-no-card")); got != nil {
		t.Error("featured snippet outside a card should have no badge")
	}
	if got := l.Locate(doc, node(t, doc, "no-marker")); got != nil {
		t.Error("badge outside the anchor should not be found")
	}
}
