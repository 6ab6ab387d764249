package rewrite

import (
	"fmt"
	"slices"
	"sync"

	"github.com/nao1215/deamp/internal/dom"
	"golang.org/x/net/html"
)

// Record is the state needed to undo one rewrite. It is immutable once
// installed.
type Record struct {
	id        string
	anchor    *html.Node
	badge     *html.Node
	listener  *dom.Listener
	canonical string

	// originalHref and hadHref describe the anchor's href before the rewrite.
	originalHref string
	hadHref      bool

	// badgeDisplay is the badge's inline display before it was hidden. It is
	// nil when no badge was found.
	badgeDisplay *string
}

// ID returns the link identifier.
func (r *Record) ID() string { return r.id }

// Anchor returns the rewritten anchor.
func (r *Record) Anchor() *html.Node { return r.anchor }

// Badge returns the hidden badge, or nil.
func (r *Record) Badge() *html.Node { return r.badge }

// Listener returns the installed click listener.
func (r *Record) Listener() *dom.Listener { return r.listener }

// Canonical returns the URL the listener navigates to.
func (r *Record) Canonical() string { return r.canonical }

// OriginalHref returns the anchor's href before the rewrite and whether the
// attribute existed.
func (r *Record) OriginalHref() (string, bool) { return r.originalHref, r.hadHref }

// BadgeDisplay returns the badge's inline display before the rewrite and
// whether it was captured.
func (r *Record) BadgeDisplay() (string, bool) {
	if r.badgeDisplay == nil {
		return "", false
	}
	return *r.badgeDisplay, true
}

// restore puts the anchor and badge back the way they were before the
// rewrite and removes the click listener.
func (r *Record) restore(doc *dom.Document) {
	if r.hadHref {
		doc.SetAttr(r.anchor, "href", r.originalHref)
	} else {
		doc.RemoveAttr(r.anchor, "href")
	}

	doc.RemoveClickListener(r.anchor, r.listener)

	if r.badge != nil && r.badgeDisplay != nil {
		doc.SetDisplay(r.badge, *r.badgeDisplay)
	}
}

// Ledger maps link identifiers to the records of currently rewritten links.
// Its keys are exactly the identifiers of rewritten links.
type Ledger struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]*Record)}
}

// Install stores rec under id.
func (l *Ledger) Install(id string, rec *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.records[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyInstalled, id)
	}
	l.records[id] = rec
	return nil
}

// Lookup returns the record for id.
func (l *Ledger) Lookup(id string) (*Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[id]
	return rec, ok
}

// Revert undoes the rewrite recorded under id and forgets it. The href is
// restored verbatim, or removed if the anchor had none. The badge display
// is restored only when a badge was captured.
func (l *Ledger) Revert(doc *dom.Document, id string) error {
	l.mu.Lock()
	rec, ok := l.records[id]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotInstalled, id)
	}
	delete(l.records, id)
	l.mu.Unlock()

	rec.restore(doc)
	return nil
}

// Len returns the number of rewritten links.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// IDs returns the rewritten link identifiers, sorted.
func (l *Ledger) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.records))
	for id := range l.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
