package dom

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ReadyState mirrors document.readyState.
type ReadyState int

const (
	// Loading means the document is still being parsed.
	Loading ReadyState = iota
	// Interactive means parsing finished but subresources may still load.
	Interactive
	// Complete means the page has fully loaded.
	Complete
)

// String returns the browser name of the state.
func (s ReadyState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Interactive:
		return "interactive"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// ErrNodeAttached is returned when inserting a node that already has a parent.
var ErrNodeAttached = errors.New("node is already attached")

// Document is a parsed HTML page with browser-like events.
type Document struct {
	mu sync.Mutex

	root       *html.Node
	url        *url.URL
	readyState ReadyState

	// docListeners holds listeners registered on the document itself.
	docListeners map[EventType][]*Listener

	// nodeListeners holds click listeners registered on elements.
	nodeListeners map[*html.Node][]*Listener

	location *Location
}

// Option configures a Document.
type Option func(*Document)

// WithReadyState sets the initial ready state. The default is Complete.
func WithReadyState(s ReadyState) Option {
	return func(d *Document) {
		d.readyState = s
	}
}

// WithLocation sets the Location that receives navigations.
func WithLocation(l *Location) Option {
	return func(d *Document) {
		d.location = l
	}
}

// Parse reads an HTML page. pageURL is the address the page was loaded
// from; it may be empty, in which case relative links cannot be resolved.
func Parse(r io.Reader, pageURL string, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return NewDocument(root, pageURL, opts...)
}

// ParseString parses an HTML page from a string.
func ParseString(s, pageURL string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), pageURL, opts...)
}

// NewDocument wraps an existing tree.
func NewDocument(root *html.Node, pageURL string, opts ...Option) (*Document, error) {
	d := &Document{
		root:          root,
		readyState:    Complete,
		docListeners:  make(map[EventType][]*Listener),
		nodeListeners: make(map[*html.Node][]*Listener),
	}

	if pageURL != "" {
		u, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("invalid page URL %q: %w", pageURL, err)
		}
		d.url = u
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.location == nil {
		d.location = NewLocation(pageURL)
	}

	return d, nil
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Location returns the document's Location.
func (d *Document) Location() *Location {
	return d.location
}

// URL returns a copy of the page URL, or nil.
func (d *Document) URL() *url.URL {
	if d.url == nil {
		return nil
	}
	u := *d.url
	return &u
}

// BaseURL returns the URL relative references resolve against: the first
// <base href> resolved against the page URL, or the page URL itself.
func (d *Document) BaseURL() *url.URL {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baseURL()
}

func (d *Document) baseURL() *url.URL {
	href, ok := goquery.NewDocumentFromNode(d.root).Find("base[href]").First().Attr("href")
	if !ok {
		return d.URL()
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return d.URL()
	}
	if d.url == nil {
		if ref.IsAbs() {
			return ref
		}
		return nil
	}
	return d.url.ResolveReference(ref)
}

// ResolveURL resolves ref the way HTMLAnchorElement.href does. It returns
// false when ref is relative and the document has no base URL, or when ref
// cannot be parsed.
func (d *Document) ResolveURL(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if u.IsAbs() {
		return u.String(), true
	}
	base := d.BaseURL()
	if base == nil {
		return "", false
	}
	return base.ResolveReference(u).String(), true
}

// ReadyState returns the current ready state.
func (d *Document) ReadyState() ReadyState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readyState
}

// SetReadyState moves the document to s and fires EventReadyStateChange if
// the state changed.
func (d *Document) SetReadyState(s ReadyState) {
	d.mu.Lock()
	if d.readyState == s {
		d.mu.Unlock()
		return
	}
	d.readyState = s
	listeners := slices.Clone(d.docListeners[EventReadyStateChange])
	d.mu.Unlock()

	dispatch(&Event{Type: EventReadyStateChange, ReadyState: s}, listeners)
}

// AddEventListener registers l on the document. Adding the same listener
// twice for the same type has no effect.
func (d *Document) AddEventListener(t EventType, l *Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slices.Contains(d.docListeners[t], l) {
		return
	}
	d.docListeners[t] = append(d.docListeners[t], l)
}

// RemoveEventListener deregisters l from the document.
func (d *Document) RemoveEventListener(t EventType, l *Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docListeners[t] = slices.DeleteFunc(d.docListeners[t], func(x *Listener) bool { return x == l })
}

// EventListenerCount returns the number of document listeners for t.
func (d *Document) EventListenerCount(t EventType) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.docListeners[t])
}

// AddClickListener registers l for clicks on n.
func (d *Document) AddClickListener(n *html.Node, l *Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slices.Contains(d.nodeListeners[n], l) {
		return
	}
	d.nodeListeners[n] = append(d.nodeListeners[n], l)
}

// RemoveClickListener deregisters l from n.
func (d *Document) RemoveClickListener(n *html.Node, l *Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	remaining := slices.DeleteFunc(d.nodeListeners[n], func(x *Listener) bool { return x == l })
	if len(remaining) == 0 {
		delete(d.nodeListeners, n)
		return
	}
	d.nodeListeners[n] = remaining
}

// ClickListenerCount returns the number of click listeners on n.
func (d *Document) ClickListenerCount(n *html.Node) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.nodeListeners[n])
}

// HasClickListener reports whether l is registered on n.
func (d *Document) HasClickListener(n *html.Node, l *Listener) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Contains(d.nodeListeners[n], l)
}

// Find returns the descendants of scope matching selector, in document
// order. A nil scope searches the whole document.
func (d *Document) Find(scope *html.Node, selector string) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	if scope == nil {
		scope = d.root
	}
	return slices.Clone(goquery.NewDocumentFromNode(scope).Find(selector).Nodes)
}

// Closest returns the nearest ancestor of n (n excluded) matching selector.
func (d *Document) Closest(n *html.Node, selector string) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	parents := goquery.NewDocumentFromNode(n).ParentsFiltered(selector)
	if parents.Length() == 0 {
		return nil
	}
	return parents.Nodes[0]
}

// Attr returns the value of key on n and whether it is present.
func (d *Document) Attr(n *html.Node, key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return getAttr(n, key)
}

// SetAttr sets key on n.
func (d *Document) SetAttr(n *html.Node, key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	setAttr(n, key, value)
}

// RemoveAttr removes key from n.
func (d *Document) RemoveAttr(n *html.Node, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	removeAttr(n, key)
}

// Body returns the <body> element, or nil.
func (d *Document) Body() *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.body()
}

func (d *Document) body() *html.Node {
	nodes := goquery.NewDocumentFromNode(d.root).Find("body").Nodes
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// AppendChild appends child to parent and fires EventNodeInserted. A nil
// parent means <body>.
func (d *Document) AppendChild(parent, child *html.Node) error {
	d.mu.Lock()
	if parent == nil {
		parent = d.body()
	}
	if parent == nil {
		d.mu.Unlock()
		return errors.New("document has no body")
	}
	if child.Parent != nil || child.PrevSibling != nil || child.NextSibling != nil {
		d.mu.Unlock()
		return ErrNodeAttached
	}
	parent.AppendChild(child)
	listeners := slices.Clone(d.docListeners[EventNodeInserted])
	d.mu.Unlock()

	dispatch(&Event{Type: EventNodeInserted, Target: child}, listeners)
	return nil
}

// AppendHTML parses fragment in the context of parent and appends each
// top-level node, firing one EventNodeInserted per node. A nil parent means
// <body>.
func (d *Document) AppendHTML(parent *html.Node, fragment string) ([]*html.Node, error) {
	context := parent
	if context == nil {
		context = d.Body()
	}
	if context == nil {
		context = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}

	for _, n := range nodes {
		if err := d.AppendChild(parent, n); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// Click dispatches a click on n through the capture, target and bubble
// phases. Unless a listener prevents the default action, a click on or
// inside a link navigates to the link's resolved href.
func (d *Document) Click(n *html.Node) *Event {
	d.mu.Lock()
	steps := d.clickPath(n)
	d.mu.Unlock()

	e := &Event{Type: EventClick, Target: n}
	for _, s := range steps {
		if e.propagationStopped {
			break
		}
		e.CurrentTarget = s.node
		e.Phase = s.phase
		dispatch(e, s.listeners)
	}
	e.CurrentTarget = nil
	e.Phase = PhaseNone

	if !e.defaultPrevented {
		d.followLink(n)
	}
	return e
}

// dispatchStep is one node's worth of listeners in a propagation path.
type dispatchStep struct {
	node      *html.Node
	phase     Phase
	listeners []*Listener
}

// clickPath builds the propagation path for a click on n. The caller holds d.mu.
func (d *Document) clickPath(n *html.Node) []dispatchStep {
	var ancestors []*html.Node
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			ancestors = append(ancestors, p)
		}
	}

	var steps []dispatchStep
	add := func(node *html.Node, phase Phase, listeners []*Listener) {
		if len(listeners) > 0 {
			steps = append(steps, dispatchStep{node: node, phase: phase, listeners: listeners})
		}
	}

	add(nil, PhaseCapturing, filterListeners(d.docListeners[EventClick], true))
	for i := len(ancestors) - 1; i >= 0; i-- {
		add(ancestors[i], PhaseCapturing, filterListeners(d.nodeListeners[ancestors[i]], true))
	}
	add(n, PhaseAtTarget, append(filterListeners(d.nodeListeners[n], true), filterListeners(d.nodeListeners[n], false)...))
	for _, a := range ancestors {
		add(a, PhaseBubbling, filterListeners(d.nodeListeners[a], false))
	}
	add(nil, PhaseBubbling, filterListeners(d.docListeners[EventClick], false))

	return steps
}

// followLink performs the default action of a click on n.
func (d *Document) followLink(n *html.Node) {
	d.mu.Lock()
	var href string
	var ok bool
	for a := n; a != nil; a = a.Parent {
		if a.Type == html.ElementNode && a.DataAtom == atom.A {
			href, ok = getAttr(a, "href")
			break
		}
	}
	d.mu.Unlock()

	if !ok {
		return
	}
	if target, resolved := d.ResolveURL(href); resolved {
		d.location.Assign(target)
	}
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String renders the document, returning an empty string on error.
func (d *Document) String() string {
	var sb strings.Builder
	if err := d.Render(&sb); err != nil {
		return ""
	}
	return sb.String()
}

// dispatch runs listeners in order until one stops immediate propagation.
func dispatch(e *Event, listeners []*Listener) {
	for _, l := range listeners {
		if e.immediateStopped {
			return
		}
		l.handle(e)
	}
}

// filterListeners returns the listeners registered for the given phase.
func filterListeners(listeners []*Listener, capture bool) []*Listener {
	var out []*Listener
	for _, l := range listeners {
		if l.capture == capture {
			out = append(out, l)
		}
	}
	return out
}
