package dom

import (
	"slices"
	"sync"
)

// Location records navigations, standing in for window.location.
type Location struct {
	mu      sync.Mutex
	href    string
	history []string
}

// NewLocation creates a Location at href.
func NewLocation(href string) *Location {
	return &Location{href: href}
}

// Assign navigates to target.
func (l *Location) Assign(target string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.href = target
	l.history = append(l.history, target)
}

// Href returns the current address.
func (l *Location) Href() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.href
}

// History returns every address assigned so far, oldest first.
func (l *Location) History() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.history)
}
