package settings

import (
	"context"
	"slices"
	"sync"
)

// Source is the read side of a settings store.
type Source interface {
	IgnoredHostnames(ctx context.Context) ([]string, error)
	OnIgnoredHostnamesChanged(fn func([]string)) (cancel func())
}

// Static is an in-memory ignore list. The zero value is an empty list.
type Static struct {
	mu          sync.Mutex
	list        []string
	subscribers map[uint64]func([]string)
	nextSub     uint64
}

// NewStatic creates a Static holding hosts, normalized.
func NewStatic(hosts ...string) *Static {
	return &Static{list: NormalizeHostnames(hosts)}
}

// IgnoredHostnames returns the list.
func (s *Static) IgnoredHostnames(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.list == nil {
		return []string{}, nil
	}
	return slices.Clone(s.list), nil
}

// Set replaces the list and notifies subscribers if it changed.
func (s *Static) Set(hosts ...string) {
	list := NormalizeHostnames(hosts)

	s.mu.Lock()
	if slices.Equal(s.list, list) {
		s.mu.Unlock()
		return
	}
	s.list = list
	fns := make([]func([]string), 0, len(s.subscribers))
	for id := uint64(0); id < s.nextSub; id++ {
		if fn, ok := s.subscribers[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(slices.Clone(list))
	}
}

// OnIgnoredHostnamesChanged registers fn for changes made with Set.
func (s *Static) OnIgnoredHostnamesChanged(fn func([]string)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribers == nil {
		s.subscribers = make(map[uint64]func([]string))
	}
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// Overlay adds fixed hostnames to another source's list, e.g. hosts given
// on the command line on top of the stored list.
type Overlay struct {
	base  Source
	extra []string
}

// NewOverlay creates an Overlay. A nil base behaves like an empty list.
func NewOverlay(base Source, extra ...string) *Overlay {
	if base == nil {
		base = NewStatic()
	}
	return &Overlay{base: base, extra: NormalizeHostnames(extra)}
}

// IgnoredHostnames returns the base list followed by the extra hosts.
func (o *Overlay) IgnoredHostnames(ctx context.Context) ([]string, error) {
	list, err := o.base.IgnoredHostnames(ctx)
	if err != nil {
		return nil, err
	}
	return o.merge(list), nil
}

// OnIgnoredHostnamesChanged forwards base changes with the extra hosts added.
func (o *Overlay) OnIgnoredHostnamesChanged(fn func([]string)) (cancel func()) {
	return o.base.OnIgnoredHostnamesChanged(func(list []string) {
		fn(o.merge(list))
	})
}

func (o *Overlay) merge(list []string) []string {
	return NormalizeHostnames(append(slices.Clone(list), o.extra...))
}
