package model

import "time"

// Page is one search results page moving through the pipeline.
type Page struct {
	// Source is where the page came from: a file path, a URL, or "-" for stdin.
	Source string `json:"source"`

	// URL is the page address used to resolve relative links.
	URL string `json:"url,omitempty"`

	// DateProcessed is when processing started.
	DateProcessed time.Time `json:"date_processed"`

	// Raw is the page as loaded.
	Raw []byte `json:"-"`

	// Output is the rewritten page.
	Output []byte `json:"-"`

	// OutputPath is where Output was written; empty for stdout.
	OutputPath string `json:"output_path,omitempty"`

	// Appended lists the "more results" fragments inserted after load.
	Appended []string `json:"appended,omitempty"`

	// IgnoredHostnames is the ignore list in effect for the last pass.
	IgnoredHostnames []string `json:"ignored_hostnames,omitempty"`

	// Passes counts rewrite passes run over the page.
	Passes int `json:"passes"`

	// Links holds the latest outcome for each link identifier, in the order
	// links were first seen.
	Links []LinkOutcome `json:"links"`

	// PerformedSteps lists the pipeline steps that ran.
	PerformedSteps []string `json:"performed_steps,omitempty"`

	// Error is the first step failure, if any.
	Error error `json:"-"`

	// ErrorMessage is Error as text for serialization.
	ErrorMessage string `json:"error,omitempty"`

	// TimedOut is set when processing was cancelled.
	TimedOut bool `json:"timed_out,omitempty"`

	linkIndex map[string]int
}

// NewPage creates a Page for source.
func NewPage(source string) *Page {
	return &Page{
		Source:        source,
		DateProcessed: time.Now(),
		Links:         make([]LinkOutcome, 0),
		linkIndex:     make(map[string]int),
	}
}

// RecordPass merges the outcomes of one rewrite pass. A settled outcome
// never replaces the outcome that settled the link.
func (p *Page) RecordPass(ignored []string, outcomes []LinkOutcome) {
	if p.linkIndex == nil {
		p.linkIndex = make(map[string]int, len(p.Links))
		for i, l := range p.Links {
			p.linkIndex[l.ID] = i
		}
	}

	p.Passes++
	p.IgnoredHostnames = append([]string(nil), ignored...)

	for _, o := range outcomes {
		i, ok := p.linkIndex[o.ID]
		if !ok {
			p.linkIndex[o.ID] = len(p.Links)
			p.Links = append(p.Links, o)
			continue
		}
		if o.Status == StatusSettled {
			continue
		}
		p.Links[i] = o
	}
}

// Summary counts the page's links per status.
func (p *Page) Summary() Summary {
	s := Summary{Counts: make(map[LinkStatus]int, len(AllStatuses))}
	for _, l := range p.Links {
		s.Counts[l.Status]++
		s.Total++
		if l.BadgeHidden && l.Status == StatusRewritten {
			s.BadgesHidden++
		}
	}
	return s
}

// Summary holds per-status link counts for one page.
type Summary struct {
	// Total is the number of distinct links seen.
	Total int `json:"total"`

	// Counts maps each status to its number of links.
	Counts map[LinkStatus]int `json:"counts"`

	// BadgesHidden is the number of rewritten links whose badge is hidden.
	BadgesHidden int `json:"badges_hidden"`
}

// Count returns the number of links with status.
func (s Summary) Count(status LinkStatus) int {
	return s.Counts[status]
}
