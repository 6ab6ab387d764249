package rewrite

import (
	"fmt"

	"github.com/andybalholm/cascadia"
)

// Markers names the attributes and selectors that identify result links
// and proxy badges on a search results page.
type Markers struct {
	// LinkID is the attribute carrying the link identifier.
	LinkID string `yaml:"linkId"`

	// ProxyDestination is the attribute holding the publisher URL of a
	// proxied result. It wins over every other destination when non-empty.
	ProxyDestination string `yaml:"proxyDestination"`

	// CurrentDestination is the fallback destination attribute. When present
	// but empty the link has no destination.
	CurrentDestination string `yaml:"currentDestination"`

	// FeaturedSnippet marks anchors whose badge lives in the surrounding card.
	FeaturedSnippet string `yaml:"featuredSnippet"`

	// CardSection is the class of the card holding a featured snippet's badge.
	CardSection string `yaml:"cardSection"`

	// Badge selects the proxy badge element.
	Badge string `yaml:"badge"`
}

// DefaultMarkers returns the markers used by Google search results.
func DefaultMarkers() Markers {
	return Markers{
		LinkID:             "data-ved",
		ProxyDestination:   "data-amp-cur",
		CurrentDestination: "data-cur",
		FeaturedSnippet:    "data-amp-hlt",
		CardSection:        "card-section",
		Badge:              "span[aria-label='AMP logo']",
	}
}

// Merge returns m with empty fields taken from defaults.
func (m Markers) Merge(defaults Markers) Markers {
	pick := func(v, d string) string {
		if v == "" {
			return d
		}
		return v
	}
	return Markers{
		LinkID:             pick(m.LinkID, defaults.LinkID),
		ProxyDestination:   pick(m.ProxyDestination, defaults.ProxyDestination),
		CurrentDestination: pick(m.CurrentDestination, defaults.CurrentDestination),
		FeaturedSnippet:    pick(m.FeaturedSnippet, defaults.FeaturedSnippet),
		CardSection:        pick(m.CardSection, defaults.CardSection),
		Badge:              pick(m.Badge, defaults.Badge),
	}
}

// Validate checks that every marker is set and that the selectors compile.
func (m Markers) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"linkId", m.LinkID},
		{"proxyDestination", m.ProxyDestination},
		{"currentDestination", m.CurrentDestination},
		{"featuredSnippet", m.FeaturedSnippet},
		{"cardSection", m.CardSection},
		{"badge", m.Badge},
	}
	for _, f := range fields {
		if f.value == "" {
			return fmt.Errorf("%w: %s is empty", ErrInvalidMarkers, f.name)
		}
	}

	for _, sel := range []string{m.anchorSelector(), m.cardSelector(), m.Badge} {
		if _, err := cascadia.Compile(sel); err != nil {
			return fmt.Errorf("%w: selector %q: %v", ErrInvalidMarkers, sel, err)
		}
	}
	return nil
}

// anchorSelector selects result anchors.
func (m Markers) anchorSelector() string {
	return "a[" + m.LinkID + "]"
}

func (m Markers) cardSelector() string {
	return "." + m.CardSection
}
