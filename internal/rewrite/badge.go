package rewrite

import (
	"github.com/nao1215/deamp/internal/dom"
	"golang.org/x/net/html"
)

// Locator finds the proxy badge belonging to a result anchor.
type Locator struct {
	markers Markers
}

// NewLocator creates a Locator for markers.
func NewLocator(markers Markers) *Locator {
	return &Locator{markers: markers}
}

// Locate returns the badge for anchor, or nil when there is none.
//
// The badge is searched inside the anchor first. Featured snippets keep
// their badge outside the link, so for anchors carrying a non-empty
// featured-snippet marker the nearest card section is searched instead.
func (l *Locator) Locate(doc *dom.Document, anchor *html.Node) *html.Node {
	if badge := first(doc.Find(anchor, l.markers.Badge)); badge != nil {
		return badge
	}

	if v, _ := doc.Attr(anchor, l.markers.FeaturedSnippet); v == "" {
		return nil
	}

	card := doc.Closest(anchor, l.markers.cardSelector())
	if card == nil {
		return nil
	}
	return first(doc.Find(card, l.markers.Badge))
}

func first(nodes []*html.Node) *html.Node {
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}
