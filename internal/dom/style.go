package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// DisplayNone is the display value used to hide an element.
const DisplayNone = "none"

// Display returns the inline display value of n, like element.style.display.
// It returns an empty string when no inline display is set.
func (d *Document) Display(n *html.Node) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	style, _ := getAttr(n, "style")
	for _, decl := range splitDeclarations(style) {
		prop, value, ok := strings.Cut(decl, ":")
		if ok && strings.EqualFold(strings.TrimSpace(prop), "display") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// SetDisplay sets the inline display value of n. An empty value removes the
// declaration, and the style attribute too once nothing is left in it.
// Other declarations are kept as written.
func (d *Document) SetDisplay(n *html.Node, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	style, _ := getAttr(n, "style")
	decls := splitDeclarations(style)

	out := make([]string, 0, len(decls)+1)
	replaced := false
	for _, decl := range decls {
		prop, _, ok := strings.Cut(decl, ":")
		if ok && strings.EqualFold(strings.TrimSpace(prop), "display") {
			if value != "" && !replaced {
				out = append(out, "display: "+value)
				replaced = true
			}
			continue
		}
		out = append(out, decl)
	}
	if value != "" && !replaced {
		out = append(out, "display: "+value)
	}

	if len(out) == 0 {
		removeAttr(n, "style")
		return
	}
	setAttr(n, "style", strings.Join(out, "; "))
}

// splitDeclarations splits an inline style into trimmed, non-empty declarations.
func splitDeclarations(style string) []string {
	var decls []string
	for _, decl := range strings.Split(style, ";") {
		if decl = strings.TrimSpace(decl); decl != "" {
			decls = append(decls, decl)
		}
	}
	return decls
}
