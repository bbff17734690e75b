// browser/dom/xpath.go
package dom

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// XPath returns an XPath for the element that is valid inside its own
// context root. Shadow roots and frame documents are roots of their own, so
// the path never climbs past them. An id anchors the path and ends the walk.
func (h *ElementHandle) XPath() string {
	h.page.mu.RLock()
	defer h.page.mu.RUnlock()
	return localXPath(h.node)
}

func localXPath(node *html.Node) string {
	var steps []string
	for n := node; n != nil && n.Type != html.DocumentNode; n = n.Parent {
		if n.Type != html.ElementNode || n.Data == "" {
			continue
		}
		if id := htmlquery.SelectAttr(n, "id"); id != "" {
			steps = append(steps, "//*[@id="+xpathLiteral(id)+"]")
			break
		}
		steps = append(steps, fmt.Sprintf("%s[%d]", strings.ToLower(n.Data), positionOfType(n)))
	}
	if len(steps) == 0 {
		return "/"
	}

	var b strings.Builder
	for i := len(steps) - 1; i >= 0; i-- {
		if i < len(steps)-1 || !strings.HasPrefix(steps[i], "//") {
			b.WriteByte('/')
		}
		b.WriteString(steps[i])
	}
	return b.String()
}

// positionOfType is the 1-based index of n among same-tag element siblings.
func positionOfType(n *html.Node) int {
	pos := 1
	for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
		if prev.Type == html.ElementNode && strings.EqualFold(prev.Data, n.Data) {
			pos++
		}
	}
	return pos
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
