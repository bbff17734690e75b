// internal/browser/locator/selector.go
package locator

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
)

// Synthesize builds a CSS selector that matches node and nothing else within
// the context rooted at root. The context's own shadow roots and frames are not
// part of it.
//
// Preference order: a unique id, then a tag.class path from the context root,
// with :nth-of-type only on steps where a same-tag sibling would also match.
func Synthesize(node, root *html.Node) (string, error) {
	if node == nil || node.Type != html.ElementNode {
		return "", dom.ErrNotElement
	}

	if id, ok := dom.Attr(node, "id"); ok && id != "" {
		sel := "#" + cssEscape(id)
		if n, err := countMatches(root, sel, 2); err == nil && n == 1 {
			return sel, nil
		}
	}

	var steps []string
	n := node
	for ; n != nil && n != root; n = n.Parent {
		if n.Type != html.ElementNode || n.Parent == nil {
			return "", ErrNotInContext
		}
		steps = append(steps, fragment(n))
	}
	if n != root {
		return "", ErrNotInContext
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}

	sel := strings.Join(steps, " > ")
	if ok, err := matchesOnly(root, sel, node); err != nil {
		return "", fmt.Errorf("synthesized invalid selector %q: %w", sel, err)
	} else if ok {
		return sel, nil
	}

	// The same path can recur deeper in the tree; pin the first step to the
	// top of the context.
	steps[0] += ":root"
	sel = strings.Join(steps, " > ")
	if ok, err := matchesOnly(root, sel, node); err == nil && ok {
		return sel, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSelectorNotUnique, sel)
}

// fragment renders one path step for n.
//
// Type selectors are matched lower-cased, so a camel-case foreign element
// such as SVG's foreignObject can never be named by its tag. Those steps use
// the universal selector and are always pinned with :nth-of-type, which
// compares the raw tag name.
func fragment(n *html.Node) string {
	classes := classList(n)
	foreign := n.Namespace != "" || n.Data != strings.ToLower(n.Data)

	var b strings.Builder
	if foreign {
		b.WriteByte('*')
	} else {
		b.WriteString(cssEscape(n.Data))
	}
	for _, c := range classes {
		b.WriteByte('.')
		b.WriteString(cssEscape(c))
	}

	ambiguous := false
	ordinal, pos := 0, 0
	for s := n.Parent.FirstChild; s != nil; s = s.NextSibling {
		if s.Type != html.ElementNode || s.Data != n.Data {
			continue
		}
		pos++
		if s == n {
			ordinal = pos
			continue
		}
		if hasClasses(s, classes) {
			ambiguous = true
		}
	}
	if ambiguous || foreign {
		fmt.Fprintf(&b, ":nth-of-type(%d)", ordinal)
	}
	return b.String()
}

func classList(n *html.Node) []string {
	raw, _ := dom.Attr(n, "class")
	var out []string
	seen := make(map[string]struct{})
	for _, c := range strings.Fields(raw) {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func hasClasses(n *html.Node, want []string) bool {
	if len(want) == 0 {
		return true
	}
	have := make(map[string]struct{})
	raw, _ := dom.Attr(n, "class")
	for _, c := range strings.Fields(raw) {
		have[c] = struct{}{}
	}
	for _, c := range want {
		if _, ok := have[c]; !ok {
			return false
		}
	}
	return true
}

// QuerySelectorAll returns the elements under root matched by sel, in document
// order. Unlike cascadia's own MatchAll it does not descend into inert
// <template> content.
func QuerySelectorAll(root *html.Node, sel cascadia.Selector) []*html.Node {
	var out []*html.Node
	dom.Walk(root, func(n *html.Node) bool {
		if sel.Match(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// compileSelector compiles a CSS selector group.
func compileSelector(s string) (cascadia.Selector, error) {
	sel, err := cascadia.Compile(s)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", s, err)
	}
	return sel, nil
}

// countMatches counts matches of s under root, stopping at limit.
func countMatches(root *html.Node, s string, limit int) (int, error) {
	sel, err := compileSelector(s)
	if err != nil {
		return 0, err
	}
	count := 0
	dom.Walk(root, func(n *html.Node) bool {
		if count >= limit {
			return false
		}
		if sel.Match(n) {
			count++
		}
		return true
	})
	return count, nil
}

func matchesOnly(root *html.Node, s string, want *html.Node) (bool, error) {
	sel, err := compileSelector(s)
	if err != nil {
		return false, err
	}
	found := false
	unique := true
	dom.Walk(root, func(n *html.Node) bool {
		if !unique {
			return false
		}
		if sel.Match(n) {
			if n != want || found {
				unique = false
				return false
			}
			found = true
		}
		return true
	})
	return found && unique, nil
}

// cssEscape serializes an identifier following CSS.escape().
func cssEscape(ident string) string {
	var b strings.Builder
	runes := []rune(ident)
	for i, r := range runes {
		switch {
		case r == 0:
			b.WriteRune('\uFFFD')
		case (r >= 0x01 && r <= 0x1f) || r == 0x7f:
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 0 && r >= '0' && r <= '9':
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 1 && r >= '0' && r <= '9' && runes[0] == '-':
			fmt.Fprintf(&b, "\\%x ", r)
		case i == 0 && r == '-' && len(runes) == 1:
			b.WriteString(`\-`)
		case r >= 0x80 || r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}
