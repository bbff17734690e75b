// internal/browser/shadowdom/shadow.go
package shadowdom

import (
	"strings"

	"golang.org/x/net/html"
)

// Mode is the encapsulation mode of a shadow root.
type Mode string

const (
	ModeOpen   Mode = "open"
	ModeClosed Mode = "closed"
)

// Attributes that declare a shadow root on a <template>, in order of
// precedence. "shadowroot" is the pre-standard spelling still emitted by some
// server renderers.
var modeAttrs = []string{"shadowrootmode", "shadowroot"}

// RootData is the Data value given to instantiated shadow root nodes. Roots are
// html.DocumentNode values so selector engines treat them as tree roots.
const RootData = "#shadow-root"

// Engine turns declarative shadow DOM templates into detached shadow root trees.
type Engine struct{}

// DetectShadowHost reports whether the node carries a declarative shadow root,
// i.e. a direct <template shadowrootmode> (or legacy shadowroot) child.
func (e Engine) DetectShadowHost(node *html.Node) bool {
	return e.findDeclaration(node) != nil
}

// InstantiateShadowRoot detaches the declarative template from the host and
// returns a new root holding the template content. Returns nil when the host
// has no declaration.
func (e Engine) InstantiateShadowRoot(host *html.Node) (*html.Node, Mode) {
	tmpl := e.findDeclaration(host)
	if tmpl == nil {
		return nil, ""
	}

	v, _ := declaredMode(tmpl)
	mode := ParseMode(v)
	root := NewRoot()

	// Move the content over. Nested templates stay inert until the caller
	// processes the new root.
	for c := tmpl.FirstChild; c != nil; {
		next := c.NextSibling
		tmpl.RemoveChild(c)
		root.AppendChild(c)
		c = next
	}
	host.RemoveChild(tmpl)

	return root, mode
}

// NewRoot creates an empty shadow root node.
func NewRoot() *html.Node {
	return &html.Node{Type: html.DocumentNode, Data: RootData}
}

// IsRoot reports whether n is a shadow root created by this package.
func IsRoot(n *html.Node) bool {
	return n != nil && n.Type == html.DocumentNode && n.Data == RootData
}

// ParseMode normalises a shadowrootmode value. Anything other than "closed" is open.
func ParseMode(v string) Mode {
	if strings.EqualFold(strings.TrimSpace(v), string(ModeClosed)) {
		return ModeClosed
	}
	return ModeOpen
}

func (e Engine) findDeclaration(node *html.Node) *html.Node {
	if node == nil || node.Type != html.ElementNode {
		return nil
	}
	for c := node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || !strings.EqualFold(c.Data, "template") {
			continue
		}
		if _, ok := declaredMode(c); ok {
			return c
		}
	}
	return nil
}

func declaredMode(tmpl *html.Node) (string, bool) {
	for _, key := range modeAttrs {
		if hasAttr(tmpl, key) {
			return getAttr(tmpl, key), true
		}
	}
	return "", false
}

func getAttr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}
