// internal/browser/locator/detect.go
package locator

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
)

// FieldKind is the closed set of fillable control kinds.
type FieldKind int

const (
	KindInput FieldKind = iota
	KindSelect
	KindTextArea
	KindEditable
)

func (k FieldKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindSelect:
		return "select"
	case KindTextArea:
		return "textarea"
	case KindEditable:
		return "editable"
	default:
		return "unknown"
	}
}

// Input types that carry no user-entered value.
var excludedInputTypes = map[string]struct{}{
	"hidden": {},
	"submit": {},
	"button": {},
	"reset":  {},
	"image":  {},
}

// DetectedField is a fillable control found in one context.
type DetectedField struct {
	Node      *html.Node
	Kind      FieldKind
	Tag       string
	InputKind string
	Name      *string
	Label     *string
}

// DetectFields returns the fillable controls under root in document order.
// Shadow roots and frame documents are separate contexts and are not entered.
func DetectFields(root *html.Node) []DetectedField {
	explicit := explicitLabels(root)

	var fields []DetectedField
	dom.Walk(root, func(n *html.Node) bool {
		kind, ok := classify(n)
		if !ok {
			return true
		}
		f := DetectedField{
			Node:      n,
			Kind:      kind,
			Tag:       strings.ToLower(n.Data),
			InputKind: inputKind(n, kind),
		}
		if name, ok := dom.Attr(n, "name"); ok {
			f.Name = &name
		}
		f.Label = findLabel(n, root, explicit)
		fields = append(fields, f)

		// Descendants of an editable region are part of it.
		return kind != KindEditable
	})
	return fields
}

func classify(n *html.Node) (FieldKind, bool) {
	switch strings.ToLower(n.Data) {
	case "input":
		t, _ := dom.Attr(n, "type")
		if _, excluded := excludedInputTypes[strings.ToLower(strings.TrimSpace(t))]; excluded {
			return 0, false
		}
		return KindInput, true
	case "select":
		return KindSelect, true
	case "textarea":
		return KindTextArea, true
	}
	if v, ok := dom.Attr(n, "contenteditable"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "true", "plaintext-only":
			return KindEditable, true
		}
	}
	return 0, false
}

func inputKind(n *html.Node, kind FieldKind) string {
	switch kind {
	case KindInput:
		if t, ok := dom.Attr(n, "type"); ok && strings.TrimSpace(t) != "" {
			return strings.ToLower(strings.TrimSpace(t))
		}
		return "input"
	case KindSelect, KindTextArea, KindEditable:
		return strings.ToLower(n.Data)
	default:
		panic("locator: unhandled field kind")
	}
}

// explicitLabels maps ids to the text of the first non-empty label[for] that
// names them.
func explicitLabels(root *html.Node) map[string]string {
	labels := make(map[string]string)
	dom.Walk(root, func(n *html.Node) bool {
		if !dom.IsTag(n, "label") {
			return true
		}
		id, ok := dom.Attr(n, "for")
		if !ok || id == "" {
			return true
		}
		if _, seen := labels[id]; seen {
			return true
		}
		if text := labelText(n); text != "" {
			labels[id] = text
		}
		return true
	})
	return labels
}

// findLabel applies the label precedence: label[for=id], enclosing label,
// immediately preceding sibling label.
func findLabel(n, root *html.Node, explicit map[string]string) *string {
	if id, ok := dom.Attr(n, "id"); ok && id != "" {
		if text, ok := explicit[id]; ok {
			return &text
		}
	}

	for p := n.Parent; p != nil && p != root; p = p.Parent {
		if dom.IsTag(p, "label") {
			if text := labelText(p); text != "" {
				return &text
			}
			break
		}
	}

	prev := n.PrevSibling
	for prev != nil && prev.Type != html.ElementNode {
		prev = prev.PrevSibling
	}
	if dom.IsTag(prev, "label") {
		if text := labelText(prev); text != "" {
			return &text
		}
	}
	return nil
}

// labelText collects the whitespace-normalised text of a label, leaving out
// the text of controls nested in it.
func labelText(label *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				b.WriteString(c.Data)
				b.WriteByte(' ')
			case html.ElementNode:
				switch strings.ToLower(c.Data) {
				case "select", "textarea", "script", "style", "template":
					continue
				}
				collect(c)
			}
		}
	}
	collect(label)
	return strings.Join(strings.Fields(b.String()), " ")
}
