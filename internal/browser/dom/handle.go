// internal/browser/dom/handle.go
package dom

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// ElementHandle is the narrow view of an element handed to collaborators
// outside the locator: read the value, set the value, dispatch an event.
type ElementHandle struct {
	page *Page
	node *html.Node
}

// Event is delivered to listeners registered with OnEvent.
type Event struct {
	Type   string
	Target *ElementHandle
}

// EventListener observes events dispatched through handles.
type EventListener func(Event)

// Handle wraps an element of this page. Returns nil for non-element nodes.
func (p *Page) Handle(n *html.Node) *ElementHandle {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	return &ElementHandle{page: p, node: n}
}

// OnEvent registers a listener for dispatched events.
func (p *Page) OnEvent(fn EventListener) (remove func()) {
	p.evMu.Lock()
	p.nextEvID++
	id := p.nextEvID
	p.listeners[id] = fn
	p.evMu.Unlock()

	return func() {
		p.evMu.Lock()
		delete(p.listeners, id)
		p.evMu.Unlock()
	}
}

// Equal reports whether both handles point at the same element.
func (h *ElementHandle) Equal(other *ElementHandle) bool {
	if h == nil || other == nil {
		return h == other
	}
	return h.page == other.page && h.node == other.node
}

// TagName returns the lower case tag name.
func (h *ElementHandle) TagName() string {
	return strings.ToLower(h.node.Data)
}

// InputType returns the declared type of an input, lower cased ("text" when absent).
// Non-input elements return an empty string.
func (h *ElementHandle) InputType() string {
	if !IsTag(h.node, "input") {
		return ""
	}
	h.page.mu.RLock()
	defer h.page.mu.RUnlock()
	if t, ok := Attr(h.node, "type"); ok && strings.TrimSpace(t) != "" {
		return strings.ToLower(strings.TrimSpace(t))
	}
	return "text"
}

// Connected reports whether the element is still reachable from the top document.
func (h *ElementHandle) Connected() bool {
	h.page.mu.RLock()
	defer h.page.mu.RUnlock()
	return h.page.connectedLocked(h.node)
}

// Value returns the current value of the control.
func (h *ElementHandle) Value() string {
	h.page.mu.RLock()
	defer h.page.mu.RUnlock()

	switch {
	case IsTag(h.node, "input"):
		v, _ := Attr(h.node, "value")
		return v
	case IsTag(h.node, "textarea"):
		return htmlquery.InnerText(h.node)
	case IsTag(h.node, "select"):
		return selectedOptionValue(h.node)
	default:
		return htmlquery.InnerText(h.node)
	}
}

// Checked reports the checkedness of checkbox and radio inputs.
func (h *ElementHandle) Checked() bool {
	h.page.mu.RLock()
	defer h.page.mu.RUnlock()
	_, ok := Attr(h.node, "checked")
	return ok
}

// SetValue replaces the value of the control. For selects, v must match an
// option value (or its text when the option has no value attribute).
func (h *ElementHandle) SetValue(v string) error {
	p := h.page
	p.mu.Lock()
	if !p.connectedLocked(h.node) {
		p.mu.Unlock()
		return ErrDetached
	}

	var records []MutationRecord
	var err error
	switch {
	case IsTag(h.node, "input"):
		records = append(records, setAttrLocked(h.node, "value", v))
	case IsTag(h.node, "select"):
		records, err = selectOptionLocked(h.node, v)
	default:
		// textarea and editable regions hold their value as text content.
		records = append(records, setTextLocked(h.node, v))
	}
	p.mu.Unlock()

	if err != nil {
		return err
	}
	p.notify(records)
	return nil
}

// Dispatch fires a named event at the element. A "click" on a checkbox or
// radio input performs the default checkedness change first.
func (h *ElementHandle) Dispatch(event string) error {
	p := h.page
	p.mu.Lock()
	if !p.connectedLocked(h.node) {
		p.mu.Unlock()
		return ErrDetached
	}
	var records []MutationRecord
	if event == "click" && IsTag(h.node, "input") {
		records = clickDefaultLocked(h.node)
	}
	p.mu.Unlock()

	p.notify(records)

	p.evMu.RLock()
	listeners := make([]EventListener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.evMu.RUnlock()

	ev := Event{Type: event, Target: h}
	for _, l := range listeners {
		l(ev)
	}
	return nil
}

func clickDefaultLocked(el *html.Node) []MutationRecord {
	t, _ := Attr(el, "type")
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "checkbox":
		if rec, removed := removeAttrLocked(el, "checked"); removed {
			return []MutationRecord{rec}
		}
		return []MutationRecord{setAttrLocked(el, "checked", "")}
	case "radio":
		records := []MutationRecord{setAttrLocked(el, "checked", "")}
		name, _ := Attr(el, "name")
		if name == "" {
			return records
		}
		// Uncheck the rest of the group within the same tree.
		Walk(treeRoot(el), func(n *html.Node) bool {
			if n == el || !IsTag(n, "input") {
				return true
			}
			if nt, _ := Attr(n, "type"); !strings.EqualFold(nt, "radio") {
				return true
			}
			if nn, _ := Attr(n, "name"); nn != name {
				return true
			}
			if rec, removed := removeAttrLocked(n, "checked"); removed {
				records = append(records, rec)
			}
			return true
		})
		return records
	default:
		return nil
	}
}

func options(sel *html.Node) []*html.Node {
	var opts []*html.Node
	Walk(sel, func(n *html.Node) bool {
		if IsTag(n, "option") {
			opts = append(opts, n)
			return false
		}
		return true
	})
	return opts
}

func optionValue(opt *html.Node) string {
	if v, ok := Attr(opt, "value"); ok {
		return v
	}
	return strings.TrimSpace(htmlquery.InnerText(opt))
}

func selectedOptionValue(sel *html.Node) string {
	opts := options(sel)
	for _, o := range opts {
		if _, ok := Attr(o, "selected"); ok {
			return optionValue(o)
		}
	}
	if len(opts) > 0 {
		return optionValue(opts[0])
	}
	return ""
}

func selectOptionLocked(sel *html.Node, v string) ([]MutationRecord, error) {
	opts := options(sel)
	var match *html.Node
	for _, o := range opts {
		if optionValue(o) == v {
			match = o
			break
		}
	}
	if match == nil {
		for _, o := range opts {
			if strings.TrimSpace(htmlquery.InnerText(o)) == v {
				match = o
				break
			}
		}
	}
	if match == nil {
		return nil, ErrNoSuchOption
	}

	var records []MutationRecord
	for _, o := range opts {
		if o == match {
			records = append(records, setAttrLocked(o, "selected", ""))
			continue
		}
		if rec, removed := removeAttrLocked(o, "selected"); removed {
			records = append(records, rec)
		}
	}
	return records, nil
}
