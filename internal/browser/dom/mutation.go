// internal/browser/dom/mutation.go
package dom

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// MutationKind classifies a mutation record.
type MutationKind int

const (
	MutationChildList MutationKind = iota
	MutationAttributes
	MutationCharacterData
)

func (k MutationKind) String() string {
	switch k {
	case MutationChildList:
		return "childList"
	case MutationAttributes:
		return "attributes"
	case MutationCharacterData:
		return "characterData"
	default:
		return "unknown"
	}
}

// MutationRecord describes a single change to a context's tree.
type MutationRecord struct {
	Kind          MutationKind
	Target        *html.Node
	AttributeName string
	Added         []*html.Node
	Removed       []*html.Node
}

// MutationCallback receives the records of one mutation call. It runs on the
// mutating goroutine after the page lock is released and must not block.
type MutationCallback func(records []MutationRecord)

type observer struct {
	id uint64
	fn MutationCallback
}

// Observe registers fn for mutations inside the context rooted at root. Like
// a MutationObserver with subtree enabled, it does not see mutations inside
// nested shadow roots or frame documents; those need their own registration.
func (p *Page) Observe(root *html.Node, fn MutationCallback) (stop func()) {
	p.obsMu.Lock()
	p.nextObsID++
	id := p.nextObsID
	p.observers[root] = append(p.observers[root], &observer{id: id, fn: fn})
	p.obsMu.Unlock()

	return func() {
		p.obsMu.Lock()
		defer p.obsMu.Unlock()
		list := p.observers[root]
		for i, o := range list {
			if o.id == id {
				p.observers[root] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(p.observers[root]) == 0 {
			delete(p.observers, root)
		}
	}
}

// Generation counts the mutation batches delivered so far, whether or not any
// observer saw them. A batch is counted before observers are looked up, so a
// caller that registers an observer and then finds the generation unchanged
// cannot miss a later batch for that root.
func (p *Page) Generation() uint64 {
	return p.gen.Load()
}

// notify delivers records grouped by the context root of their target.
func (p *Page) notify(records []MutationRecord) {
	if len(records) == 0 {
		return
	}
	p.gen.Add(1)
	p.logMutation(records)
	byRoot := make(map[*html.Node][]MutationRecord)
	var order []*html.Node

	p.mu.RLock()
	for _, r := range records {
		root := treeRoot(r.Target)
		if _, ok := byRoot[root]; !ok {
			order = append(order, root)
		}
		byRoot[root] = append(byRoot[root], r)
	}
	p.mu.RUnlock()

	for _, root := range order {
		p.obsMu.Lock()
		list := make([]*observer, len(p.observers[root]))
		copy(list, p.observers[root])
		p.obsMu.Unlock()

		for _, o := range list {
			o.fn(byRoot[root])
		}
	}
}

// SetAttribute sets (or replaces) an attribute on el.
func (p *Page) SetAttribute(el *html.Node, key, val string) error {
	if el == nil || el.Type != html.ElementNode {
		return ErrNotElement
	}
	p.mu.Lock()
	rec := setAttrLocked(el, key, val)
	p.mu.Unlock()
	p.notify([]MutationRecord{rec})
	return nil
}

// RemoveAttribute removes an attribute from el. Removing a missing attribute
// is a no-op and produces no record.
func (p *Page) RemoveAttribute(el *html.Node, key string) error {
	if el == nil || el.Type != html.ElementNode {
		return ErrNotElement
	}
	p.mu.Lock()
	rec, changed := removeAttrLocked(el, key)
	p.mu.Unlock()
	if changed {
		p.notify([]MutationRecord{rec})
	}
	return nil
}

// AppendChild appends child to parent, detaching it from its old parent first.
func (p *Page) AppendChild(parent, child *html.Node) {
	p.InsertBefore(parent, child, nil)
}

// InsertBefore inserts child into parent before ref (append when ref is nil).
func (p *Page) InsertBefore(parent, child, ref *html.Node) {
	p.mu.Lock()
	var records []MutationRecord
	if old := child.Parent; old != nil {
		old.RemoveChild(child)
		records = append(records, MutationRecord{Kind: MutationChildList, Target: old, Removed: []*html.Node{child}})
	}
	parent.InsertBefore(child, ref)
	records = append(records, MutationRecord{Kind: MutationChildList, Target: parent, Added: []*html.Node{child}})
	p.mu.Unlock()

	p.notify(records)
}

// RemoveChild detaches child from its parent.
func (p *Page) RemoveChild(child *html.Node) {
	p.mu.Lock()
	parent := child.Parent
	if parent == nil {
		p.mu.Unlock()
		return
	}
	parent.RemoveChild(child)
	p.mu.Unlock()

	p.notify([]MutationRecord{{Kind: MutationChildList, Target: parent, Removed: []*html.Node{child}}})
}

// SetText replaces the children of el with a single text node.
func (p *Page) SetText(el *html.Node, text string) error {
	if el == nil || el.Type != html.ElementNode {
		return ErrNotElement
	}
	p.mu.Lock()
	rec := setTextLocked(el, text)
	p.mu.Unlock()
	p.notify([]MutationRecord{rec})
	return nil
}

func setAttrLocked(el *html.Node, key, val string) MutationRecord {
	key = strings.ToLower(key)
	for i := range el.Attr {
		if el.Attr[i].Namespace == "" && strings.EqualFold(el.Attr[i].Key, key) {
			el.Attr[i].Val = val
			return MutationRecord{Kind: MutationAttributes, Target: el, AttributeName: key}
		}
	}
	el.Attr = append(el.Attr, html.Attribute{Key: key, Val: val})
	return MutationRecord{Kind: MutationAttributes, Target: el, AttributeName: key}
}

func removeAttrLocked(el *html.Node, key string) (MutationRecord, bool) {
	for i := range el.Attr {
		if el.Attr[i].Namespace == "" && strings.EqualFold(el.Attr[i].Key, key) {
			el.Attr = append(el.Attr[:i], el.Attr[i+1:]...)
			return MutationRecord{Kind: MutationAttributes, Target: el, AttributeName: strings.ToLower(key)}, true
		}
	}
	return MutationRecord{}, false
}

func setTextLocked(el *html.Node, text string) MutationRecord {
	// A lone text child is updated in place (characterData).
	if c := el.FirstChild; c != nil && c.NextSibling == nil && c.Type == html.TextNode {
		c.Data = text
		return MutationRecord{Kind: MutationCharacterData, Target: c}
	}
	var removed []*html.Node
	for c := el.FirstChild; c != nil; {
		next := c.NextSibling
		el.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	added := &html.Node{Type: html.TextNode, Data: text}
	el.AppendChild(added)
	return MutationRecord{Kind: MutationChildList, Target: el, Added: []*html.Node{added}, Removed: removed}
}

func (p *Page) logMutation(records []MutationRecord) {
	for _, r := range records {
		p.logger.Debug("Mutation applied.",
			zap.Stringer("kind", r.Kind),
			zap.String("target", r.Target.Data),
			zap.String("attribute", r.AttributeName))
	}
}
