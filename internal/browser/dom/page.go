// internal/browser/dom/page.go
package dom

import (
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/shadowdom"
)

var (
	// ErrNotElement is returned when an operation requires an element node.
	ErrNotElement = errors.New("dom: node is not an element")
	// ErrShadowRootExists is returned when attaching a second shadow root to a host.
	ErrShadowRootExists = errors.New("dom: host already has a shadow root")
	// ErrDetached is returned when a handle's element is no longer reachable from the top document.
	ErrDetached = errors.New("dom: element is detached from the page")
	// ErrNoSuchOption is returned when a select has no option matching the requested value.
	ErrNoSuchOption = errors.New("dom: no option matches value")
)

// ShadowRoot links a host element to its detached shadow tree.
type ShadowRoot struct {
	Host *html.Node
	Root *html.Node
	Mode shadowdom.Mode
}

// Open reports whether script (and therefore the enumerator) may enter the root.
func (s *ShadowRoot) Open() bool {
	return s != nil && s.Mode != shadowdom.ModeClosed
}

// Frame links an <iframe>/<frame> element to its nested document.
// Document is nil for frames that are cross-origin or could not be loaded.
type Frame struct {
	Element    *html.Node
	URL        *url.URL
	Document   *html.Node
	SameOrigin bool
}

// Accessible reports whether the parent may inspect the frame's document.
func (f *Frame) Accessible() bool {
	return f != nil && f.SameOrigin && f.Document != nil
}

// Page is a live, mutable view of a top document together with every nested
// context reachable from it. Boundaries are tracked by node identity: a shadow
// root or frame document is never copied.
//
// Reads spanning several accessor calls must run inside Read. Mutation methods
// take the write lock themselves and notify observers once it is released.
type Page struct {
	logger  *zap.Logger
	baseURL *url.URL

	mu      sync.RWMutex
	top     *html.Node
	shadows map[*html.Node]*ShadowRoot // host -> root
	frames  map[*html.Node]*Frame      // frame element -> frame
	owners  map[*html.Node]*html.Node  // context root -> host or frame element

	obsMu     sync.Mutex
	observers map[*html.Node][]*observer
	nextObsID uint64
	gen       atomic.Uint64

	evMu      sync.RWMutex
	listeners map[uint64]EventListener
	nextEvID  uint64
}

// NewPage wraps an already parsed top document. baseURL may be nil, in which
// case the page is treated as about:blank.
func NewPage(top *html.Node, baseURL *url.URL, logger *zap.Logger) *Page {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseURL == nil {
		baseURL = &url.URL{Scheme: "about", Opaque: "blank"}
	}
	return &Page{
		logger:    logger.Named("page"),
		baseURL:   baseURL,
		top:       top,
		shadows:   make(map[*html.Node]*ShadowRoot),
		frames:    make(map[*html.Node]*Frame),
		owners:    make(map[*html.Node]*html.Node),
		observers: make(map[*html.Node][]*observer),
		listeners: make(map[uint64]EventListener),
	}
}

// Read runs fn while holding the page read lock. Accessors called from fn see a
// consistent tree; fn must not call mutation methods.
func (p *Page) Read(fn func() error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fn()
}

// Top returns the top document node.
func (p *Page) Top() *html.Node { return p.top }

// BaseURL returns the URL of the top document.
func (p *Page) BaseURL() *url.URL { return p.baseURL }

// ShadowRootOf returns the shadow root hosted by el, if any.
func (p *Page) ShadowRootOf(el *html.Node) (*ShadowRoot, bool) {
	sr, ok := p.shadows[el]
	return sr, ok
}

// FrameOf returns the frame registered for a frame element, if any.
func (p *Page) FrameOf(el *html.Node) (*Frame, bool) {
	f, ok := p.frames[el]
	return f, ok
}

// AttachShadowRoot registers root as the shadow tree of host. Used by page
// builders; scripts use AttachShadow.
func (p *Page) AttachShadowRoot(host, root *html.Node, mode shadowdom.Mode) error {
	p.mu.Lock()
	records, err := p.attachShadowLocked(host, root, mode)
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.notify(records)
	return nil
}

// AttachShadow creates and attaches an empty shadow root, mirroring Element.attachShadow.
func (p *Page) AttachShadow(host *html.Node, mode shadowdom.Mode) (*html.Node, error) {
	root := shadowdom.NewRoot()
	if err := p.AttachShadowRoot(host, root, mode); err != nil {
		return nil, err
	}
	return root, nil
}

// AttachFrame registers (or replaces) the nested document of a frame element.
// doc may be nil for frames that cannot be inspected.
func (p *Page) AttachFrame(el *html.Node, u *url.URL, doc *html.Node, sameOrigin bool) error {
	if el == nil || el.Type != html.ElementNode {
		return ErrNotElement
	}
	p.mu.Lock()
	if old, ok := p.frames[el]; ok && old.Document != nil {
		delete(p.owners, old.Document)
	}
	p.frames[el] = &Frame{Element: el, URL: u, Document: doc, SameOrigin: sameOrigin}
	if doc != nil {
		p.owners[doc] = el
	}
	records := []MutationRecord{{Kind: MutationChildList, Target: el}}
	p.mu.Unlock()

	p.notify(records)
	return nil
}

func (p *Page) attachShadowLocked(host, root *html.Node, mode shadowdom.Mode) ([]MutationRecord, error) {
	if host == nil || host.Type != html.ElementNode {
		return nil, ErrNotElement
	}
	if _, exists := p.shadows[host]; exists {
		return nil, ErrShadowRootExists
	}
	p.shadows[host] = &ShadowRoot{Host: host, Root: root, Mode: mode}
	p.owners[root] = host
	return []MutationRecord{{Kind: MutationChildList, Target: host}}, nil
}

// treeRoot walks up to the root of n's own tree. Caller holds a lock.
func treeRoot(n *html.Node) *html.Node {
	for n != nil && n.Parent != nil {
		n = n.Parent
	}
	return n
}

// ContextRootOf returns the root of the execution context n lives in: the top
// document, a shadow root or a frame document.
func (p *Page) ContextRootOf(n *html.Node) *html.Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return treeRoot(n)
}

// connectedLocked reports whether n is reachable from the top document through
// registered boundaries.
func (p *Page) connectedLocked(n *html.Node) bool {
	seen := make(map[*html.Node]struct{})
	for n != nil {
		root := treeRoot(n)
		if root == p.top {
			return true
		}
		if _, dup := seen[root]; dup {
			return false
		}
		seen[root] = struct{}{}
		owner, ok := p.owners[root]
		if !ok {
			return false
		}
		// The owner must still point at this root.
		if sr, ok := p.shadows[owner]; ok && sr.Root == root {
			n = owner
			continue
		}
		if f, ok := p.frames[owner]; ok && f.Document == root {
			n = owner
			continue
		}
		return false
	}
	return false
}

// Walk visits the elements under root in document order. Content of inert
// <template> elements is skipped. Returning false from visit skips the
// element's descendants.
func Walk(root *html.Node, visit func(n *html.Node) bool) {
	if root == nil {
		return
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if !visit(c) {
			continue
		}
		if IsTag(c, "template") {
			continue
		}
		Walk(c, visit)
	}
}

// IsTag reports whether n is an element with the given (lower case) tag name.
func IsTag(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && strings.EqualFold(n.Data, tag)
}

// IsFrameElement reports whether n embeds a nested browsing context.
func IsFrameElement(n *html.Node) bool {
	return IsTag(n, "iframe") || IsTag(n, "frame")
}

// Attr returns an attribute value and whether it is present. Keys are matched
// case-insensitively.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}
