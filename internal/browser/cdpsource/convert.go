// internal/browser/cdpsource/convert.go
package cdpsource

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-fields/internal/browser/shadowdom"
)

type shadowLink struct {
	host *html.Node
	root *html.Node
	mode shadowdom.Mode
}

type frameLink struct {
	el         *html.Node
	u          *url.URL
	doc        *html.Node
	sameOrigin bool
}

// converter mirrors a pierced CDP document into x/net/html trees.
type converter struct {
	base    *url.URL
	logger  *zap.Logger
	shadows []shadowLink
	frames  []frameLink
	skipped int
}

// Convert turns the result of DOM.getDocument(depth=-1, pierce=true) into a
// page. Author shadow roots become detached roots, in-process frame documents
// become frame documents, user-agent shadow roots are dropped and frames
// without a content document (out-of-process frames) stay opaque.
func Convert(root *cdp.Node, logger *zap.Logger) (*dom.Page, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if root == nil || root.NodeType != cdp.NodeTypeDocument {
		return nil, fmt.Errorf("cdpsource: expected a document node")
	}
	base, err := documentURL(root)
	if err != nil {
		return nil, err
	}

	c := &converter{base: base, logger: logger.Named("cdpsource")}
	top := &html.Node{Type: html.DocumentNode}
	c.children(top, root.Children, base)

	page := dom.NewPage(top, base, logger)
	for _, s := range c.shadows {
		if err := page.AttachShadowRoot(s.host, s.root, s.mode); err != nil {
			return nil, fmt.Errorf("cdpsource: attaching shadow root to <%s>: %w", s.host.Data, err)
		}
	}
	for _, f := range c.frames {
		if err := page.AttachFrame(f.el, f.u, f.doc, f.sameOrigin); err != nil {
			return nil, fmt.Errorf("cdpsource: attaching frame: %w", err)
		}
	}
	c.logger.Debug("Converted CDP document.",
		zap.Int("shadow_roots", len(c.shadows)),
		zap.Int("frames", len(c.frames)),
		zap.Int("user_agent_roots_skipped", c.skipped))
	return page, nil
}

func documentURL(n *cdp.Node) (*url.URL, error) {
	raw := n.DocumentURL
	if raw == "" {
		raw = n.BaseURL
	}
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("cdpsource: invalid document url %q: %w", raw, err)
	}
	return u, nil
}

func (c *converter) children(parent *html.Node, kids []*cdp.Node, docURL *url.URL) {
	for _, k := range kids {
		if n := c.node(k, docURL); n != nil {
			parent.AppendChild(n)
		}
	}
}

func (c *converter) node(n *cdp.Node, docURL *url.URL) *html.Node {
	switch n.NodeType {
	case cdp.NodeTypeElement:
		return c.element(n, docURL)
	case cdp.NodeTypeText, cdp.NodeTypeCDATA:
		return &html.Node{Type: html.TextNode, Data: n.NodeValue}
	case cdp.NodeTypeComment:
		return &html.Node{Type: html.CommentNode, Data: n.NodeValue}
	case cdp.NodeTypeDocumentType:
		return &html.Node{Type: html.DoctypeNode, Data: n.Name}
	default:
		return nil
	}
}

func (c *converter) element(n *cdp.Node, docURL *url.URL) *html.Node {
	name := strings.ToLower(n.LocalName)
	if name == "" {
		name = strings.ToLower(n.NodeName)
	}
	el := &html.Node{Type: html.ElementNode, Data: name, DataAtom: atom.Lookup([]byte(name))}
	if n.IsSVG {
		el.Namespace = "svg"
	}
	for i := 0; i+1 < len(n.Attributes); i += 2 {
		el.Attr = append(el.Attr, html.Attribute{Key: n.Attributes[i], Val: n.Attributes[i+1]})
	}

	if n.TemplateContent != nil {
		c.children(el, n.TemplateContent.Children, docURL)
	} else {
		c.children(el, n.Children, docURL)
	}

	for _, sr := range n.ShadowRoots {
		if sr.ShadowRootType == cdp.ShadowRootTypeUserAgent {
			c.skipped++
			continue
		}
		root := shadowdom.NewRoot()
		c.children(root, sr.Children, docURL)
		mode := shadowdom.ModeOpen
		if sr.ShadowRootType == cdp.ShadowRootTypeClosed {
			mode = shadowdom.ModeClosed
		}
		c.shadows = append(c.shadows, shadowLink{host: el, root: root, mode: mode})
		// Only the first author root is attachable.
		break
	}

	if dom.IsFrameElement(el) {
		c.frame(el, n, docURL)
	}
	return el
}

func (c *converter) frame(el *html.Node, n *cdp.Node, docURL *url.URL) {
	var u *url.URL
	if src, ok := dom.Attr(el, "src"); ok && docURL != nil {
		u, _ = docURL.Parse(strings.TrimSpace(src))
	}

	cd := n.ContentDocument
	if cd == nil {
		c.frames = append(c.frames, frameLink{el: el, u: u})
		return
	}
	if du, err := documentURL(cd); err == nil && du != nil {
		u = du
	}
	doc := &html.Node{Type: html.DocumentNode}
	c.children(doc, cd.Children, u)

	c.frames = append(c.frames, frameLink{el: el, u: u, doc: doc, sameOrigin: c.sameOrigin(u)})
}

// sameOrigin treats about: documents (blank and srcdoc) as inheriting the
// top document's origin.
func (c *converter) sameOrigin(u *url.URL) bool {
	if u == nil || u.Scheme == "about" {
		return true
	}
	return dom.SameOrigin(c.base, u)
}
