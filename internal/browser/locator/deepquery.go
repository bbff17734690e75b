// internal/browser/locator/deepquery.go
package locator

import (
	"context"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
)

// DeepDelimiter separates the fragments of a deep selector. It cannot be
// escaped inside a fragment.
const DeepDelimiter = ">>>"

// DeepSelector is a parsed chain of CSS fragments, each evaluated inside the
// boundaries matched by the previous one.
type DeepSelector struct {
	raw       string
	fragments []string
	compiled  []cascadia.Selector
}

// ParseDeepSelector splits s on the delimiter and compiles every fragment.
// An empty or invalid fragment is a caller error.
func ParseDeepSelector(s string) (DeepSelector, error) {
	parts := strings.Split(s, DeepDelimiter)
	ds := DeepSelector{raw: s}
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return DeepSelector{}, fmt.Errorf("deep selector %q: fragment %d is empty", s, i)
		}
		sel, err := compileSelector(p)
		if err != nil {
			return DeepSelector{}, fmt.Errorf("deep selector %q: fragment %d: %w", s, i, err)
		}
		ds.fragments = append(ds.fragments, p)
		ds.compiled = append(ds.compiled, sel)
	}
	return ds, nil
}

// Fragments returns the trimmed fragment strings.
func (d DeepSelector) Fragments() []string {
	out := make([]string, len(d.fragments))
	copy(out, d.fragments)
	return out
}

func (d DeepSelector) String() string { return d.raw }

// Query evaluates the selector from the top document. Candidates of an
// intermediate fragment that are neither accessible frames nor open shadow
// hosts are dropped. Missing boundaries give an empty result, not an error;
// the only error is ErrAborted.
func (d DeepSelector) Query(ctx context.Context, page *dom.Page) ([]*dom.ElementHandle, error) {
	if len(d.compiled) == 0 {
		return nil, nil
	}
	var nodes []*html.Node
	err := page.Read(func() error {
		roots := []*html.Node{page.Top()}
		for i, sel := range d.compiled {
			if ctx.Err() != nil {
				return ErrAborted
			}
			var matches []*html.Node
			for _, root := range roots {
				matches = append(matches, QuerySelectorAll(root, sel)...)
			}
			if i == len(d.compiled)-1 {
				nodes = matches
				return nil
			}
			roots = boundaryRoots(page, matches)
			if len(roots) == 0 {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	handles := make([]*dom.ElementHandle, 0, len(nodes))
	for _, n := range nodes {
		handles = append(handles, page.Handle(n))
	}
	return handles, nil
}

// boundaryRoots maps candidates to the contexts they host, in candidate order,
// without duplicates.
func boundaryRoots(page *dom.Page, candidates []*html.Node) []*html.Node {
	var roots []*html.Node
	seen := make(map[*html.Node]struct{})
	add := func(r *html.Node) {
		if _, dup := seen[r]; dup {
			return
		}
		seen[r] = struct{}{}
		roots = append(roots, r)
	}
	for _, c := range candidates {
		if sr, ok := page.ShadowRootOf(c); ok && sr.Open() {
			add(sr.Root)
			continue
		}
		if dom.IsFrameElement(c) {
			if f, ok := page.FrameOf(c); ok && f.Accessible() {
				add(f.Document)
			}
		}
	}
	return roots
}
