// internal/browser/locator/resolve.go
package locator

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
)

// Resolver re-locates descriptors against a live page.
type Resolver struct {
	page   *dom.Page
	logger *zap.Logger
}

// NewResolver creates a resolver for page.
func NewResolver(page *dom.Page, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{page: page, logger: logger.Named("resolver")}
}

// Outcome is the result of resolving one descriptor in a batch.
type Outcome struct {
	Descriptor FieldDescriptor
	Handle     *dom.ElementHandle
	Err        error
}

// Resolve replays d's boundary chain from the top document and evaluates its
// local selector in the final context. Every failure is a *ResolveError.
func (r *Resolver) Resolve(ctx context.Context, d FieldDescriptor) (*dom.ElementHandle, error) {
	var node *html.Node
	err := r.page.Read(func() error {
		var err error
		node, err = r.resolveNode(ctx, d.BoundaryChain, d.LocalSelector)
		return err
	})
	if err != nil {
		r.logger.Debug("Descriptor did not resolve.", zap.Stringer("descriptor", d), zap.Error(err))
		return nil, err
	}
	return r.page.Handle(node), nil
}

// ResolveAll resolves a batch, one outcome per descriptor in input order. An
// aborted context stops the batch; the remaining outcomes carry ErrAborted.
func (r *Resolver) ResolveAll(ctx context.Context, ds []FieldDescriptor) []Outcome {
	out := make([]Outcome, len(ds))
	for i, d := range ds {
		out[i].Descriptor = d
		if ctx.Err() != nil {
			out[i].Err = newResolveError(ErrAborted, HopNotStarted, d.LocalSelector, ctx.Err())
			continue
		}
		out[i].Handle, out[i].Err = r.Resolve(ctx, d)
	}
	return out
}

// resolveNode must run under the page read lock.
func (r *Resolver) resolveNode(ctx context.Context, chain Chain, selector string) (*html.Node, error) {
	root := r.page.Top()
	for hop, crossing := range chain {
		if ctx.Err() != nil {
			return nil, newResolveError(ErrAborted, hop, crossing.String(), ctx.Err())
		}
		var err error
		switch crossing.Kind {
		case CrossFrame:
			root, err = r.enterFrame(root, hop, crossing.Index)
		case CrossShadowHost:
			root, err = r.enterShadow(root, hop, crossing.Selector)
		default:
			err = newResolveError(ErrNotFound, hop, crossing.String(), errors.New("unknown crossing kind"))
		}
		if err != nil {
			return nil, err
		}
	}
	if ctx.Err() != nil {
		return nil, newResolveError(ErrAborted, HopLocal, selector, ctx.Err())
	}
	return r.single(root, HopLocal, selector)
}

func (r *Resolver) enterFrame(root *html.Node, hop, index int) (*html.Node, error) {
	i := 0
	var el *html.Node
	dom.Walk(root, func(n *html.Node) bool {
		if el != nil {
			return false
		}
		if dom.IsFrameElement(n) {
			if i == index {
				el = n
			}
			i++
		}
		return true
	})
	label := FrameCrossing(index).String()
	if el == nil {
		return nil, newResolveError(ErrNotFound, hop, label, nil)
	}
	f, ok := r.page.FrameOf(el)
	if !ok || !f.Accessible() {
		return nil, newResolveError(ErrInaccessible, hop, label, nil)
	}
	return f.Document, nil
}

func (r *Resolver) enterShadow(root *html.Node, hop int, selector string) (*html.Node, error) {
	host, err := r.single(root, hop, selector)
	if err != nil {
		return nil, err
	}
	sr, ok := r.page.ShadowRootOf(host)
	if !ok {
		return nil, newResolveError(ErrNotFound, hop, selector, errors.New("host has no shadow root"))
	}
	if !sr.Open() {
		return nil, newResolveError(ErrInaccessible, hop, selector, errors.New("shadow root is closed"))
	}
	return sr.Root, nil
}

// single evaluates selector in root and requires exactly one match.
func (r *Resolver) single(root *html.Node, hop int, selector string) (*html.Node, error) {
	sel, err := compileSelector(selector)
	if err != nil {
		return nil, newResolveError(ErrNotFound, hop, selector, err)
	}
	matches := QuerySelectorAll(root, sel)
	switch len(matches) {
	case 0:
		return nil, newResolveError(ErrNotFound, hop, selector, nil)
	case 1:
		return matches[0], nil
	default:
		return nil, newResolveError(ErrAmbiguous, hop, selector, nil)
	}
}
