// internal/browser/locator/enumerate.go
package locator

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
)

// Enumeration is the set of contexts reachable from the top document.
type Enumeration struct {
	// Contexts in discovery order (depth-first, boundaries in document order).
	Contexts []ExecutionContext
	// DepthExceeded is set when at least one boundary was left unentered
	// because of MaxDepth. The result is still valid.
	DepthExceeded bool
	// Inaccessible counts cross-origin or unloaded frames and closed shadow
	// roots that were skipped.
	Inaccessible int
}

type enumerator struct {
	page    *dom.Page
	opts    ScanOptions
	logger  *zap.Logger
	visited map[*html.Node]struct{}
	out     Enumeration
}

// Enumerate walks every context reachable from the page's top document. It
// must be called inside page.Read. Cancellation is honoured between contexts.
func Enumerate(ctx context.Context, page *dom.Page, opts ScanOptions, logger *zap.Logger) (Enumeration, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	e := &enumerator{
		page:    page,
		opts:    opts,
		logger:  logger,
		visited: make(map[*html.Node]struct{}),
	}
	top := ExecutionContext{Root: page.Top(), Kind: ContextDocument, Chain: Chain{}}
	if err := e.visit(ctx, top); err != nil {
		return e.out, err
	}
	return e.out, nil
}

func (e *enumerator) visit(ctx context.Context, ec ExecutionContext) error {
	if ctx.Err() != nil {
		return ErrAborted
	}
	if _, seen := e.visited[ec.Root]; seen {
		return nil
	}
	e.visited[ec.Root] = struct{}{}
	e.out.Contexts = append(e.out.Contexts, ec)

	var err error
	frameIndex := 0
	dom.Walk(ec.Root, func(n *html.Node) bool {
		if err != nil {
			return false
		}
		if e.opts.IncludeShadowDOM {
			if sr, ok := e.page.ShadowRootOf(n); ok {
				err = e.enterShadow(ctx, ec, n, sr)
			}
		}
		if err == nil && dom.IsFrameElement(n) {
			idx := frameIndex
			frameIndex++
			if e.opts.IframeTraversal {
				err = e.enterFrame(ctx, ec, n, idx)
			}
		}
		return err == nil
	})
	return err
}

func (e *enumerator) enterShadow(ctx context.Context, ec ExecutionContext, host *html.Node, sr *dom.ShadowRoot) error {
	if !sr.Open() {
		e.out.Inaccessible++
		return nil
	}
	if ec.Depth+1 > e.opts.MaxDepth {
		e.out.DepthExceeded = true
		return nil
	}
	sel, err := Synthesize(host, ec.Root)
	if err != nil {
		// Without a host selector the root cannot be addressed later.
		e.logger.Debug("Skipping shadow root with unaddressable host.", zap.String("host", host.Data), zap.Error(err))
		return nil
	}
	return e.visit(ctx, ExecutionContext{
		Root:     sr.Root,
		Kind:     ContextShadowRoot,
		Chain:    ec.Chain.Extend(ShadowCrossing(sel)),
		Boundary: host,
		Depth:    ec.Depth + 1,
	})
}

func (e *enumerator) enterFrame(ctx context.Context, ec ExecutionContext, el *html.Node, idx int) error {
	f, ok := e.page.FrameOf(el)
	if !ok || !f.Accessible() {
		e.out.Inaccessible++
		return nil
	}
	if ec.Depth+1 > e.opts.MaxDepth {
		e.out.DepthExceeded = true
		return nil
	}
	return e.visit(ctx, ExecutionContext{
		Root:     f.Document,
		Kind:     ContextFrame,
		Chain:    ec.Chain.Extend(FrameCrossing(idx)),
		Boundary: el,
		Depth:    ec.Depth + 1,
	})
}
