// internal/browser/cdpsource/capture.go
package cdpsource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
)

// BrowserOptions configures the headless browser used by Navigate.
type BrowserOptions struct {
	Headless          bool
	NavigationTimeout time.Duration
	// PostLoadWait gives client side rendering time to attach shadow roots.
	PostLoadWait time.Duration
	// Args are extra Chrome switches, "name" or "name=value".
	Args []string
}

// Capture snapshots the document of the chromedp target in ctx, piercing
// shadow roots and in-process frames.
func Capture(ctx context.Context, logger *zap.Logger) (*dom.Page, error) {
	var root *cdp.Node
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		root, err = cdpdom.GetDocument().WithDepth(-1).WithPierce(true).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("cdpsource: DOM.getDocument failed: %w", err)
	}
	return Convert(root, logger)
}

// Navigate starts a browser, loads target and captures the rendered page.
// The browser is closed before returning.
func Navigate(ctx context.Context, target string, opts BrowserOptions, logger *zap.Logger) (*dom.Page, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocatorOptions(opts)...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	navCtx := browserCtx
	if opts.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(browserCtx, opts.NavigationTimeout)
		defer cancel()
	}

	logger.Info("Navigating.", zap.String("url", target))
	actions := []chromedp.Action{chromedp.Navigate(target)}
	if opts.PostLoadWait > 0 {
		actions = append(actions, chromedp.Sleep(opts.PostLoadWait))
	}
	if err := chromedp.Run(navCtx, actions...); err != nil {
		return nil, fmt.Errorf("cdpsource: navigation to %s failed: %w", target, err)
	}
	return Capture(navCtx, logger)
}

func allocatorOptions(opts BrowserOptions) []chromedp.ExecAllocatorOption {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		// Same-origin iframes must stay in process to be pierced.
		chromedp.Flag("disable-site-isolation-trials", true),
	)
	// DefaultExecAllocatorOptions is headless already.
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	for _, arg := range opts.Args {
		key, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if hasValue {
			allocOpts = append(allocOpts, chromedp.Flag(key, value))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(key, true))
		}
	}
	return allocOpts
}
