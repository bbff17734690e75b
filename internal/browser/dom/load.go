// internal/browser/dom/load.go
package dom

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/shadowdom"
)

const (
	defaultMaxFrameDepth = 8
	defaultMaxBodyBytes  = 8 << 20
)

// FrameLoader fetches the document of a same-origin frame.
type FrameLoader interface {
	LoadFrame(ctx context.Context, u *url.URL) (io.ReadCloser, error)
}

// LoadOptions configures Load.
type LoadOptions struct {
	// BaseURL is the URL of the top document. Empty means about:blank.
	BaseURL string
	// Loader fetches src frames. Nil leaves src frames unloaded (and therefore opaque).
	Loader FrameLoader
	// MaxFrameDepth bounds nested frame loading. Zero selects the default.
	MaxFrameDepth int
	Logger        *zap.Logger
}

// Load parses a top document, instantiates its declarative shadow roots and
// loads its same-origin frames.
func Load(ctx context.Context, r io.Reader, opts LoadOptions) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse top document: %w", err)
	}

	var base *url.URL
	if opts.BaseURL != "" {
		base, err = url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url %q: %w", opts.BaseURL, err)
		}
	}

	page := NewPage(doc, base, opts.Logger)
	l := &loader{
		page:     page,
		opts:     opts,
		shadow:   shadowdom.Engine{},
		logger:   page.logger.Named("loader"),
		maxDepth: opts.MaxFrameDepth,
	}
	if l.maxDepth <= 0 {
		l.maxDepth = defaultMaxFrameDepth
	}

	if err := l.process(ctx, doc, page.baseURL, 0, []string{page.baseURL.String()}); err != nil {
		return nil, err
	}
	return page, nil
}

type loader struct {
	page     *Page
	opts     LoadOptions
	shadow   shadowdom.Engine
	logger   *zap.Logger
	maxDepth int
}

// process instantiates shadow roots and loads frames found under root.
// ancestors holds the document URLs of the frame chain, used to break
// self-embedding cycles.
func (l *loader) process(ctx context.Context, root *html.Node, docURL *url.URL, depth int, ancestors []string) error {
	var walkErr error
	Walk(root, func(n *html.Node) bool {
		if walkErr != nil {
			return false
		}
		if l.shadow.DetectShadowHost(n) {
			sr, mode := l.shadow.InstantiateShadowRoot(n)
			if _, err := l.page.attachShadowLocked(n, sr, mode); err != nil {
				l.logger.Debug("Ignoring duplicate declarative shadow root.", zap.String("host", n.Data))
			} else if err := l.process(ctx, sr, docURL, depth, ancestors); err != nil {
				walkErr = err
				return false
			}
		}
		if IsFrameElement(n) {
			if err := l.loadFrame(ctx, n, docURL, depth, ancestors); err != nil {
				walkErr = err
				return false
			}
		}
		return true
	})
	return walkErr
}

func (l *loader) loadFrame(ctx context.Context, el *html.Node, docURL *url.URL, depth int, ancestors []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	register := func(u *url.URL, doc *html.Node, sameOrigin bool) {
		l.page.frames[el] = &Frame{Element: el, URL: u, Document: doc, SameOrigin: sameOrigin}
		if doc != nil {
			l.page.owners[doc] = el
		}
	}

	if depth+1 > l.maxDepth {
		l.logger.Debug("Frame nesting limit reached; leaving frame unloaded.", zap.Int("depth", depth+1))
		register(nil, nil, false)
		return nil
	}

	// srcdoc wins over src and always inherits the parent's origin.
	if srcdoc, ok := Attr(el, "srcdoc"); ok {
		doc, err := html.Parse(strings.NewReader(srcdoc))
		if err != nil {
			l.logger.Warn("Failed to parse srcdoc frame.", zap.Error(err))
			register(nil, nil, true)
			return nil
		}
		u := &url.URL{Scheme: "about", Opaque: "srcdoc"}
		register(u, doc, true)
		return l.process(ctx, doc, docURL, depth+1, ancestors)
	}

	src, _ := Attr(el, "src")
	src = strings.TrimSpace(src)
	if src == "" || src == "about:blank" {
		doc, _ := html.Parse(strings.NewReader(""))
		register(&url.URL{Scheme: "about", Opaque: "blank"}, doc, true)
		return nil
	}

	u, err := docURL.Parse(src)
	if err != nil {
		l.logger.Debug("Unparseable frame src; treating as opaque.", zap.String("src", src))
		register(nil, nil, false)
		return nil
	}

	if !SameOrigin(l.page.baseURL, u) {
		register(u, nil, false)
		return nil
	}
	for _, a := range ancestors {
		if a == u.String() {
			l.logger.Debug("Frame embeds one of its ancestors; not loading.", zap.String("url", u.String()))
			register(u, nil, true)
			return nil
		}
	}
	if l.opts.Loader == nil {
		register(u, nil, true)
		return nil
	}

	body, err := l.opts.Loader.LoadFrame(ctx, u)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn("Failed to load frame document.", zap.String("url", u.String()), zap.Error(err))
		register(u, nil, true)
		return nil
	}
	defer body.Close()

	doc, err := html.Parse(body)
	if err != nil {
		l.logger.Warn("Failed to parse frame document.", zap.String("url", u.String()), zap.Error(err))
		register(u, nil, true)
		return nil
	}
	register(u, doc, true)
	return l.process(ctx, doc, u, depth+1, append(ancestors[:len(ancestors):len(ancestors)], u.String()))
}

// SameOrigin compares scheme, host and port. Opaque about: URLs never match a
// network origin.
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Opaque != "" || b.Opaque != "" {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

// HTTPFrameLoader loads frames over HTTP.
type HTTPFrameLoader struct {
	Client       *http.Client
	MaxBodyBytes int64
}

// NewHTTPFrameLoader returns a loader with a bounded per-request timeout.
func NewHTTPFrameLoader(timeout time.Duration, maxBodyBytes int64) *HTTPFrameLoader {
	return &HTTPFrameLoader{Client: &http.Client{Timeout: timeout}, MaxBodyBytes: maxBodyBytes}
}

func (h *HTTPFrameLoader) LoadFrame(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, u)
	}
	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	return readCloser{Reader: io.LimitReader(resp.Body, limit), Closer: resp.Body}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// StaticFrameLoader serves frame documents from memory, keyed by absolute URL.
type StaticFrameLoader map[string]string

func (s StaticFrameLoader) LoadFrame(_ context.Context, u *url.URL) (io.ReadCloser, error) {
	body, ok := s[u.String()]
	if !ok {
		return nil, fmt.Errorf("no document registered for %s", u)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}
