// File: cmd/page.go
package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/cdpsource"
	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-fields/internal/config"
)

// pageFlags are shared by every command that takes a page target.
type pageFlags struct {
	baseURL string
	// frames maps absolute frame URLs to local files, "url=path".
	frames []string
}

func (p *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.baseURL, "base-url", "", "URL the local file is served from (default about:blank)")
	cmd.Flags().StringArrayVar(&p.frames, "frame", nil, "serve a frame from disk, url=path (repeatable)")
}

// isURL reports whether target names a remote page rather than a file.
func isURL(target string) bool {
	u, err := url.Parse(target)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

// loadPage opens target as a page. http(s) targets are rendered in a headless
// browser; anything else is read from disk and parsed statically.
func loadPage(ctx context.Context, cfg *config.Config, target string, flags pageFlags, logger *zap.Logger) (*dom.Page, error) {
	if isURL(target) {
		return cdpsource.Navigate(ctx, target, cfg.Browser().Options(), logger)
	}

	f, err := os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", target, err)
	}
	defer f.Close()

	loader, err := frameLoader(cfg.Loader(), flags.frames)
	if err != nil {
		return nil, err
	}
	return dom.Load(ctx, f, dom.LoadOptions{
		BaseURL:       flags.baseURL,
		Loader:        loader,
		MaxFrameDepth: cfg.Loader().MaxFrameDepth,
		Logger:        logger,
	})
}

// frameLoader serves --frame mappings from disk when any are given, and
// otherwise fetches frames over HTTP if enabled.
func frameLoader(lc config.LoaderConfig, mappings []string) (dom.FrameLoader, error) {
	if len(mappings) > 0 {
		static := dom.StaticFrameLoader{}
		for _, m := range mappings {
			u, path, ok := strings.Cut(m, "=")
			if !ok || u == "" || path == "" {
				return nil, fmt.Errorf("invalid --frame %q, want url=path", m)
			}
			body, err := os.ReadFile(filepath.Clean(path))
			if err != nil {
				return nil, fmt.Errorf("failed to read frame document: %w", err)
			}
			static[u] = string(body)
		}
		return static, nil
	}
	if !lc.FetchFrames {
		return nil, nil
	}
	return dom.NewHTTPFrameLoader(lc.Timeout, lc.MaxBodyBytes), nil
}
