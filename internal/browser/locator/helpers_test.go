package locator

import (
	"context"
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
)

const testBaseURL = "https://app.example/index.html"

// loadPage builds a page from markup. frames maps absolute URLs to the
// documents served for same-origin src frames.
func loadPage(t *testing.T, markup string, frames map[string]string) *dom.Page {
	t.Helper()
	page, err := dom.Load(context.Background(), strings.NewReader(markup), dom.LoadOptions{
		BaseURL: testBaseURL,
		Loader:  dom.StaticFrameLoader(frames),
		Logger:  zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return page
}

func mustFind(t *testing.T, root *html.Node, xpath string) *html.Node {
	t.Helper()
	n := htmlquery.FindOne(root, xpath)
	require.NotNil(t, n, "no node for %s", xpath)
	return n
}

func shadowRootOf(t *testing.T, page *dom.Page, host *html.Node) *html.Node {
	t.Helper()
	sr, ok := page.ShadowRootOf(host)
	require.True(t, ok, "<%s> has no shadow root", host.Data)
	return sr.Root
}

func frameDocOf(t *testing.T, page *dom.Page, el *html.Node) *html.Node {
	t.Helper()
	f, ok := page.FrameOf(el)
	require.True(t, ok)
	require.True(t, f.Accessible())
	return f.Document
}

func strPtr(s string) *string { return &s }
