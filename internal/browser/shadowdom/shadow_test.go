package shadowdom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

// --- Helpers ---

// Helper to parse HTML and return the body content.
func parseHTML(h string) *html.Node {
	doc, err := html.Parse(strings.NewReader("<html><body>" + h + "</body></html>"))
	if err != nil {
		panic(err)
	}
	// Navigate to body (doc -> html -> body)
	return doc.FirstChild.FirstChild.NextSibling
}

// Helper to find the first element node child.
func firstElement(n *html.Node) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

func TestGetAttr(t *testing.T) {
	doc := parseHTML(`<div id="test" CLASS="TestClass"></div>`)
	node := firstElement(doc)

	assert.Equal(t, "test", getAttr(node, "id"))
	assert.Equal(t, "TestClass", getAttr(node, "class"), "getAttr should be case-insensitive")
	assert.Equal(t, "", getAttr(node, "missing"))
	assert.Equal(t, "", getAttr(nil, "id"))
}

func TestDetectShadowHost(t *testing.T) {
	e := Engine{}
	tests := []struct {
		name     string
		html     string
		expected bool
	}{
		{"Valid Host Open", `<div><template shadowrootmode="open"></template></div>`, true},
		{"Valid Host Closed", `<div><template shadowrootmode="closed"></template></div>`, true},
		{"Case Insensitive", `<div><template ShadowRootMode="open"></template></div>`, true},
		{"Custom Element", `<my-card><template shadowrootmode="open"></template></my-card>`, true},
		{"Legacy Attribute", `<div><template shadowroot="open"></template></div>`, true},
		{"No Template", `<div><span></span></div>`, false},
		{"Template Without Attribute", `<div><template></template></div>`, false},
		{"Nested (Invalid)", `<div><span><template shadowrootmode="open"></template></span></div>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parseHTML(tt.html)
			host := firstElement(doc)
			assert.Equal(t, tt.expected, e.DetectShadowHost(host))
		})
	}
}

func TestInstantiateShadowRoot(t *testing.T) {
	e := Engine{}

	t.Run("Basic Instantiation", func(t *testing.T) {
		host := firstElement(parseHTML(`<div><template shadowrootmode="open"><h1>Shadow</h1></template></div>`))

		root, mode := e.InstantiateShadowRoot(host)

		require.NotNil(t, root)
		assert.Equal(t, ModeOpen, mode)
		assert.True(t, IsRoot(root))
		assert.Equal(t, html.DocumentNode, root.Type)

		h1 := firstElement(root)
		require.NotNil(t, h1)
		assert.Equal(t, "h1", h1.Data)
		assert.Equal(t, root, h1.Parent)

		// The declaration is consumed.
		assert.Nil(t, firstElement(host))
		assert.False(t, e.DetectShadowHost(host))
	})

	t.Run("Closed Mode", func(t *testing.T) {
		host := firstElement(parseHTML(`<div><template shadowrootmode="CLOSED"><p>x</p></template></div>`))
		root, mode := e.InstantiateShadowRoot(host)
		require.NotNil(t, root)
		assert.Equal(t, ModeClosed, mode)
	})

	t.Run("Legacy Closed Declaration", func(t *testing.T) {
		host := firstElement(parseHTML(`<div><template shadowroot="closed"><input></template></div>`))
		root, mode := e.InstantiateShadowRoot(host)
		require.NotNil(t, root)
		assert.Equal(t, ModeClosed, mode)
		assert.Equal(t, "input", firstElement(root).Data)
	})

	t.Run("Standard Attribute Wins", func(t *testing.T) {
		host := firstElement(parseHTML(`<div><template shadowrootmode="open" shadowroot="closed"></template></div>`))
		_, mode := e.InstantiateShadowRoot(host)
		assert.Equal(t, ModeOpen, mode)
	})

	t.Run("Light DOM Kept On Host", func(t *testing.T) {
		host := firstElement(parseHTML(`<div><template shadowrootmode="open"><slot></slot></template><input name="light"></div>`))
		root, _ := e.InstantiateShadowRoot(host)
		require.NotNil(t, root)

		light := firstElement(host)
		require.NotNil(t, light)
		assert.Equal(t, "input", light.Data)
	})

	t.Run("Nested Templates Inert", func(t *testing.T) {
		host := firstElement(parseHTML(`<div><template shadowrootmode="open">
			<div id="inner"><template shadowrootmode="open"><input></template></div>
		</template></div>`))

		root, _ := e.InstantiateShadowRoot(host)
		require.NotNil(t, root)

		innerDiv := firstElement(root)
		require.NotNil(t, innerDiv)
		innerTemplate := firstElement(innerDiv)
		require.NotNil(t, innerTemplate)
		assert.Equal(t, "template", innerTemplate.Data)
		assert.True(t, e.DetectShadowHost(innerDiv))
	})

	t.Run("No Declaration", func(t *testing.T) {
		host := firstElement(parseHTML(`<div><span></span></div>`))
		root, mode := e.InstantiateShadowRoot(host)
		assert.Nil(t, root)
		assert.Empty(t, mode)
	})
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeOpen, ParseMode("open"))
	assert.Equal(t, ModeOpen, ParseMode(""))
	assert.Equal(t, ModeClosed, ParseMode(" Closed "))
}
