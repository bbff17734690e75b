package dom

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/shadowdom"
)

func mustLoad(t *testing.T, markup string, opts LoadOptions) *Page {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	page, err := Load(context.Background(), strings.NewReader(markup), opts)
	require.NoError(t, err)
	return page
}

func findOne(t *testing.T, root *html.Node, xpath string) *html.Node {
	t.Helper()
	n := htmlquery.FindOne(root, xpath)
	require.NotNil(t, n, "no node for %s", xpath)
	return n
}

func TestLoad_DeclarativeShadowRoots(t *testing.T) {
	page := mustLoad(t, `<body>
		<x-login><template shadowrootmode="open"><input id="email"></template></x-login>
		<x-secret><template shadowrootmode="closed"><input id="pin"></template></x-secret>
	</body>`, LoadOptions{})

	login := findOne(t, page.Top(), "//x-login")
	sr, ok := page.ShadowRootOf(login)
	require.True(t, ok)
	assert.True(t, sr.Open())
	assert.True(t, shadowdom.IsRoot(sr.Root))
	assert.NotNil(t, findOne(t, sr.Root, "//input[@id='email']"))

	// The shadow content no longer lives in the light tree.
	assert.Nil(t, htmlquery.FindOne(page.Top(), "//input[@id='email']"))

	secret := findOne(t, page.Top(), "//x-secret")
	sr, ok = page.ShadowRootOf(secret)
	require.True(t, ok)
	assert.False(t, sr.Open())
}

func TestLoad_NestedShadowRoots(t *testing.T) {
	page := mustLoad(t, `<x-outer><template shadowrootmode="open">
		<x-inner><template shadowrootmode="open"><textarea name="note"></textarea></template></x-inner>
	</template></x-outer>`, LoadOptions{})

	outer := findOne(t, page.Top(), "//x-outer")
	osr, ok := page.ShadowRootOf(outer)
	require.True(t, ok)

	inner := findOne(t, osr.Root, "//x-inner")
	isr, ok := page.ShadowRootOf(inner)
	require.True(t, ok)
	assert.NotNil(t, findOne(t, isr.Root, "//textarea"))
}

func TestLoad_Frames(t *testing.T) {
	loader := StaticFrameLoader{
		"https://app.example/inner.html": `<body><select name="country"></select></body>`,
	}
	page := mustLoad(t, `<body>
		<iframe id="inline" srcdoc="&lt;input name=&quot;q&quot;&gt;"></iframe>
		<iframe id="same" src="/inner.html"></iframe>
		<iframe id="cross" src="https://ads.example/x.html"></iframe>
		<iframe id="blank"></iframe>
		<iframe id="missing" src="/nope.html"></iframe>
	</body>`, LoadOptions{BaseURL: "https://app.example/index.html", Loader: loader})

	frame := func(id string) *Frame {
		el := findOne(t, page.Top(), "//iframe[@id='"+id+"']")
		f, ok := page.FrameOf(el)
		require.True(t, ok, "frame %s not registered", id)
		return f
	}

	inline := frame("inline")
	assert.True(t, inline.Accessible())
	assert.NotNil(t, findOne(t, inline.Document, "//input[@name='q']"))

	same := frame("same")
	assert.True(t, same.Accessible())
	assert.Equal(t, "https://app.example/inner.html", same.URL.String())
	assert.NotNil(t, findOne(t, same.Document, "//select"))

	cross := frame("cross")
	assert.False(t, cross.Accessible())
	assert.False(t, cross.SameOrigin)

	assert.True(t, frame("blank").Accessible())

	missing := frame("missing")
	assert.True(t, missing.SameOrigin)
	assert.False(t, missing.Accessible())
}

func TestLoad_SelfEmbeddingFrameDoesNotRecurse(t *testing.T) {
	loader := StaticFrameLoader{
		"https://app.example/a.html": `<iframe src="/b.html"></iframe>`,
		"https://app.example/b.html": `<iframe src="/a.html"></iframe>`,
	}
	page := mustLoad(t, `<iframe src="/a.html"></iframe>`,
		LoadOptions{BaseURL: "https://app.example/index.html", Loader: loader})

	a, ok := page.FrameOf(findOne(t, page.Top(), "//iframe"))
	require.True(t, ok)
	require.True(t, a.Accessible())

	b, ok := page.FrameOf(findOne(t, a.Document, "//iframe"))
	require.True(t, ok)
	require.True(t, b.Accessible())

	// b embeds a again; the cycle is cut there.
	again, ok := page.FrameOf(findOne(t, b.Document, "//iframe"))
	require.True(t, ok)
	assert.False(t, again.Accessible())
}

func TestLoad_MaxFrameDepth(t *testing.T) {
	page := mustLoad(t, `<iframe srcdoc="&lt;iframe srcdoc='&lt;input&gt;'&gt;&lt;/iframe&gt;"></iframe>`,
		LoadOptions{MaxFrameDepth: 1})

	outer, ok := page.FrameOf(findOne(t, page.Top(), "//iframe"))
	require.True(t, ok)
	require.True(t, outer.Accessible())

	inner, ok := page.FrameOf(findOne(t, outer.Document, "//iframe"))
	require.True(t, ok)
	assert.False(t, inner.Accessible())
}

func TestSameOrigin(t *testing.T) {
	parse := func(s string) *url.URL {
		u, err := url.Parse(s)
		require.NoError(t, err)
		return u
	}
	assert.True(t, SameOrigin(parse("https://a.example/x"), parse("https://A.example/y?q=1")))
	assert.False(t, SameOrigin(parse("https://a.example"), parse("http://a.example")))
	assert.False(t, SameOrigin(parse("https://a.example"), parse("https://a.example:8443")))
	assert.False(t, SameOrigin(parse("about:blank"), parse("about:blank")))
	assert.False(t, SameOrigin(nil, parse("https://a.example")))
}

func TestObserve_ScopedToContextRoot(t *testing.T) {
	page := mustLoad(t, `<body><div id="light"></div>
		<x-host><template shadowrootmode="open"><span id="inside"></span></template></x-host></body>`, LoadOptions{})

	host := findOne(t, page.Top(), "//x-host")
	sr, _ := page.ShadowRootOf(host)

	var topRecords, shadowRecords []MutationRecord
	stopTop := page.Observe(page.Top(), func(r []MutationRecord) { topRecords = append(topRecords, r...) })
	stopShadow := page.Observe(sr.Root, func(r []MutationRecord) { shadowRecords = append(shadowRecords, r...) })

	inside := findOne(t, sr.Root, "//span")
	require.NoError(t, page.SetAttribute(inside, "class", "x"))
	assert.Empty(t, topRecords, "shadow mutations must not reach the document observer")
	require.Len(t, shadowRecords, 1)
	assert.Equal(t, MutationAttributes, shadowRecords[0].Kind)
	assert.Equal(t, "class", shadowRecords[0].AttributeName)

	light := findOne(t, page.Top(), "//div[@id='light']")
	page.AppendChild(light, &html.Node{Type: html.ElementNode, Data: "input"})
	require.Len(t, topRecords, 1)
	assert.Equal(t, MutationChildList, topRecords[0].Kind)
	assert.Len(t, topRecords[0].Added, 1)

	stopTop()
	stopShadow()
	require.NoError(t, page.SetAttribute(light, "hidden", ""))
	require.NoError(t, page.SetAttribute(inside, "hidden", ""))
	assert.Len(t, topRecords, 1)
	assert.Len(t, shadowRecords, 1)
}

func TestMutations_RemoveAndText(t *testing.T) {
	page := mustLoad(t, `<body><p id="a">old</p><p id="b"><b>x</b>y</p></body>`, LoadOptions{})
	var records []MutationRecord
	page.Observe(page.Top(), func(r []MutationRecord) { records = append(records, r...) })

	a := findOne(t, page.Top(), "//p[@id='a']")
	require.NoError(t, page.SetText(a, "new"))
	require.Len(t, records, 1)
	assert.Equal(t, MutationCharacterData, records[0].Kind)
	assert.Equal(t, "new", htmlquery.InnerText(a))

	b := findOne(t, page.Top(), "//p[@id='b']")
	require.NoError(t, page.SetText(b, "z"))
	require.Len(t, records, 2)
	assert.Equal(t, MutationChildList, records[1].Kind)
	assert.Len(t, records[1].Removed, 2)

	page.RemoveChild(b)
	require.Len(t, records, 3)
	assert.Equal(t, []*html.Node{b}, records[2].Removed)

	require.NoError(t, page.RemoveAttribute(a, "missing"))
	assert.Len(t, records, 3, "removing an absent attribute is not a mutation")
}

func TestAttachShadow(t *testing.T) {
	page := mustLoad(t, `<body><x-late></x-late></body>`, LoadOptions{})
	host := findOne(t, page.Top(), "//x-late")

	root, err := page.AttachShadow(host, shadowdom.ModeOpen)
	require.NoError(t, err)
	_, err = page.AttachShadow(host, shadowdom.ModeOpen)
	assert.ErrorIs(t, err, ErrShadowRootExists)

	input := &html.Node{Type: html.ElementNode, Data: "input"}
	page.AppendChild(root, input)
	assert.Equal(t, root, page.ContextRootOf(input))
	assert.True(t, page.Handle(input).Connected())

	page.RemoveChild(host)
	assert.False(t, page.Handle(input).Connected())
}

func TestHandle_ValueRoundTrip(t *testing.T) {
	page := mustLoad(t, `<body>
		<input id="t" value="a">
		<textarea id="ta">hello</textarea>
		<select id="s"><option value="">--</option><optgroup><option value="de">Germany</option></optgroup><option>France</option></select>
		<div id="ed" contenteditable>rich</div>
	</body>`, LoadOptions{})

	h := func(id string) *ElementHandle {
		return page.Handle(findOne(t, page.Top(), "//*[@id='"+id+"']"))
	}

	input := h("t")
	assert.Equal(t, "a", input.Value())
	require.NoError(t, input.SetValue("b"))
	assert.Equal(t, "b", input.Value())
	assert.Equal(t, "text", input.InputType())

	ta := h("ta")
	assert.Equal(t, "hello", ta.Value())
	require.NoError(t, ta.SetValue("bye"))
	assert.Equal(t, "bye", ta.Value())

	sel := h("s")
	assert.Equal(t, "", sel.Value())
	require.NoError(t, sel.SetValue("de"))
	assert.Equal(t, "de", sel.Value())
	require.NoError(t, sel.SetValue("France"))
	assert.Equal(t, "France", sel.Value())
	assert.ErrorIs(t, sel.SetValue("Mars"), ErrNoSuchOption)

	ed := h("ed")
	require.NoError(t, ed.SetValue("plain"))
	assert.Equal(t, "plain", ed.Value())

	assert.True(t, input.Equal(h("t")))
	assert.False(t, input.Equal(ta))
}

func TestHandle_DispatchClickDefaults(t *testing.T) {
	page := mustLoad(t, `<body>
		<input id="cb" type="checkbox">
		<input id="r1" type="radio" name="plan" checked>
		<input id="r2" type="radio" name="plan">
	</body>`, LoadOptions{})
	h := func(id string) *ElementHandle {
		return page.Handle(findOne(t, page.Top(), "//*[@id='"+id+"']"))
	}

	var events []string
	remove := page.OnEvent(func(e Event) { events = append(events, e.Type+":"+e.Target.TagName()) })

	cb := h("cb")
	require.NoError(t, cb.Dispatch("click"))
	assert.True(t, cb.Checked())
	require.NoError(t, cb.Dispatch("click"))
	assert.False(t, cb.Checked())

	require.NoError(t, h("r2").Dispatch("click"))
	assert.True(t, h("r2").Checked())
	assert.False(t, h("r1").Checked())

	require.NoError(t, cb.Dispatch("change"))
	assert.Equal(t, []string{"click:input", "click:input", "click:input", "change:input"}, events)

	remove()
	require.NoError(t, cb.Dispatch("input"))
	assert.Len(t, events, 4)
}

func TestHandle_DetachedOperationsFail(t *testing.T) {
	page := mustLoad(t, `<body><input id="gone"></body>`, LoadOptions{})
	el := findOne(t, page.Top(), "//input")
	h := page.Handle(el)
	page.RemoveChild(el)

	assert.ErrorIs(t, h.SetValue("x"), ErrDetached)
	assert.ErrorIs(t, h.Dispatch("click"), ErrDetached)
	assert.Nil(t, page.Handle(&html.Node{Type: html.TextNode}))
}

func TestWalk_SkipsInertTemplates(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(`<body><template><input id="inert"></template><input id="live"></body>`))
	require.NoError(t, err)

	var ids []string
	Walk(doc, func(n *html.Node) bool {
		if IsTag(n, "input") {
			id, _ := Attr(n, "id")
			ids = append(ids, id)
		}
		return true
	})
	assert.Equal(t, []string{"live"}, ids)
}
