package locator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"
)

const resolvePage = `<body>
	<input class="dup"><input class="dup">
	<x-open><template shadowrootmode="open"><input id="inside"></template></x-open>
	<x-closed><template shadowrootmode="closed"><input id="hidden"></template></x-closed>
	<div class="plain"></div>
	<x-twin></x-twin><x-twin></x-twin>
	<iframe src="https://elsewhere.example/"></iframe>
	<iframe srcdoc="&lt;input name=&quot;q&quot;&gt;"></iframe>
</body>`

func TestResolve_Outcomes(t *testing.T) {
	page := loadPage(t, resolvePage, nil)
	r := NewResolver(page, zaptest.NewLogger(t))

	tests := []struct {
		name    string
		d       FieldDescriptor
		wantErr error
		wantHop int
	}{
		{"shadow hop", FieldDescriptor{LocalSelector: "#inside", BoundaryChain: Chain{ShadowCrossing("x-open")}}, nil, 0},
		{"frame hop", FieldDescriptor{LocalSelector: "input[name=q]", BoundaryChain: Chain{FrameCrossing(1)}}, nil, 0},
		{"missing local target", FieldDescriptor{LocalSelector: "#nope"}, ErrNotFound, -1},
		{"ambiguous local selector", FieldDescriptor{LocalSelector: "input.dup"}, ErrAmbiguous, -1},
		{"cross-origin frame", FieldDescriptor{LocalSelector: "input", BoundaryChain: Chain{FrameCrossing(0)}}, ErrInaccessible, 0},
		{"frame index out of range", FieldDescriptor{LocalSelector: "input", BoundaryChain: Chain{FrameCrossing(7)}}, ErrNotFound, 0},
		{"closed shadow root", FieldDescriptor{LocalSelector: "#hidden", BoundaryChain: Chain{ShadowCrossing("x-closed")}}, ErrInaccessible, 0},
		{"host without shadow root", FieldDescriptor{LocalSelector: "input", BoundaryChain: Chain{ShadowCrossing("div.plain")}}, ErrNotFound, 0},
		{"missing host", FieldDescriptor{LocalSelector: "input", BoundaryChain: Chain{ShadowCrossing("x-gone")}}, ErrNotFound, 0},
		{"ambiguous host", FieldDescriptor{LocalSelector: "input", BoundaryChain: Chain{ShadowCrossing("x-twin")}}, ErrAmbiguous, 0},
		{"second hop fails", FieldDescriptor{LocalSelector: "input", BoundaryChain: Chain{FrameCrossing(1), ShadowCrossing("x-none")}}, ErrNotFound, 1},
		{"malformed selector", FieldDescriptor{LocalSelector: "input[["}, ErrNotFound, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := r.Resolve(context.Background(), tt.d)
			if tt.wantErr == nil {
				require.NoError(t, err)
				require.NotNil(t, h)
				assert.True(t, h.Connected())
				return
			}
			require.Error(t, err)
			assert.Nil(t, h)
			assert.ErrorIs(t, err, tt.wantErr)

			var re *ResolveError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.wantHop, re.Hop)
		})
	}
}

func TestResolve_Aborted(t *testing.T) {
	page := loadPage(t, resolvePage, nil)
	r := NewResolver(page, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, FieldDescriptor{LocalSelector: "#inside", BoundaryChain: Chain{ShadowCrossing("x-open")}})
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolve_StaleDescriptors(t *testing.T) {
	page := loadPage(t, `<form><input name="a"></form>`, nil)
	r := NewResolver(page, nil)
	res, err := NewScanner(DefaultScanOptions(), nil).Scan(context.Background(), page)
	require.NoError(t, err)
	require.Len(t, res.Fields, 1)
	d := res.Fields[0]

	// A second matching sibling makes the stored path ambiguous.
	form := mustFind(t, page.Top(), "//form")
	page.AppendChild(form, &html.Node{Type: html.ElementNode, Data: "input"})
	_, err = r.Resolve(context.Background(), d)
	assert.ErrorIs(t, err, ErrAmbiguous)

	// Removing the form removes the target altogether.
	page.RemoveChild(form)
	_, err = r.Resolve(context.Background(), d)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveAll(t *testing.T) {
	page := loadPage(t, resolvePage, nil)
	r := NewResolver(page, nil)
	ds := []FieldDescriptor{
		{LocalSelector: "#inside", BoundaryChain: Chain{ShadowCrossing("x-open")}},
		{LocalSelector: "#nope"},
		{LocalSelector: "input[name=q]", BoundaryChain: Chain{FrameCrossing(1)}},
	}

	out := r.ResolveAll(context.Background(), ds)
	require.Len(t, out, 3)
	assert.NoError(t, out[0].Err)
	assert.ErrorIs(t, out[1].Err, ErrNotFound)
	assert.NoError(t, out[2].Err)
	assert.Equal(t, "input", out[2].Handle.TagName())
	assert.Equal(t, ds[1], out[1].Descriptor)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, o := range r.ResolveAll(ctx, ds) {
		assert.ErrorIs(t, o.Err, ErrAborted)
		var re *ResolveError
		require.True(t, errors.As(o.Err, &re))
		assert.Equal(t, HopNotStarted, re.Hop, "skipped descriptors name no crossing")
	}
}

func TestResolveError_Message(t *testing.T) {
	err := newResolveError(ErrNotFound, 2, "x-host", nil)
	assert.Equal(t, `resolve hop 2 "x-host": target not found`, err.Error())

	err = newResolveError(ErrAmbiguous, HopLocal, "input", nil)
	assert.Equal(t, `resolve local selector "input": selector matches more than one element`, err.Error())

	err = newResolveError(ErrAborted, HopNotStarted, "#user", context.Canceled)
	assert.Equal(t, `resolve skipped "#user": operation aborted: context canceled`, err.Error())
}
