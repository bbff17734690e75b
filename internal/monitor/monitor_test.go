package monitor

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-fields/api/schemas"
	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-fields/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-fields/internal/browser/shadowdom"
	"github.com/xkilldash9x/scalpel-fields/internal/events"
)

const (
	testDebounce = 100 * time.Millisecond
	waitFor      = 2 * time.Second
	tick         = 5 * time.Millisecond
)

const monitoredPage = `<body>
	<form><input name="user"></form>
	<x-card><template shadowrootmode="open"><input name="email"></template></x-card>
	<x-late></x-late>
</body>`

// gatedScanner counts scans and can hold a scan open until released.
type gatedScanner struct {
	inner   *locator.Scanner
	calls   atomic.Int32
	hold    atomic.Bool
	entered chan struct{}
	release chan struct{}
	fail    atomic.Bool
	// after, when set, runs once a scan has released the page.
	after func(call int32)
}

func newGatedScanner(t *testing.T) *gatedScanner {
	return &gatedScanner{
		inner:   locator.NewScanner(locator.DefaultScanOptions(), zaptest.NewLogger(t)),
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (g *gatedScanner) Scan(ctx context.Context, page *dom.Page) (*locator.ScanResult, error) {
	n := g.calls.Add(1)
	if g.fail.Load() {
		return nil, errors.New("browser went away")
	}
	if g.hold.Load() {
		g.entered <- struct{}{}
		<-g.release
	}
	res, err := g.inner.Scan(ctx, page)
	if g.after != nil {
		g.after(n)
	}
	return res, err
}

type fixture struct {
	page    *dom.Page
	scanner *gatedScanner
	clock   *clock.Mock
	mon     *Monitor
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	page, err := dom.Load(context.Background(), strings.NewReader(monitoredPage), dom.LoadOptions{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	mock := clock.NewMock()
	opts.Clock = mock
	if opts.Debounce == 0 {
		opts.Debounce = testDebounce
	}
	opts.Logger = zaptest.NewLogger(t)
	s := newGatedScanner(t)
	return &fixture{page: page, scanner: s, clock: mock, mon: New(page, s, opts)}
}

func (f *fixture) find(t *testing.T, root *html.Node, xpath string) *html.Node {
	t.Helper()
	n := htmlquery.FindOne(root, xpath)
	require.NotNil(t, n, xpath)
	return n
}

func (f *fixture) touch(t *testing.T) {
	t.Helper()
	form := f.find(t, f.page.Top(), "//form")
	require.NoError(t, f.page.SetAttribute(form, "data-touched", time.Now().String()))
}

func (f *fixture) waitScans(t *testing.T, n int32) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return f.scanner.calls.Load() == n && f.mon.State() == StateIdle
	}, waitFor, tick, "expected %d scans", n)
}

func TestMonitor_StartScansAndObserves(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, Options{})
	require.NoError(t, f.mon.Start(context.Background()))
	defer f.mon.Stop()

	res := f.mon.Result()
	require.NotNil(t, res)
	assert.Len(t, res.Fields, 2)
	assert.Equal(t, StateIdle, f.mon.State())
	assert.Equal(t, 2, f.mon.ObservedContexts())
	assert.ErrorIs(t, f.mon.Start(context.Background()), ErrAlreadyRunning)
}

func TestMonitor_DebounceCoalescesBurst(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, Options{})
	require.NoError(t, f.mon.Start(context.Background()))
	defer f.mon.Stop()

	for i := 0; i < 5; i++ {
		f.touch(t)
		assert.Equal(t, StatePending, f.mon.State())
		f.clock.Add(testDebounce / 10)
	}
	assert.Equal(t, int32(1), f.scanner.calls.Load(), "no scan inside the quiet window")

	f.clock.Add(testDebounce)
	f.waitScans(t, 2)

	f.clock.Add(10 * testDebounce)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), f.scanner.calls.Load())
}

func TestMonitor_MutationDuringScanForcesOneFollowUp(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, Options{})
	require.NoError(t, f.mon.Start(context.Background()))
	defer f.mon.Stop()

	f.scanner.hold.Store(true)
	f.touch(t)
	f.clock.Add(testDebounce)

	select {
	case <-f.scanner.entered:
	case <-time.After(waitFor):
		t.Fatal("debounced scan never started")
	}
	assert.Equal(t, StateScanning, f.mon.State())

	// Two mutations while scanning still yield a single follow-up.
	f.touch(t)
	f.touch(t)
	assert.Equal(t, StateScanning, f.mon.State())

	f.scanner.hold.Store(false)
	close(f.scanner.release)

	assert.Eventually(t, func() bool { return f.mon.State() == StatePending }, waitFor, tick)
	assert.Equal(t, int32(2), f.scanner.calls.Load())

	f.clock.Add(testDebounce)
	f.waitScans(t, 3)

	f.clock.Add(10 * testDebounce)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), f.scanner.calls.Load())
}

func TestMonitor_ObservesShadowRoots(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, Options{})
	require.NoError(t, f.mon.Start(context.Background()))
	defer f.mon.Stop()

	card := f.find(t, f.page.Top(), "//x-card")
	sr, ok := f.page.ShadowRootOf(card)
	require.True(t, ok)
	require.NoError(t, f.page.SetAttribute(f.find(t, sr.Root, "//input"), "placeholder", "you@example.com"))
	assert.Equal(t, StatePending, f.mon.State())
	f.clock.Add(testDebounce)
	f.waitScans(t, 2)

	// A shadow root attached later is picked up by the rescan it causes.
	late := f.find(t, f.page.Top(), "//x-late")
	root, err := f.page.AttachShadow(late, shadowdom.ModeOpen)
	require.NoError(t, err)
	f.clock.Add(testDebounce)
	f.waitScans(t, 3)
	assert.Equal(t, 3, f.mon.ObservedContexts())

	f.page.AppendChild(root, &html.Node{Type: html.ElementNode, Data: "textarea"})
	assert.Equal(t, StatePending, f.mon.State())
	f.clock.Add(testDebounce)
	f.waitScans(t, 4)
	assert.Len(t, f.mon.Result().Fields, 3)
}

func TestMonitor_MutationInNewContextBeforeObserved(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, Options{})
	require.NoError(t, f.mon.Start(context.Background()))
	defer f.mon.Stop()

	late := f.find(t, f.page.Top(), "//x-late")
	var root *html.Node
	// The scan that discovers the new root returns before the monitor observes
	// it; the input appended in that gap must still lead to a rescan.
	f.scanner.after = func(call int32) {
		if call == 2 {
			f.page.AppendChild(root, &html.Node{Type: html.ElementNode, Data: "input"})
		}
	}
	var err error
	root, err = f.page.AttachShadow(late, shadowdom.ModeOpen)
	require.NoError(t, err)
	f.clock.Add(testDebounce)

	assert.Eventually(t, func() bool {
		return f.scanner.calls.Load() == 2 && f.mon.State() == StatePending
	}, waitFor, tick)
	f.clock.Add(testDebounce)
	f.waitScans(t, 3)
	assert.Len(t, f.mon.Result().Fields, 3)
	assert.Equal(t, 3, f.mon.ObservedContexts())
}

func TestMonitor_ResultSwappedAtomically(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, Options{})
	require.NoError(t, f.mon.Start(context.Background()))
	defer f.mon.Stop()

	before := f.mon.Result()
	form := f.find(t, f.page.Top(), "//form")
	f.page.AppendChild(form, &html.Node{Type: html.ElementNode, Data: "select"})
	f.clock.Add(testDebounce)
	f.waitScans(t, 2)

	after := f.mon.Result()
	assert.NotSame(t, before, after)
	assert.Len(t, before.Fields, 2, "the old result is never modified")
	assert.Len(t, after.Fields, 3)
}

func TestMonitor_RescanCancelsPendingTimer(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := events.NewBus(zaptest.NewLogger(t), 8)
	msgs := make(chan schemas.ScanCompleted, 4)
	bus.Subscribe(func(msg events.Message) {
		msgs <- msg.Event.(schemas.ScanCompleted)
	}, schemas.EventScanCompleted)
	f := newFixture(t, Options{Publisher: bus})
	require.NoError(t, f.mon.Start(context.Background()))
	defer bus.Shutdown()
	defer f.mon.Stop()

	f.touch(t)
	require.Equal(t, StatePending, f.mon.State())

	res, err := f.mon.Rescan(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, StateIdle, f.mon.State())

	f.clock.Add(10 * testDebounce)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), f.scanner.calls.Load())

	var triggers []schemas.ScanTrigger
	for i := 0; i < 2; i++ {
		triggers = append(triggers, (<-msgs).Trigger)
	}
	assert.Equal(t, []schemas.ScanTrigger{schemas.TriggerInitial, schemas.TriggerManual}, triggers)
}

func TestMonitor_RateLimit(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, Options{MaxScansPerSecond: 1})
	require.NoError(t, f.mon.Start(context.Background()))
	defer f.mon.Stop()

	start := f.clock.Now()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := f.mon.Rescan(context.Background())
		assert.NoError(t, err)
	}()

	assert.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			f.clock.Add(100 * time.Millisecond)
			return false
		}
	}, waitFor, tick)
	assert.GreaterOrEqual(t, f.clock.Now().Sub(start), 900*time.Millisecond)
}

func TestMonitor_StopHaltsObservation(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, Options{})
	require.NoError(t, f.mon.Start(context.Background()))

	f.touch(t)
	f.mon.Stop()
	f.mon.Stop()
	assert.Equal(t, StateIdle, f.mon.State())
	assert.Zero(t, f.mon.ObservedContexts())

	f.touch(t)
	f.clock.Add(10 * testDebounce)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), f.scanner.calls.Load())

	_, err := f.mon.Rescan(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestMonitor_StartFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, Options{})
	f.scanner.fail.Store(true)

	require.Error(t, f.mon.Start(context.Background()))
	assert.Nil(t, f.mon.Result())
	_, err := f.mon.Rescan(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "scanning", StateScanning.String())
}
