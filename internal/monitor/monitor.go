// internal/monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scalpel-fields/api/schemas"
	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-fields/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-fields/internal/events"
)

const (
	DefaultDebounce = 250 * time.Millisecond
	scanKey         = "scan"
)

var (
	ErrNotRunning     = errors.New("monitor is not running")
	ErrAlreadyRunning = errors.New("monitor is already running")
)

// State of the refresh state machine.
type State int32

const (
	StateIdle State = iota
	StatePending
	StateScanning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateScanning:
		return "scanning"
	default:
		return "unknown"
	}
}

// Scanner produces a full scan of a page.
type Scanner interface {
	Scan(ctx context.Context, page *dom.Page) (*locator.ScanResult, error)
}

// Options configures a Monitor.
type Options struct {
	// Debounce is the quiet period after the last mutation before a rescan.
	Debounce time.Duration
	// MaxScansPerSecond throttles rescans. Zero disables throttling.
	MaxScansPerSecond float64
	Clock             clock.Clock
	Publisher         events.Publisher
	Logger            *zap.Logger
}

// Monitor keeps a cached ScanResult current as the page mutates.
//
// Idle -> Pending on a mutation, Pending -> Pending on further mutations
// (timer re-armed), Pending -> Scanning when the timer fires and Scanning ->
// Idle when the scan completes. A mutation seen while Scanning marks the
// result dirty and the monitor goes straight back to Pending afterwards.
type Monitor struct {
	page      *dom.Page
	scanner   Scanner
	logger    *zap.Logger
	clock     clock.Clock
	publisher events.Publisher
	limiter   *rate.Limiter
	debouncer *Debouncer

	mu      sync.Mutex
	running bool
	state   State
	dirty   bool
	active  int
	ctx     context.Context
	cancel  context.CancelFunc

	obsMu     sync.Mutex
	observers map[*html.Node]func()

	group  singleflight.Group
	result atomic.Pointer[locator.ScanResult]
	scans  atomic.Int64
}

// New creates a stopped monitor for page.
func New(page *dom.Page, scanner Scanner, opts Options) *Monitor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	m := &Monitor{
		page:      page,
		scanner:   scanner,
		logger:    opts.Logger.Named("monitor"),
		clock:     opts.Clock,
		publisher: opts.Publisher,
		observers: make(map[*html.Node]func()),
	}
	if opts.MaxScansPerSecond > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(opts.MaxScansPerSecond), 1)
	}
	m.debouncer = NewDebouncer(opts.Clock, opts.Debounce, m.fire)
	return m
}

// Start runs an initial scan and begins observing every context it found.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.beginScanLocked()
	runCtx := m.ctx
	m.mu.Unlock()

	_, err := m.scan(runCtx, schemas.TriggerInitial)
	m.endScan()
	if err != nil {
		m.Stop()
		return err
	}
	m.logger.Info("Monitor started.")
	return nil
}

// Stop detaches all observers, disarms the debounce timer and waits for an
// in-flight scan to finish. Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.dirty = false
	cancel := m.cancel
	m.mu.Unlock()

	m.debouncer.Cancel()
	cancel()
	m.debouncer.Wait()

	m.obsMu.Lock()
	for root, stop := range m.observers {
		stop()
		delete(m.observers, root)
	}
	m.obsMu.Unlock()

	m.mu.Lock()
	if m.active == 0 {
		m.state = StateIdle
	}
	m.mu.Unlock()
	m.logger.Info("Monitor stopped.", zap.Int64("scans", m.scans.Load()))
}

// Result returns the latest complete scan. Never a partially updated one.
func (m *Monitor) Result() *locator.ScanResult {
	return m.result.Load()
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ScanCount returns the number of scans that completed successfully.
func (m *Monitor) ScanCount() int64 {
	return m.scans.Load()
}

// Rescan forces an immediate scan, cancelling a pending debounce. A scan
// already in flight is joined rather than duplicated.
func (m *Monitor) Rescan(ctx context.Context) (*locator.ScanResult, error) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil, ErrNotRunning
	}
	if m.state == StatePending {
		m.debouncer.Cancel()
	}
	m.beginScanLocked()
	m.mu.Unlock()

	res, err := m.scan(ctx, schemas.TriggerManual)
	m.endScan()
	return res, err
}

// onMutation feeds the state machine. It runs on the mutating goroutine.
func (m *Monitor) onMutation(records []dom.MutationRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	switch m.state {
	case StateIdle, StatePending:
		m.state = StatePending
		m.debouncer.Trigger()
	case StateScanning:
		m.dirty = true
	}
}

// fire is the debounce callback.
func (m *Monitor) fire() {
	m.mu.Lock()
	if !m.running || m.state != StatePending {
		m.mu.Unlock()
		return
	}
	m.beginScanLocked()
	ctx := m.ctx
	m.mu.Unlock()

	if _, err := m.scan(ctx, schemas.TriggerMutation); err != nil {
		if errors.Is(err, locator.ErrAborted) {
			m.logger.Debug("Rescan aborted.")
		} else {
			m.logger.Warn("Rescan failed.", zap.Error(err))
		}
	}
	m.endScan()
}

func (m *Monitor) beginScanLocked() {
	m.active++
	m.state = StateScanning
	m.dirty = false
}

func (m *Monitor) markDirty() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateScanning {
		m.dirty = true
	}
}

func (m *Monitor) endScan() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active--
	if m.active > 0 {
		return
	}
	if m.running && m.dirty {
		m.dirty = false
		m.state = StatePending
		m.debouncer.Trigger()
		return
	}
	m.state = StateIdle
}

// scan runs at most one scan at a time; concurrent callers share its result.
func (m *Monitor) scan(ctx context.Context, trigger schemas.ScanTrigger) (*locator.ScanResult, error) {
	v, err, shared := m.group.Do(scanKey, func() (interface{}, error) {
		if err := m.throttle(ctx); err != nil {
			return nil, err
		}
		gen := m.page.Generation()
		res, err := m.scanner.Scan(ctx, m.page)
		if err != nil {
			return nil, err
		}
		m.result.Store(res)
		m.scans.Add(1)
		m.reconcile(res.ContextRoots())
		// Contexts discovered by this scan had no observer until reconcile, so
		// a mutation in one of them would otherwise go unnoticed.
		if m.page.Generation() != gen {
			m.markDirty()
		}
		m.publish(ctx, res, trigger)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.logger.Debug("Joined in-flight scan.", zap.String("trigger", string(trigger)))
	}
	return v.(*locator.ScanResult), nil
}

// throttle waits for the rate limiter on the monitor's clock.
func (m *Monitor) throttle(ctx context.Context) error {
	if m.limiter == nil {
		return nil
	}
	now := m.clock.Now()
	r := m.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	m.logger.Debug("Throttling rescan.", zap.Duration("delay", delay))
	t := m.clock.Timer(delay)
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		t.Stop()
		r.CancelAt(m.clock.Now())
		return locator.ErrAborted
	}
}

// reconcile observes exactly the given context roots.
func (m *Monitor) reconcile(roots []*html.Node) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()

	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if !running {
		return
	}

	want := make(map[*html.Node]struct{}, len(roots))
	for _, r := range roots {
		want[r] = struct{}{}
		if _, ok := m.observers[r]; !ok {
			m.observers[r] = m.page.Observe(r, m.onMutation)
		}
	}
	for r, stop := range m.observers {
		if _, ok := want[r]; !ok {
			stop()
			delete(m.observers, r)
		}
	}
}

// ObservedContexts returns the number of context roots currently observed.
func (m *Monitor) ObservedContexts() int {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	return len(m.observers)
}

func (m *Monitor) publish(ctx context.Context, res *locator.ScanResult, trigger schemas.ScanTrigger) {
	if m.publisher == nil {
		return
	}
	ev := schemas.ScanCompleted{
		ScanID:        res.ID.String(),
		CapturedAt:    res.CapturedAt,
		Trigger:       trigger,
		FieldCount:    len(res.Fields),
		ContextCount:  len(res.ContextRoots()),
		DepthExceeded: res.DepthExceeded,
		Inaccessible:  res.InaccessibleFrames,
	}
	if err := m.publisher.Publish(ctx, ev); err != nil {
		m.logger.Warn("Failed to publish scan result.", zap.Error(err))
	}
}
