// internal/monitor/debounce.go
package monitor

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Debouncer runs fn once a quiet period has elapsed since the last Trigger.
// Triggering while armed pushes the deadline back. Cancel disarms it.
type Debouncer struct {
	clock clock.Clock
	delay time.Duration
	fn    func()

	mu    sync.Mutex
	timer *clock.Timer
	gen   uint64
	armed bool

	// Tracks armed timers and running callbacks.
	wg sync.WaitGroup
}

// NewDebouncer creates a debouncer calling fn on its own goroutine.
func NewDebouncer(c clock.Clock, delay time.Duration, fn func()) *Debouncer {
	if c == nil {
		c = clock.New()
	}
	return &Debouncer{clock: c, delay: delay, fn: fn}
}

// Trigger arms the timer, or re-arms it if already armed.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.gen++
	gen := d.gen
	d.armed = true
	d.wg.Add(1)
	d.timer = d.clock.AfterFunc(d.delay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if gen != d.gen || !d.armed {
			// Superseded by a later Trigger or Cancel that lost the race to Stop.
			d.mu.Unlock()
			return
		}
		d.armed = false
		d.timer = nil
		d.mu.Unlock()
		d.fn()
	})
}

// Cancel disarms the timer. It reports whether a pending call was prevented.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	wasArmed := d.armed
	d.stopLocked()
	d.gen++
	d.armed = false
	return wasArmed
}

// Armed reports whether a call is pending.
func (d *Debouncer) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

// Wait blocks until no timer is armed and no callback is running. Callers
// must Cancel first or Wait may block until the timer fires.
func (d *Debouncer) Wait() {
	d.wg.Wait()
}

func (d *Debouncer) stopLocked() {
	if d.timer == nil {
		return
	}
	if d.timer.Stop() {
		// Stopped before firing; its callback will never run.
		d.wg.Done()
	}
	d.timer = nil
}
