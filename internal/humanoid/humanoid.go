// internal/humanoid/humanoid.go
package humanoid

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Humanoid drives element handles with human paced typing and clicking.
type Humanoid struct {
	// mu guards rng.
	mu     sync.Mutex
	cfg    Config
	rng    *rand.Rand
	clock  clock.Clock
	logger *zap.Logger
}

// Option customises a Humanoid.
type Option func(*Humanoid)

// WithClock sets the clock used for every pause.
func WithClock(c clock.Clock) Option {
	return func(h *Humanoid) { h.clock = c }
}

// New creates a Humanoid. A nil Rng in config is replaced by a time seeded one.
func New(config Config, logger *zap.Logger, opts ...Option) *Humanoid {
	if logger == nil {
		logger = zap.NewNop()
	}
	rng := config.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	h := &Humanoid{
		cfg:    config,
		rng:    rng,
		clock:  clock.New(),
		logger: logger.Named("humanoid"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewTestHumanoid creates a Humanoid with deterministic randomness and no delays.
func NewTestHumanoid(seed int64) *Humanoid {
	cfg := DefaultConfig()
	cfg.Enabled = false
	cfg.Rng = rand.New(rand.NewSource(seed))
	return New(cfg, zap.NewNop())
}

// Config returns the configuration in use.
func (h *Humanoid) Config() Config {
	return h.cfg
}

// Pause waits a randomized, bounded "move to the next field" interval.
func (h *Humanoid) Pause(ctx context.Context) error {
	return h.sleep(ctx, h.fieldPause())
}

func (h *Humanoid) fieldPause() time.Duration {
	if !h.cfg.Enabled {
		return 0
	}
	ms := h.sampleGaussian(h.cfg.FieldPauseMean, h.cfg.FieldPauseStdDev)
	return millis(clamp(ms, 0, h.cfg.FieldPauseMax))
}

// sleep waits for d on the configured clock or until ctx is done.
func (h *Humanoid) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := h.clock.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Humanoid) sampleGaussian(mean, stdDev float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return mean + h.rng.NormFloat64()*stdDev
}

func (h *Humanoid) intn(n int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Intn(n)
}

func (h *Humanoid) float64() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
