// internal/browser/locator/scanner.go
package locator

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
)

// Scanner runs the full pipeline: enumerate contexts, detect fields and
// compose a descriptor for each.
type Scanner struct {
	opts   ScanOptions
	logger *zap.Logger
	clock  clock.Clock
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithClock sets the clock used for capture timestamps.
func WithClock(c clock.Clock) ScannerOption {
	return func(s *Scanner) { s.clock = c }
}

// NewScanner creates a scanner. A negative MaxDepth is treated as zero.
func NewScanner(opts ScanOptions, logger *zap.Logger, options ...ScannerOption) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxDepth < 0 {
		opts.MaxDepth = 0
	}
	s := &Scanner{
		opts:   opts,
		logger: logger.Named("scanner"),
		clock:  clock.New(),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Options returns the scan options in effect.
func (s *Scanner) Options() ScanOptions { return s.opts }

// Scan captures every fillable control of page. The page is read-locked for
// the duration, so concurrent mutations wait for the scan to finish.
func (s *Scanner) Scan(ctx context.Context, page *dom.Page) (*ScanResult, error) {
	start := s.clock.Now()
	res := &ScanResult{ID: uuid.New(), Fields: []FieldDescriptor{}}

	err := page.Read(func() error {
		enum, err := Enumerate(ctx, page, s.opts, s.logger)
		if err != nil {
			return err
		}
		res.DepthExceeded = enum.DepthExceeded
		res.InaccessibleFrames = enum.Inaccessible

		for _, ec := range enum.Contexts {
			if ctx.Err() != nil {
				return ErrAborted
			}
			res.contexts = append(res.contexts, ec.Root)
			for _, f := range DetectFields(ec.Root) {
				d, err := Compose(ec, f)
				if err != nil {
					s.logger.Warn("Skipping field without a unique selector.", zap.Error(err))
					continue
				}
				res.Fields = append(res.Fields, d)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res.CapturedAt = s.clock.Now()
	s.logger.Debug("Scan complete.",
		zap.String("scan_id", res.ID.String()),
		zap.Int("fields", len(res.Fields)),
		zap.Int("contexts", len(res.contexts)),
		zap.Bool("depth_exceeded", res.DepthExceeded),
		zap.Int("inaccessible", res.InaccessibleFrames),
		zap.Duration("duration", res.CapturedAt.Sub(start)))
	return res, nil
}
