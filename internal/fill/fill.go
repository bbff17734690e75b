// internal/fill/fill.go
package fill

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-fields/api/schemas"
	"github.com/xkilldash9x/scalpel-fields/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-fields/internal/browser/locator"
	"github.com/xkilldash9x/scalpel-fields/internal/events"
	"github.com/xkilldash9x/scalpel-fields/internal/humanoid"
)

// Mapping pairs a captured descriptor with the value to put into it. Mappings
// are supplied by the caller and never modified.
type Mapping struct {
	Field locator.FieldDescriptor `json:"field"`
	Value string                  `json:"value"`
}

// Typist performs the human paced interaction on a resolved handle.
type Typist interface {
	Type(ctx context.Context, el *dom.ElementHandle, text string) error
	Select(ctx context.Context, el *dom.ElementHandle, value string) error
	SetChecked(ctx context.Context, el *dom.ElementHandle, checked bool) error
	// Pause waits between two fields.
	Pause(ctx context.Context) error
}

var _ Typist = (*humanoid.Humanoid)(nil)

// Hooks run around a pass. CAPTCHA detection and solving live behind them.
type Hooks interface {
	// BeforeFill runs before the first field. An error cancels the pass.
	BeforeFill(ctx context.Context, page *dom.Page) error
	// AfterFill runs once every field has been attempted, including after an
	// aborted pass. Its error is returned alongside the report.
	AfterFill(ctx context.Context, page *dom.Page, report *Report) error
}

// Options configures a Filler.
type Options struct {
	Hooks     Hooks
	Publisher events.Publisher
	Clock     clock.Clock
	Logger    *zap.Logger
}

// Filler resolves mappings against a page and fills them in order.
type Filler struct {
	page      *dom.Page
	resolver  *locator.Resolver
	typist    Typist
	hooks     Hooks
	publisher events.Publisher
	clock     clock.Clock
	logger    *zap.Logger
}

// NewFiller creates a Filler for page.
func NewFiller(page *dom.Page, typist Typist, opts Options) *Filler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	logger := opts.Logger.Named("filler")
	return &Filler{
		page:      page,
		resolver:  locator.NewResolver(page, logger),
		typist:    typist,
		hooks:     opts.Hooks,
		publisher: opts.Publisher,
		clock:     opts.Clock,
		logger:    logger,
	}
}

// Fill runs one pass over mappings in the given order. Per-field failures are
// recorded in the report and the pass moves on. Cancellation is checked
// between fields and inside the typist between keystrokes; once seen, the
// field in progress fails with locator.ErrAborted and the rest are skipped.
//
// The returned error is non-nil only when a hook fails.
func (f *Filler) Fill(ctx context.Context, mappings []Mapping) (*Report, error) {
	report := &Report{PassID: uuid.New(), StartedAt: f.clock.Now()}
	f.logger.Info("Starting fill pass.", zap.String("pass_id", report.PassID.String()), zap.Int("fields", len(mappings)))

	if f.hooks != nil {
		if err := f.hooks.BeforeFill(ctx, f.page); err != nil {
			for _, m := range mappings {
				report.record(m.Field, schemas.FieldSkipped, err)
			}
			f.finish(ctx, report)
			return report, fmt.Errorf("before-fill hook: %w", err)
		}
	}

	for i, m := range mappings {
		if report.Aborted {
			report.record(m.Field, schemas.FieldSkipped, locator.ErrAborted)
			continue
		}
		if i > 0 {
			if err := f.typist.Pause(ctx); err != nil {
				report.Aborted = true
				report.record(m.Field, schemas.FieldSkipped, locator.ErrAborted)
				continue
			}
		}
		if err := f.fillOne(ctx, m); err != nil {
			if aborted(ctx, err) {
				report.Aborted = true
				err = locator.ErrAborted
			}
			f.logger.Debug("Field failed.", zap.Stringer("field", m.Field), zap.Error(err))
			report.record(m.Field, schemas.FieldFailed, err)
			continue
		}
		report.record(m.Field, schemas.FieldFilled, nil)
	}

	var hookErr error
	if f.hooks != nil {
		// The pass context may be gone; the hook still gets to observe the page.
		if err := f.hooks.AfterFill(context.WithoutCancel(ctx), f.page, report); err != nil {
			hookErr = fmt.Errorf("after-fill hook: %w", err)
		}
	}
	f.finish(ctx, report)
	return report, hookErr
}

func (f *Filler) fillOne(ctx context.Context, m Mapping) error {
	el, err := f.resolver.Resolve(ctx, m.Field)
	if err != nil {
		return err
	}
	switch {
	case el.TagName() == "select":
		return f.typist.Select(ctx, el, m.Value)
	case el.InputType() == "checkbox" || el.InputType() == "radio":
		return f.typist.SetChecked(ctx, el, humanoid.ParseBool(m.Value))
	default:
		return f.typist.Type(ctx, el, m.Value)
	}
}

func (f *Filler) finish(ctx context.Context, report *Report) {
	report.FinishedAt = f.clock.Now()
	filled, failed, skipped := report.Counts()
	f.logger.Info("Fill pass finished.",
		zap.String("pass_id", report.PassID.String()),
		zap.Int("filled", filled),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
		zap.Bool("aborted", report.Aborted))

	if f.publisher == nil {
		return
	}
	if err := f.publisher.Publish(context.WithoutCancel(ctx), report.Event()); err != nil {
		f.logger.Warn("Failed to publish fill report.", zap.Error(err))
	}
}

func aborted(ctx context.Context, err error) bool {
	return errors.Is(err, locator.ErrAborted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		ctx.Err() != nil
}
