// internal/fill/report.go
package fill

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/xkilldash9x/scalpel-fields/api/schemas"
	"github.com/xkilldash9x/scalpel-fields/internal/browser/locator"
)

// FieldResult is the outcome of one mapping in a pass.
type FieldResult struct {
	Field  locator.FieldDescriptor
	Status schemas.FieldStatus
	Err    error
}

// Report accumulates per-field outcomes. A failed field never stops the pass.
type Report struct {
	PassID     uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	// Aborted is set when cancellation stopped the pass before every field ran.
	Aborted bool
	Fields  []FieldResult
}

// Counts tallies the results by status.
func (r *Report) Counts() (filled, failed, skipped int) {
	for _, f := range r.Fields {
		switch f.Status {
		case schemas.FieldFilled:
			filled++
		case schemas.FieldFailed:
			failed++
		case schemas.FieldSkipped:
			skipped++
		}
	}
	return
}

// Err combines the errors of every failed field, or returns nil.
func (r *Report) Err() error {
	var err error
	for _, f := range r.Fields {
		if f.Status == schemas.FieldFailed && f.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", f.Field, f.Err))
		}
	}
	return err
}

func (r *Report) record(field locator.FieldDescriptor, status schemas.FieldStatus, err error) {
	r.Fields = append(r.Fields, FieldResult{Field: field, Status: status, Err: err})
}

// Event converts the report into its fill-complete payload.
func (r *Report) Event() schemas.FillCompleted {
	filled, failed, skipped := r.Counts()
	ev := schemas.FillCompleted{
		PassID:     r.PassID.String(),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Aborted:    r.Aborted,
		Filled:     filled,
		Failed:     failed,
		Skipped:    skipped,
		Fields:     make([]schemas.FieldOutcome, 0, len(r.Fields)),
	}
	for _, f := range r.Fields {
		out := schemas.FieldOutcome{
			Selector:  f.Field.LocalSelector,
			FramePath: f.Field.BoundaryChain.Path(),
			Status:    f.Status,
		}
		if f.Err != nil {
			out.Error = f.Err.Error()
		}
		ev.Fields = append(ev.Fields, out)
	}
	return ev
}
