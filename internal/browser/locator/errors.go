// internal/browser/locator/errors.go
package locator

import (
	"errors"
	"fmt"
)

// Sentinel outcomes. All of them are expected in a mutating DOM and are
// classified with errors.Is.
var (
	ErrInaccessible      = errors.New("context is inaccessible")
	ErrNotFound          = errors.New("target not found")
	ErrAmbiguous         = errors.New("selector matches more than one element")
	ErrDepthExceeded     = errors.New("maximum traversal depth exceeded")
	ErrAborted           = errors.New("operation aborted")
	ErrNotInContext      = errors.New("node is not inside the given context")
	ErrSelectorNotUnique = errors.New("synthesized selector is not unique")
)

// Hop values that do not index a crossing.
const (
	// HopLocal marks a failure of the final local selector.
	HopLocal = -1
	// HopNotStarted marks a descriptor that was never attempted.
	HopNotStarted = -2
)

// ResolveError reports why a descriptor could not be re-located. Hop is the
// index of the failing crossing in the chain, HopLocal or HopNotStarted.
type ResolveError struct {
	Kind     error
	Hop      int
	Selector string
	Err      error // Underlying cause, e.g. a selector compile error.
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	var where string
	switch {
	case e.Hop >= 0:
		where = fmt.Sprintf("hop %d", e.Hop)
	case e.Hop == HopNotStarted:
		where = "skipped"
	default:
		where = "local selector"
	}
	msg := fmt.Sprintf("resolve %s %q: %v", where, e.Selector, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the sentinel kind.
func (e *ResolveError) Is(target error) bool {
	return target == e.Kind
}

// Unwrap provides the underlying error for use with errors.Is/As.
func (e *ResolveError) Unwrap() error {
	return e.Err
}

func newResolveError(kind error, hop int, selector string, cause error) *ResolveError {
	return &ResolveError{Kind: kind, Hop: hop, Selector: selector, Err: cause}
}
