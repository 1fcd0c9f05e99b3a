package loop

import "fmt"

// Cancelled is delivered into a task when the scope it is bound to has been
// cancelled (explicitly or via deadline expiry). It is consumed by the exit
// filter of the scope named in Origin and must never escape that scope.
type Cancelled struct {
	Origin *CancelScope
	cause  error
}

func (c *Cancelled) Error() string {
	if c.cause != nil {
		return fmt.Sprintf("cancelled: %v", c.cause)
	}
	return "cancelled"
}

func (c *Cancelled) Unwrap() error { return c.cause }

// KICancelled is a Cancelled delivered because of a keyboard interrupt
// rather than an explicit cancel or deadline. It behaves like Cancelled for
// scope-exit filtering purposes but is distinguishable via errors.As.
type KICancelled struct {
	Cancelled
}

// WouldBlock is returned by non-blocking attempts inside sync primitives
// built atop the core. The core never raises it itself.
var WouldBlock = fmt.Errorf("would block")

// RunFinished is returned by RunSyncSoon (and friends) once the injection
// queue's drain task has closed the queue at run shutdown.
var RunFinished = fmt.Errorf("run finished")

// InternalError wraps any unexpected failure surfacing from the reactor,
// injection callbacks, or system tasks. Its presence always tears the run
// down and is re-raised at Run's caller.
type InternalError struct {
	cause error
}

func (e *InternalError) Error() string { return fmt.Sprintf("internal error: %v", e.cause) }
func (e *InternalError) Unwrap() error { return e.cause }

func newInternalError(cause error) *InternalError { return &InternalError{cause: cause} }

// AggregateError groups several concurrent failures that must cross a
// single propagation boundary (a nursery exit being the dominant case).
// It always holds at least two members; construct it via NewAggregateError,
// which collapses shorter lists.
type AggregateError struct {
	Errs []error
}

func (a *AggregateError) Error() string {
	s := fmt.Sprintf("%d errors occurred:", len(a.Errs))
	for _, e := range a.Errs {
		s += "\n\t* " + e.Error()
	}
	return s
}

// Unwrap exposes the member errors to errors.Is/errors.As via the
// multi-error convention supported by the standard library since Go 1.20.
func (a *AggregateError) Unwrap() []error { return a.Errs }

// NewAggregateError collapses causes into a single error value: nil causes
// are dropped, a nested *AggregateError is flattened one level, an empty
// result yields nil, and a singleton result yields its sole member rather
// than a one-element aggregate.
func NewAggregateError(causes ...error) error {
	flat := make([]error, 0, len(causes))
	for _, c := range causes {
		if c == nil {
			continue
		}
		if agg, ok := c.(*AggregateError); ok {
			flat = append(flat, agg.Errs...)
			continue
		}
		flat = append(flat, c)
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	default:
		return &AggregateError{Errs: flat}
	}
}
