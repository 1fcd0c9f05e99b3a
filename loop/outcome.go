package loop

// Outcome is a sum-type value carrying either a success value or a failure
// cause. It is used both to capture "the result of calling f" and to
// deliver a value into a suspended task on resume.
type Outcome struct {
	value any
	err   error
	isErr bool
}

// ValueOutcome wraps a successful result.
func ValueOutcome(v any) Outcome { return Outcome{value: v} }

// ErrorOutcome wraps a failure cause. Passing a nil err panics, since a
// nil-cause Outcome has no useful meaning and is always a caller bug.
func ErrorOutcome(err error) Outcome {
	if err == nil {
		panic("loop: ErrorOutcome called with nil error")
	}
	return Outcome{err: err, isErr: true}
}

// IsError reports whether this Outcome wraps a failure.
func (o Outcome) IsError() bool { return o.isErr }

// Unwrap returns the wrapped value, or the wrapped error if this Outcome is
// an error. Callers that want "return v or raise cause" semantics should use
// Value/Err directly instead, since Go has no implicit-raise equivalent.
func (o Outcome) Unwrap() (any, error) {
	if o.isErr {
		return nil, o.err
	}
	return o.value, nil
}

// Value returns the wrapped success value; it is the zero value if this
// Outcome wraps an error.
func (o Outcome) Value() any { return o.value }

// Err returns the wrapped failure cause, or nil for a success Outcome.
func (o Outcome) Err() error { return o.err }

// CaptureOutcome runs f, returning a success Outcome on a nil error and a
// failure Outcome otherwise.
func CaptureOutcome(f func() (any, error)) Outcome {
	v, err := f()
	if err != nil {
		return ErrorOutcome(err)
	}
	return ValueOutcome(v)
}

// CombineOutcome chains the error causes of a and b so that neither is
// silently lost. If neither carries an error, b's value wins (it is taken
// to be the "more recent" of the two). If exactly one carries an error,
// that error propagates. If both carry errors, they are merged into an
// AggregateError.
func CombineOutcome(a, b Outcome) Outcome {
	switch {
	case a.isErr && b.isErr:
		return ErrorOutcome(NewAggregateError(a.err, b.err))
	case a.isErr:
		return a
	case b.isErr:
		return b
	default:
		return b
	}
}
