package loop

import "time"

// negInfDeadline is the placeholder deadline value passed to newCancelScope
// for scopes that carry no deadline at all (hasDeadline false makes the
// value itself irrelevant); used by Nursery's bookkeeping scopes.
var negInfDeadline = time.Time{}

// CancelScope is a node in the cancellation tree: it carries a deadline, a
// shield flag, a cancel-requested flag, and the set of tasks currently
// bound to it (spec.md §3/§4.3).
type CancelScope struct {
	runner *Runner
	id     uint64
	gen    uint64 // bumped whenever effective-deadline registration changes

	hasDeadline bool
	deadline    time.Time

	shield          bool
	cancelRequested bool
	cancelCaught    bool

	tasks map[*Task]struct{}
	// cause caches the cancellation cause per task so repeated delivery
	// attempts in the same task observe a consistent cause (spec.md §4.3
	// step 4).
	cause map[*Task]*Cancelled
}

func newCancelScope(r *Runner, deadline time.Time, hasDeadline bool) *CancelScope {
	r.scopeSeq++
	return &CancelScope{
		runner:      r,
		id:          r.scopeSeq,
		hasDeadline: hasDeadline,
		deadline:    deadline,
		tasks:       make(map[*Task]struct{}),
		cause:       make(map[*Task]*Cancelled),
	}
}

// OpenCancelScope creates a new CancelScope, entered by and bound to the given
// task with an optional deadline (zero Time means no deadline) and shield
// setting. The caller must arrange to call Close (via scope.removeTask,
// typically wrapped by a defer) when the governed code region exits. A
// deadline already in the past behaves as already-expired: the scope is
// cancel-requested immediately rather than waiting for the next loop
// iteration's deadline walk (spec.md §5 "Scopes with -∞ deadlines behave
// as already-expired").
func OpenCancelScope(t *Task, deadline time.Time, shield bool) *CancelScope {
	s := newCancelScope(t.runner, deadline, !deadline.IsZero())
	s.shield = shield
	s.addTask(t)
	if s.hasDeadline && !s.deadline.After(t.runner.clock.Now()) {
		s.Cancel()
	}
	return s
}

// OpenTimeoutScope is OpenCancelScope sugar for a relative timeout.
func OpenTimeoutScope(t *Task, timeout time.Duration, shield bool) *CancelScope {
	return OpenCancelScope(t, t.runner.clock.Now().Add(timeout), shield)
}

// Deadline returns the scope's deadline; the second return is false when
// the scope has no deadline (effectively +Inf).
func (s *CancelScope) Deadline() (time.Time, bool) { return s.deadline, s.hasDeadline }

// SetDeadline changes the scope's deadline, re-registering it in the
// runner's deadline index if its effective deadline changed.
func (s *CancelScope) SetDeadline(deadline time.Time) {
	s.hasDeadline = !deadline.IsZero()
	s.deadline = deadline
	s.runner.reregisterDeadline(s)
}

// Shield reports the current shield flag.
func (s *CancelScope) Shield() bool { return s.shield }

// SetShield toggles shielding. Clearing it re-attempts delivery on every
// bound task, since outer cancellations may now land (spec.md §4.3).
func (s *CancelScope) SetShield(v bool) {
	was := s.shield
	s.shield = v
	if was && !v {
		for t := range s.tasks {
			s.runner.attemptDeliverCancel(t)
		}
	}
}

// CancelCaught reports whether this scope's exit filter absorbed a
// cancellation originating here.
func (s *CancelScope) CancelCaught() bool { return s.cancelCaught }

// CancelRequested reports whether Cancel (explicit or via deadline) has
// fired for this scope.
func (s *CancelScope) CancelRequested() bool { return s.cancelRequested }

// Cancel marks the scope cancel-requested and attempts delivery into every
// bound task.
func (s *CancelScope) Cancel() {
	if s.cancelRequested {
		return
	}
	s.cancelRequested = true
	s.runner.reregisterDeadline(s) // effective deadline becomes "already cancelled" -> drop from index
	for t := range s.tasks {
		s.runner.attemptDeliverCancel(t)
	}
}

func (s *CancelScope) addTask(t *Task) {
	s.tasks[t] = struct{}{}
	t.pushScope(s)
	s.runner.reregisterDeadline(s)
}

// Close exits the scope for t: the task stops being governed by it and its
// deadline, if any, leaves the runner's index. Callers that open a
// CancelScope directly (as opposed to via OpenNursery, which manages this
// itself) must call Close exactly once, typically via defer, from the same
// task that opened it.
func (s *CancelScope) Close(t *Task) { s.removeTask(t) }

// Filter applies the scope-exit filter of spec.md §4.3 to a plain error:
// a Cancelled (or AggregateError containing one) whose Origin is this scope
// is absorbed, and CancelCaught becomes true. Call after Close, normally
// via defer, to turn a delivered cancellation that belongs to this scope
// into a nil error.
func (s *CancelScope) Filter(err error) error {
	if err == nil {
		return nil
	}
	return s.filterException(ErrorOutcome(err)).Err()
}

func (s *CancelScope) removeTask(t *Task) {
	delete(s.tasks, t)
	delete(s.cause, t)
	t.popScope(s)
	s.runner.reregisterDeadline(s)
}

// effectiveRegistration reports the key under which this scope should appear
// in the runner's deadline index, and whether it belongs there at all
// (spec.md §4.3's deadline-index invariant).
func (s *CancelScope) effectiveRegistration() (time.Time, bool) {
	if !s.hasDeadline || len(s.tasks) == 0 || s.cancelRequested {
		return time.Time{}, false
	}
	return s.deadline, true
}

// causeFor returns (building if necessary) the cancellation cause this
// scope delivers to t, so that repeated delivery attempts see the same
// cause.
func (s *CancelScope) causeFor(t *Task) *Cancelled {
	if c, ok := s.cause[t]; ok {
		return c
	}
	c := &Cancelled{Origin: s}
	s.cause[t] = c
	return c
}

// filterException implements the scope-exit filter of spec.md §4.3: if the
// in-flight outcome is a cancellation whose origin is this scope, it is
// absorbed (CancelCaught becomes true) and any remaining aggregate members
// propagate.
func (s *CancelScope) filterException(out Outcome) Outcome {
	if !out.IsError() {
		return out
	}
	remaining, caught := s.filterCause(out.Err())
	if caught {
		s.cancelCaught = true
	}
	if remaining == nil {
		return ValueOutcome(nil)
	}
	return ErrorOutcome(remaining)
}

func (s *CancelScope) filterCause(err error) (remaining error, caught bool) {
	if c, ok := err.(*Cancelled); ok {
		if c.Origin == s {
			return nil, true
		}
		return err, false
	}
	if agg, ok := err.(*AggregateError); ok {
		kept := make([]error, 0, len(agg.Errs))
		any := false
		for _, e := range agg.Errs {
			rem, c := s.filterCause(e)
			if c {
				any = true
			}
			if rem != nil {
				kept = append(kept, rem)
			}
		}
		return NewAggregateError(kept...), any
	}
	return err, false
}
