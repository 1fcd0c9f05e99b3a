package loop

import "time"

// Sleep suspends t for at least d, or until some outer cancellation lands
// first. It is ordinary application code built entirely from OpenTimeoutScope
// plus an indefinite suspension — trio's sleep() is implemented the same
// way, as a composition rather than a new primitive.
func Sleep(t *Task, d time.Duration) error {
	scope := OpenTimeoutScope(t, d, false)
	defer scope.removeTask(t)
	out := t.suspend(SuspendIndefinite, func(raiseCancel func() Outcome) AbortOutcome {
		return AbortSucceeded
	})
	return scope.filterException(out).Err()
}
