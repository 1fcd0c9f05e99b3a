// Package token provides the foreign-thread-facing handle that lets code
// outside the run loop schedule work onto it (spec.md §6's "Token API").
// It lives in its own package, rather than as a loop.Runner method
// returning *Token, because loop cannot import a package that imports loop
// back (the same import-cycle constraint that keeps Reactor defined inside
// loop itself).
package token

import "github.com/NetPo4ki/looprt/loop"

// Token is a capability to schedule callbacks onto the Runner it was
// obtained from. It is safe to copy, share across goroutines, and call from
// a signal handler's delivery goroutine.
type Token struct {
	runner *loop.Runner
}

// New wraps r in a Token. Current is the usual way to obtain one from
// inside a running task; New is for foreign code that already holds a
// *loop.Runner some other way.
func New(r *loop.Runner) *Token { return &Token{runner: r} }

// Current returns the Token for the Runner that owns t, mirroring
// trio's current_trio_token().
func Current(t *loop.Task) *Token { return New(t.Runner()) }

// RunSyncSoon schedules fn to run on the loop thread at the next
// opportunity, preserving order relative to other non-idempotent
// callbacks. It returns loop.RunFinished once the run has torn down its
// injection queue.
func (t *Token) RunSyncSoon(fn func()) error {
	return t.runner.RunSyncSoon(fn)
}

// RunSyncSoonIdempotent is RunSyncSoon, except repeated calls sharing key
// before fn has run collapse into a single invocation (spec.md §4.5).
func (t *Token) RunSyncSoonIdempotent(key string, fn func()) error {
	return t.runner.RunSyncSoonIdempotent(key, fn)
}
