package loop

import "fmt"

// SuspendKind distinguishes the two legal suspension tokens a task body may
// yield to the runner (spec.md §4.2).
type SuspendKind int

const (
	// SuspendBriefNoCancel reschedules the task as if it had just yielded,
	// without attempting to deliver a pending cancellation.
	SuspendBriefNoCancel SuspendKind = iota
	// SuspendIndefinite parks the task until someone calls
	// Runner.Reschedule, offering abort as a cancellation hook.
	SuspendIndefinite
)

// AbortOutcome is the result of calling a task's abort callback.
type AbortOutcome int

const (
	// AbortFailed means the blocking code could not be aborted right now;
	// it undertakes to reschedule itself eventually.
	AbortFailed AbortOutcome = iota
	// AbortSucceeded means the abort landed; the runner is free to
	// reschedule the task with the cancellation cause.
	AbortSucceeded
)

// AbortFunc negotiates cancellation delivery for an indefinitely-suspended
// task. raiseCancel, if called, returns the Outcome that should be used to
// resume the task when the abort succeeds.
type AbortFunc func(raiseCancel func() Outcome) AbortOutcome

// suspendRequest is what a parked task goroutine sends to the runner when
// it yields control.
type suspendRequest struct {
	kind  SuspendKind
	abort AbortFunc
}

// TaskKind distinguishes system tasks (the injection-queue drain, the
// system nursery's bookkeeping) from regular user tasks, mainly so that KI
// protection defaults can differ (spec.md §4.6).
type TaskKind int

const (
	// TaskRegular is an ordinary user-spawned task; runs KI-unprotected.
	TaskRegular TaskKind = iota
	// TaskSystem is a runner-owned task; runs KI-protected by default.
	TaskSystem
)

// taskState is the three-way invariant of spec.md §8 property 1.
type taskState int

const (
	stateRunnable taskState = iota
	stateSuspended
	stateFinished
)

// Task is a single suspendable execution context on the loop.
type Task struct {
	id      uint64
	kind    TaskKind
	runner  *Runner
	nursery *Nursery // owning nursery; nil for the init task

	scopeStack []*CancelScope // outer -> inner

	state taskState
	abort AbortFunc // non-nil iff state == stateSuspended

	outcome       *Outcome
	pendingNext   *Outcome // the value to hand to the task at its next resume
	finishOutcome Outcome  // set by taskMain just before doneCh closes
	monitors      []*Task
	kiDepth       int
	label         string

	resumeCh chan Outcome
	yieldCh  chan suspendRequest
	doneCh   chan struct{}
}

// ID returns the task's runner-unique identifier.
func (t *Task) ID() uint64 { return t.id }

// Kind reports whether this is a system or regular task.
func (t *Task) Kind() TaskKind { return t.kind }

// Label returns the human-readable name given at spawn time, if any.
func (t *Task) Label() string { return t.label }

// Nursery returns the task's owning nursery, or nil for the init task.
func (t *Task) Nursery() *Nursery { return t.nursery }

// Runner returns the Runner this task belongs to, mainly so foreign
// packages (token.Current) can bridge back into the loop without the core
// importing them.
func (t *Task) Runner() *Runner { return t.runner }

// Outcome returns the task's final outcome, or nil if it has not finished.
func (t *Task) Outcome() *Outcome { return t.outcome }

func (t *Task) innermostScope() *CancelScope {
	if len(t.scopeStack) == 0 {
		return nil
	}
	return t.scopeStack[len(t.scopeStack)-1]
}

func (t *Task) pushScope(s *CancelScope) {
	t.scopeStack = append(t.scopeStack, s)
}

func (t *Task) popScope(s *CancelScope) {
	n := len(t.scopeStack)
	if n == 0 || t.scopeStack[n-1] != s {
		panic("loop: scope exited out of order")
	}
	t.scopeStack = t.scopeStack[:n-1]
}

// EnableKIProtection increments this task's KI-protection depth. Balanced
// calls only; the runtime itself calls it only when spawning system tasks.
func (t *Task) EnableKIProtection() { t.kiDepth++ }

// DisableKIProtection decrements this task's KI-protection depth.
func (t *Task) DisableKIProtection() {
	if t.kiDepth > 0 {
		t.kiDepth--
	}
}

// kiProtected reports whether the currently running code in this task is
// shielded from immediate keyboard-interrupt delivery.
func (t *Task) kiProtected() bool { return t.kiDepth > 0 }

// suspend is the single primitive by which a task body yields to the
// runner. It must only be called from the task's own goroutine.
func (t *Task) suspend(kind SuspendKind, abort AbortFunc) Outcome {
	t.yieldCh <- suspendRequest{kind: kind, abort: abort}
	return <-t.resumeCh
}

// Checkpoint is a full cancellation checkpoint (spec.md §4.2): it first
// raises any already-pending cancellation without yielding
// (CheckpointIfCancelled), then unconditionally gives the runner a
// scheduling point via a brief, cancel-shielded-from-this-call suspension
// (trio's checkpoint = checkpoint_if_cancelled + cancel_shielded_checkpoint).
func Checkpoint(t *Task) error {
	if err := CheckpointIfCancelled(t); err != nil {
		return err
	}
	t.suspend(SuspendBriefNoCancel, nil)
	return nil
}

// CheckpointIfCancelled raises the pending cancellation cause, if any, on
// this task's scope stack without otherwise suspending; a no-op if nothing
// is pending.
func CheckpointIfCancelled(t *Task) error {
	if s := t.pendingCancelScope(); s != nil {
		return s.causeFor(t)
	}
	return nil
}

// pendingCancelScope walks the scope stack outer->inner per spec.md §4.3
// step 2, returning the outermost cancel-requested scope not masked by an
// inner shield, or nil if none is pending.
func (t *Task) pendingCancelScope() *CancelScope {
	var pending *CancelScope
	for _, s := range t.scopeStack {
		if s.shield {
			pending = nil
			continue
		}
		if s.cancelRequested && pending == nil {
			pending = s
		}
	}
	return pending
}

func (t *Task) String() string {
	if t.label != "" {
		return fmt.Sprintf("task(%d:%s)", t.id, t.label)
	}
	return fmt.Sprintf("task(%d)", t.id)
}
