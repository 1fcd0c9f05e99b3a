// Package loop implements a single-threaded cooperative concurrency core:
// a run loop that multiplexes many suspendable Tasks over one goroutine's
// worth of logical execution, structured concurrency via Nursery, tree
// cancellation via CancelScope, and a thread/signal-safe injection queue
// bridging foreign goroutines back into the loop.
package loop

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/NetPo4ki/looprt/internal/log"
)

// Reactor is the I/O multiplexer the runner polls once per loop iteration.
// It is the only place the process may block (spec.md §6).
type Reactor interface {
	// HandleIO blocks up to timeout, may return early on wakeup, and must
	// reschedule any tasks whose I/O interests fired.
	HandleIO(timeout time.Duration) error
	// Statistics returns a snapshot used by Runner.CurrentStatistics.
	Statistics() ReactorStats
	// Close releases kernel resources at run end.
	Close() error
}

// ReactorStats is an opaque snapshot a Reactor implementation reports.
type ReactorStats struct {
	TasksWaitingOnIO int
	IOWakes          int64
}

// Statistics summarizes current runner state (trio's _RunStatistics).
type Statistics struct {
	TasksRunnable           int
	SecondsToNextDeadline   float64
	IOStatistics            ReactorStats
	CallSoonQueueSize       int
}

// RunnerConfig configures a Runner at construction time.
type RunnerConfig struct {
	Clock  Clock
	Logger *log.Logger
	// Seed seeds the per-run PRNG used to randomize batch order; 0 means
	// "pick one and make it observable" (spec.md §9).
	Seed uint64
	Instruments []Instrument
}

type deadlineEntry struct {
	deadline time.Time
	scope    *CancelScope
	gen      uint64
}

type deadlineHeap []*deadlineEntry

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x any)         { *h = append(*h, x.(*deadlineEntry)) }
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Runner owns the run queue, the task set, the deadline index, the
// injection queue, the I/O reactor, and the instrument list for a single
// run (spec.md §3).
type Runner struct {
	clock   Clock
	logger  *log.Logger
	reactor Reactor
	instr   *instruments
	wakeup  *WakeupChannel
	inject  *injectionQueue

	seed uint64
	rng  *rand.Rand

	runQueue    []*Task
	tasks       map[*Task]struct{}
	idleWaiters []*Task
	deadlines   deadlineHeap

	taskSeq  uint64
	scopeSeq uint64

	initTask      *Task
	mainTask      *Task
	drainTask     *Task
	systemNursery *Nursery

	kiMu      sync.Mutex
	kiPending bool

	ioWakes int64

	// drainParked is true while the injection-queue drain task is parked
	// waiting for new work; only ever read/written from the loop thread.
	drainParked bool

	finished bool
}

// NewRunner constructs a Runner ready for Run. reactorFactory builds the
// Reactor from the runner's own WakeupChannel, so that cross-goroutine
// wakeups (the injection queue, DeliverKI) and the reactor's blocking wait
// share one notification path rather than two independently-constructed
// ones. A nil cfg.Clock defaults to a SystemClock with a randomized offset;
// a nil cfg.Logger discards.
func NewRunner(reactorFactory func(*WakeupChannel) (Reactor, error), cfg RunnerConfig) (*Runner, error) {
	clock := cfg.Clock
	if clock == nil {
		clock = NewSystemClock(10000 * time.Second)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	r := &Runner{
		clock:  clock,
		logger: logger,
		instr:  newInstruments(logger),
		wakeup: NewWakeupChannel(),
		tasks:  make(map[*Task]struct{}),
		seed:   seed,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	reactor, err := reactorFactory(r.wakeup)
	if err != nil {
		return nil, err
	}
	r.reactor = reactor
	r.inject = newInjectionQueue(r.wakeup)
	for _, i := range cfg.Instruments {
		r.instr.add(i)
	}
	return r, nil
}

// Seed returns the PRNG seed driving batch-order randomization, for
// reproducing bug reports (spec.md §9).
func (r *Runner) Seed() uint64 { return r.seed }

// Clock returns the runner's clock.
func (r *Runner) Clock() Clock { return r.clock }

// AddInstrument installs an instrument mid-run.
func (r *Runner) AddInstrument(i Instrument) { r.instr.add(i) }

// RemoveInstrument removes a previously-installed instrument.
func (r *Runner) RemoveInstrument(i Instrument) { r.instr.remove(i) }

// CurrentStatistics reports a snapshot of runner state.
func (r *Runner) CurrentStatistics() Statistics {
	seconds := math.Inf(1)
	if d, ok := r.peekEarliestDeadline(); ok {
		seconds = r.clock.DeadlineToSleepTime(d).Seconds()
	}
	stats := Statistics{
		TasksRunnable:         len(r.runQueue),
		SecondsToNextDeadline: seconds,
		CallSoonQueueSize:     r.inject.size(),
	}
	if r.reactor != nil {
		stats.IOStatistics = r.reactor.Statistics()
	}
	return stats
}

// reregisterDeadline bumps the scope's generation and, if its effective
// deadline is still finite, pushes a fresh heap entry (spec.md §4.3's
// deadline-index invariant, implemented via lazy deletion since
// container/heap has no O(log n) arbitrary removal).
func (r *Runner) reregisterDeadline(s *CancelScope) {
	s.gen++
	if deadline, ok := s.effectiveRegistration(); ok {
		heap.Push(&r.deadlines, &deadlineEntry{deadline: deadline, scope: s, gen: s.gen})
	}
}

// peekEarliestDeadline returns the earliest still-valid deadline entry,
// discarding stale (superseded) entries along the way.
func (r *Runner) peekEarliestDeadline() (time.Time, bool) {
	for len(r.deadlines) > 0 {
		top := r.deadlines[0]
		if top.gen != top.scope.gen {
			heap.Pop(&r.deadlines)
			continue
		}
		return top.deadline, true
	}
	return time.Time{}, false
}

// expireDeadlines implements spec.md §4.1 step 3: cancel every scope whose
// deadline has passed.
func (r *Runner) expireDeadlines(now time.Time) {
	for {
		d, ok := r.peekEarliestDeadline()
		if !ok || d.After(now) {
			return
		}
		entry := heap.Pop(&r.deadlines).(*deadlineEntry)
		entry.scope.Cancel()
	}
}

func (r *Runner) enqueue(t *Task) {
	t.state = stateRunnable
	r.runQueue = append(r.runQueue, t)
}

// Reschedule is the only way to resume an indefinitely-suspended task.
// Precondition: t belongs to this runner and is currently suspended.
// Postcondition: t is enqueued, its abort callback cleared.
func (r *Runner) Reschedule(t *Task, out Outcome) {
	if t.state != stateSuspended {
		panic("loop: Reschedule called on a task that is not suspended")
	}
	t.abort = nil
	t.pendingNext = &out
	r.enqueue(t)
}

// attemptDeliverCancel implements the delivery algorithm of spec.md §4.3.
func (r *Runner) attemptDeliverCancel(t *Task) {
	if t.state != stateSuspended || t.abort == nil {
		return
	}
	pending := t.pendingCancelScope()
	if pending == nil {
		return
	}
	cause := pending.causeFor(t)
	abort := t.abort
	result := abort(func() Outcome { return ErrorOutcome(cause) })
	if result == AbortSucceeded {
		r.Reschedule(t, ErrorOutcome(cause))
	}
}

func (r *Runner) removeIdleWaiter(t *Task) {
	for i, w := range r.idleWaiters {
		if w == t {
			r.idleWaiters = append(r.idleWaiters[:i], r.idleWaiters[i+1:]...)
			return
		}
	}
}

// WaitRunLoopIdle suspends the calling task until a loop iteration finds
// the run queue empty (spec.md §4.1 step 4); this is the defining signal
// used by collaborators that want to know "nothing else is runnable right
// now".
func WaitRunLoopIdle(t *Task) error {
	r := t.runner
	r.idleWaiters = append(r.idleWaiters, t)
	out := t.suspend(SuspendIndefinite, func(raiseCancel func() Outcome) AbortOutcome {
		r.removeIdleWaiter(t)
		return AbortSucceeded
	})
	return out.Err()
}

func removeMonitor(target, waiter *Task) {
	for i, w := range target.monitors {
		if w == waiter {
			target.monitors = append(target.monitors[:i], target.monitors[i+1:]...)
			return
		}
	}
}

// Wait blocks the caller task until target finishes, returning target's
// outcome. If the wait itself is cancelled, the second return carries the
// cancellation cause instead.
func Wait(caller, target *Task) (Outcome, error) {
	if target.state == stateFinished {
		return *target.outcome, nil
	}
	target.monitors = append(target.monitors, caller)
	res := caller.suspend(SuspendIndefinite, func(raiseCancel func() Outcome) AbortOutcome {
		removeMonitor(target, caller)
		return AbortSucceeded
	})
	if res.IsError() {
		return Outcome{}, res.Err()
	}
	return *target.outcome, nil
}

func (r *Runner) taskFinished(t *Task, out Outcome) {
	stack := append([]*CancelScope{}, t.scopeStack...)
	for i := len(stack) - 1; i >= 0; i-- {
		s := stack[i]
		delete(s.tasks, t)
		delete(s.cause, t)
		r.reregisterDeadline(s)
	}
	t.scopeStack = nil
	t.outcome = &out
	t.state = stateFinished
	delete(r.tasks, t)

	monitors := t.monitors
	t.monitors = nil
	for _, waiter := range monitors {
		if waiter.state == stateSuspended {
			r.Reschedule(waiter, ValueOutcome(t))
		}
	}

	if t.nursery != nil {
		t.nursery.childFinished(t, out)
	}
}

// spawn creates and schedules a new task bound to inherited (a snapshot of
// the spawning context's scope stack), optionally owned by nursery.
func (r *Runner) spawn(fn func(*Task) (any, error), nursery *Nursery, inherited []*CancelScope, label string, kind TaskKind) *Task {
	r.taskSeq++
	t := &Task{
		id:       r.taskSeq,
		kind:     kind,
		runner:   r,
		nursery:  nursery,
		label:    label,
		resumeCh: make(chan Outcome),
		yieldCh:  make(chan suspendRequest),
		doneCh:   make(chan struct{}),
	}
	t.scopeStack = append([]*CancelScope{}, inherited...)
	for _, s := range t.scopeStack {
		s.tasks[t] = struct{}{}
		r.reregisterDeadline(s)
	}
	if kind == TaskSystem {
		t.EnableKIProtection()
	}
	r.tasks[t] = struct{}{}
	if nursery != nil {
		nursery.children[t] = struct{}{}
	}
	go r.taskMain(t, fn)
	r.enqueue(t)
	r.instr.taskScheduled(t)
	return t
}

func (r *Runner) taskMain(t *Task, fn func(*Task) (any, error)) {
	<-t.resumeCh // wait for the first step's "start" token
	var result any
	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = panicToError(rec)
			}
		}()
		result, err = fn(t)
	}()
	if err != nil {
		t.finishOutcome = ErrorOutcome(err)
	} else {
		t.finishOutcome = ValueOutcome(result)
	}
	close(t.doneCh)
}

// step implements spec.md §4.1 step 5 for a single task.
func (r *Runner) step(t *Task) {
	r.instr.beforeTaskStep(t)

	var send Outcome
	if t.pendingNext != nil {
		send = *t.pendingNext
		t.pendingNext = nil
	}
	t.resumeCh <- send

	select {
	case <-t.doneCh:
		r.taskFinished(t, t.finishOutcome)
	case req := <-t.yieldCh:
		switch req.kind {
		case SuspendBriefNoCancel:
			r.enqueue(t)
		case SuspendIndefinite:
			t.state = stateSuspended
			t.abort = req.abort
			r.attemptDeliverCancel(t)
			if t == r.mainTask {
				r.attemptDeliverKI()
			}
		}
	}

	r.instr.afterTaskStep(t)
}

func (r *Runner) shuffle(batch []*Task) {
	r.rng.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })
}

// runOnce executes one loop iteration (spec.md §4.1). It returns nil
// without doing anything once there is nothing left to ever run, and an
// InternalError if the reactor fails.
func (r *Runner) runOnce() error {
	if len(r.tasks) == 0 {
		return nil
	}

	timeout := r.computeTimeout()
	r.instr.beforeIOWait(timeout.Seconds())
	if err := r.reactor.HandleIO(timeout); err != nil {
		return newInternalError(err)
	}
	r.instr.afterIOWait(timeout.Seconds())
	r.wakeup.Drain()

	if r.drainParked && !r.inject.empty() {
		r.drainParked = false
		if r.drainTask != nil && r.drainTask.state == stateSuspended {
			r.Reschedule(r.drainTask, ValueOutcome(nil))
		}
	}

	r.expireDeadlines(r.clock.Now())

	if len(r.runQueue) == 0 && len(r.idleWaiters) > 0 {
		waiters := r.idleWaiters
		r.idleWaiters = nil
		for _, t := range waiters {
			if t.state == stateSuspended {
				r.Reschedule(t, ValueOutcome(nil))
			}
		}
	}

	batch := r.runQueue
	r.runQueue = nil
	r.shuffle(batch)
	for _, t := range batch {
		if t.state != stateRunnable {
			continue
		}
		r.step(t)
	}
	return nil
}

const maxIOTimeout = 24 * time.Hour

func (r *Runner) computeTimeout() time.Duration {
	if len(r.runQueue) > 0 || len(r.idleWaiters) > 0 {
		return 0
	}
	if d, ok := r.peekEarliestDeadline(); ok {
		t := r.clock.DeadlineToSleepTime(d)
		if t < 0 {
			t = 0
		}
		if t > maxIOTimeout {
			t = maxIOTimeout
		}
		return t
	}
	return maxIOTimeout
}

// Run drives the loop until fn (the "main task") and every task it
// transitively spawns have finished, then returns fn's result. This
// implements the "init task owns a system nursery which owns the main
// task" structure spec.md §9 selects between the source's two drafts.
func (r *Runner) Run(fn func(t *Task) (any, error)) (any, error) {
	r.instr.beforeRun()
	defer r.instr.afterRun()

	r.initTask = r.spawn(func(initT *Task) (any, error) {
		sysNursery := OpenNursery(initT)
		r.systemNursery = sysNursery

		r.drainTask = r.spawn(func(dt *Task) (any, error) {
			return nil, r.drainLoop(dt)
		}, sysNursery, initT.scopeStack, "system-injection-drain", TaskSystem)

		r.mainTask = sysNursery.Spawn(func(mt *Task) (any, error) {
			return fn(mt)
		}, "main")

		mainOut, _ := Wait(initT, r.mainTask)

		r.systemNursery.CancelScope().Cancel()

		nurseryErr := sysNursery.Close(nil)
		if mainOut.IsError() && nurseryErr != nil {
			return nil, NewAggregateError(mainOut.Err(), nurseryErr)
		}
		if mainOut.IsError() {
			return nil, mainOut.Err()
		}
		if nurseryErr != nil {
			return nil, nurseryErr
		}
		return mainOut.Value(), nil
	}, nil, nil, "init", TaskSystem)

	for len(r.tasks) > 0 {
		if err := r.runOnce(); err != nil {
			closeErr := r.reactor.Close()
			_ = closeErr
			return nil, err
		}
	}

	if err := r.reactor.Close(); err != nil {
		r.logger.Error("reactor close failed", "err", err)
	}

	initOut := r.initTask.outcome
	if initOut == nil {
		return nil, newInternalError(errUnexpectedEmptyOutcome)
	}

	if r.takeKIPending() {
		ki := error(&KICancelled{})
		if initOut.IsError() {
			return nil, NewAggregateError(initOut.Err(), ki)
		}
		return nil, ki
	}

	return initOut.Unwrap()
}

var errUnexpectedEmptyOutcome = newPlainError("init task finished without an outcome")

type plainError struct{ msg string }

func (e *plainError) Error() string { return e.msg }
func newPlainError(msg string) error { return &plainError{msg: msg} }

func panicToError(rec any) error {
	if err, ok := rec.(error); ok {
		return &taskPanicError{cause: err}
	}
	return &taskPanicError{cause: newPlainError(fmt.Sprintf("%v", rec))}
}

type taskPanicError struct{ cause error }

func (e *taskPanicError) Error() string { return "panic: " + e.cause.Error() }
func (e *taskPanicError) Unwrap() error { return e.cause }

// drainLoop is the dedicated system task of spec.md §4.5: it repeatedly
// processes a bounded batch from each injection queue, then either sleeps
// on the WakeupChannel or yields briefly, until cancelled, at which point
// it closes the queue and performs one final drain.
func (r *Runner) drainLoop(t *Task) error {
	for {
		jobs := r.inject.drainBatch()
		for _, job := range jobs {
			if err := runInjectedJob(job); err != nil {
				return newInternalError(err)
			}
		}
		if t.pendingCancelScope() != nil {
			break
		}
		if len(jobs) == 0 && r.inject.empty() {
			if err := parkForInjection(t); err != nil {
				break
			}
		} else if err := Checkpoint(t); err != nil {
			break
		}
	}
	final := r.inject.close()
	for _, job := range final {
		if err := runInjectedJob(job); err != nil {
			r.logger.Error("injected callback failed during final drain", "err", err)
		}
	}
	return nil
}

func runInjectedJob(job func()) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicToError(rec)
		}
	}()
	job()
	return nil
}

// parkForInjection suspends t until the runner observes new injected work
// (see runOnce's drainParked check) or t is cancelled. Only ever called
// from the drain task's own goroutine.
func parkForInjection(t *Task) error {
	r := t.runner
	r.drainParked = true
	out := t.suspend(SuspendIndefinite, func(raiseCancel func() Outcome) AbortOutcome {
		r.drainParked = false
		return AbortSucceeded
	})
	return out.Err()
}
