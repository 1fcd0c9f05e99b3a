package loop

import "github.com/NetPo4ki/looprt/internal/log"

// Instrument receives lifecycle events from the run loop. Implementations
// that only care about a subset of hooks may embed NopInstrument to get
// no-op defaults for the rest, the Go equivalent of the source's duck-typed
// "missing names are skipped" (spec.md §4.7/§6).
type Instrument interface {
	BeforeRun()
	AfterRun()
	TaskScheduled(t *Task)
	BeforeTaskStep(t *Task)
	AfterTaskStep(t *Task)
	BeforeIOWait(timeout float64)
	AfterIOWait(timeout float64)
}

// NopInstrument implements Instrument with no-op methods.
type NopInstrument struct{}

func (NopInstrument) BeforeRun()                 {}
func (NopInstrument) AfterRun()                  {}
func (NopInstrument) TaskScheduled(*Task)         {}
func (NopInstrument) BeforeTaskStep(*Task)        {}
func (NopInstrument) AfterTaskStep(*Task)         {}
func (NopInstrument) BeforeIOWait(float64)        {}
func (NopInstrument) AfterIOWait(float64)         {}

// instruments is the hook table described in spec.md §4.7: one set of
// installed instruments shared by all hooks, so that firing a hook with
// nothing installed costs only a length check, and add/remove during a
// firing doesn't corrupt iteration (every firing iterates over a fresh
// snapshot; see snapshot).
type instruments struct {
	all     map[Instrument]struct{}
	inCall  int
	current []Instrument // the slice currently being iterated, if inCall>0
	logger  *log.Logger
}

func newInstruments(logger *log.Logger) *instruments {
	return &instruments{all: make(map[Instrument]struct{}), logger: logger}
}

func (in *instruments) add(i Instrument) {
	in.all[i] = struct{}{}
}

func (in *instruments) remove(i Instrument) {
	delete(in.all, i)
}

func (in *instruments) empty() bool { return len(in.all) == 0 }

// snapshot returns the list of instruments to invoke for this firing. If a
// firing is already in progress (reentrant hook invocation), later
// mutations must not affect it; this implementation simply copies the map
// into a fresh slice on every firing, which sidesteps "dict changed size
// during iteration" entirely since Go gives us no live-iterator aliasing
// problem to dodge (the trio source must defend against exactly this via
// as_mutable(); Go's value-slice semantics remove the hazard).
func (in *instruments) snapshot() []Instrument {
	out := make([]Instrument, 0, len(in.all))
	for i := range in.all {
		out = append(out, i)
	}
	return out
}

func (in *instruments) fire(name string, call func(Instrument)) {
	if in.empty() {
		return
	}
	for _, i := range in.snapshot() {
		in.safeCall(name, i, call)
	}
}

func (in *instruments) safeCall(name string, i Instrument, call func(Instrument)) {
	defer func() {
		if r := recover(); r != nil {
			in.remove(i)
			in.logger.Error("instrument panicked; disabling it", "hook", name, "panic", r)
		}
	}()
	call(i)
}

func (in *instruments) beforeRun() {
	in.fire("before_run", func(i Instrument) { i.BeforeRun() })
}
func (in *instruments) afterRun() {
	in.fire("after_run", func(i Instrument) { i.AfterRun() })
}
func (in *instruments) taskScheduled(t *Task) {
	in.fire("task_scheduled", func(i Instrument) { i.TaskScheduled(t) })
}
func (in *instruments) beforeTaskStep(t *Task) {
	in.fire("before_task_step", func(i Instrument) { i.BeforeTaskStep(t) })
}
func (in *instruments) afterTaskStep(t *Task) {
	in.fire("after_task_step", func(i Instrument) { i.AfterTaskStep(t) })
}
func (in *instruments) beforeIOWait(timeout float64) {
	in.fire("before_io_wait", func(i Instrument) { i.BeforeIOWait(timeout) })
}
func (in *instruments) afterIOWait(timeout float64) {
	in.fire("after_io_wait", func(i Instrument) { i.AfterIOWait(timeout) })
}
