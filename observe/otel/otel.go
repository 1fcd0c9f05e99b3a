package otel

import "github.com/NetPo4ki/looprt/loop"

// Nop is a no-op implementation of loop.Instrument. It serves as a
// placeholder for an OpenTelemetry-backed instrument without adding a
// dependency the rest of the retrieved pack never reaches for (no example
// repo imports go.opentelemetry.io/*; see DESIGN.md).
type Nop struct{}

// NewNop returns a no-op instrument.
func NewNop() *Nop { return &Nop{} }

// BeforeRun is a no-op.
func (*Nop) BeforeRun() {}

// AfterRun is a no-op.
func (*Nop) AfterRun() {}

// TaskScheduled is a no-op.
func (*Nop) TaskScheduled(*loop.Task) {}

// BeforeTaskStep is a no-op.
func (*Nop) BeforeTaskStep(*loop.Task) {}

// AfterTaskStep is a no-op.
func (*Nop) AfterTaskStep(*loop.Task) {}

// BeforeIOWait is a no-op.
func (*Nop) BeforeIOWait(float64) {}

// AfterIOWait is a no-op.
func (*Nop) AfterIOWait(float64) {}
