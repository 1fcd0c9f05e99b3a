// Package otel provides an OpenTelemetry-shaped loop.Instrument plugin for
// the loop runtime. Its only instrument, Nop, implements every hook as a
// no-op; it emits no spans or events.
package otel
