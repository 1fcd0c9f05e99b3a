// Package signalsafe wires OS signal delivery into a loop.Runner's
// keyboard-interrupt protection (spec.md §4.6/§9).
package signalsafe

import (
	"os"
	"os/signal"

	"github.com/NetPo4ki/looprt/loop"
)

// Bridge forwards os.Interrupt (and any additional signals given to
// Install) into Runner.DeliverKI. Go's os/signal.Notify already hands
// signals to an ordinary goroutine rather than a raw signal handler, so
// unlike spec.md's source language this bridge needs no self-pipe of its
// own — it only needs DeliverKI itself to be safe to call concurrently
// with the loop thread, which it is (see loop/ki.go).
type Bridge struct {
	runner *loop.Runner
	sigCh  chan os.Signal
	stop   chan struct{}
}

// Install starts forwarding sig (os.Interrupt if none given) to r until
// Stop is called.
func Install(r *loop.Runner, sig ...os.Signal) *Bridge {
	if len(sig) == 0 {
		sig = []os.Signal{os.Interrupt}
	}
	b := &Bridge{
		runner: r,
		sigCh:  make(chan os.Signal, 1),
		stop:   make(chan struct{}),
	}
	signal.Notify(b.sigCh, sig...)
	go b.run()
	return b
}

func (b *Bridge) run() {
	for {
		select {
		case <-b.sigCh:
			b.runner.DeliverKI()
		case <-b.stop:
			return
		}
	}
}

// Stop unregisters the signal channel and ends the forwarding goroutine.
func (b *Bridge) Stop() {
	signal.Stop(b.sigCh)
	close(b.stop)
}
