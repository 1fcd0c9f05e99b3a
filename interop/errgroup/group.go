// Package errgroup provides an adapter that mimics golang.org/x/sync/errgroup
// semantics using loop.Nursery. It enables incremental migration of
// errgroup-shaped code onto the loop runtime without pulling errgroup
// itself into the core.
package errgroup

import "github.com/NetPo4ki/looprt/loop"

// Group is an errgroup-like wrapper over a loop.Nursery: the first child
// error cancels the remaining children (errgroup's fail-fast semantics,
// realized here via the nursery's own cancel-on-first-failure rule).
type Group struct {
	nursery *loop.Nursery
}

// WithNursery opens a Group bound to parent's cancel-scope tree. The
// returned Group must have Wait called exactly once, typically via defer,
// mirroring loop.OpenNursery's own contract.
func WithNursery(parent *loop.Task) *Group {
	return &Group{nursery: loop.OpenNursery(parent)}
}

// Go spawns f as a child task of the group.
func (g *Group) Go(f func(t *loop.Task) error) {
	g.nursery.Spawn(func(ct *loop.Task) (any, error) {
		return nil, f(ct)
	}, "")
}

// Wait blocks until every spawned child has finished, returning the first
// non-nil error, or an AggregateError if several failed concurrently.
func (g *Group) Wait() error {
	return g.nursery.Close(nil)
}
