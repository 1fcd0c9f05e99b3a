package loop_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/NetPo4ki/looprt/loop"
	"github.com/NetPo4ki/looprt/reactor"
)

func newTestRunner(t *testing.T, clock loop.Clock) *loop.Runner {
	t.Helper()
	r, err := loop.NewRunner(reactor.New, loop.RunnerConfig{Clock: clock})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r
}

// S1: a trivial run returns the main task's value untouched.
func TestScenarioTrivialReturn(t *testing.T) {
	defer goleak.VerifyNone(t)
	r := newTestRunner(t, loop.NewMockClock())
	result, err := r.Run(func(*loop.Task) (any, error) { return "done", nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "done" {
		t.Fatalf("got %v, want done", result)
	}
}

// S2: two children crash concurrently; the nursery raises an
// AggregateError carrying both causes rather than just the first.
func TestScenarioChildCrashAggregates(t *testing.T) {
	defer goleak.VerifyNone(t)
	r := newTestRunner(t, loop.NewMockClock())
	e1 := errors.New("child1 failed")
	e2 := errors.New("child2 failed")

	_, err := r.Run(func(main *loop.Task) (result any, outErr error) {
		nursery := loop.OpenNursery(main)
		defer func() { outErr = nursery.Close(outErr) }()
		nursery.Spawn(func(*loop.Task) (any, error) { return nil, e1 }, "c1")
		nursery.Spawn(func(*loop.Task) (any, error) { return nil, e2 }, "c2")
		return nil, nil
	})

	var agg *loop.AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("expected *AggregateError, got %#v", err)
	}
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Fatalf("aggregate lost a cause: %v", err)
	}
}

// S3: a scope deadline that passes while the main task sleeps cancels the
// sleep and the scope-exit filter absorbs the cancellation.
func TestScenarioDeadlineCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)
	clock := loop.NewMockClock()
	r := newTestRunner(t, clock)

	advance := make(chan struct{})
	go func() {
		<-advance
		clock.Advance(time.Hour)
		_ = r.RunSyncSoon(func() {})
	}()

	_, err := r.Run(func(main *loop.Task) (result any, outErr error) {
		deadline := loop.OpenTimeoutScope(main, time.Minute, false)
		defer func() {
			deadline.Close(main)
			outErr = deadline.Filter(outErr)
		}()
		close(advance)
		return nil, loop.Sleep(main, 24*time.Hour)
	})
	if err != nil {
		t.Fatalf("deadline should have been absorbed by its own scope, got %v", err)
	}
}

// S4: a sibling's failure cancels the nursery scope; a shielded scope
// nested inside it keeps that cancellation from landing at the cleanup
// task's checkpoints, so the cleanup finishes its own work uninterrupted,
// and the nursery still reports the sibling's error.
func TestScenarioShieldAbsorbsOuterCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)
	r := newTestRunner(t, loop.NewMockClock())
	ran := false

	_, err := r.Run(func(main *loop.Task) (result any, outErr error) {
		nursery := loop.OpenNursery(main)
		defer func() { outErr = nursery.Close(outErr) }()

		nursery.Spawn(func(*loop.Task) (any, error) {
			return nil, errors.New("boom")
		}, "fails")

		nursery.Spawn(func(ct *loop.Task) (any, error) {
			cleanup := loop.OpenCancelScope(ct, time.Time{}, true)
			defer cleanup.Close(ct)
			for !nursery.CancelScope().CancelRequested() {
				if err := loop.Checkpoint(ct); err != nil {
					return nil, err
				}
			}
			if err := loop.Checkpoint(ct); err != nil {
				return nil, err
			}
			ran = true
			return nil, nil
		}, "cleanup")

		return nil, nil
	})
	if err == nil {
		t.Fatal("expected the nursery to report the sibling's error")
	}
	if !ran {
		t.Fatal("shielded cleanup task should have run to completion")
	}
}

// S5: a Limiter blocks a second acquirer until the first releases. This
// holds the first slot from the main task itself (no deadline involved,
// so a MockClock that's never advanced can't strand it), and uses a
// cancel-shielded-from-nothing Checkpoint purely as a scheduling point
// rather than a timed Sleep, so the assertion doesn't depend on how the
// runner happens to shuffle the batch containing "second".
func TestScenarioLimiterBlocksThenUnblocks(t *testing.T) {
	defer goleak.VerifyNone(t)
	r := newTestRunner(t, loop.NewMockClock())
	lim := loop.NewLimiter(1)
	var order []string

	_, err := r.Run(func(main *loop.Task) (result any, outErr error) {
		if err := lim.Acquire(main); err != nil {
			return nil, err
		}
		order = append(order, "main-acquired")

		nursery := loop.OpenNursery(main)
		defer func() { outErr = nursery.Close(outErr) }()

		nursery.Spawn(func(ct *loop.Task) (any, error) {
			if err := lim.Acquire(ct); err != nil {
				return nil, err
			}
			defer lim.Release()
			order = append(order, "second-acquired")
			return nil, nil
		}, "second")

		// Give "second" a chance to run; it must still be blocked on
		// Acquire, since main hasn't released its slot yet.
		if err := loop.Checkpoint(main); err != nil {
			return nil, err
		}
		if len(order) != 1 {
			return nil, fmt.Errorf("second should still be blocked on Acquire, got %v", order)
		}

		lim.Release()
		order = append(order, "main-released")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 3 || order[0] != "main-acquired" || order[1] != "main-released" || order[2] != "second-acquired" {
		t.Fatalf("expected serialized acquisition, got %v", order)
	}
}

// S6: once Run has returned, RunSyncSoon reports RunFinished instead of
// silently enqueueing into a dead runner.
func TestScenarioRunSyncSoonAfterRunFinished(t *testing.T) {
	defer goleak.VerifyNone(t)
	r := newTestRunner(t, loop.NewMockClock())
	_, err := r.Run(func(*loop.Task) (any, error) { return nil, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.RunSyncSoon(func() {}); !errors.Is(err, loop.RunFinished) {
		t.Fatalf("expected RunFinished after Run returned, got %v", err)
	}
}
