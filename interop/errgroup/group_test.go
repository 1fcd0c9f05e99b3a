package errgroup

import (
	"errors"
	"testing"
	"time"

	"github.com/NetPo4ki/looprt/loop"
	"github.com/NetPo4ki/looprt/reactor"
)

func runInLoop(t *testing.T, fn func(task *loop.Task) (any, error)) (any, error) {
	t.Helper()
	r, err := loop.NewRunner(reactor.New, loop.RunnerConfig{Clock: loop.NewMockClock()})
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r.Run(fn)
}

func TestGroupHappy(t *testing.T) {
	t.Parallel()
	_, err := runInLoop(t, func(task *loop.Task) (result any, runErr error) {
		g := WithNursery(task)
		defer func() { runErr = g.Wait() }()
		g.Go(func(*loop.Task) error { return nil })
		g.Go(func(*loop.Task) error { return nil })
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGroupErrorCancelsSiblings(t *testing.T) {
	t.Parallel()
	sawCancel := make(chan struct{}, 1)
	_, err := runInLoop(t, func(task *loop.Task) (result any, runErr error) {
		g := WithNursery(task)
		defer func() { runErr = g.Wait() }()
		g.Go(func(*loop.Task) error { return errors.New("boom") })
		g.Go(func(ct *loop.Task) error {
			err := loop.Sleep(ct, time.Hour)
			if err != nil {
				sawCancel <- struct{}{}
			}
			return err
		})
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected error")
	}
	select {
	case <-sawCancel:
	default:
		t.Fatal("sibling was not cancelled")
	}
}
