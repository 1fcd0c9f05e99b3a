package token_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NetPo4ki/looprt/loop"
	"github.com/NetPo4ki/looprt/reactor"
	"github.com/NetPo4ki/looprt/token"
)

func TestCurrentRunsOnTheOwningRunner(t *testing.T) {
	r, err := loop.NewRunner(reactor.New, loop.RunnerConfig{Clock: loop.NewMockClock()})
	require.NoError(t, err)

	ran := make(chan struct{}, 1)
	_, err = r.Run(func(main *loop.Task) (any, error) {
		tok := token.Current(main)
		require.NotNil(t, tok)
		assert.NoError(t, tok.RunSyncSoon(func() { ran <- struct{}{} }))
		return nil, nil
	})
	require.NoError(t, err)

	select {
	case <-ran:
	default:
		t.Fatal("RunSyncSoon callback never ran")
	}
}

func TestRunSyncSoonIdempotentCollapsesDuplicates(t *testing.T) {
	r, err := loop.NewRunner(reactor.New, loop.RunnerConfig{Clock: loop.NewMockClock()})
	require.NoError(t, err)

	calls := 0
	_, err = r.Run(func(main *loop.Task) (any, error) {
		tok := token.Current(main)
		require.NoError(t, tok.RunSyncSoonIdempotent("k", func() { calls++ }))
		require.NoError(t, tok.RunSyncSoonIdempotent("k", func() { calls++ }))
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "duplicate idempotent enqueues under the same key should collapse")
}
