package reactor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NetPo4ki/looprt/loop"
	"github.com/NetPo4ki/looprt/reactor"
)

func TestHandleIOReturnsOnWakeup(t *testing.T) {
	wakeup := loop.NewWakeupChannel()
	p, err := reactor.New(wakeup)
	require.NoError(t, err)
	defer p.Close()

	go func() {
		time.Sleep(5 * time.Millisecond)
		wakeup.NotifyThreadAndSignalSafe()
	}()

	start := time.Now()
	require.NoError(t, p.HandleIO(time.Second))
	require.Less(t, time.Since(start), 500*time.Millisecond, "HandleIO should return promptly once woken, not after the full timeout")
}

func TestHandleIORespectsTimeoutWithNoWakeup(t *testing.T) {
	wakeup := loop.NewWakeupChannel()
	p, err := reactor.New(wakeup)
	require.NoError(t, err)
	defer p.Close()

	start := time.Now()
	require.NoError(t, p.HandleIO(10*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 9*time.Millisecond)
}

func TestStatisticsCountsWakes(t *testing.T) {
	wakeup := loop.NewWakeupChannel()
	p, err := reactor.New(wakeup)
	require.NoError(t, err)
	defer p.Close()

	wakeup.NotifyThreadAndSignalSafe()
	require.NoError(t, p.HandleIO(time.Second))

	stats := p.Statistics()
	require.GreaterOrEqual(t, stats.IOWakes, int64(1))
}
