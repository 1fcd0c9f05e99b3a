package prom_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/NetPo4ki/looprt/loop"
	"github.com/NetPo4ki/looprt/observe/prom"
	"github.com/NetPo4ki/looprt/reactor"
)

func TestMetricsCollectsAfterARun(t *testing.T) {
	m := prom.New()
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(m))

	r, err := loop.NewRunner(reactor.New, loop.RunnerConfig{
		Clock:       loop.NewMockClock(),
		Instruments: []loop.Instrument{m},
	})
	require.NoError(t, err)

	_, err = r.Run(func(main *loop.Task) (any, error) {
		nursery := loop.OpenNursery(main)
		defer nursery.Close(nil)
		nursery.Spawn(func(*loop.Task) (any, error) { return nil, nil }, "child")
		return nil, nil
	})
	require.NoError(t, err)

	snap := m.GetSnapshot()
	require.GreaterOrEqual(t, snap.Runs, int64(1))
	require.GreaterOrEqual(t, snap.TasksScheduled, int64(1))
	require.GreaterOrEqual(t, snap.TaskSteps, int64(1))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Equal(t, 6, count, "Collect should emit exactly the six described metrics")
}
