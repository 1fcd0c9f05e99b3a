// Package prom adapts loop.Instrument into a real prometheus.Collector, so
// the runner's lifecycle events are scrapeable the way a production infra
// tool built on this library would want. client_golang sits in the
// teacher's go.mod already but goes unused there; this is where it earns
// its keep (see DESIGN.md).
package prom

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NetPo4ki/looprt/loop"
)

var (
	descRuns = prometheus.NewDesc(
		"looprt_runs_total", "Number of Runner.Run invocations observed.", nil, nil)
	descTasksScheduled = prometheus.NewDesc(
		"looprt_tasks_scheduled_total", "Number of tasks scheduled.", nil, nil)
	descTaskSteps = prometheus.NewDesc(
		"looprt_task_steps_total", "Number of task steps executed.", nil, nil)
	descStepDurSeconds = prometheus.NewDesc(
		"looprt_task_step_duration_seconds_sum", "Cumulative task step duration.", nil, nil)
	descIOWaits = prometheus.NewDesc(
		"looprt_io_waits_total", "Number of reactor IO-wait calls.", nil, nil)
	descIOWaitSeconds = prometheus.NewDesc(
		"looprt_io_wait_duration_seconds_sum", "Cumulative reactor IO-wait duration.", nil, nil)
)

// Metrics is a loop.Instrument that also implements prometheus.Collector.
type Metrics struct {
	runs           atomic.Int64
	tasksScheduled atomic.Int64
	taskSteps      atomic.Int64
	stepDurSumNs   atomic.Int64
	ioWaits        atomic.Int64
	ioWaitSumNs    atomic.Int64

	mu          sync.Mutex
	stepStart   time.Time
	ioWaitStart time.Time
}

// New returns a Metrics instrument, ready to both feed a Runner's
// Instruments list and be registered with a prometheus.Registry.
func New() *Metrics { return &Metrics{} }

// BeforeRun records a run starting.
func (m *Metrics) BeforeRun() { m.runs.Add(1) }

// AfterRun is a no-op; run count is taken on BeforeRun.
func (m *Metrics) AfterRun() {}

// TaskScheduled records a task entering the run queue.
func (m *Metrics) TaskScheduled(*loop.Task) { m.tasksScheduled.Add(1) }

// BeforeTaskStep marks the start of a task step. Task steps never overlap
// in this single-threaded runtime, so one timestamp suffices.
func (m *Metrics) BeforeTaskStep(*loop.Task) {
	m.mu.Lock()
	m.stepStart = time.Now()
	m.mu.Unlock()
	m.taskSteps.Add(1)
}

// AfterTaskStep accumulates the step's duration.
func (m *Metrics) AfterTaskStep(*loop.Task) {
	m.mu.Lock()
	dur := time.Since(m.stepStart)
	m.mu.Unlock()
	m.stepDurSumNs.Add(dur.Nanoseconds())
}

// BeforeIOWait marks the start of the reactor's blocking wait.
func (m *Metrics) BeforeIOWait(float64) {
	m.mu.Lock()
	m.ioWaitStart = time.Now()
	m.mu.Unlock()
	m.ioWaits.Add(1)
}

// AfterIOWait accumulates the wait's actual duration.
func (m *Metrics) AfterIOWait(float64) {
	m.mu.Lock()
	dur := time.Since(m.ioWaitStart)
	m.mu.Unlock()
	m.ioWaitSumNs.Add(dur.Nanoseconds())
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- descRuns
	ch <- descTasksScheduled
	ch <- descTaskSteps
	ch <- descStepDurSeconds
	ch <- descIOWaits
	ch <- descIOWaitSeconds
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(descRuns, prometheus.CounterValue, float64(m.runs.Load()))
	ch <- prometheus.MustNewConstMetric(descTasksScheduled, prometheus.CounterValue, float64(m.tasksScheduled.Load()))
	ch <- prometheus.MustNewConstMetric(descTaskSteps, prometheus.CounterValue, float64(m.taskSteps.Load()))
	ch <- prometheus.MustNewConstMetric(descStepDurSeconds, prometheus.CounterValue, time.Duration(m.stepDurSumNs.Load()).Seconds())
	ch <- prometheus.MustNewConstMetric(descIOWaits, prometheus.CounterValue, float64(m.ioWaits.Load()))
	ch <- prometheus.MustNewConstMetric(descIOWaitSeconds, prometheus.CounterValue, time.Duration(m.ioWaitSumNs.Load()).Seconds())
}

// Snapshot exposes a copy of current metric values without a Prometheus
// registry, for tests and simple inspection.
type Snapshot struct {
	Runs            int64
	TasksScheduled  int64
	TaskSteps       int64
	StepDurSumNs    int64
	IOWaits         int64
	IOWaitSumNs     int64
}

// GetSnapshot returns the current metrics snapshot.
func (m *Metrics) GetSnapshot() Snapshot {
	return Snapshot{
		Runs:           m.runs.Load(),
		TasksScheduled: m.tasksScheduled.Load(),
		TaskSteps:      m.taskSteps.Load(),
		StepDurSumNs:   m.stepDurSumNs.Load(),
		IOWaits:        m.ioWaits.Load(),
		IOWaitSumNs:    m.ioWaitSumNs.Load(),
	}
}
