package sched

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

// Stats tracks scheduler throughput: fibers created/completed, context
// switches, yields, waits, and job completions/aborts. Every field is a
// go.uber.org/atomic counter so Run's hot path never needs to touch the
// scheduler's own mutex just to update a metric.
type Stats struct {
	FibersCreated   atomic.Int64
	FibersCompleted atomic.Int64
	JobsCompleted   atomic.Int64
	JobsAborted     atomic.Int64
	ContextSwitches atomic.Int64
	Yields          atomic.Int64
	Waits           atomic.Int64
}

func newStats() *Stats {
	return &Stats{}
}

// Stats returns the scheduler's live counters, safe to read concurrently
// with Run.
func (s *Scheduler) Stats() *Stats { return s.stats }

var statsDescs = struct {
	fibersCreated   *prometheus.Desc
	fibersCompleted *prometheus.Desc
	jobsCompleted   *prometheus.Desc
	jobsAborted     *prometheus.Desc
	contextSwitches *prometheus.Desc
	yields          *prometheus.Desc
	waits           *prometheus.Desc
}{
	fibersCreated:   prometheus.NewDesc("fiberjobs_fibers_created_total", "Fibers popped from the free pool to run a job.", nil, nil),
	fibersCompleted: prometheus.NewDesc("fiberjobs_fibers_completed_total", "Fibers returned to the free pool.", nil, nil),
	jobsCompleted:   prometheus.NewDesc("fiberjobs_jobs_completed_total", "Jobs that returned normally.", nil, nil),
	jobsAborted:     prometheus.NewDesc("fiberjobs_jobs_aborted_total", "Jobs that called Abort.", nil, nil),
	contextSwitches: prometheus.NewDesc("fiberjobs_context_switches_total", "Fiber switch-ins performed by worker loops.", nil, nil),
	yields:          prometheus.NewDesc("fiberjobs_yields_total", "Job.Yield/SwitchQueue calls.", nil, nil),
	waits:           prometheus.NewDesc("fiberjobs_waits_total", "Job.Wait calls that actually suspended.", nil, nil),
}

// Describe implements prometheus.Collector.
func (s *Stats) Describe(ch chan<- *prometheus.Desc) {
	ch <- statsDescs.fibersCreated
	ch <- statsDescs.fibersCompleted
	ch <- statsDescs.jobsCompleted
	ch <- statsDescs.jobsAborted
	ch <- statsDescs.contextSwitches
	ch <- statsDescs.yields
	ch <- statsDescs.waits
}

// Collect implements prometheus.Collector so a Scheduler's Stats can be
// registered directly with a prometheus.Registry (see cmd/streambench).
func (s *Stats) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(statsDescs.fibersCreated, prometheus.CounterValue, float64(s.FibersCreated.Load()))
	ch <- prometheus.MustNewConstMetric(statsDescs.fibersCompleted, prometheus.CounterValue, float64(s.FibersCompleted.Load()))
	ch <- prometheus.MustNewConstMetric(statsDescs.jobsCompleted, prometheus.CounterValue, float64(s.JobsCompleted.Load()))
	ch <- prometheus.MustNewConstMetric(statsDescs.jobsAborted, prometheus.CounterValue, float64(s.JobsAborted.Load()))
	ch <- prometheus.MustNewConstMetric(statsDescs.contextSwitches, prometheus.CounterValue, float64(s.ContextSwitches.Load()))
	ch <- prometheus.MustNewConstMetric(statsDescs.yields, prometheus.CounterValue, float64(s.Yields.Load()))
	ch <- prometheus.MustNewConstMetric(statsDescs.waits, prometheus.CounterValue, float64(s.Waits.Load()))
}
