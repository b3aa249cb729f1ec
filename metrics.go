package jobsystem

import "github.com/zoobzio/metricz"

// Metric keys published on the scheduler's metricz.Registry. Naming and
// the counter/gauge split follow the pattern zoobzio/pipz uses for its
// connectors (see retry.go's RetryAttemptsTotal/RetryAttemptCurrent).
const (
	MetricJobsExecutedTotal   = metricz.Key("jobs.executed.total")
	MetricJobsStolenTotal     = metricz.Key("jobs.stolen.total")
	MetricStealAttemptsFailed = metricz.Key("jobs.steal_attempts.failed")
	MetricWorkersIdleCurrent  = metricz.Key("workers.idle.current")
)

func newMetricsRegistry() *metricz.Registry {
	r := metricz.New()
	r.Counter(MetricJobsExecutedTotal)
	r.Counter(MetricJobsStolenTotal)
	r.Counter(MetricStealAttemptsFailed)
	r.Gauge(MetricWorkersIdleCurrent)
	return r
}

// Metrics is a point-in-time snapshot of the scheduler's counters,
// returned by GetMetrics so callers don't hold a reference into the live
// registry.
type Metrics struct {
	JobsExecuted        int64
	JobsStolen          int64
	StealAttemptsFailed int64
	WorkersIdle         int64
}

// GetMetrics snapshots the scheduler's metricz.Registry.
func (s *Scheduler) GetMetrics() Metrics {
	return Metrics{
		JobsExecuted:        int64(s.metrics.Counter(MetricJobsExecutedTotal).Value()),
		JobsStolen:          int64(s.metrics.Counter(MetricJobsStolenTotal).Value()),
		StealAttemptsFailed: int64(s.metrics.Counter(MetricStealAttemptsFailed).Value()),
		WorkersIdle:         int64(s.metrics.Gauge(MetricWorkersIdleCurrent).Value()),
	}
}
