package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records sync worker outcomes.
type SyncMetrics struct {
	duration       *prometheus.HistogramVec
	success        *prometheus.CounterVec
	failure        *prometheus.CounterVec
	terminal       *prometheus.CounterVec
	deadLettered   prometheus.Counter
	pimConnectErrs prometheus.Gauge
}

// NewSyncMetrics registers the sync worker metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_job_duration_seconds",
		Help:    "Duration of sync job processing in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_job_success_total",
		Help: "Successfully applied sync jobs.",
	}, []string{"operation"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_job_failure_total",
		Help: "Sync job attempts that failed and were retried.",
	}, []string{"operation"})
	terminal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_job_terminal_total",
		Help: "Sync jobs acknowledged as terminal failures (not retried).",
	}, []string{"operation"})
	deadLettered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sync_job_dead_lettered_total",
		Help: "Sync jobs moved to the dead-letter list after exhausting retries.",
	})
	pimConnectErrs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pim_consecutive_connect_errors",
		Help: "Consecutive PIM API connection failures observed by the worker.",
	})
	reg.MustRegister(duration, success, failure, terminal, deadLettered, pimConnectErrs)
	return &SyncMetrics{
		duration:       duration,
		success:        success,
		failure:        failure,
		terminal:       terminal,
		deadLettered:   deadLettered,
		pimConnectErrs: pimConnectErrs,
	}
}

// ObserveDuration records how long a job took to process.
func (s *SyncMetrics) ObserveDuration(operation string, duration time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the operation.
func (s *SyncMetrics) IncSuccess(operation string) {
	if s == nil || s.success == nil {
		return
	}
	s.success.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncFailure increments the retryable-failure counter for the operation.
func (s *SyncMetrics) IncFailure(operation string) {
	if s == nil || s.failure == nil {
		return
	}
	s.failure.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncTerminal increments the terminal-failure counter for the operation.
func (s *SyncMetrics) IncTerminal(operation string) {
	if s == nil || s.terminal == nil {
		return
	}
	s.terminal.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncDeadLettered increments the dead-letter counter.
func (s *SyncMetrics) IncDeadLettered() {
	if s == nil || s.deadLettered == nil {
		return
	}
	s.deadLettered.Inc()
}

// SetPIMConnectErrors records the current consecutive connect-error streak.
func (s *SyncMetrics) SetPIMConnectErrors(count int) {
	if s == nil || s.pimConnectErrs == nil {
		return
	}
	s.pimConnectErrs.Set(float64(count))
}
