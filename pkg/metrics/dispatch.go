package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics records the delivery pipeline counters.
type DispatchMetrics struct {
	jobsCreated     *prometheus.CounterVec
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	inFlight        *prometheus.GaugeVec
	queuedJobs      prometheus.Gauge
	staleRecovered  prometheus.Counter
}

// NewDispatchMetrics registers the dispatch metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	jobsCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_jobs_created",
		Help: "Dispatch jobs created by the outbox writer.",
	}, []string{"event_type"})
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_attempts",
		Help: "Delivery attempts by outcome.",
	}, []string{"outcome"})
	attemptDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_attempt_duration_seconds",
		Help:    "Duration of delivery attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	inFlight := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_pool_in_flight",
		Help: "Deliveries currently holding pool budget.",
	}, []string{"pool"})
	queuedJobs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_jobs_queued",
		Help: "Jobs currently in QUEUED status.",
	})
	staleRecovered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_stale_jobs_recovered",
		Help: "QUEUED jobs re-announced by the sweeper.",
	})
	reg.MustRegister(jobsCreated, attempts, attemptDuration, inFlight, queuedJobs, staleRecovered)
	return &DispatchMetrics{
		jobsCreated:     jobsCreated,
		attempts:        attempts,
		attemptDuration: attemptDuration,
		inFlight:        inFlight,
		queuedJobs:      queuedJobs,
		staleRecovered:  staleRecovered,
	}
}

// IncJobsCreated counts jobs created for the event type.
func (m *DispatchMetrics) IncJobsCreated(eventType string, count int) {
	if m == nil || m.jobsCreated == nil || count <= 0 {
		return
	}
	m.jobsCreated.WithLabelValues(normalizeLabel(eventType)).Add(float64(count))
}

// ObserveAttempt records one delivery attempt outcome and duration.
func (m *DispatchMetrics) ObserveAttempt(outcome string, duration time.Duration) {
	if m == nil || m.attempts == nil {
		return
	}
	label := normalizeLabel(outcome)
	m.attempts.WithLabelValues(label).Inc()
	m.attemptDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// AddInFlight moves the in-flight gauge for a pool.
func (m *DispatchMetrics) AddInFlight(pool string, delta float64) {
	if m == nil || m.inFlight == nil {
		return
	}
	m.inFlight.WithLabelValues(normalizeLabel(pool)).Add(delta)
}

// SetQueuedJobs records the current QUEUED backlog size.
func (m *DispatchMetrics) SetQueuedJobs(count int64) {
	if m == nil || m.queuedJobs == nil {
		return
	}
	m.queuedJobs.Set(float64(count))
}

// AddStaleRecovered counts sweeper re-announcements.
func (m *DispatchMetrics) AddStaleRecovered(count int) {
	if m == nil || m.staleRecovered == nil || count <= 0 {
		return
	}
	m.staleRecovered.Add(float64(count))
}
