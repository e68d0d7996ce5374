package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records the outcome of provider sync passes.
type SyncMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	records  *prometheus.CounterVec
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "revenue_sync_duration_seconds",
		Help:    "Duration of revenue sync passes in seconds.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"provider"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revenue_sync_success_total",
		Help: "Successful revenue sync passes.",
	}, []string{"provider"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revenue_sync_failure_total",
		Help: "Failed revenue sync passes by reason.",
	}, []string{"provider", "reason"})
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revenue_sync_records_total",
		Help: "Transactions written by revenue sync passes.",
	}, []string{"provider"})
	reg.MustRegister(duration, success, failure, records)
	return &SyncMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		records:  records,
	}
}

// ObserveDuration records the duration of one pass.
func (m *SyncMetrics) ObserveDuration(provider string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(provider)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the provider.
func (m *SyncMetrics) IncSuccess(provider string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncFailure increments the failure counter for the provider and reason.
func (m *SyncMetrics) IncFailure(provider, reason string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(provider), normalizeLabel(reason)).Inc()
}

// AddRecords adds n written transactions to the provider counter.
func (m *SyncMetrics) AddRecords(provider string, n int) {
	if m == nil || m.records == nil || n <= 0 {
		return
	}
	m.records.WithLabelValues(normalizeLabel(provider)).Add(float64(n))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
