package metrics

import "github.com/prometheus/client_golang/prometheus"

// RatesMetrics tracks exchange-rate refreshes and degraded conversions.
type RatesMetrics struct {
	refresh  *prometheus.CounterVec
	fallback *prometheus.CounterVec
}

// NewRatesMetrics registers the currency metrics on the provided registerer.
func NewRatesMetrics(reg prometheus.Registerer) *RatesMetrics {
	if reg == nil {
		return &RatesMetrics{}
	}
	refresh := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revenue_rates_refresh_total",
		Help: "Exchange-rate table refreshes by source and outcome.",
	}, []string{"source", "outcome"})
	fallback := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revenue_rates_fallback_total",
		Help: "Conversions served from a stale table or at 1:1.",
	}, []string{"kind"})
	reg.MustRegister(refresh, fallback)
	return &RatesMetrics{refresh: refresh, fallback: fallback}
}

// IncRefresh counts a refresh attempt; source is "cache" or "remote", outcome "ok" or "error".
func (m *RatesMetrics) IncRefresh(source, outcome string) {
	if m == nil || m.refresh == nil {
		return
	}
	m.refresh.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

// IncFallback counts a degraded conversion; kind is "stale" or "identity".
func (m *RatesMetrics) IncFallback(kind string) {
	if m == nil || m.fallback == nil {
		return
	}
	m.fallback.WithLabelValues(normalizeLabel(kind)).Inc()
}
