package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eduprompt/eduprompt/pkg/ratelimit"
)

// Metrics holds the Prometheus collectors for the proxy.
type Metrics struct {
	registry *prometheus.Registry

	// RequestsTotal counts handled HTTP requests by method/route/status.
	RequestsTotal *prometheus.CounterVec

	// QuotaRejections counts requests refused by the quota middleware.
	QuotaRejections prometheus.Counter

	// LLMDuration observes upstream call latency by model alias and outcome.
	LLMDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors on a private registry.
// The quota store's active entry count is exported as a gauge.
func NewMetrics(store *ratelimit.Store) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eduprompt_http_requests_total",
			Help: "HTTP requests handled, by method, route and status.",
		}, []string{"method", "route", "status"}),
		QuotaRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eduprompt_quota_rejections_total",
			Help: "Requests rejected by the daily quota.",
		}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eduprompt_llm_request_duration_seconds",
			Help:    "Upstream LLM call latency, by model alias and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model", "outcome"}),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.QuotaRejections,
		m.LLMDuration,
		collectors.NewGoCollector(),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "eduprompt_quota_active_entries",
			Help: "Active quota records in the in-memory store.",
		}, func() float64 {
			return float64(store.Stats().Entries)
		}),
	)

	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
