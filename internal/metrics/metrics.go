// Package metrics exposes Prometheus counters for the HTTP API and the
// trading engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors registered on a private registry, so tests can
// create independent instances.
type Metrics struct {
	registry *prometheus.Registry

	RequestCount   *prometheus.CounterVec
	RequestErrors  *prometheus.CounterVec
	RequestLatency *prometheus.HistogramVec
	TickerRequests *prometheus.CounterVec
	TradesExecuted *prometheus.CounterVec
	QuoteFailures  prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		RequestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockdesk_http_requests_total",
			Help: "HTTP requests served, by route and status class.",
		}, []string{"route", "status"}),
		RequestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockdesk_http_request_errors_total",
			Help: "HTTP requests that ended in a 4xx or 5xx response, by route.",
		}, []string{"route"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockdesk_http_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		TickerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockdesk_ticker_requests_total",
			Help: "Quote and chart lookups, by ticker.",
		}, []string{"ticker"}),
		TradesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockdesk_trades_executed_total",
			Help: "Trades committed to the ledger, by side.",
		}, []string{"side"}),
		QuoteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockdesk_quote_failures_total",
			Help: "Quote fetches that failed or timed out.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestCount,
		m.RequestErrors,
		m.RequestLatency,
		m.TickerRequests,
		m.TradesExecuted,
		m.QuoteFailures,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
