package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Sync metrics
	EntriesSubmitted prometheus.Counter
	EntriesDuplicate prometheus.Counter
	FanoutMessages   prometheus.Counter
	PullRequests     prometheus.Counter
	PullEntries      prometheus.Counter

	// Registry metrics
	Communities prometheus.Gauge
	Connections prometheus.Gauge

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates the metrics registry and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		EntriesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sigmesh",
			Subsystem: "sync",
			Name:      "entries_submitted_total",
			Help:      "Total log entries accepted by the write path",
		}),
		EntriesDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sigmesh",
			Subsystem: "sync",
			Name:      "entries_duplicate_total",
			Help:      "Total idempotent re-submissions of already stored entries",
		}),
		FanoutMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sigmesh",
			Subsystem: "sync",
			Name:      "fanout_messages_total",
			Help:      "Total frames broadcast to connected members",
		}),
		PullRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sigmesh",
			Subsystem: "sync",
			Name:      "pull_requests_total",
			Help:      "Total paginated pull requests served",
		}),
		PullEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sigmesh",
			Subsystem: "sync",
			Name:      "pull_entries_total",
			Help:      "Total entries returned by paginated pulls",
		}),
		Communities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sigmesh",
			Subsystem: "registry",
			Name:      "communities",
			Help:      "Communities currently materialized in memory",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sigmesh",
			Subsystem: "registry",
			Name:      "connections",
			Help:      "Active membership connections",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sigmesh",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route, and status code",
		}, []string{"method", "route", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sigmesh",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	registry.MustRegister(
		m.EntriesSubmitted,
		m.EntriesDuplicate,
		m.FanoutMessages,
		m.PullRequests,
		m.PullEntries,
		m.Communities,
		m.Connections,
		m.RequestsTotal,
		m.RequestDuration,
	)
	return m
}

// Registry exposes the underlying registry for additional collectors
// (storage engine gauges register here).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
