// Package metrics owns the Prometheus collectors of the backend.
//
// Collectors live on a private registry rather than the global default one,
// so tests can build as many servers as they like without "duplicate
// registration" panics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/wishlist/internal/changefeed"
)

const namespace = "wishlist"

// Metrics groups every collector the server exports.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	ChangesPublished *prometheus.CounterVec
	CleanupDeleted   prometheus.Counter
	CleanupRuns      *prometheus.CounterVec
}

// New creates and registers the collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ChangesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_published_total",
			Help:      "Row changes handed to the change feed, by table and type.",
		}, []string{"table", "type"}),
		CleanupDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_deleted_wishlists_total",
			Help:      "Wishlists removed by the retention cleanup.",
		}),
		CleanupRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_runs_total",
			Help:      "Cleanup runs by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.ChangesPublished,
		m.CleanupDeleted,
		m.CleanupRuns,
	)
	return m
}

// TrackSubscribers exports count as the live realtime subscription gauge.
func (m *Metrics) TrackSubscribers(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_subscriptions",
		Help:      "Open realtime channel subscriptions.",
	}, func() float64 { return float64(count()) }))
}

// RecordCleanup counts one cleanup run.
func (m *Metrics) RecordCleanup(deleted int64, err error) {
	if err != nil {
		m.CleanupRuns.WithLabelValues("error").Inc()
		return
	}
	m.CleanupRuns.WithLabelValues("ok").Inc()
	m.CleanupDeleted.Add(float64(deleted))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Publisher wraps next so every published change is counted.
func (m *Metrics) Publisher(next changefeed.Publisher) changefeed.Publisher {
	return countingPublisher{next: next, counter: m.ChangesPublished}
}

type countingPublisher struct {
	next    changefeed.Publisher
	counter *prometheus.CounterVec
}

func (p countingPublisher) Publish(c changefeed.Change) {
	p.counter.WithLabelValues(c.Table, string(c.Type)).Inc()
	p.next.Publish(c)
}
