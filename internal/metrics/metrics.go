// Package metrics exposes Prometheus counters for the HTTP surface, the
// submission pipeline and the moderation gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns its own registry so several instances can coexist in tests.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Submissions        *prometheus.CounterVec
	ModerationVerdicts *prometheus.CounterVec
	ModerationFailures *prometheus.CounterVec
	ModerationDuration *prometheus.HistogramVec
	Accepts            prometheus.Counter
	Votes              *prometheus.CounterVec
	Uploads            *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "submissions_total",
				Help:      "Submission attempts by entity, operation and outcome",
			},
			[]string{"entity", "op", "outcome"},
		),
		ModerationVerdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "moderation_verdicts_total",
				Help:      "Moderation verdicts by kind and action",
			},
			[]string{"kind", "action"},
		),
		ModerationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "moderation_upstream_failures_total",
				Help:      "Moderation calls that failed open, by category",
			},
			[]string{"kind", "category"},
		),
		ModerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "moderation_request_duration_seconds",
				Help:      "Latency of calls to the moderation service",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		Accepts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "answers_accepted_total",
				Help:      "Answers marked accepted",
			},
		),
		Votes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "votes_total",
				Help:      "Votes recorded by target and value",
			},
			[]string{"target", "value"},
		),
		Uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "File uploads by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
	}
	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Submissions,
		c.ModerationVerdicts,
		c.ModerationFailures,
		c.ModerationDuration,
		c.Accepts,
		c.Votes,
		c.Uploads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, status).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
