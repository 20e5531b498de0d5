// Package metrics defines the Prometheus collectors for license checks, fulfillment and the HTTP service.
//
// Collectors are registered in a dedicated registry (not the global default) so that each process,
// and each test, owns its metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "audiobook_license"

// Metrics holds the collectors. Methods are safe for concurrent use.
type Metrics struct {
	registry *prometheus.Registry

	verdicts      *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec

	fulfillmentSteps    *prometheus.CounterVec
	fulfillmentDuration *prometheus.HistogramVec
	downloadedBytes     prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers the collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		verdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "check_verdicts_total",
				Help:      "License check verdicts by check and result.",
			},
			[]string{"check", "result"},
		),
		checkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_duration_seconds",
				Help:      "Time taken by a single license check.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"check"},
		),
		fulfillmentSteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fulfillment_steps_total",
				Help:      "Fulfillment workflow steps by step and outcome.",
			},
			[]string{"step", "outcome"},
		),
		fulfillmentDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fulfillment_step_duration_seconds",
				Help:      "Time taken by a fulfillment workflow step.",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"step"},
		),
		downloadedBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloaded_bytes_total",
				Help:      "Publication bytes written to disk.",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served, by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by method and route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.verdicts,
		m.checkDuration,
		m.fulfillmentSteps,
		m.fulfillmentDuration,
		m.downloadedBytes,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveVerdict records one license check verdict.
func (m *Metrics) ObserveVerdict(check string, result string, duration time.Duration) {
	m.verdicts.WithLabelValues(check, result).Inc()
	m.checkDuration.WithLabelValues(check).Observe(duration.Seconds())
}

// ObserveStep records one fulfillment step.
func (m *Metrics) ObserveStep(step string, outcome string, duration time.Duration) {
	m.fulfillmentSteps.WithLabelValues(step, outcome).Inc()
	m.fulfillmentDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// AddDownloadedBytes adds n to the downloaded bytes counter.
func (m *Metrics) AddDownloadedBytes(n int64) {
	if n > 0 {
		m.downloadedBytes.Add(float64(n))
	}
}

// Middleware records request counts and latency labelled by chi route pattern.
// Unmatched routes are labelled "unmatched" to keep label cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
