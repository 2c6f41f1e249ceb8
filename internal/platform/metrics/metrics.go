// Package metrics exposes Prometheus collectors for the HTTP surface and the
// order lifecycle engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerMetrics bundles the registered collectors.
type ServerMetrics struct {
	Requests    *prometheus.CounterVec
	LatencyMS   *prometheus.HistogramVec
	Transitions *prometheus.CounterVec
}

// NewServerMetrics registers collectors on the given registry. A nil registry
// uses the default one.
func NewServerMetrics(registry prometheus.Registerer) *ServerMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plateful",
		Subsystem: "api",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "method", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "plateful",
		Subsystem: "api",
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"route", "method"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "plateful",
		Subsystem: "orders",
		Name:      "transitions_total",
		Help:      "Order lifecycle transition attempts by operation and outcome.",
	}, []string{"op", "outcome"})

	registry.MustRegister(requests, latency, transitions)
	return &ServerMetrics{Requests: requests, LatencyMS: latency, Transitions: transitions}
}

// RecordTransition counts one lifecycle transition attempt.
func (m *ServerMetrics) RecordTransition(op, outcome string) {
	m.Transitions.WithLabelValues(op, outcome).Inc()
}

// Middleware counts requests and observes latency per chi route.
func (m *ServerMetrics) Middleware(routeFor func(r *http.Request) string) func(http.Handler) http.Handler {
	if routeFor == nil {
		routeFor = func(r *http.Request) string { return r.URL.Path }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(recorder, r)

			route := routeFor(r)
			m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(recorder.status)).Inc()
			m.LatencyMS.WithLabelValues(route, r.Method).Observe(float64(time.Since(start).Milliseconds()))
		})
	}
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
