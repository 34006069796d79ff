// Package gatewaymetrics exposes Prometheus counters and histograms for the
// request pipeline: call volume by method and outcome, and latency of the
// full request/response cycle including any upstream or L2 round trip.
package gatewaymetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the pipeline updates.
type Metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// New builds and registers the gateway's collectors under the given
// namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "siwegateway"
	}
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "JSON-RPC requests processed, by method and outcome.",
	}, []string{"method", "outcome"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Duration of a JSON-RPC request, including any upstream or L2 round trip.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	registry.MustRegister(requests, durations)
	return &Metrics{registry: registry, requests: requests, durations: durations}
}

// Outcome labels a completed request. The set is closed and mirrors the
// pipeline's own decision points.
type Outcome string

const (
	OutcomeAllowed     Outcome = "allowed"
	OutcomeDenied      Outcome = "denied"
	OutcomeSIWEHandled Outcome = "siwe_handled"
	OutcomeError       Outcome = "error"
)

// Observe records one completed request.
func (m *Metrics) Observe(method string, outcome Outcome, duration time.Duration) {
	m.requests.WithLabelValues(method, string(outcome)).Inc()
	m.durations.WithLabelValues(method).Observe(duration.Seconds())
}

// Handler serves the Prometheus exposition format for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
