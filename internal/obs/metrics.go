package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus collectors of the pipeline on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	Requests         *prometheus.CounterVec
	LatencyMS        *prometheus.HistogramVec
	EventsDispatched *prometheus.CounterVec
	Invocations      *prometheus.CounterVec
	RecordsWritten   *prometheus.CounterVec
	InvokeBacklog    prometheus.Gauge
}

// NewMetrics builds and registers all collectors.
func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecommerce",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ecommerce",
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"method"})
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecommerce",
		Name:      "events_dispatched_total",
		Help:      "Lifecycle events handed to a notifier.",
	}, []string{"mode", "event_type", "outcome"})
	invocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecommerce",
		Name:      "invocations_processed_total",
		Help:      "Async function invocations executed by workers.",
	}, []string{"target", "outcome"})
	records := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecommerce",
		Name:      "event_log_records_total",
		Help:      "Audit records written to the events table.",
	}, []string{"subject", "outcome"})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ecommerce",
		Name:      "invoke_backlog",
		Help:      "Invocations waiting for a worker.",
	})
	r.MustRegister(requests, latency, dispatched, invocations, records, backlog)
	return &Metrics{
		reg:              r,
		Requests:         requests,
		LatencyMS:        latency,
		EventsDispatched: dispatched,
		Invocations:      invocations,
		RecordsWritten:   records,
		InvokeBacklog:    backlog,
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
