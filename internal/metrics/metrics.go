// Package metrics exposes the server's Prometheus metrics on a private
// registry.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/decisioncentral/internal/logger"
)

// Decision outcomes used as label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Upload results used as label values.
const (
	UploadAccepted = "accepted"
	UploadRejected = "rejected"
)

type Metrics struct {
	registry *prometheus.Registry

	decisions        *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
	uploads          *prometheus.CounterVec
	services         prometheus.GaugeFunc
	openapiCache     *prometheus.CounterVec
}

// New registers every metric under namespace. services reports the number
// of registered decision services when scraped.
func New(namespace string, services func() int) *Metrics {
	if namespace == "" {
		namespace = "decisioncentral"
	}
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Decisions evaluated, by service and outcome.",
		}, []string{"service", "outcome"}),
		decisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decision_duration_seconds",
			Help:      "Time spent evaluating a decision.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"service"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Decision service uploads, by result.",
		}, []string{"result"}),
		services: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "services",
			Help:      "Registered decision services.",
		}, func() float64 { return float64(services()) }),
		openapiCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "openapi_cache_total",
			Help:      "OpenAPI document cache lookups, by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.decisions,
		m.decisionDuration,
		m.uploads,
		m.services,
		m.openapiCache,
	)
	registerLogCounters(reg, namespace)
	return m
}

func registerLogCounters(reg *prometheus.Registry, namespace string) {
	counters := []struct {
		name, help string
		value      *atomic.Int64
	}{
		{"log_errors_total", "Errors logged, before sampling.", &logger.TotalErrors},
		{"log_warnings_total", "Warnings logged, before sampling.", &logger.TotalWarnings},
		{"http_5xx_total", "Responses with a 5xx status.", &logger.Total5xxErrors},
		{"http_4xx_total", "Responses with a 4xx status.", &logger.Total4xxErrors},
		{"http_404_total", "Responses with a 404 status.", &logger.Total404Errors},
		{"http_slow_requests_total", "Requests slower than the slow request threshold.", &logger.SlowRequests},
	}
	for _, c := range counters {
		value := c.value
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      c.name,
			Help:      c.help,
		}, func() float64 { return float64(value.Load()) }))
	}
}

// ObserveDecision records one evaluation of service.
func (m *Metrics) ObserveDecision(service string, ok bool, elapsed time.Duration) {
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeError
	}
	m.decisions.WithLabelValues(service, outcome).Inc()
	m.decisionDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

// ObserveUpload records an upload attempt.
func (m *Metrics) ObserveUpload(accepted bool) {
	result := UploadAccepted
	if !accepted {
		result = UploadRejected
	}
	m.uploads.WithLabelValues(result).Inc()
}

// ObserveOpenAPICache records a document cache hit or miss.
func (m *Metrics) ObserveOpenAPICache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.openapiCache.WithLabelValues(result).Inc()
}

// ForgetService drops the per-service series of a deleted service.
func (m *Metrics) ForgetService(service string) {
	m.decisions.DeletePartialMatch(prometheus.Labels{"service": service})
	m.decisionDuration.DeleteLabelValues(service)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
