// Package metrics exposes Prometheus collectors for service operations and HTTP requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "meetings"

// Collector owns a private registry so tests and multiple servers never share state.
type Collector struct {
	registry *prometheus.Registry

	// operationsTotal counts service operations by outcome ("success" or an error kind).
	operationsTotal *prometheus.CounterVec
	// operationDuration observes service operation latency.
	operationDuration *prometheus.HistogramVec
	// requestsTotal counts HTTP requests by route template and status code.
	requestsTotal *prometheus.CounterVec
	// requestDuration observes HTTP request latency by route template.
	requestDuration *prometheus.HistogramVec
}

// NewCollector registers the service and HTTP collectors. When withRuntime is set the Go
// runtime and process collectors are registered as well.
func NewCollector(withRuntime bool) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "service_operations_total",
				Help:      "Total number of service operations by outcome",
			},
			[]string{"service", "operation", "outcome"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "service_operation_duration_seconds",
				Help:      "Duration of service operations in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"service", "operation"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	c.registry.MustRegister(c.operationsTotal, c.operationDuration, c.requestsTotal, c.requestDuration)
	if withRuntime {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return c
}

// RecordOperation implements application.OperationRecorder.
func (c *Collector) RecordOperation(service, operation, outcome string, elapsed time.Duration) {
	c.operationsTotal.WithLabelValues(service, operation, outcome).Inc()
	c.operationDuration.WithLabelValues(service, operation).Observe(elapsed.Seconds())
}

// RecordRequest records one HTTP request. Route is the matched route template, never the raw
// path, to keep label cardinality bounded.
func (c *Collector) RecordRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
