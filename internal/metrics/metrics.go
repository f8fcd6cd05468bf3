// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the API updates.  All methods are safe to
// call on a nil *Metrics so that tests and tools can skip instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec   // securevault_http_requests_total{method,route,status}
	RequestDuration *prometheus.HistogramVec // securevault_http_request_duration_seconds{method,route}
	BlobOpsTotal    *prometheus.CounterVec   // securevault_blob_operations_total{operation,result}
	BytesUploaded   prometheus.Counter       // securevault_uploaded_bytes_total
	OrphanedBlobs   prometheus.Counter       // securevault_orphaned_blobs_total
	RateLimited     prometheus.Counter       // securevault_rate_limited_total
	EventsPublished *prometheus.CounterVec   // securevault_events_published_total{type,result}
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "securevault_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "securevault_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		BlobOpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "securevault_blob_operations_total",
			Help: "Object store operations by operation and result",
		}, []string{"operation", "result"}),
		BytesUploaded: f.NewCounter(prometheus.CounterOpts{
			Name: "securevault_uploaded_bytes_total",
			Help: "Bytes written to the object store by uploads",
		}),
		OrphanedBlobs: f.NewCounter(prometheus.CounterOpts{
			Name: "securevault_orphaned_blobs_total",
			Help: "Blobs left without a metadata record after a failed upload",
		}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "securevault_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "securevault_events_published_total",
			Help: "Document events handed to the broker by type and result",
		}, []string{"type", "result"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordRequest counts one served HTTP request.
func (m *Metrics) RecordRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, statusLabel(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordBlobOp counts one object store call.
func (m *Metrics) RecordBlobOp(op string, err error) {
	if m == nil {
		return
	}
	m.BlobOpsTotal.WithLabelValues(op, result(err)).Inc()
}

// RecordUpload adds a stored blob's size.
func (m *Metrics) RecordUpload(bytes int64) {
	if m == nil {
		return
	}
	m.BytesUploaded.Add(float64(bytes))
}

// RecordOrphan counts a blob whose metadata write failed.
func (m *Metrics) RecordOrphan() {
	if m == nil {
		return
	}
	m.OrphanedBlobs.Inc()
}

// RecordRateLimited counts a 429.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

// RecordEvent counts one publish attempt.
func (m *Metrics) RecordEvent(eventType string, err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType, result(err)).Inc()
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
