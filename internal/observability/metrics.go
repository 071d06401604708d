package observability

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Transition outcomes reported by RecordTransition.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics exposes Prometheus collectors for HTTP traffic and the enrollment workflow.
type Metrics struct {
	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorCount      *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	auditFailures   prometheus.Counter
}

// NewMetrics registers the collectors with reg. Collectors already registered
// under the same name are reused, so repeated construction against one registry
// is safe.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Metrics{
		requestCount: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests served, by method, route and status.",
			},
			[]string{"method", "path", "status"},
		)),
		requestDuration: register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		)),
		errorCount: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_request_errors_total",
				Help: "HTTP requests that ended in an error response, by error code.",
			},
			[]string{"method", "path", "code"},
		)),
		transitions: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enrollment_transitions_total",
				Help: "Enrollment operations attempted, by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		)),
		auditFailures: register(reg, prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "enrollment_audit_failures_total",
				Help: "Audit entries that could not be written after a committed transition.",
			},
		)),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) T {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// RecordRequest counts a served request and observes its latency.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError counts an error response by code.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(method, path, code).Inc()
}

// RecordTransition counts one workflow operation.
func (m *Metrics) RecordTransition(operation, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
}

// RecordAuditFailure counts one audit entry lost after commit.
func (m *Metrics) RecordAuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}
