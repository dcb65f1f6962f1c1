// Package metrics records gateway and generation metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector provides Prometheus metrics collection for casegen operations
type MetricsCollector struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	attemptsTotal     *prometheus.CounterVec
	tokensTotal       *prometheus.CounterVec
	testCasesTotal    *prometheus.CounterVec
	storedCount       *prometheus.GaugeVec
	registry          *prometheus.Registry
}

var _ Collector = (*MetricsCollector)(nil)

// NewCollector creates a new Prometheus metrics collector with its own registry.
func NewCollector() *MetricsCollector {
	registry := prometheus.NewRegistry()

	m := &MetricsCollector{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casegen_operations_total",
				Help: "Total number of operations (invoke, requirement, generate) by status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "casegen_operation_duration_seconds",
				Help:    "Duration of operations by type and stage",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
			},
			[]string{"operation", "stage"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casegen_errors_total",
				Help: "Total number of errors by operation and error type",
			},
			[]string{"operation", "error_type"},
		),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casegen_backend_attempts_total",
				Help: "HTTP attempts against LLM backends by outcome (success, retry, failed)",
			},
			[]string{"backend", "outcome"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casegen_backend_tokens_total",
				Help: "Tokens reported by LLM backends",
			},
			[]string{"backend"},
		),
		testCasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casegen_test_cases_total",
				Help: "Test cases extracted from model replies by priority",
			},
			[]string{"priority"},
		),
		storedCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "casegen_stored_count",
				Help: "Current count of stored items by kind",
			},
			[]string{"kind"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.errorsTotal,
		m.attemptsTotal,
		m.tokensTotal,
		m.testCasesTotal,
		m.storedCount,
	)

	return m
}

// RecordOperation records the completion of an operation
func (m *MetricsCollector) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation, "total").Observe(float64(durationMs) / 1000.0)
}

// RecordStage records the duration of a specific stage within an operation
func (m *MetricsCollector) RecordStage(ctx context.Context, operation string, stage string, durationMs int64) {
	m.operationDuration.WithLabelValues(operation, stage).Observe(float64(durationMs) / 1000.0)
}

// RecordError records an error occurrence
func (m *MetricsCollector) RecordError(ctx context.Context, operation string, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// RecordAttempt counts one HTTP attempt against a backend.
func (m *MetricsCollector) RecordAttempt(ctx context.Context, backend string, outcome string) {
	m.attemptsTotal.WithLabelValues(backend, outcome).Inc()
}

// AddTokens accumulates reported token usage.
func (m *MetricsCollector) AddTokens(ctx context.Context, backend string, tokens int64) {
	if tokens <= 0 {
		return
	}
	m.tokensTotal.WithLabelValues(backend).Add(float64(tokens))
}

// AddTestCases counts extracted test cases.
func (m *MetricsCollector) AddTestCases(ctx context.Context, priority string, count int) {
	if count <= 0 {
		return
	}
	m.testCasesTotal.WithLabelValues(priority).Add(float64(count))
}

// SetStoredCount sets the current count for a stored kind (runs, test_cases, requirements).
func (m *MetricsCollector) SetStoredCount(ctx context.Context, kind string, count int64) {
	m.storedCount.WithLabelValues(kind).Set(float64(count))
}

// Registry returns the Prometheus registry for HTTP exposure
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}
