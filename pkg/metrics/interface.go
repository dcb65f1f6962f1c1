package metrics

import "context"

// Collector is the interface for metrics collection.
// Implementations include the Prometheus-backed collector and the no-op collector.
type Collector interface {
	RecordOperation(ctx context.Context, operation string, status string, durationMs int64)
	RecordStage(ctx context.Context, operation string, stage string, durationMs int64)
	RecordError(ctx context.Context, operation string, errorType string)
	RecordAttempt(ctx context.Context, backend string, outcome string)
	AddTokens(ctx context.Context, backend string, tokens int64)
	AddTestCases(ctx context.Context, priority string, count int)
	SetStoredCount(ctx context.Context, kind string, count int64)
}
