package metrics

import "context"

// NoopCollector discards every observation.
type NoopCollector struct{}

// NewNoopCollector creates a no-op collector
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (n *NoopCollector) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
}

func (n *NoopCollector) RecordStage(ctx context.Context, operation string, stage string, durationMs int64) {
}

func (n *NoopCollector) RecordError(ctx context.Context, operation string, errorType string) {}

func (n *NoopCollector) RecordAttempt(ctx context.Context, backend string, outcome string) {}

func (n *NoopCollector) AddTokens(ctx context.Context, backend string, tokens int64) {}

func (n *NoopCollector) AddTestCases(ctx context.Context, priority string, count int) {}

func (n *NoopCollector) SetStoredCount(ctx context.Context, kind string, count int64) {}
