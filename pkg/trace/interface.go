package trace

import (
	"context"
	"time"
)

// Exporter defines the interface for exporting generation traces.
// Implementations must be safe for concurrent use.
type Exporter interface {
	// Export writes a trace record to the configured destination.
	Export(ctx context.Context, record *TraceRecord) error

	// Close flushes any buffered records and releases resources.
	// Should be called during graceful shutdown.
	Close() error
}

// Operation values of a TraceRecord.
const (
	OperationRequirement = "requirement"
	OperationRun         = "run"
)

// TraceRecord is one exported requirement or run trace.
// It carries identifiers and timings only: no prompts, replies or credentials.
type TraceRecord struct {
	// Timestamp is the operation start time
	Timestamp time.Time `json:"timestamp"`

	// RunID correlates every record written by one generation run
	RunID string `json:"runId"`

	// Operation is "requirement" for one requirement or "run" for the batch
	Operation string `json:"operation"`

	// RequirementID is empty for run records
	RequirementID string `json:"requirementId,omitempty"`

	Backend string `json:"backend,omitempty"`

	// DurationMs is the total operation duration in milliseconds
	DurationMs int64 `json:"durationMs"`

	// Status is "success", "skipped" or "error"
	Status string `json:"status"`

	// Spans contains per-stage timing and status
	Spans []SpanRecord `json:"spans"`

	// ErrorType classifies the failure when Status is not "success".
	// Values: configuration, delivery, timeout, canceled, empty, database, unknown
	ErrorType string `json:"errorType,omitempty"`

	// Counters holds operation totals such as cases and tokens
	Counters map[string]int64 `json:"counters,omitempty"`
}

// SpanRecord represents a single stage within an operation.
type SpanRecord struct {
	// Name is the stage name (prompt, invoke, parse, store)
	Name string `json:"name"`

	DurationMs int64 `json:"durationMs"`

	OK bool `json:"ok"`

	ErrorType string `json:"errorType,omitempty"`

	// Counters provides stage-specific metrics (e.g. attempts, tokens, cases)
	Counters map[string]int64 `json:"counters,omitempty"`
}

// FileExporterOption configures a FileExporter.
type FileExporterOption func(*FileExporter)
