package casegen

import (
	"time"

	"github.com/dan-solli/casegen/pkg/trace"
)

// Stage names recorded for each requirement.
const (
	stagePrompt = "prompt"
	stageInvoke = "invoke"
	stageParse  = "parse"
)

// requirementTrace collects the spans of one requirement.
type requirementTrace struct {
	start time.Time
	spans []trace.SpanRecord
}

func newRequirementTrace() *requirementTrace {
	return &requirementTrace{
		start: time.Now(),
		spans: make([]trace.SpanRecord, 0, 3),
	}
}

func (t *requirementTrace) elapsedMs() int64 {
	return time.Since(t.start).Milliseconds()
}

// spanTimer is a helper for measuring span duration
type spanTimer struct {
	name  string
	start time.Time
	trace *requirementTrace
}

func (t *requirementTrace) startSpan(name string) *spanTimer {
	return &spanTimer{name: name, start: time.Now(), trace: t}
}

// finish records the span and returns its duration in milliseconds.
func (st *spanTimer) finish(err error, counters map[string]int64) int64 {
	duration := time.Since(st.start).Milliseconds()
	st.trace.spans = append(st.trace.spans, trace.SpanRecord{
		Name:       st.name,
		DurationMs: duration,
		OK:         err == nil,
		ErrorType:  ClassifyError(err),
		Counters:   counters,
	})
	return duration
}
