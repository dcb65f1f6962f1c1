package casegen

import (
	"context"
	"errors"
	"strings"

	"github.com/dan-solli/casegen/pkg/llm"
)

var (
	// ErrNoUsableBackend means neither the requested backend nor the default
	// backend is registered. It is the only error that stops a run before any
	// requirement is processed.
	ErrNoUsableBackend = errors.New("no usable backend")

	// ErrEmptyReply is recorded when a backend returns no content.
	ErrEmptyReply = errors.New("empty reply")

	// ErrNoTestCases is recorded when a reply yields zero test cases.
	ErrNoTestCases = errors.New("no test cases parsed")
)

// Error type constants for classification
const (
	ErrTypeConfiguration = "configuration"
	ErrTypeDelivery      = "delivery"
	ErrTypeTimeout       = "timeout"
	ErrTypeCanceled      = "canceled"
	ErrTypeEmpty         = "empty"
	ErrTypeDatabase      = "database"
	ErrTypeUnknown       = "unknown"
)

// ClassifyError returns the label used for err in metrics and traces.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.Canceled):
		return ErrTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTypeTimeout
	case errors.Is(err, ErrNoUsableBackend), llm.IsConfigurationError(err):
		return ErrTypeConfiguration
	case errors.Is(err, ErrEmptyReply), errors.Is(err, ErrNoTestCases):
		return ErrTypeEmpty
	}

	// Delivery failures wrap the last transport error; a timeout there is
	// still reported as a timeout.
	errStrLower := strings.ToLower(err.Error())
	if strings.Contains(errStrLower, "timeout") || strings.Contains(errStrLower, "deadline exceeded") {
		return ErrTypeTimeout
	}
	if errors.Is(err, llm.ErrDeliveryFailed) {
		return ErrTypeDelivery
	}

	if strings.Contains(errStrLower, "sql") ||
		strings.Contains(errStrLower, "database") ||
		strings.Contains(errStrLower, "constraint") {
		return ErrTypeDatabase
	}

	return ErrTypeUnknown
}
