package llm

import (
	"errors"
	"fmt"
)

// Configuration errors are never retried.
var (
	ErrUnknownBackend    = errors.New("unknown backend")
	ErrDuplicateBackend  = errors.New("backend already registered")
	ErrMissingCredential = errors.New("missing credential")
	ErrMissingEndpoint   = errors.New("missing endpoint")
)

// ErrDeliveryFailed is returned once every attempt of an Invoke has failed.
var ErrDeliveryFailed = errors.New("delivery failed")

// IsConfigurationError reports whether err stems from backend configuration
// rather than from delivery.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrUnknownBackend) ||
		errors.Is(err, ErrDuplicateBackend) ||
		errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, ErrMissingEndpoint)
}

// DeliveryError reports an exhausted retry budget. It matches both
// ErrDeliveryFailed and the last underlying error with errors.Is.
type DeliveryError struct {
	Backend  string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: backend %s failed after %d attempts: %v", ErrDeliveryFailed, e.Backend, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	return []error{ErrDeliveryFailed, e.Err}
}

// retryableError marks a transient failure: connection errors, timeouts,
// non-2xx statuses and unreadable bodies.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func shouldRetry(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
