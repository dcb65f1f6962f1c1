// Package llm provides a gateway over OpenAI-compatible and DashScope-style chat
// completion backends with a shared retry and backoff discipline.
package llm

import "context"

// Role is the author of a message in a conversation.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one role-tagged entry of a conversation. Order is significant.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Completion is the outcome of a successful Invoke.
type Completion struct {
	// Content is the extracted reply text; it may be empty.
	Content string

	// TotalTokens is the usage reported by the backend, summed over all attempts.
	TotalTokens int64

	// Attempts is the number of HTTP requests made.
	Attempts int
}

// Invoker sends a conversation to a named backend.
// Gateway is the production implementation; tests substitute fakes.
type Invoker interface {
	Invoke(ctx context.Context, backend string, messages []Message, temperature float64, maxRetries int) (Completion, error)
}
