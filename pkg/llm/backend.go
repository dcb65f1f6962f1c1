package llm

import (
	"net/http"
	"os"
)

// Capabilities describes conversation features a backend accepts.
type Capabilities struct {
	// SystemRole is false for backends that reject system messages; the prompt
	// builder then folds the system instruction into the user message.
	SystemRole bool

	// StrictFormat asks the prompt builder to stress the required output layout.
	StrictFormat bool
}

// Backend is the connection recipe for one LLM provider. Implementations are
// immutable once registered.
type Backend interface {
	// Name is the registry key, e.g. "default" or "qianwen".
	Name() string

	// CredentialKey names the credential (environment variable) holding the API
	// key. It is empty for backends that need no credential.
	CredentialKey() string

	// Endpoint is the full URL requests are POSTed to.
	Endpoint() string

	// Headers builds the request headers for the given credential.
	Headers(credential string) http.Header

	// Body builds the JSON request envelope.
	Body(messages []Message, temperature float64) any

	// ExtractContent pulls the reply text out of a response envelope. The bool is
	// false when the expected field is absent.
	ExtractContent(body []byte) (string, bool)

	Capabilities() Capabilities
}

// usageReporter is implemented by backends whose token usage is not reported
// as usage.total_tokens.
type usageReporter interface {
	TotalTokens(body []byte) int64
}

// CredentialSource resolves credential keys to secrets.
type CredentialSource interface {
	Credential(key string) string
}

// StaticCredentials is a snapshot of credentials taken once at startup.
type StaticCredentials map[string]string

// Credential returns the stored secret or "".
func (c StaticCredentials) Credential(key string) string {
	return c[key]
}

// EnvCredentials reads credentials from the process environment.
type EnvCredentials struct{}

// Credential returns the value of the environment variable key.
func (EnvCredentials) Credential(key string) string {
	return os.Getenv(key)
}

func bearerHeaders(credential string) http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+credential)
	h.Set("Content-Type", "application/json; charset=utf-8")
	return h
}
