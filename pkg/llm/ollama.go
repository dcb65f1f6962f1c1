package llm

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// OllamaBackend talks to a local Ollama server through its /api/chat endpoint.
// It needs no credential.
type OllamaBackend struct {
	name     string
	endpoint string
	model    string
}

// NewOllamaBackend creates a local backend.
// baseURL is typically "http://localhost:11434"
// model is the LLM model name, e.g. "mistral"
func NewOllamaBackend(name, baseURL, model string) *OllamaBackend {
	endpoint := ""
	if baseURL != "" {
		endpoint = strings.TrimRight(baseURL, "/") + "/api/chat"
	}
	return &OllamaBackend{name: name, endpoint: endpoint, model: model}
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

func (b *OllamaBackend) Name() string     { return b.name }
func (b *OllamaBackend) Endpoint() string { return b.endpoint }

// CredentialKey is empty: a local server is not authenticated.
func (b *OllamaBackend) CredentialKey() string { return "" }

func (b *OllamaBackend) Capabilities() Capabilities {
	return Capabilities{SystemRole: true}
}

// Headers sets only the content type unless a credential is supplied, e.g. by
// a reverse proxy in front of the server.
func (b *OllamaBackend) Headers(credential string) http.Header {
	if credential != "" {
		return bearerHeaders(credential)
	}
	h := make(http.Header)
	h.Set("Content-Type", "application/json; charset=utf-8")
	return h
}

// Body builds a non-streaming chat request.
func (b *OllamaBackend) Body(messages []Message, temperature float64) any {
	return ollamaChatRequest{
		Model:    b.model,
		Messages: messages,
		Stream:   false,
		Options:  ollamaOptions{Temperature: temperature},
	}
}

// ExtractContent reads message.content.
func (b *OllamaBackend) ExtractContent(body []byte) (string, bool) {
	r := gjson.GetBytes(body, "message.content")
	return r.String(), r.Exists()
}

// TotalTokens adds prompt and completion counts; Ollama reports no usage object.
func (b *OllamaBackend) TotalTokens(body []byte) int64 {
	return gjson.GetBytes(body, "prompt_eval_count").Int() + gjson.GetBytes(body, "eval_count").Int()
}
