package llm

import (
	"net/http"

	"github.com/tidwall/gjson"
)

// OpenAIBackend speaks the OpenAI chat completions wire format: a flat
// {model, messages, temperature} body answered with choices[0].message.content.
// Any OpenAI-compatible gateway (Gemini proxies, OpenRouter, DeepSeek) uses it.
type OpenAIBackend struct {
	name          string
	credentialKey string
	endpoint      string
	model         string
	caps          Capabilities
}

// NewOpenAIBackend creates an OpenAI-compatible backend.
func NewOpenAIBackend(name, credentialKey, endpoint, model string, caps Capabilities) *OpenAIBackend {
	return &OpenAIBackend{
		name:          name,
		credentialKey: credentialKey,
		endpoint:      endpoint,
		model:         model,
		caps:          caps,
	}
}

type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

func (b *OpenAIBackend) Name() string               { return b.name }
func (b *OpenAIBackend) CredentialKey() string      { return b.credentialKey }
func (b *OpenAIBackend) Endpoint() string           { return b.endpoint }
func (b *OpenAIBackend) Capabilities() Capabilities { return b.caps }

// Headers uses bearer authentication.
func (b *OpenAIBackend) Headers(credential string) http.Header {
	return bearerHeaders(credential)
}

// Body builds the flat chat completions envelope.
func (b *OpenAIBackend) Body(messages []Message, temperature float64) any {
	return openAIRequest{
		Model:       b.model,
		Messages:    messages,
		Temperature: temperature,
	}
}

// ExtractContent reads choices[0].message.content.
func (b *OpenAIBackend) ExtractContent(body []byte) (string, bool) {
	r := gjson.GetBytes(body, "choices.0.message.content")
	return r.String(), r.Exists()
}
