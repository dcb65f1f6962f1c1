package llm

import (
	"net/http"

	"github.com/tidwall/gjson"
)

// DashScopeEndpoint is the fixed text-generation endpoint of Alibaba DashScope.
const DashScopeEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"

// DashScopeBackend speaks the DashScope (Qianwen) wire format, which nests the
// conversation under input and the sampling options under parameters.
type DashScopeBackend struct {
	name          string
	credentialKey string
	endpoint      string
	model         string
}

// NewDashScopeBackend creates a DashScope backend. An empty endpoint selects
// DashScopeEndpoint.
func NewDashScopeBackend(name, credentialKey, endpoint, model string) *DashScopeBackend {
	if endpoint == "" {
		endpoint = DashScopeEndpoint
	}
	return &DashScopeBackend{
		name:          name,
		credentialKey: credentialKey,
		endpoint:      endpoint,
		model:         model,
	}
}

type dashScopeRequest struct {
	Model      string              `json:"model"`
	Input      dashScopeInput      `json:"input"`
	Parameters dashScopeParameters `json:"parameters"`
}

type dashScopeInput struct {
	Messages []Message `json:"messages"`
}

type dashScopeParameters struct {
	Temperature  float64 `json:"temperature"`
	ResultFormat string  `json:"result_format"`
}

// contentPaths are tried in order; the service has answered in each of these
// shapes depending on result_format and API version.
var dashScopeContentPaths = []string{
	"output.message.content",
	"output.choices.0.message.content",
	"output.text",
}

func (b *DashScopeBackend) Name() string          { return b.name }
func (b *DashScopeBackend) CredentialKey() string { return b.credentialKey }
func (b *DashScopeBackend) Endpoint() string      { return b.endpoint }

func (b *DashScopeBackend) Capabilities() Capabilities {
	return Capabilities{SystemRole: true}
}

// Headers uses bearer authentication.
func (b *DashScopeBackend) Headers(credential string) http.Header {
	return bearerHeaders(credential)
}

// Body builds the nested input/parameters envelope.
func (b *DashScopeBackend) Body(messages []Message, temperature float64) any {
	return dashScopeRequest{
		Model: b.model,
		Input: dashScopeInput{Messages: messages},
		Parameters: dashScopeParameters{
			Temperature:  temperature,
			ResultFormat: "message",
		},
	}
}

// ExtractContent reads output.message.content, falling back to the other
// envelopes DashScope is known to return.
func (b *DashScopeBackend) ExtractContent(body []byte) (string, bool) {
	for _, path := range dashScopeContentPaths {
		if r := gjson.GetBytes(body, path); r.Exists() {
			return r.String(), true
		}
	}
	return "", false
}
