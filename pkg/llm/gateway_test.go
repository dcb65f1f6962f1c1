package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleep captures backoff delays instead of waiting.
type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func newTestGateway(t *testing.T, backends []Backend, creds StaticCredentials, sleeper *recordingSleep) *Gateway {
	t.Helper()
	reg := NewRegistry()
	for _, b := range backends {
		require.NoError(t, reg.Register(b))
	}
	policy := DefaultBackoff()
	if sleeper != nil {
		policy.Sleep = sleeper.sleep
	}
	return NewGateway(reg, creds, WithBackoff(policy))
}

func chatMessages() []Message {
	return []Message{
		{Role: RoleSystem, Content: "你是一位专业的测试工程师"},
		{Role: RoleUser, Content: "请为<登录>生成测试用例 & 返回"},
	}
}

func TestGatewayInvoke_OpenAISuccess(t *testing.T) {
	var rawBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json; charset=utf-8", r.Header.Get("Content-Type"))

		rawBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"### 测试用例1：登录"}}],"usage":{"total_tokens":42}}`))
	}))
	defer server.Close()

	backend := NewOpenAIBackend(DefaultBackend, DefaultCredentialKey, server.URL, "gpt-test", Capabilities{SystemRole: true})
	gw := newTestGateway(t, []Backend{backend}, StaticCredentials{DefaultCredentialKey: "test-key"}, nil)

	completion, err := gw.Invoke(context.Background(), DefaultBackend, chatMessages(), 0.7, 3)
	require.NoError(t, err)

	assert.Equal(t, "### 测试用例1：登录", completion.Content)
	assert.Equal(t, int64(42), completion.TotalTokens)
	assert.Equal(t, 1, completion.Attempts)

	// Multi-byte and markup characters are sent verbatim.
	assert.Contains(t, string(rawBody), "你是一位专业的测试工程师")
	assert.Contains(t, string(rawBody), "<登录>")
	assert.Contains(t, string(rawBody), "& 返回")

	var sent struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		Temperature float64   `json:"temperature"`
	}
	require.NoError(t, json.Unmarshal(rawBody, &sent))
	assert.Equal(t, "gpt-test", sent.Model)
	assert.Equal(t, 0.7, sent.Temperature)
	require.Len(t, sent.Messages, 2)
	assert.Equal(t, RoleSystem, sent.Messages[0].Role)
	assert.Equal(t, RoleUser, sent.Messages[1].Role)
}

func TestGatewayInvoke_DashScopeEnvelope(t *testing.T) {
	var sent map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&sent)
		w.Write([]byte(`{"output":{"message":{"role":"assistant","content":"千问回复"}},"usage":{"total_tokens":7}}`))
	}))
	defer server.Close()

	backend := NewDashScopeBackend(QianwenBackend, QianwenCredentialKey, server.URL, "qwen-max")
	gw := newTestGateway(t, []Backend{backend}, StaticCredentials{QianwenCredentialKey: "qk"}, nil)

	completion, err := gw.Invoke(context.Background(), QianwenBackend, chatMessages(), 0.7, 3)
	require.NoError(t, err)
	assert.Equal(t, "千问回复", completion.Content)
	assert.Equal(t, int64(7), completion.TotalTokens)

	assert.Equal(t, "qwen-max", sent["model"])
	input, ok := sent["input"].(map[string]any)
	require.True(t, ok, "expected nested input object")
	assert.Len(t, input["messages"], 2)
	params, ok := sent["parameters"].(map[string]any)
	require.True(t, ok, "expected nested parameters object")
	assert.Equal(t, 0.7, params["temperature"])
	assert.Equal(t, "message", params["result_format"])
	assert.NotContains(t, sent, "messages")
}

func TestGatewayInvoke_RetriesExactlyMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Server error"))
	}))
	defer server.Close()

	sleeper := &recordingSleep{}
	backend := NewOpenAIBackend(DefaultBackend, DefaultCredentialKey, server.URL, "m", Capabilities{SystemRole: true})
	gw := newTestGateway(t, []Backend{backend}, StaticCredentials{DefaultCredentialKey: "k"}, sleeper)

	_, err := gw.Invoke(context.Background(), DefaultBackend, chatMessages(), 0.7, 4)
	require.Error(t, err)

	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeper.delays)

	assert.True(t, errors.Is(err, ErrDeliveryFailed))
	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 4, de.Attempts)
	assert.Equal(t, DefaultBackend, de.Backend)
	assert.Contains(t, err.Error(), "HTTP 500")
	assert.False(t, IsConfigurationError(err))
}

func TestGatewayInvoke_RetryThenSuccess(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}],"usage":{"total_tokens":9}}`))
	}))
	defer server.Close()

	sleeper := &recordingSleep{}
	backend := NewOpenAIBackend(DefaultBackend, DefaultCredentialKey, server.URL, "m", Capabilities{SystemRole: true})
	gw := newTestGateway(t, []Backend{backend}, StaticCredentials{DefaultCredentialKey: "k"}, sleeper)

	completion, err := gw.Invoke(context.Background(), DefaultBackend, chatMessages(), 0.7, 3)
	require.NoError(t, err)
	assert.Equal(t, "ok", completion.Content)
	assert.Equal(t, 3, completion.Attempts)
	assert.Equal(t, int64(9), completion.TotalTokens)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
}

func TestGatewayInvoke_InvalidJSONIsRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("not valid json"))
	}))
	defer server.Close()

	backend := NewOpenAIBackend(DefaultBackend, DefaultCredentialKey, server.URL, "m", Capabilities{SystemRole: true})
	gw := newTestGateway(t, []Backend{backend}, StaticCredentials{DefaultCredentialKey: "k"}, &recordingSleep{})

	_, err := gw.Invoke(context.Background(), DefaultBackend, chatMessages(), 0.7, 2)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestGatewayInvoke_EmptyContentIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	backend := NewOpenAIBackend(DefaultBackend, DefaultCredentialKey, server.URL, "m", Capabilities{SystemRole: true})
	gw := newTestGateway(t, []Backend{backend}, StaticCredentials{DefaultCredentialKey: "k"}, &recordingSleep{})

	completion, err := gw.Invoke(context.Background(), DefaultBackend, chatMessages(), 0.7, 3)
	require.NoError(t, err)
	assert.Equal(t, "", completion.Content)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGatewayInvoke_ConfigurationErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	withEndpoint := NewOpenAIBackend(DefaultBackend, DefaultCredentialKey, server.URL, "m", Capabilities{SystemRole: true})
	noEndpoint := NewOpenAIBackend(GeminiBackend, GeminiCredentialKey, "", "gemini", Capabilities{})
	noCredential := NewOpenAIBackend(OpenRouterBackend, OpenRouterCredentialKey, server.URL, "m", Capabilities{SystemRole: true})

	gw := newTestGateway(t,
		[]Backend{withEndpoint, noEndpoint, noCredential},
		StaticCredentials{DefaultCredentialKey: "k", GeminiCredentialKey: "g"},
		&recordingSleep{})

	tests := []struct {
		name    string
		backend string
		want    error
	}{
		{"unknown backend", "gpt-9", ErrUnknownBackend},
		{"missing credential", OpenRouterBackend, ErrMissingCredential},
		{"missing endpoint", GeminiBackend, ErrMissingEndpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gw.Invoke(context.Background(), tt.backend, chatMessages(), 0.7, 3)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, IsConfigurationError(err))
		})
	}

	assert.Equal(t, int32(0), calls.Load(), "configuration errors must not reach the network")
}

func TestGatewayInvoke_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	policy := DefaultBackoff()
	policy.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	reg := NewRegistry()
	require.NoError(t, reg.Register(NewOpenAIBackend(DefaultBackend, DefaultCredentialKey, server.URL, "m", Capabilities{SystemRole: true})))
	gw := NewGateway(reg, StaticCredentials{DefaultCredentialKey: "k"}, WithBackoff(policy))

	_, err := gw.Invoke(ctx, DefaultBackend, chatMessages(), 0.7, 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGatewayInvoke_TimeoutIsRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{"choices":[{"message":{"content":"late"}}]}`))
	}))
	defer server.Close()

	reg := NewRegistry()
	require.NoError(t, reg.Register(NewOpenAIBackend(DefaultBackend, DefaultCredentialKey, server.URL, "m", Capabilities{SystemRole: true})))
	policy := DefaultBackoff()
	policy.Sleep = (&recordingSleep{}).sleep
	gw := NewGateway(reg, StaticCredentials{DefaultCredentialKey: "k"},
		WithBackoff(policy),
		WithHTTPClient(&http.Client{Timeout: 5 * time.Millisecond}))

	_, err := gw.Invoke(context.Background(), DefaultBackend, chatMessages(), 0.7, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeliveryFailed))
	assert.Equal(t, int32(2), calls.Load())
}

func TestBackoffPolicyDelay(t *testing.T) {
	p := DefaultBackoff()
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))

	p.MaxDelay = 3 * time.Second
	assert.Equal(t, 3*time.Second, p.Delay(2))

	jittered := BackoffPolicy{BaseDelay: time.Second, Factor: 2, Jitter: true}
	for i := 0; i < 20; i++ {
		d := jittered.Delay(1)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 3*time.Second)
	}
}

func TestGatewayInvoke_OllamaChat(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"message":{"role":"assistant","content":"### Test Case 1: Local"},"done":true,"prompt_eval_count":30,"eval_count":12}`))
	}))
	defer server.Close()

	gw := newTestGateway(t, []Backend{NewOllamaBackend("ollama", server.URL, "mistral")}, StaticCredentials{}, nil)

	completion, err := gw.Invoke(context.Background(), "ollama", chatMessages(), 0.7, 3)
	require.NoError(t, err)
	assert.Equal(t, "### Test Case 1: Local", completion.Content)
	assert.Equal(t, int64(42), completion.TotalTokens)

	assert.Equal(t, "mistral", got["model"])
	assert.Equal(t, false, got["stream"])
	assert.Equal(t, 0.7, got["options"].(map[string]any)["temperature"])
}
