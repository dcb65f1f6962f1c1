package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/dan-solli/casegen/pkg/metrics"
	"github.com/dan-solli/casegen/pkg/redact"
)

const (
	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the total number of attempts per Invoke.
	DefaultMaxRetries = 3

	maxErrorBodyBytes = 512
)

// Gateway delivers conversations to registered backends. Backend differences
// live in the Backend implementations; retry, backoff and timeout handling is
// the same for all of them.
type Gateway struct {
	registry *Registry
	creds    CredentialSource
	client   *http.Client
	backoff  BackoffPolicy
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  metrics.Collector
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithHTTPClient replaces the default client (60s timeout).
func WithHTTPClient(c *http.Client) GatewayOption {
	return func(g *Gateway) { g.client = c }
}

// WithBackoff sets the retry backoff policy.
func WithBackoff(p BackoffPolicy) GatewayOption {
	return func(g *Gateway) { g.backoff = p }
}

// WithRateLimiter shares a request-rate ceiling across concurrent callers.
func WithRateLimiter(l *rate.Limiter) GatewayOption {
	return func(g *Gateway) { g.limiter = l }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) GatewayOption {
	return func(g *Gateway) {
		if c != nil {
			g.metrics = c
		}
	}
}

// NewGateway creates a gateway over the given registry and credentials.
func NewGateway(registry *Registry, creds CredentialSource, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		registry: registry,
		creds:    creds,
		client:   &http.Client{Timeout: DefaultTimeout},
		backoff:  DefaultBackoff(),
		logger:   slog.Default(),
		metrics:  metrics.NewNoopCollector(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Registry returns the registry the gateway resolves backends from.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Invoke sends messages to the named backend and returns the extracted reply.
// Configuration problems fail immediately; transient delivery failures are
// retried until maxRetries attempts have been made, after which a
// *DeliveryError is returned.
func (g *Gateway) Invoke(ctx context.Context, name string, messages []Message, temperature float64, maxRetries int) (Completion, error) {
	start := time.Now()

	backend, err := g.registry.Lookup(name)
	if err != nil {
		return Completion{}, err
	}

	var credential string
	if key := backend.CredentialKey(); key != "" {
		credential = g.creds.Credential(key)
		if credential == "" {
			return Completion{}, fmt.Errorf("%w: %s is not set for backend %s", ErrMissingCredential, key, name)
		}
	}

	if backend.Endpoint() == "" {
		return Completion{}, fmt.Errorf("%w: backend %s has no endpoint configured", ErrMissingEndpoint, name)
	}

	payload, err := encodeBody(backend.Body(messages, temperature))
	if err != nil {
		return Completion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	if maxRetries < 1 {
		maxRetries = 1
	}

	var (
		lastErr     error
		totalTokens int64
	)

	for attempt := 0; attempt < maxRetries; attempt++ {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return Completion{}, fmt.Errorf("rate limiter: %w", err)
			}
		}

		g.logger.DebugContext(ctx, "calling backend",
			"backend", name,
			"attempt", attempt+1,
			"max_attempts", maxRetries)

		content, tokens, err := g.send(ctx, backend, credential, payload)
		totalTokens += tokens
		if tokens > 0 {
			g.metrics.AddTokens(ctx, name, tokens)
		}

		if err == nil {
			if content == "" {
				g.logger.WarnContext(ctx, "backend returned empty content", "backend", name)
			}
			g.logger.DebugContext(ctx, "backend call succeeded",
				"backend", name,
				"attempt", attempt+1,
				"tokens", tokens,
				"total_tokens", totalTokens)
			g.metrics.RecordAttempt(ctx, name, "success")
			g.metrics.RecordOperation(ctx, "invoke", "success", time.Since(start).Milliseconds())
			return Completion{Content: content, TotalTokens: totalTokens, Attempts: attempt + 1}, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			g.metrics.RecordOperation(ctx, "invoke", "error", time.Since(start).Milliseconds())
			return Completion{}, ctx.Err()
		}
		if !shouldRetry(err) {
			g.metrics.RecordAttempt(ctx, name, "failed")
			g.metrics.RecordOperation(ctx, "invoke", "error", time.Since(start).Milliseconds())
			return Completion{}, err
		}

		g.logger.WarnContext(ctx, "backend call failed",
			"backend", name,
			"attempt", attempt+1,
			"max_attempts", maxRetries,
			"error", redact.String(err.Error()))

		if attempt == maxRetries-1 {
			g.metrics.RecordAttempt(ctx, name, "failed")
			break
		}
		g.metrics.RecordAttempt(ctx, name, "retry")

		delay := g.backoff.Delay(attempt)
		g.logger.InfoContext(ctx, "retrying after delay",
			"backend", name,
			"attempt", attempt+1,
			"delay", delay)
		if err := g.backoff.wait(ctx, delay); err != nil {
			g.metrics.RecordOperation(ctx, "invoke", "error", time.Since(start).Milliseconds())
			return Completion{}, err
		}
	}

	g.logger.ErrorContext(ctx, "maximum attempts reached, giving up",
		"backend", name,
		"attempts", maxRetries,
		"total_tokens", totalTokens)
	g.metrics.RecordOperation(ctx, "invoke", "error", time.Since(start).Milliseconds())

	return Completion{}, &DeliveryError{Backend: name, Attempts: maxRetries, Err: lastErr}
}

// send performs one HTTP attempt.
func (g *Gateway) send(ctx context.Context, backend Backend, credential string, payload []byte) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, backend.Endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", 0, fmt.Errorf("%w: invalid endpoint for backend %s: %v", ErrMissingEndpoint, backend.Name(), err)
	}
	req.Header = backend.Headers(credential)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", 0, &retryableError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, &retryableError{err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, &retryableError{err: fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(body, maxErrorBodyBytes))}
	}

	if !gjson.ValidBytes(body) {
		return "", 0, &retryableError{err: fmt.Errorf("failed to unmarshal response: invalid JSON (%s)", truncate(body, maxErrorBodyBytes))}
	}

	tokens := gjson.GetBytes(body, "usage.total_tokens").Int()
	if u, ok := backend.(usageReporter); ok {
		tokens = u.TotalTokens(body)
	}

	content, ok := backend.ExtractContent(body)
	if !ok {
		g.logger.WarnContext(ctx, "response has no content field", "backend", backend.Name())
	}
	return content, tokens, nil
}

// encodeBody serializes v as JSON without HTML escaping so that multi-byte and
// markup characters reach the backend verbatim.
func encodeBody(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
