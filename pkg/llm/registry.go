package llm

import (
	"fmt"
	"sort"
	"sync"
)

// Standard backend names.
const (
	DefaultBackend    = "default"
	QianwenBackend    = "qianwen"
	GeminiBackend     = "mygemini"
	OpenRouterBackend = "myopenrouter"
	DeepSeekBackend   = "deepseek"
	OllamaBackendName = "ollama"
)

// Credential keys of the standard backends.
const (
	DefaultCredentialKey    = "AI_API_KEY"
	QianwenCredentialKey    = "QIANWEN_API_KEY"
	GeminiCredentialKey     = "GEMINI_API_KEY"
	OpenRouterCredentialKey = "OPENROUTER_API_KEY"
	DeepSeekCredentialKey   = "DEEPSEEK_API_KEY"
)

const (
	qianwenModel     = "qwen-max"
	deepSeekEndpoint = "https://api.deepseek.com/chat/completions"
	deepSeekModel    = "deepseek-chat"
	ollamaModel      = "mistral"
)

// Registry maps backend names to their connection recipes.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register adds a backend. Names must be unique.
func (r *Registry) Register(b Backend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[b.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateBackend, b.Name())
	}
	r.backends[b.Name()] = b
	return nil
}

// Lookup returns the backend registered under name.
func (r *Registry) Lookup(name string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return b, nil
}

// Names returns every registered backend name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Available returns the sorted names of backends whose credential is currently
// non-empty in creds. Backends without a credential key are always available.
func (r *Registry) Available(creds CredentialSource) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name, b := range r.backends {
		if b.CredentialKey() == "" || creds.Credential(b.CredentialKey()) != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Settings holds the non-secret parameters of the standard backends.
type Settings struct {
	DefaultEndpoint string
	DefaultModel    string

	GeminiEndpoint   string
	GeminiModel      string
	GeminiSystemRole bool

	OpenRouterEndpoint string
	OpenRouterModel    string

	DeepSeekEndpoint string
	DeepSeekModel    string

	// OllamaBaseURL enables the local backend when set.
	OllamaBaseURL string
	OllamaModel   string
}

// NewStandardRegistry registers every standard backend whose credential is
// present in creds. Backends without a credential are left out entirely. The
// keyless local backend is registered when its base URL is configured.
func NewStandardRegistry(s Settings, creds CredentialSource) (*Registry, error) {
	candidates := []Backend{
		NewOpenAIBackend(DefaultBackend, DefaultCredentialKey, s.DefaultEndpoint, s.DefaultModel,
			Capabilities{SystemRole: true}),
		NewDashScopeBackend(QianwenBackend, QianwenCredentialKey, "", qianwenModel),
		NewOpenAIBackend(GeminiBackend, GeminiCredentialKey, s.GeminiEndpoint, s.GeminiModel,
			Capabilities{SystemRole: s.GeminiSystemRole}),
		NewOpenAIBackend(OpenRouterBackend, OpenRouterCredentialKey, s.OpenRouterEndpoint, s.OpenRouterModel,
			Capabilities{SystemRole: true}),
		NewOpenAIBackend(DeepSeekBackend, DeepSeekCredentialKey, orDefault(s.DeepSeekEndpoint, deepSeekEndpoint),
			orDefault(s.DeepSeekModel, deepSeekModel), Capabilities{SystemRole: true, StrictFormat: true}),
	}

	r := NewRegistry()
	if s.OllamaBaseURL != "" {
		if err := r.Register(NewOllamaBackend(OllamaBackendName, s.OllamaBaseURL, orDefault(s.OllamaModel, ollamaModel))); err != nil {
			return nil, err
		}
	}
	for _, b := range candidates {
		if creds.Credential(b.CredentialKey()) == "" {
			continue
		}
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
