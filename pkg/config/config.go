// Package config loads the generator settings from flags, environment
// variables and an optional config file, and validates them once at startup.
package config

import (
	"github.com/dan-solli/casegen/pkg/llm"
)

// Config holds all application configuration. It is built once by Load and
// never modified afterwards.
type Config struct {
	Input   string `mapstructure:"input"`
	Output  string `mapstructure:"output" validate:"required"`
	Report  string `mapstructure:"report"`
	Backend string `mapstructure:"backend" validate:"required"`

	Generation GenerationConfig `mapstructure:"generation"`
	Backends   BackendsConfig   `mapstructure:"backends"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Log        LogConfig        `mapstructure:"log"`

	// MetricsAddr serves /metrics and /healthz when set, e.g. ":9090".
	MetricsAddr string `mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
}

// GenerationConfig controls how requirements are processed.
type GenerationConfig struct {
	MaxRetries int `mapstructure:"max_retries" validate:"gte=1,lte=10"`
	Workers    int `mapstructure:"workers" validate:"gte=1,lte=32"`

	// RateLimit caps backend requests per second across workers; 0 disables it.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`

	QualifyTitles bool `mapstructure:"qualify_titles"`
	SkipProcessed bool `mapstructure:"skip_processed"`
}

// BackendsConfig holds the non-secret backend parameters.
type BackendsConfig struct {
	DefaultEndpoint string `mapstructure:"default_endpoint" validate:"omitempty,url"`
	DefaultModel    string `mapstructure:"default_model"`

	GeminiEndpoint     string `mapstructure:"gemini_endpoint" validate:"omitempty,url"`
	GeminiModel        string `mapstructure:"gemini_model"`
	GeminiNoSystemRole bool   `mapstructure:"gemini_no_system_role"`

	OpenRouterEndpoint string `mapstructure:"openrouter_endpoint" validate:"omitempty,url"`
	OpenRouterModel    string `mapstructure:"openrouter_model"`

	DeepSeekEndpoint string `mapstructure:"deepseek_endpoint" validate:"omitempty,url"`
	DeepSeekModel    string `mapstructure:"deepseek_model"`

	OllamaBaseURL string `mapstructure:"ollama_base_url" validate:"omitempty,url"`
	OllamaModel   string `mapstructure:"ollama_model"`
}

// StorageConfig locates the optional run database and trace file.
type StorageConfig struct {
	DBPath    string `mapstructure:"db_path"`
	TracePath string `mapstructure:"trace_path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// Settings converts the backend parameters for llm.NewStandardRegistry.
func (b BackendsConfig) Settings() llm.Settings {
	return llm.Settings{
		DefaultEndpoint:    b.DefaultEndpoint,
		DefaultModel:       b.DefaultModel,
		GeminiEndpoint:     b.GeminiEndpoint,
		GeminiModel:        b.GeminiModel,
		GeminiSystemRole:   !b.GeminiNoSystemRole,
		OpenRouterEndpoint: b.OpenRouterEndpoint,
		OpenRouterModel:    b.OpenRouterModel,
		DeepSeekEndpoint:   b.DeepSeekEndpoint,
		DeepSeekModel:      b.DeepSeekModel,
		OllamaBaseURL:      b.OllamaBaseURL,
		OllamaModel:        b.OllamaModel,
	}
}

// credentialKeys are the environment variables holding backend API keys.
var credentialKeys = []string{
	llm.DefaultCredentialKey,
	llm.QianwenCredentialKey,
	llm.GeminiCredentialKey,
	llm.OpenRouterCredentialKey,
	llm.DeepSeekCredentialKey,
}

// Credentials snapshots the backend API keys using lookup (usually os.Getenv).
// Secrets are kept out of Config so it can be logged safely.
func Credentials(lookup func(string) string) llm.StaticCredentials {
	creds := make(llm.StaticCredentials, len(credentialKeys))
	for _, key := range credentialKeys {
		if v := lookup(key); v != "" {
			creds[key] = v
		}
	}
	return creds
}
