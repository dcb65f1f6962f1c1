package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dan-solli/casegen/pkg/llm"
)

// clearEnv unsets every variable Load reads so host settings cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, names := range providerEnv {
		for _, name := range names {
			t.Setenv(name, "")
			os.Unsetenv(name)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "testcases.yaml", cfg.Output)
	assert.Equal(t, llm.DefaultBackend, cfg.Backend)
	assert.Equal(t, llm.DefaultMaxRetries, cfg.Generation.MaxRetries)
	assert.Equal(t, 1, cfg.Generation.Workers)
	assert.True(t, cfg.Generation.QualifyTitles)
	assert.Equal(t, "default", cfg.Backends.DefaultModel)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadProviderEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("AI_BASE_URL", "https://primary.example.com/v1/chat/completions")
	t.Setenv("AI_API_ENDPOINT", "https://secondary.example.com/v1/chat/completions")
	t.Setenv("MODEL_NAME", "gpt-4o")
	t.Setenv("GEMINI_NO_SYSTEM_ROLE", "true")
	t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "https://primary.example.com/v1/chat/completions", cfg.Backends.DefaultEndpoint,
		"AI_BASE_URL takes precedence over AI_API_ENDPOINT")
	assert.Equal(t, "gpt-4o", cfg.Backends.DefaultModel)
	assert.True(t, cfg.Backends.GeminiNoSystemRole)

	settings := cfg.Backends.Settings()
	assert.False(t, settings.GeminiSystemRole)
	assert.Equal(t, "http://localhost:11434", settings.OllamaBaseURL)
}

func TestLoadSecondaryEndpointEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("AI_API_ENDPOINT", "https://secondary.example.com/v1/chat/completions")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "https://secondary.example.com/v1/chat/completions", cfg.Backends.DefaultEndpoint)
}

func TestLoadPrefixedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CASEGEN_GENERATION_WORKERS", "4")
	t.Setenv("CASEGEN_LOG_LEVEL", "debug")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Generation.Workers)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("CASEGEN_GENERATION_WORKERS", "4")

	fs := NewFlagSet("test")
	require.NoError(t, fs.Parse([]string{"--input", "reqs.yaml", "--workers", "8", "--backend", "qianwen", "--db", "runs.db"}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "reqs.yaml", cfg.Input)
	assert.Equal(t, 8, cfg.Generation.Workers)
	assert.Equal(t, "qianwen", cfg.Backend)
	assert.Equal(t, "runs.db", cfg.Storage.DBPath)
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "casegen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: deepseek
generation:
  max_retries: 5
  rate_limit: 2.5
storage:
  trace_path: traces.jsonl
`), 0o644))

	fs := NewFlagSet("test")
	require.NoError(t, fs.Parse([]string{"--config", path}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "deepseek", cfg.Backend)
	assert.Equal(t, 5, cfg.Generation.MaxRetries)
	assert.Equal(t, 2.5, cfg.Generation.RateLimit)
	assert.Equal(t, "traces.jsonl", cfg.Storage.TracePath)
}

func TestLoadValidationErrors(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{"workers out of range", map[string]string{"CASEGEN_GENERATION_WORKERS": "0"}},
		{"retries out of range", map[string]string{"CASEGEN_GENERATION_MAX_RETRIES": "99"}},
		{"invalid log level", map[string]string{"CASEGEN_LOG_LEVEL": "verbose"}},
		{"invalid endpoint", map[string]string{"AI_BASE_URL": "not a url"}},
		{"invalid metrics address", map[string]string{"CASEGEN_METRICS_ADDR": "nowhere"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load(nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config validation failed")
			assert.Nil(t, cfg)
		})
	}
}

func TestCredentials(t *testing.T) {
	env := map[string]string{
		"AI_API_KEY":      "sk-default",
		"QIANWEN_API_KEY": "sk-qianwen",
		"UNRELATED":       "x",
	}

	creds := Credentials(func(k string) string { return env[k] })

	assert.Equal(t, llm.StaticCredentials{
		llm.DefaultCredentialKey: "sk-default",
		llm.QianwenCredentialKey: "sk-qianwen",
	}, creds)
}
