package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dan-solli/casegen/pkg/llm"
)

// EnvPrefix prefixes environment variables for settings that have no
// provider-defined name, e.g. CASEGEN_GENERATION_WORKERS.
const EnvPrefix = "CASEGEN"

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"input":          "input",
	"output":         "output",
	"report":         "report",
	"backend":        "backend",
	"max-retries":    "generation.max_retries",
	"workers":        "generation.workers",
	"rate-limit":     "generation.rate_limit",
	"qualify-titles": "generation.qualify_titles",
	"skip-processed": "generation.skip_processed",
	"db":             "storage.db_path",
	"trace":          "storage.trace_path",
	"metrics-addr":   "metrics_addr",
	"log-level":      "log.level",
	"log-format":     "log.format",
}

// providerEnv binds keys to the environment variable names the providers'
// tooling already uses. Earlier names take precedence.
var providerEnv = map[string][]string{
	"backends.default_endpoint":      {"AI_BASE_URL", "AI_API_ENDPOINT"},
	"backends.default_model":         {"MODEL_NAME"},
	"backends.gemini_endpoint":       {"GEMINI_BASE_URL"},
	"backends.gemini_model":          {"GEMINI_MODEL_NAME"},
	"backends.gemini_no_system_role": {"GEMINI_NO_SYSTEM_ROLE"},
	"backends.openrouter_endpoint":   {"OPENROUTER_BASE_URL"},
	"backends.openrouter_model":      {"OPENROUTER_MODEL_NAME"},
	"backends.deepseek_endpoint":     {"DEEPSEEK_BASE_URL"},
	"backends.deepseek_model":        {"DEEPSEEK_MODEL_NAME"},
	"backends.ollama_base_url":       {"OLLAMA_BASE_URL"},
	"backends.ollama_model":          {"OLLAMA_MODEL_NAME"},
}

// NewFlagSet declares the command-line flags understood by Load.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.StringP("config", "c", "", "config file (yaml, json or toml)")
	fs.StringP("input", "i", "", "requirements file (yaml or json)")
	fs.StringP("output", "o", "testcases.yaml", "test case output file (yaml or json)")
	fs.String("report", "", "summary report file (yaml or json)")
	fs.StringP("backend", "b", llm.DefaultBackend, "backend name")
	fs.Int("max-retries", llm.DefaultMaxRetries, "delivery attempts per requirement")
	fs.IntP("workers", "w", 1, "requirements processed concurrently")
	fs.Float64("rate-limit", 0, "maximum backend requests per second (0 = unlimited)")
	fs.Bool("qualify-titles", true, "prefix case titles with the requirement title")
	fs.Bool("skip-processed", false, "skip requirements already processed with identical content (needs --db)")
	fs.String("db", "", "SQLite database recording runs and test cases")
	fs.String("trace", "", "JSON Lines trace file")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("log-format", "text", "log format (json, text)")
	fs.Bool("list-backends", false, "list registered backends and exit")
	return fs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output", "testcases.yaml")
	v.SetDefault("report", "")
	v.SetDefault("backend", llm.DefaultBackend)
	v.SetDefault("generation.max_retries", llm.DefaultMaxRetries)
	v.SetDefault("generation.workers", 1)
	v.SetDefault("generation.rate_limit", 0)
	v.SetDefault("generation.qualify_titles", true)
	v.SetDefault("generation.skip_processed", false)
	v.SetDefault("storage.db_path", "")
	v.SetDefault("storage.trace_path", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	for key := range providerEnv {
		v.SetDefault(key, "")
	}
	v.SetDefault("backends.gemini_no_system_role", false)
	v.SetDefault("backends.default_model", "default")
}

// Load builds the configuration. Precedence, highest first: flags that were
// set explicitly, environment variables, the config file, defaults.
// fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range providerEnv {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if fs != nil {
		for flag, key := range flagKeys {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
				}
			}
		}
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return nil, fmt.Errorf("config validation failed: %s", strings.Join(fields, ", "))
		}
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
