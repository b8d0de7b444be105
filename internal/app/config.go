// Package app loads configuration and wires the application together.
package app

import (
	"fmt"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/yewanyuan/Cursor-Writing/pkg/types"
)

// Config is the application configuration, loaded from YAML with
// ${ENV_VAR} expansion.
type Config struct {
	// DataDir is where project data lives.
	DataDir string `yaml:"data_dir" validate:"required"`

	// LogLevel controls slog verbosity.
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// Budget is the context token budget split.
	Budget types.BudgetConfig `yaml:"budget"`

	// CacheCapacity bounds the store cache entry count.
	CacheCapacity int `yaml:"cache_capacity" validate:"omitempty,min=1"`

	// LLM configures providers and per-agent routing.
	LLM LLMConfig `yaml:"llm"`
}

// LLMConfig configures the LLM client.
type LLMConfig struct {
	// DefaultProvider is used when an agent has no explicit provider.
	DefaultProvider string `yaml:"default_provider"`

	// FallbackProvider is tried when the default fails all retries.
	FallbackProvider string `yaml:"fallback_provider"`

	// RateLimit caps outgoing requests per second.
	RateLimit float64 `yaml:"rate_limit" validate:"omitempty,gt=0"`

	// MaxRetries bounds retry attempts per request.
	MaxRetries int `yaml:"max_retries" validate:"omitempty,min=0,max=10"`

	// Providers holds per-provider credentials and models.
	Providers map[string]ProviderConfig `yaml:"providers" validate:"dive"`

	// Agents maps agent roles to provider and sampling settings.
	Agents map[string]AgentConfig `yaml:"agents" validate:"dive"`
}

// ProviderConfig holds one provider's settings.
type ProviderConfig struct {
	// Kind selects the adapter: "openai" or "gemini".
	Kind string `yaml:"kind" validate:"required,oneof=openai gemini"`

	// APIKey authenticates against the provider.
	APIKey string `yaml:"api_key"`

	// Model is the model name to use.
	Model string `yaml:"model"`

	// BaseURL overrides the endpoint (OpenAI-compatible APIs).
	BaseURL string `yaml:"base_url"`
}

// AgentConfig routes one agent role.
type AgentConfig struct {
	Provider    string  `yaml:"provider"`
	Temperature float64 `yaml:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"omitempty,min=1"`
}

var envVarRe = regexp.MustCompile(`\$\{(\w+)\}`)

// LoadConfig reads and validates a YAML config file. ${VAR} references
// are replaced with environment values before parsing; unset variables
// become empty strings.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := envVarRe.ReplaceAllStringFunc(string(data), func(m string) string {
		return os.Getenv(envVarRe.FindStringSubmatch(m)[1])
	})

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the configuration used when fields are omitted.
func DefaultConfig() *Config {
	return &Config{
		DataDir:       "./data",
		LogLevel:      "info",
		Budget:        types.DefaultBudgetConfig(),
		CacheCapacity: 1024,
		LLM: LLMConfig{
			RateLimit:  5,
			MaxRetries: 3,
		},
	}
}
