// Package config provides configuration loading, validation, and the model
// provider registry.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"draftflow/pkg/agent/llm"
)

// Provider identifiers for model backends.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Environment variables holding provider API keys.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
)

// ModelInfo contains static information about a known model. This data is
// hardcoded in the application, not user-configurable.
type ModelInfo struct {
	Provider  string  // API provider
	InputCPM  float64 // Cost per million input tokens (USD)
	OutputCPM float64 // Cost per million output tokens (USD)
}

// KnownModels registry contains pricing and provider information for common
// models. Unknown models are inferred via name patterns and priced at zero.
//
//nolint:gochecknoglobals // Static registry, read-only after init
var KnownModels = map[string]ModelInfo{
	"claude-sonnet-4-0": {Provider: ProviderAnthropic, InputCPM: 3.0, OutputCPM: 15.0},
	"claude-3-5-haiku":  {Provider: ProviderAnthropic, InputCPM: 0.8, OutputCPM: 4.0},
	"gpt-4o":            {Provider: ProviderOpenAI, InputCPM: 2.5, OutputCPM: 10.0},
	"gpt-4o-mini":       {Provider: ProviderOpenAI, InputCPM: 0.15, OutputCPM: 0.6},
	"gemini-2.0-flash":  {Provider: ProviderGoogle, InputCPM: 0.1, OutputCPM: 0.4},
	"gemini-1.5-pro":    {Provider: ProviderGoogle, InputCPM: 1.25, OutputCPM: 5.0},
	"llama3.1:8b":       {Provider: ProviderOllama},
	"qwen2.5-coder:14b": {Provider: ProviderOllama},
}

// GetModelProvider determines which provider serves a model name, using the
// registry first and name patterns as a fallback.
func GetModelProvider(modelName string) (string, error) {
	if info, ok := KnownModels[modelName]; ok {
		return info.Provider, nil
	}
	switch {
	case strings.HasPrefix(modelName, "claude"):
		return ProviderAnthropic, nil
	case strings.HasPrefix(modelName, "gpt") || strings.HasPrefix(modelName, "o3"):
		return ProviderOpenAI, nil
	case strings.HasPrefix(modelName, "gemini"):
		return ProviderGoogle, nil
	case strings.Contains(modelName, ":"):
		// Ollama models carry a tag suffix, e.g. "mistral:7b".
		return ProviderOllama, nil
	default:
		return "", fmt.Errorf("cannot determine provider for model %q", modelName)
	}
}

// GetAPIKey returns the API key for a provider, honoring the secrets file
// before the environment. Ollama needs no key.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGeminiAPIKey
	case ProviderOllama:
		return "", nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key, err := GetSecret(envVar)
	if err != nil {
		return "", fmt.Errorf("no API key for provider %s: %w", provider, err)
	}
	return key, nil
}

// CostUSD computes the cost of a call from the model's registry pricing.
// Unknown models cost zero.
func CostUSD(modelName string, usage llm.Usage) float64 {
	info, ok := KnownModels[modelName]
	if !ok {
		return 0
	}
	const million = 1_000_000
	return float64(usage.PromptTokens)*info.InputCPM/million +
		float64(usage.CompletionTokens)*info.OutputCPM/million
}

// ServerConfig holds the HTTP transport settings. PrometheusURL is optional;
// when set, per-project usage rollups are served from that Prometheus instance.
type ServerConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	PrometheusURL string `yaml:"prometheus_url"`
}

// StorageConfig holds database file locations.
type StorageConfig struct {
	DatabasePath      string `yaml:"database_path"`
	CacheDatabasePath string `yaml:"cache_database_path"`
}

// CircuitBreakerConfig mirrors circuit.Config in the user-facing config file.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// RetryConfig mirrors retry.Config in the user-facing config file.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

// ResilienceConfig groups the resilience policies applied to agent calls.
type ResilienceConfig struct {
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RequestTimeout time.Duration        `yaml:"request_timeout"`
}

// AgentsConfig assigns a model to each agent type and carries resilience policy.
type AgentsConfig struct {
	Models     map[string]string `yaml:"models"` // agent type -> model name
	OllamaHost string            `yaml:"ollama_host"`
	Resilience ResilienceConfig  `yaml:"resilience"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// Config is the top-level configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Agents  AgentsConfig  `yaml:"agents"`
	Cache   CacheConfig   `yaml:"cache"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Storage: StorageConfig{
			DatabasePath:      "draftflow.db",
			CacheDatabasePath: "draftflow-cache.db",
		},
		Agents: AgentsConfig{
			Models: map[string]string{
				"ideation":   "claude-sonnet-4-0",
				"refinement": "claude-sonnet-4-0",
				"media":      "gemini-2.0-flash",
				"factcheck":  "gpt-4o",
				"editorial":  "claude-sonnet-4-0",
			},
			OllamaHost: "http://localhost:11434",
			Resilience: ResilienceConfig{
				Retry: RetryConfig{
					MaxAttempts:   3,
					InitialDelay:  100 * time.Millisecond,
					MaxDelay:      10 * time.Second,
					BackoffFactor: 2.0,
				},
				CircuitBreaker: CircuitBreakerConfig{
					FailureThreshold: 3,
					RecoveryTimeout:  30 * time.Second,
				},
				RequestTimeout: 120 * time.Second,
			},
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     1 * time.Hour,
		},
	}
}

// Validate checks the configuration for obvious problems.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in (0, 65535], got %d", c.Server.Port)
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage database path cannot be empty")
	}
	if len(c.Agents.Models) == 0 {
		return fmt.Errorf("at least one agent model assignment is required")
	}
	for agentType, model := range c.Agents.Models {
		if model == "" {
			return fmt.Errorf("agent %q has an empty model assignment", agentType)
		}
		if _, err := GetModelProvider(model); err != nil {
			return fmt.Errorf("agent %q: %w", agentType, err)
		}
	}
	if c.Agents.Resilience.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive")
	}
	if c.Agents.Resilience.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("circuit breaker failure threshold must be positive")
	}
	return nil
}

// ModelFor returns the model assigned to an agent type.
func (c *Config) ModelFor(agentType string) (string, error) {
	model, ok := c.Agents.Models[agentType]
	if !ok || model == "" {
		return "", fmt.Errorf("no model assigned for agent type %q", agentType)
	}
	return model, nil
}

// envOr reads an environment variable with a fallback.
func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
