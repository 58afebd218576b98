package agent

import (
	"fmt"

	"draftflow/pkg/agent/internal/llmimpl/anthropic"
	"draftflow/pkg/agent/internal/llmimpl/google"
	"draftflow/pkg/agent/internal/llmimpl/ollama"
	"draftflow/pkg/agent/internal/llmimpl/openai"
	"draftflow/pkg/agent/llm"
	"draftflow/pkg/agent/middleware/metrics"
	"draftflow/pkg/agent/middleware/resilience/circuit"
	"draftflow/pkg/agent/middleware/resilience/retry"
	"draftflow/pkg/agent/middleware/resilience/timeout"
	"draftflow/pkg/config"
)

// ClientFactory creates model clients with properly configured middleware
// chains. Circuit breakers are per provider and shared across every client
// the factory hands out.
type ClientFactory struct {
	config   config.Config
	recorder metrics.Recorder
	breakers map[string]circuit.Breaker
}

// NewClientFactory creates a client factory with the given configuration.
// recorder may be nil; metrics are then discarded.
func NewClientFactory(cfg config.Config, recorder metrics.Recorder) *ClientFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}

	circuitConfig := circuit.Config{
		FailureThreshold: cfg.Agents.Resilience.CircuitBreaker.FailureThreshold,
		RecoveryTimeout:  cfg.Agents.Resilience.CircuitBreaker.RecoveryTimeout,
	}
	breakers := make(map[string]circuit.Breaker)
	for _, provider := range []string{
		config.ProviderAnthropic,
		config.ProviderOpenAI,
		config.ProviderGoogle,
		config.ProviderOllama,
	} {
		breakers[provider] = circuit.New(circuitConfig)
	}

	return &ClientFactory{
		config:   cfg,
		recorder: recorder,
		breakers: breakers,
	}
}

// CreateClient creates a model client for the given agent type with the full
// middleware chain. The API key is resolved from the secrets store or
// environment based on the model's provider.
func (f *ClientFactory) CreateClient(agentType Type) (llm.Client, error) {
	return f.CreateClientWithContext(agentType, nil)
}

// CreateClientWithContext is CreateClient with a call-context provider for
// per-project metric labels.
func (f *ClientFactory) CreateClientWithContext(agentType Type, provider metrics.ContextProvider) (llm.Client, error) {
	modelName, err := f.config.ModelFor(agentType.String())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve model for agent %s: %w", agentType, err)
	}
	return f.createClientWithMiddleware(modelName, agentType.String(), provider)
}

// createClientWithMiddleware creates a client with the full middleware chain.
func (f *ClientFactory) createClientWithMiddleware(modelName, agentType string, ctxProvider metrics.ContextProvider) (llm.Client, error) {
	providerName, err := config.GetModelProvider(modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", modelName, err)
	}

	apiKey, err := config.GetAPIKey(providerName)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", providerName, err)
	}

	var rawClient llm.Client
	switch providerName {
	case config.ProviderAnthropic:
		rawClient = anthropic.NewClient(apiKey, modelName)
	case config.ProviderOpenAI:
		rawClient = openai.NewClient(apiKey, modelName)
	case config.ProviderGoogle:
		rawClient = google.NewClient(apiKey, modelName)
	case config.ProviderOllama:
		rawClient = ollama.NewClient(f.config.Agents.OllamaHost, modelName)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerName)
	}

	breaker, exists := f.breakers[providerName]
	if !exists {
		return nil, fmt.Errorf("no circuit breaker found for provider %s", providerName)
	}

	retryPolicy := retry.NewPolicy(retry.Config{
		MaxAttempts:   f.config.Agents.Resilience.Retry.MaxAttempts,
		InitialDelay:  f.config.Agents.Resilience.Retry.InitialDelay,
		MaxDelay:      f.config.Agents.Resilience.Retry.MaxDelay,
		BackoffFactor: f.config.Agents.Resilience.Retry.BackoffFactor,
		Jitter:        true,
	}, nil) // default classifier

	// Middleware chain, outermost first:
	// Metrics -> CircuitBreaker -> Retry -> Timeout -> RawClient
	client := llm.Chain(rawClient,
		metrics.Middleware(f.recorder, agentType, ctxProvider, config.CostUSD),
		circuit.Middleware(breaker),
		retry.Middleware(retryPolicy),
		timeout.Middleware(f.config.Agents.Resilience.RequestTimeout),
	)

	return client, nil
}

// BreakerStates reports the current circuit state per provider, for health
// endpoints.
func (f *ClientFactory) BreakerStates() map[string]circuit.State {
	states := make(map[string]circuit.State, len(f.breakers))
	for provider, b := range f.breakers {
		states[provider] = b.GetState()
	}
	return states
}
