package metrics

import (
	"context"
	"time"

	"draftflow/pkg/agent/llm"
	"draftflow/pkg/agent/llmerrors"
)

// CallContext identifies the project and phase a model call belongs to.
// Populated by the orchestrator before each invocation.
type CallContext struct {
	ProjectID string
	Phase     string
}

// ContextProvider supplies the call context for metric labels.
type ContextProvider interface {
	CallContext() CallContext
}

// PricingFunc computes the USD cost of a call from its token usage.
type PricingFunc func(model string, usage llm.Usage) float64

// Middleware returns a middleware that records request metrics for every call
// made through the wrapped client.
func Middleware(rec Recorder, agentType string, provider ContextProvider, pricing PricingFunc) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				cc := CallContext{}
				if provider != nil {
					cc = provider.CallContext()
				}

				errorType := ""
				if err != nil {
					errorType = llmerrors.TypeOf(err).String()
				}

				cost := 0.0
				if pricing != nil && err == nil {
					cost = pricing(next.ModelName(), resp.Usage)
				}

				rec.ObserveRequest(
					next.ModelName(), cc.ProjectID, agentType, cc.Phase,
					resp.Usage.PromptTokens, resp.Usage.CompletionTokens,
					cost, err == nil, errorType, duration,
				)

				return resp, err //nolint:wrapcheck // Middleware passes through errors unchanged
			},
			next.ModelName,
		)
	}
}
