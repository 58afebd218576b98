package retry

import (
	"context"

	"draftflow/pkg/agent/llm"
)

// Middleware returns a middleware function that wraps a model client with
// retry logic according to the configured policy, with exponential backoff.
func Middleware(policy *Policy) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				return Do(ctx, policy, func(ctx context.Context) (llm.CompletionResponse, error) {
					return next.Complete(ctx, req)
				})
			},
			next.ModelName,
		)
	}
}
