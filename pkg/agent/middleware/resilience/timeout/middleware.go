// Package timeout provides per-request timeout middleware for model clients.
package timeout

import (
	"context"
	"time"

	"draftflow/pkg/agent/llm"
)

// Middleware returns a middleware function that bounds each request with a
// timeout context. Expiry surfaces as context.DeadlineExceeded, which the
// retry layer treats as retryable.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				return next.Complete(timeoutCtx, req)
			},
			next.ModelName,
		)
	}
}
