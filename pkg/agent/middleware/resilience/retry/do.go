package retry

import (
	"context"
	"fmt"
	"time"
)

// ExhaustedError is returned when all retry attempts have been spent on a
// retryable error, or when a non-retryable error aborts the loop early.
type ExhaustedError struct {
	Err      error // last error observed
	Attempts int   // number of attempts actually made
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempt(s): %v", e.Attempts, e.Err)
}

// Unwrap returns the last underlying error.
func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do executes op under the policy, sleeping min(maxDelay, initial*factor^(n-1))
// between attempts. Non-retryable errors fail immediately; a retryable error
// that survives all attempts is wrapped in ExhaustedError either way. The
// backoff sleep honors ctx cancellation.
func Do[T any](ctx context.Context, policy *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := policy.CalculateDelay(attempt)
			if delay > 0 {
				select {
				case <-ctx.Done():
					return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
				case <-time.After(delay):
				}
			}
		}

		attempts = attempt
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !policy.ShouldRetry(err) {
			break
		}
		if policy.OnRetry != nil && attempt < policy.Config.MaxAttempts {
			policy.OnRetry(attempt, err)
		}
	}

	return zero, &ExhaustedError{Err: lastErr, Attempts: attempts}
}
