package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draftflow/pkg/agent/llmerrors"
	"draftflow/pkg/agent/middleware/resilience/circuit"
)

func TestShouldRetry_NilError(t *testing.T) {
	if ShouldRetry(nil) {
		t.Error("Expected false for nil error")
	}
}

func TestShouldRetry_ContextCanceled(t *testing.T) {
	if ShouldRetry(context.Canceled) {
		t.Error("Expected false for context.Canceled")
	}
	if ShouldRetry(fmt.Errorf("operation failed: %w", context.Canceled)) {
		t.Error("Expected false for wrapped context.Canceled")
	}
}

func TestShouldRetry_DeadlineExceeded(t *testing.T) {
	// Per-call timeouts wrap DeadlineExceeded but the parent context may
	// still be valid, so this must be retryable.
	if !ShouldRetry(context.DeadlineExceeded) {
		t.Error("Expected true for context.DeadlineExceeded")
	}
	if !ShouldRetry(fmt.Errorf("http call failed: %w", context.DeadlineExceeded)) {
		t.Error("Expected true for wrapped DeadlineExceeded")
	}
}

func TestShouldRetry_CircuitError(t *testing.T) {
	err := &circuit.Error{State: circuit.Open}
	if ShouldRetry(err) {
		t.Error("Expected false for circuit breaker error")
	}
}

func TestShouldRetry_ClassifiedErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "rate limit", err: llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "quota"), want: true},
		{name: "transient", err: llmerrors.NewError(llmerrors.ErrorTypeTransient, "reset"), want: true},
		{name: "auth", err: llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key"), want: false},
		{name: "bad prompt", err: llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "too long"), want: false},
		{name: "plain 503", err: errors.New("upstream returned 503"), want: true},
		{name: "plain 429", err: errors.New("got 429 from api"), want: true},
		{name: "plain 404", err: errors.New("status 404"), want: false},
		{name: "connection refused", err: errors.New("connection refused"), want: true},
		{name: "unclassified", err: errors.New("something odd"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRetry(tt.err))
		})
	}
}

func TestCalculateDelay(t *testing.T) {
	policy := NewPolicy(Config{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      1 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        false,
	}, nil)

	assert.Equal(t, time.Duration(0), policy.CalculateDelay(1))
	assert.Equal(t, 100*time.Millisecond, policy.CalculateDelay(2))
	assert.Equal(t, 200*time.Millisecond, policy.CalculateDelay(3))
	assert.Equal(t, 400*time.Millisecond, policy.CalculateDelay(4))
	// Capped at MaxDelay well before it would reach 1.6s.
	assert.Equal(t, 1*time.Second, policy.CalculateDelay(6))
}

func TestCalculateDelay_Jitter(t *testing.T) {
	policy := NewPolicy(Config{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      1 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}, nil)

	base := 100 * time.Millisecond
	sawAbove := false
	for i := 0; i < 200; i++ {
		d := policy.CalculateDelay(2)
		assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.9))
		assert.LessOrEqual(t, d, time.Duration(float64(base)*1.1))
		if d > base {
			sawAbove = true
		}
	}
	// The skew must go both ways, not sit pinned at -10%.
	assert.True(t, sawAbove, "jitter never produced a delay above the base")
}

func TestDo_SucceedsAfterTwoFailures(t *testing.T) {
	policy := NewPolicy(Config{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      10 * time.Millisecond,
		BackoffFactor: 2.0,
	}, nil)

	calls := 0
	result, err := Do(context.Background(), policy, func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("connection reset")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	policy := NewPolicy(Config{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      10 * time.Millisecond,
		BackoffFactor: 2.0,
	}, nil)

	calls := 0
	_, err := Do(context.Background(), policy, func(_ context.Context) (string, error) {
		calls++
		return "", errors.New("connection reset")
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	policy := NewPolicy(DefaultConfig, nil)

	calls := 0
	_, err := Do(context.Background(), policy, func(_ context.Context) (string, error) {
		calls++
		return "", llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key")
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Attempts)
	assert.Equal(t, 1, calls)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeAuth), "underlying error must stay reachable")
}

func TestDo_OnRetryObserver(t *testing.T) {
	policy := NewPolicy(Config{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      10 * time.Millisecond,
		BackoffFactor: 2.0,
	}, nil)

	var observed []int
	policy.OnRetry = func(attempt int, err error) {
		require.Error(t, err)
		observed = append(observed, attempt)
	}

	calls := 0
	_, _ = Do(context.Background(), policy, func(_ context.Context) (string, error) {
		calls++
		return "", errors.New("timeout")
	})

	// Observer fires after attempts 1 and 2; never after the final attempt.
	assert.Equal(t, []int{1, 2}, observed)
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	policy := NewPolicy(Config{
		MaxAttempts:   3,
		InitialDelay:  time.Hour, // force cancellation to win the race
		MaxDelay:      time.Hour,
		BackoffFactor: 2.0,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, policy, func(_ context.Context) (string, error) {
		return "", errors.New("timeout")
	})

	require.ErrorIs(t, err, context.Canceled)
}
