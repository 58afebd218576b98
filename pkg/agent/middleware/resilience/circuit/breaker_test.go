package circuit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draftflow/pkg/agent/llm"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, RecoveryTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		require.True(t, b.Allow(), "call %d should be allowed while closed", i)
		b.Record(false)
	}

	assert.Equal(t, Open, b.GetState())
	assert.False(t, b.Allow(), "open circuit must reject without calling")
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := New(Config{FailureThreshold: 2, RecoveryTimeout: time.Minute})

	b.Allow()
	b.Record(false)
	b.Allow()
	b.Record(true) // resets counter
	b.Allow()
	b.Record(false)

	assert.Equal(t, Closed, b.GetState(), "non-consecutive failures must not open the circuit")
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})

	b.Allow()
	b.Record(false)
	require.Equal(t, Open, b.GetState())

	time.Sleep(20 * time.Millisecond)

	// First caller after the recovery timeout gets the trial slot.
	require.True(t, b.Allow())
	assert.Equal(t, HalfOpen, b.GetState())

	// A concurrent caller must be rejected while the probe is outstanding.
	assert.False(t, b.Allow())

	// Probe success closes the circuit with a clean failure count.
	b.Record(true)
	assert.Equal(t, Closed, b.GetState())
	assert.True(t, b.Allow())
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})

	b.Allow()
	b.Record(false)
	time.Sleep(20 * time.Millisecond)

	require.True(t, b.Allow())
	b.Record(false)

	assert.Equal(t, Open, b.GetState())
	assert.False(t, b.Allow(), "recovery timer must restart after a failed probe")
}

func TestBreakerConcurrentFailuresCountOnce(t *testing.T) {
	b := New(Config{FailureThreshold: 50, RecoveryTimeout: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.Allow() {
				b.Record(false)
			}
		}()
	}
	wg.Wait()

	// Exactly 50 recorded failures must reach the threshold exactly once.
	assert.Equal(t, Open, b.GetState())
}

func TestMiddlewareShortCircuits(t *testing.T) {
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: time.Minute})

	calls := 0
	failing := llm.WrapClient(
		func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
			calls++
			return llm.CompletionResponse{}, errors.New("boom")
		},
		func() string { return "test-model" },
	)

	client := Middleware(b)(failing)
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")})

	_, err := client.Complete(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, 1, calls)

	// Second call: circuit is open, wrapped client must not be invoked.
	_, err = client.Complete(context.Background(), req)
	var circuitErr *Error
	require.ErrorAs(t, err, &circuitErr)
	assert.Equal(t, Open, circuitErr.State)
	assert.Equal(t, 1, calls)
}
