package llmerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorType
	}{
		{name: "rate limit", status: http.StatusTooManyRequests, want: ErrorTypeRateLimit},
		{name: "unauthorized", status: http.StatusUnauthorized, want: ErrorTypeAuth},
		{name: "forbidden", status: http.StatusForbidden, want: ErrorTypeAuth},
		{name: "bad request", status: http.StatusBadRequest, want: ErrorTypeBadPrompt},
		{name: "not found", status: http.StatusNotFound, want: ErrorTypeBadPrompt},
		{name: "server error", status: http.StatusInternalServerError, want: ErrorTypeTransient},
		{name: "bad gateway", status: http.StatusBadGateway, want: ErrorTypeTransient},
		{name: "ok is unknown", status: http.StatusOK, want: ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStatus(tt.status))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, NewError(ErrorTypeRateLimit, "slow down").IsRetryable())
	assert.True(t, NewError(ErrorTypeTransient, "connection reset").IsRetryable())
	assert.True(t, NewError(ErrorTypeEmptyResponse, "no content").IsRetryable())
	assert.False(t, NewError(ErrorTypeAuth, "bad key").IsRetryable())
	assert.False(t, NewError(ErrorTypeBadPrompt, "too long").IsRetryable())
}

func TestTypeOfWrappedError(t *testing.T) {
	inner := NewErrorWithStatus(ErrorTypeRateLimit, http.StatusTooManyRequests, "quota exceeded")
	wrapped := fmt.Errorf("calling model: %w", inner)

	assert.Equal(t, ErrorTypeRateLimit, TypeOf(wrapped))
	assert.True(t, Is(wrapped, ErrorTypeRateLimit))
	assert.False(t, Is(wrapped, ErrorTypeAuth))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("plain")))
}
