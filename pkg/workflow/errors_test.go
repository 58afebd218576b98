package workflow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"draftflow/pkg/agent"
	"draftflow/pkg/agent/middleware/resilience/circuit"
	"draftflow/pkg/agent/middleware/resilience/retry"
	"draftflow/pkg/proto"
)

func TestErrorCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want proto.ErrorCode
	}{
		{"validation", &ValidationError{Message: "bad"}, proto.CodeValidation},
		{"not found", &NotFoundError{Resource: "project", ID: "p1"}, proto.CodeNotFound},
		{"invalid transition", &InvalidTransitionError{From: proto.PhaseIdeation, To: proto.PhaseMedia}, proto.CodeInvalidTransition},
		{"already final", &BoundaryError{Final: true}, proto.CodeAlreadyFinal},
		{"already first", &BoundaryError{Final: false}, proto.CodeAlreadyFirst},
		{"circuit open", &circuit.Error{State: circuit.Open}, proto.CodeCircuitOpen},
		{"retry exhausted", &retry.ExhaustedError{Err: errors.New("boom"), Attempts: 3}, proto.CodeRetryExhausted},
		{"degraded", &agent.DegradedError{AgentType: agent.TypeMedia, Dependency: "gemini"}, proto.CodeDegraded},
		{"unknown", errors.New("boom"), proto.CodeInternal},
		{"wrapped", fmt.Errorf("agent failed: %w", &circuit.Error{State: circuit.Open}), proto.CodeCircuitOpen},
		{"exhausted wrapping circuit", &retry.ExhaustedError{Err: &circuit.Error{State: circuit.Open}, Attempts: 1}, proto.CodeCircuitOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCodeFor(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Contains(t, (&ValidationError{Message: "empty title"}).Error(), "empty title")
	assert.Contains(t, (&NotFoundError{Resource: "project", ID: "p1"}).Error(), "project p1")
	assert.Contains(t, (&InvalidTransitionError{From: proto.PhaseIdeation, To: proto.PhaseMedia, Reason: "nope"}).Error(), "IDEATION")
	assert.Equal(t, "already at final phase", (&BoundaryError{Final: true}).Error())
	assert.Equal(t, "already at first phase", (&BoundaryError{}).Error())
}
