package workflow

import (
	"errors"
	"fmt"

	"draftflow/pkg/agent"
	"draftflow/pkg/agent/middleware/resilience/circuit"
	"draftflow/pkg/agent/middleware/resilience/retry"
	"draftflow/pkg/proto"
)

// ValidationError reports bad input. Never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Message
}

// NotFoundError reports a missing resource, or one the caller does not own.
// Ownership failures are deliberately indistinguishable from missing records.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// InvalidTransitionError reports a state machine rule violation.
type InvalidTransitionError struct {
	From   proto.PhaseType
	To     proto.PhaseType
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s: %s", e.From, e.To, e.Reason)
}

// BoundaryError reports a next/previous move attempted at the end or start of
// the pipeline.
type BoundaryError struct {
	Final bool // true at the final phase, false at the first
}

func (e *BoundaryError) Error() string {
	if e.Final {
		return "already at final phase"
	}
	return "already at first phase"
}

// ErrorCodeFor maps an orchestrator error to its transport error code.
func ErrorCodeFor(err error) proto.ErrorCode {
	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		transitionErr *InvalidTransitionError
		boundaryErr   *BoundaryError
		exhaustedErr  *retry.ExhaustedError
		circuitErr    *circuit.Error
		degradedErr   *agent.DegradedError
	)

	switch {
	case errors.As(err, &validationErr):
		return proto.CodeValidation
	case errors.As(err, &notFoundErr):
		return proto.CodeNotFound
	case errors.As(err, &transitionErr):
		return proto.CodeInvalidTransition
	case errors.As(err, &boundaryErr):
		if boundaryErr.Final {
			return proto.CodeAlreadyFinal
		}
		return proto.CodeAlreadyFirst
	case errors.As(err, &circuitErr):
		return proto.CodeCircuitOpen
	case errors.As(err, &exhaustedErr):
		return proto.CodeRetryExhausted
	case errors.As(err, &degradedErr):
		return proto.CodeDegraded
	default:
		return proto.CodeInternal
	}
}
