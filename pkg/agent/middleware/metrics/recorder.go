// Package metrics provides metrics recording for model client operations.
package metrics

import (
	"time"
)

// Recorder defines the interface for recording model-call metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed model request.
	ObserveRequest(
		model, projectID, agentType, phase string,
		promptTokens, completionTokens int,
		cost float64,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// ObserveCacheLookup records the outcome of a response-cache lookup.
	ObserveCacheLookup(agentType string, hit bool)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(
	_, _, _, _ string,
	_, _ int,
	_ float64,
	_ bool,
	_ string,
	_ time.Duration,
) {
}

// ObserveCacheLookup does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveCacheLookup(_ string, _ bool) {}
