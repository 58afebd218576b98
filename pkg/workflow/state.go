package workflow

import (
	"draftflow/pkg/persistence"
	"draftflow/pkg/proto"
)

// ProjectState is the read-only projection of a project's position in its
// pipeline, returned by every orchestrator operation that touches state.
type ProjectState struct {
	ProjectID            string               `json:"project_id"`
	Pipeline             string               `json:"pipeline"`
	CurrentPhase         proto.PhaseType      `json:"current_phase,omitempty"` // empty after the final phase completes
	CurrentPhaseID       string               `json:"current_phase_id,omitempty"`
	AllPhases            []*persistence.Phase `json:"all_phases"`
	AvailableTransitions []proto.PhaseType    `json:"available_transitions"`
	CanSkip              bool                 `json:"can_skip"`
	CompletedPhases      []proto.PhaseType    `json:"completed_phases"`
	PendingPhases        []proto.PhaseType    `json:"pending_phases"`
}

// buildState projects a loaded project and its phases into a ProjectState.
func buildState(project *persistence.Project, phases []*persistence.Phase, pipeline Pipeline) *ProjectState {
	state := &ProjectState{
		ProjectID: project.ID,
		Pipeline:  project.Pipeline,
		AllPhases: phases,
		CanSkip:   project.CanSkipPhases,
	}

	var current *persistence.Phase
	for _, phase := range phases {
		switch phase.Status {
		case proto.PhaseActive:
			current = phase
		case proto.PhaseCompleted:
			state.CompletedPhases = append(state.CompletedPhases, phase.Type)
		case proto.PhasePending:
			state.PendingPhases = append(state.PendingPhases, phase.Type)
		case proto.PhaseSkipped:
			// Skipped phases appear in AllPhases only.
		}
	}

	if current != nil {
		state.CurrentPhase = current.Type
		state.CurrentPhaseID = current.ID
		if project.CanSkipPhases {
			// With skip privileges every other phase is reachable.
			for _, phase := range pipeline.Phases {
				if phase != current.Type {
					state.AvailableTransitions = append(state.AvailableTransitions, phase)
				}
			}
		} else {
			state.AvailableTransitions = pipeline.Adjacent(current.Type)
		}
	}

	return state
}
