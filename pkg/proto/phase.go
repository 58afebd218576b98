// Package proto defines the shared vocabulary of the pipeline: phase and status
// enumerations, the agent I/O contract, and the transport envelope.
package proto

import "fmt"

// PhaseType identifies one stage of a writing pipeline.
type PhaseType string

// Blog pipeline phases.
const (
	PhaseIdeation   PhaseType = "IDEATION"
	PhaseRefinement PhaseType = "REFINEMENT"
	PhaseMedia      PhaseType = "MEDIA"
	PhaseFactCheck  PhaseType = "FACTCHECK"
)

// Long-form pipeline phases.
const (
	PhaseVoiceTone PhaseType = "VOICE_TONE"
	PhaseThesis    PhaseType = "THESIS"
	PhaseResearch  PhaseType = "RESEARCH"
	PhaseDraft     PhaseType = "DRAFT"
	PhaseEditorial PhaseType = "EDITORIAL"
)

// knownPhases is the set of all phase types across both pipelines.
var knownPhases = map[PhaseType]bool{
	PhaseIdeation:   true,
	PhaseRefinement: true,
	PhaseMedia:      true,
	PhaseFactCheck:  true,
	PhaseVoiceTone:  true,
	PhaseThesis:     true,
	PhaseResearch:   true,
	PhaseDraft:      true,
	PhaseEditorial:  true,
}

// IsValid checks if the phase type belongs to a known pipeline.
func (p PhaseType) IsValid() bool {
	return knownPhases[p]
}

// String returns the string representation of the phase type.
func (p PhaseType) String() string {
	return string(p)
}

// ParsePhaseType parses a string into a PhaseType.
func ParsePhaseType(s string) (PhaseType, error) {
	p := PhaseType(s)
	if !p.IsValid() {
		return "", fmt.Errorf("unknown phase type: %q", s)
	}
	return p, nil
}

// PhaseStatus tracks where a phase is in its lifecycle.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "PENDING"
	PhaseActive    PhaseStatus = "ACTIVE"
	PhaseCompleted PhaseStatus = "COMPLETED"
	PhaseSkipped   PhaseStatus = "SKIPPED"
)

// IsValid checks if the phase status is one of the defined lifecycle states.
func (s PhaseStatus) IsValid() bool {
	switch s {
	case PhasePending, PhaseActive, PhaseCompleted, PhaseSkipped:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is an end state for a phase.
func (s PhaseStatus) Terminal() bool {
	return s == PhaseCompleted || s == PhaseSkipped
}

// String returns the string representation of the phase status.
func (s PhaseStatus) String() string {
	return string(s)
}

// ProjectStatus tracks the lifecycle of a unit of work.
type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "ACTIVE"
	ProjectArchived ProjectStatus = "ARCHIVED"
)

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleUser   MessageRole = "USER"
	RoleAgent  MessageRole = "AGENT"
	RoleSystem MessageRole = "SYSTEM"
)

// IsValid checks if the message role is one of the defined roles.
func (r MessageRole) IsValid() bool {
	return r == RoleUser || r == RoleAgent || r == RoleSystem
}

// ContentType identifies the format of content an agent can process.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentMarkdown ContentType = "markdown"
	ContentHTML     ContentType = "html"
)
