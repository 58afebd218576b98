// Package agent provides the writing agents, their registry, and the LLM
// client factory with middleware chain construction.
package agent

import (
	"context"
	"fmt"

	"draftflow/pkg/proto"
)

// Type identifies an agent specialization. Each workflow phase is served by
// exactly one agent type.
type Type string

// Agent types for the blog pipeline.
const (
	TypeIdeation   Type = "ideation"
	TypeRefinement Type = "refinement"
	TypeMedia      Type = "media"
	TypeFactCheck  Type = "factcheck"
)

// Agent types for the longform pipeline.
const (
	TypeVoiceTone Type = "voicetone"
	TypeThesis    Type = "thesis"
	TypeResearch  Type = "research"
	TypeDraft     Type = "draft"
	TypeEditorial Type = "editorial"
)

// String returns the string representation of the agent type.
func (t Type) String() string {
	return string(t)
}

//nolint:gochecknoglobals // Static phase-to-agent routing table
var phaseAgents = map[proto.PhaseType]Type{
	proto.PhaseIdeation:   TypeIdeation,
	proto.PhaseRefinement: TypeRefinement,
	proto.PhaseMedia:      TypeMedia,
	proto.PhaseFactCheck:  TypeFactCheck,
	proto.PhaseVoiceTone:  TypeVoiceTone,
	proto.PhaseThesis:     TypeThesis,
	proto.PhaseResearch:   TypeResearch,
	proto.PhaseDraft:      TypeDraft,
	proto.PhaseEditorial:  TypeEditorial,
}

// TypeForPhase returns the agent type serving a workflow phase.
func TypeForPhase(phase proto.PhaseType) (Type, error) {
	t, ok := phaseAgents[phase]
	if !ok {
		return "", fmt.Errorf("no agent registered for phase %s", phase)
	}
	return t, nil
}

// Capability describes what an agent can do, for routing and introspection.
type Capability struct {
	Phases           []proto.PhaseType   // Workflow phases this agent serves
	ContentTypes     []proto.ContentType // Content types the agent accepts
	MaxContextTokens int                 // Upper bound on prompt size
	CostPerCallUSD   float64             // Rough per-call cost estimate
}

// SupportsPhase reports whether the agent serves the given phase.
func (c *Capability) SupportsPhase(phase proto.PhaseType) bool {
	for _, p := range c.Phases {
		if p == phase {
			return true
		}
	}
	return false
}

// SupportsContentType reports whether the agent accepts the given content type.
func (c *Capability) SupportsContentType(ct proto.ContentType) bool {
	for _, t := range c.ContentTypes {
		if t == ct {
			return true
		}
	}
	return false
}

// Agent is the interface every writing agent implements.
type Agent interface {
	// Type returns the agent's type identifier.
	Type() Type

	// Capability returns the agent's capability descriptor.
	Capability() Capability

	// Initialize prepares the agent for use. It is called once before the
	// first request; agents with unavailable optional dependencies mark
	// themselves degraded rather than failing.
	Initialize(ctx context.Context) error

	// BuildSystemPrompt assembles the system prompt for a request, folding
	// in style preferences and prior phase outputs.
	BuildSystemPrompt(req *proto.AgentRequest) string

	// ProcessRequest handles a single request and returns the agent's
	// response. Degraded agents return usable responses with the Degraded
	// flag set.
	ProcessRequest(ctx context.Context, req *proto.AgentRequest) (*proto.AgentResponse, error)

	// Cleanup releases any resources the agent holds.
	Cleanup() error
}

// DegradedError indicates an agent dependency is unavailable and no fallback
// could produce a usable response.
type DegradedError struct {
	AgentType  Type
	Dependency string
	Reason     string
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("agent %s degraded: dependency %s unavailable: %s", e.AgentType, e.Dependency, e.Reason)
}
