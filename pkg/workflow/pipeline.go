// Package workflow implements the phase state machine and the orchestrator
// that drives projects through their pipelines.
package workflow

import (
	"fmt"

	"draftflow/pkg/proto"
)

// Pipeline names.
const (
	PipelineBlog     = "blog"
	PipelineLongform = "longform"
)

// Pipeline is an ordered phase sequence with a declared adjacency set per
// phase. Adjacent phases are reachable without skip privileges; everything
// else needs CanSkipPhases or an explicit validation override.
type Pipeline struct {
	Name   string
	Phases []proto.PhaseType
}

//nolint:gochecknoglobals // Static pipeline definitions
var pipelines = map[string]Pipeline{
	PipelineBlog: {
		Name: PipelineBlog,
		Phases: []proto.PhaseType{
			proto.PhaseIdeation,
			proto.PhaseRefinement,
			proto.PhaseMedia,
			proto.PhaseFactCheck,
		},
	},
	PipelineLongform: {
		Name: PipelineLongform,
		Phases: []proto.PhaseType{
			proto.PhaseVoiceTone,
			proto.PhaseThesis,
			proto.PhaseResearch,
			proto.PhaseDraft,
			proto.PhaseEditorial,
		},
	},
}

// PipelineByName looks up a pipeline definition.
func PipelineByName(name string) (Pipeline, error) {
	p, ok := pipelines[name]
	if !ok {
		return Pipeline{}, fmt.Errorf("unknown pipeline %q", name)
	}
	return p, nil
}

// PipelineNames returns the known pipeline names.
func PipelineNames() []string {
	return []string{PipelineBlog, PipelineLongform}
}

// First returns the pipeline's initial phase.
func (p Pipeline) First() proto.PhaseType {
	return p.Phases[0]
}

// Last returns the pipeline's final phase.
func (p Pipeline) Last() proto.PhaseType {
	return p.Phases[len(p.Phases)-1]
}

// Contains reports whether the phase belongs to this pipeline.
func (p Pipeline) Contains(phase proto.PhaseType) bool {
	return p.indexOf(phase) != -1
}

// Next returns the phase after the given one, or false at the end.
func (p Pipeline) Next(phase proto.PhaseType) (proto.PhaseType, bool) {
	idx := p.indexOf(phase)
	if idx == -1 || idx == len(p.Phases)-1 {
		return "", false
	}
	return p.Phases[idx+1], true
}

// Previous returns the phase before the given one, or false at the start.
func (p Pipeline) Previous(phase proto.PhaseType) (proto.PhaseType, bool) {
	idx := p.indexOf(phase)
	if idx <= 0 {
		return "", false
	}
	return p.Phases[idx-1], true
}

// Adjacent returns the transitions available from a phase without skip
// privileges: its immediate neighbors in pipeline order.
func (p Pipeline) Adjacent(phase proto.PhaseType) []proto.PhaseType {
	var out []proto.PhaseType
	if prev, ok := p.Previous(phase); ok {
		out = append(out, prev)
	}
	if next, ok := p.Next(phase); ok {
		out = append(out, next)
	}
	return out
}

func (p Pipeline) indexOf(phase proto.PhaseType) int {
	for i, ph := range p.Phases {
		if ph == phase {
			return i
		}
	}
	return -1
}
