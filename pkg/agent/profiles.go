package agent

import (
	"draftflow/pkg/agent/llm"
	"draftflow/pkg/proto"
)

// profile holds the static configuration of a prompt-driven agent.
type profile struct {
	agentType    Type
	systemPrompt string
	temperature  float32
	capability   Capability
}

const suggestionsInstruction = `

When you have concrete follow-up recommendations, end your response with a
SUGGESTIONS: block containing one suggestion per line, each starting with "- ".`

//nolint:gochecknoglobals // Static agent configuration table
var profiles = map[Type]profile{
	TypeIdeation: {
		agentType: TypeIdeation,
		systemPrompt: `You are a brainstorming partner for blog writers. Generate fresh angles,
working titles, and outline sketches for the topic the writer brings you.
Favor specificity over volume; three sharp ideas beat ten vague ones.` + suggestionsInstruction,
		temperature: llm.TemperatureDefault,
		capability: Capability{
			Phases:           []proto.PhaseType{proto.PhaseIdeation},
			ContentTypes:     []proto.ContentType{proto.ContentText, proto.ContentMarkdown},
			MaxContextTokens: 16000,
			CostPerCallUSD:   0.02,
		},
	},
	TypeRefinement: {
		agentType: TypeRefinement,
		systemPrompt: `You are an editor refining a blog draft. Tighten prose, fix structure,
and preserve the writer's voice. Return the revised text, not commentary
about it.` + suggestionsInstruction,
		temperature: llm.TemperatureDefault,
		capability: Capability{
			Phases:           []proto.PhaseType{proto.PhaseRefinement},
			ContentTypes:     []proto.ContentType{proto.ContentText, proto.ContentMarkdown, proto.ContentHTML},
			MaxContextTokens: 32000,
			CostPerCallUSD:   0.05,
		},
	},
	TypeFactCheck: {
		agentType: TypeFactCheck,
		systemPrompt: `You are a fact-checker. Identify every verifiable claim in the text,
assess its plausibility, and flag anything that needs a source. Be precise
about what you can and cannot verify.` + suggestionsInstruction,
		temperature: llm.TemperatureFactual,
		capability: Capability{
			Phases:           []proto.PhaseType{proto.PhaseFactCheck},
			ContentTypes:     []proto.ContentType{proto.ContentText, proto.ContentMarkdown},
			MaxContextTokens: 32000,
			CostPerCallUSD:   0.04,
		},
	},
	TypeVoiceTone: {
		agentType: TypeVoiceTone,
		systemPrompt: `You help longform writers establish voice and tone before drafting.
Work from samples and stated preferences to produce a concise voice guide
the later phases can follow.` + suggestionsInstruction,
		temperature: llm.TemperatureDefault,
		capability: Capability{
			Phases:           []proto.PhaseType{proto.PhaseVoiceTone},
			ContentTypes:     []proto.ContentType{proto.ContentText, proto.ContentMarkdown},
			MaxContextTokens: 16000,
			CostPerCallUSD:   0.02,
		},
	},
	TypeThesis: {
		agentType: TypeThesis,
		systemPrompt: `You help writers sharpen the central argument of a longform piece.
Push back on vague theses; a good thesis is falsifiable and surprising.` + suggestionsInstruction,
		temperature: llm.TemperatureDefault,
		capability: Capability{
			Phases:           []proto.PhaseType{proto.PhaseThesis},
			ContentTypes:     []proto.ContentType{proto.ContentText, proto.ContentMarkdown},
			MaxContextTokens: 16000,
			CostPerCallUSD:   0.02,
		},
	},
	TypeResearch: {
		agentType: TypeResearch,
		systemPrompt: `You are a research assistant for a longform piece. Organize the
writer's material, identify gaps in the argument, and propose the questions
each section must answer. Never invent sources.` + suggestionsInstruction,
		temperature: llm.TemperatureFactual,
		capability: Capability{
			Phases:           []proto.PhaseType{proto.PhaseResearch},
			ContentTypes:     []proto.ContentType{proto.ContentText, proto.ContentMarkdown},
			MaxContextTokens: 64000,
			CostPerCallUSD:   0.06,
		},
	},
	TypeDraft: {
		agentType: TypeDraft,
		systemPrompt: `You are a drafting collaborator. Expand outlines and notes into full
prose in the established voice. Follow the voice guide and thesis from the
earlier phases exactly.` + suggestionsInstruction,
		temperature: llm.TemperatureDefault,
		capability: Capability{
			Phases:           []proto.PhaseType{proto.PhaseDraft},
			ContentTypes:     []proto.ContentType{proto.ContentText, proto.ContentMarkdown},
			MaxContextTokens: 64000,
			CostPerCallUSD:   0.10,
		},
	},
	TypeEditorial: {
		agentType: TypeEditorial,
		systemPrompt: `You are a line editor doing a final editorial pass. Fix grammar,
rhythm, and clarity without flattening the writer's voice. Return the
edited text followed by a short list of the changes that matter.` + suggestionsInstruction,
		temperature: llm.TemperatureFactual,
		capability: Capability{
			Phases:           []proto.PhaseType{proto.PhaseEditorial},
			ContentTypes:     []proto.ContentType{proto.ContentText, proto.ContentMarkdown, proto.ContentHTML},
			MaxContextTokens: 64000,
			CostPerCallUSD:   0.08,
		},
	},
}
