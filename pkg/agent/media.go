package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"draftflow/pkg/agent/llm"
	"draftflow/pkg/agent/llmerrors"
	"draftflow/pkg/config"
	"draftflow/pkg/logx"
	"draftflow/pkg/proto"
)

const mediaSystemPrompt = `You are a visual content advisor for blog posts. Given a draft, propose
the images, diagrams, and pull quotes that would strengthen it. For each
image, write a detailed generation prompt a text-to-image model could use.` + suggestionsInstruction

// MediaAgent proposes visual content for the media phase. It depends on the
// Gemini API; when no key is configured it degrades to static guidance
// instead of failing the phase.
type MediaAgent struct {
	client llm.Client
	logger *logx.Logger

	mu             sync.Mutex
	degraded       bool
	degradedReason string
}

// NewMediaAgent creates the media agent. client may be nil when the Google
// provider is not configured; Initialize then marks the agent degraded.
func NewMediaAgent(client llm.Client) *MediaAgent {
	return &MediaAgent{
		client: client,
		logger: logx.NewLogger("agent-media"),
	}
}

// Type implements Agent.
func (a *MediaAgent) Type() Type {
	return TypeMedia
}

// Capability implements Agent.
func (a *MediaAgent) Capability() Capability {
	return Capability{
		Phases:           []proto.PhaseType{proto.PhaseMedia},
		ContentTypes:     []proto.ContentType{proto.ContentText, proto.ContentMarkdown, proto.ContentHTML},
		MaxContextTokens: 32000,
		CostPerCallUSD:   0.03,
	}
}

// Initialize implements Agent. A missing Gemini key is not fatal: the agent
// serves reduced, model-free guidance instead.
func (a *MediaAgent) Initialize(_ context.Context) error {
	if a.client == nil {
		a.degrade("no media model client configured")
		return nil
	}
	if _, err := config.GetAPIKey(config.ProviderGoogle); err != nil {
		a.degrade(fmt.Sprintf("Gemini API unavailable: %v", err))
	}
	return nil
}

// Degraded reports whether the agent is running without its model dependency.
func (a *MediaAgent) Degraded() (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.degraded, a.degradedReason
}

func (a *MediaAgent) degrade(reason string) {
	a.mu.Lock()
	a.degraded = true
	a.degradedReason = reason
	a.mu.Unlock()
	a.logger.Warn("media agent degraded: %s", reason)
}

// BuildSystemPrompt implements Agent.
func (a *MediaAgent) BuildSystemPrompt(req *proto.AgentRequest) string {
	var b strings.Builder
	b.WriteString(mediaSystemPrompt)
	if len(req.Context.StylePreferences) > 0 {
		if tone, ok := req.Context.StylePreferences["tone"]; ok {
			fmt.Fprintf(&b, "\n\nMatch the visual mood to the piece's tone: %s.", tone)
		}
	}
	return b.String()
}

// ProcessRequest implements Agent.
func (a *MediaAgent) ProcessRequest(ctx context.Context, req *proto.AgentRequest) (*proto.AgentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if req.Phase != proto.PhaseMedia {
		return nil, fmt.Errorf("media agent does not serve phase %s", req.Phase)
	}

	if degraded, reason := a.Degraded(); degraded {
		return a.degradedResponse(reason), nil
	}

	messages := []llm.CompletionMessage{
		llm.NewSystemMessage(a.BuildSystemPrompt(req)),
		llm.NewUserMessage(req.Content),
	}
	completionReq := llm.NewCompletionRequest(messages)

	resp, err := a.client.Complete(ctx, completionReq)
	if err != nil {
		reason := fmt.Sprintf("media model call failed: %v", err)
		// Auth failures mean the dependency is gone until reconfigured.
		// Anything else is a single-call blip: serve the fallback now and
		// let the next request reach the model again.
		if llmerrors.TypeOf(err) == llmerrors.ErrorTypeAuth {
			a.degrade(reason)
		} else {
			a.logger.Warn("media model unavailable for this request: %v", err)
		}
		return a.degradedResponse(reason), nil
	}

	content, suggestions := splitSuggestions(resp.Content)
	return &proto.AgentResponse{
		Content:     content,
		Suggestions: suggestions,
		Metadata: proto.ResponseMetadata{
			Model: a.client.ModelName(),
			TokenUsage: proto.TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.PromptTokens + resp.Usage.CompletionTokens,
			},
			CostUSD:    config.CostUSD(a.client.ModelName(), resp.Usage),
			Confidence: confidenceFor(resp.StopReason),
		},
	}, nil
}

// Cleanup implements Agent.
func (a *MediaAgent) Cleanup() error {
	return nil
}

// degradedResponse returns generic media guidance that does not require a
// model call. The workflow can still complete the media phase with it.
func (a *MediaAgent) degradedResponse(reason string) *proto.AgentResponse {
	return &proto.AgentResponse{
		Content: `Media suggestions are running in reduced mode; the image model is
unavailable. General guidance:

1. Lead with one strong hero image that captures the post's central idea.
2. Break up sections longer than four paragraphs with a diagram or photo.
3. Pull one quotable sentence per major section into a styled block quote.
4. Keep alt text descriptive; write it while the context is fresh.`,
		Suggestions: []string{
			"Configure a Gemini API key to restore tailored media suggestions",
		},
		Degraded:       true,
		DegradedReason: reason,
	}
}
