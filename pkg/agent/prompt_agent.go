package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"draftflow/pkg/agent/llm"
	"draftflow/pkg/config"
	"draftflow/pkg/logx"
	"draftflow/pkg/proto"
	"draftflow/pkg/utils"
)

// PromptAgent is a prompt-driven agent. All agents except media share this
// implementation; the profile table supplies their specialization.
type PromptAgent struct {
	profile profile
	client  llm.Client
	counter *utils.TokenCounter
	logger  *logx.Logger
}

// NewPromptAgent creates an agent of the given type backed by the client.
func NewPromptAgent(agentType Type, client llm.Client) (*PromptAgent, error) {
	p, ok := profiles[agentType]
	if !ok {
		return nil, fmt.Errorf("no profile for agent type %s", agentType)
	}
	return &PromptAgent{
		profile: p,
		client:  client,
		logger:  logx.NewLogger("agent-" + agentType.String()),
	}, nil
}

// Type implements Agent.
func (a *PromptAgent) Type() Type {
	return a.profile.agentType
}

// Capability implements Agent.
func (a *PromptAgent) Capability() Capability {
	return a.profile.capability
}

// Initialize implements Agent.
func (a *PromptAgent) Initialize(_ context.Context) error {
	counter, err := utils.NewTokenCounter(a.client.ModelName())
	if err != nil {
		// Token counting falls back to character estimates; not fatal.
		a.logger.Warn("token counter unavailable for %s: %v", a.client.ModelName(), err)
	}
	a.counter = counter
	return nil
}

// BuildSystemPrompt implements Agent. The base prompt comes from the profile;
// style preferences and pipeline context are appended per request.
func (a *PromptAgent) BuildSystemPrompt(req *proto.AgentRequest) string {
	var b strings.Builder
	b.WriteString(a.profile.systemPrompt)

	if len(req.Context.StylePreferences) > 0 {
		b.WriteString("\n\nWriter style preferences:\n")
		keys := make([]string, 0, len(req.Context.StylePreferences))
		for k := range req.Context.StylePreferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, req.Context.StylePreferences[k])
		}
	}

	if req.Context.Pipeline != "" {
		fmt.Fprintf(&b, "\nThis project follows the %s pipeline.", req.Context.Pipeline)
	}
	return b.String()
}

// ProcessRequest implements Agent.
func (a *PromptAgent) ProcessRequest(ctx context.Context, req *proto.AgentRequest) (*proto.AgentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if !a.profile.capability.SupportsPhase(req.Phase) {
		return nil, fmt.Errorf("agent %s does not serve phase %s", a.profile.agentType, req.Phase)
	}
	ct := req.ContentType
	if ct == "" {
		ct = proto.ContentText
	}
	if !a.profile.capability.SupportsContentType(ct) {
		return nil, fmt.Errorf("agent %s does not accept content type %s", a.profile.agentType, ct)
	}

	messages := []llm.CompletionMessage{
		llm.NewSystemMessage(a.BuildSystemPrompt(req)),
		llm.NewUserMessage(a.buildUserContent(req)),
	}

	completionReq := llm.NewCompletionRequest(messages)
	completionReq.Temperature = a.profile.temperature

	resp, err := a.client.Complete(ctx, completionReq)
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
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
func (a *PromptAgent) Cleanup() error {
	return nil
}

// buildUserContent assembles the user message: prior phase outputs first (in
// pipeline order where known), then the writer's request. Prior outputs are
// truncated to fit the agent's context budget.
func (a *PromptAgent) buildUserContent(req *proto.AgentRequest) string {
	var b strings.Builder

	if len(req.Context.PriorOutputs) > 0 {
		b.WriteString("Context from earlier phases:\n\n")
		phases := make([]string, 0, len(req.Context.PriorOutputs))
		for phase := range req.Context.PriorOutputs {
			phases = append(phases, string(phase))
		}
		sort.Strings(phases)
		for _, phase := range phases {
			output := req.Context.PriorOutputs[proto.PhaseType(phase)]
			fmt.Fprintf(&b, "--- %s ---\n%s\n\n", phase, output)
		}
	}

	b.WriteString(req.Content)

	content := b.String()
	if a.counter != nil && !a.counter.ValidateTokenLimit(content, a.profile.capability.MaxContextTokens) {
		a.logger.Warn("request exceeds %d token context budget, truncating", a.profile.capability.MaxContextTokens)
		content = a.counter.TruncateToTokenLimit(content, a.profile.capability.MaxContextTokens)
	}
	return content
}

// splitSuggestions separates a trailing SUGGESTIONS: block from the response
// body. Agents are instructed to emit one, but responses without it are fine.
func splitSuggestions(content string) (body string, suggestions []string) {
	idx := strings.LastIndex(content, "SUGGESTIONS:")
	if idx == -1 {
		return strings.TrimSpace(content), nil
	}

	body = strings.TrimSpace(content[:idx])
	for _, line := range strings.Split(content[idx+len("SUGGESTIONS:"):], "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") {
			suggestions = append(suggestions, strings.TrimPrefix(line, "- "))
		}
	}
	return body, suggestions
}

// confidenceFor maps a provider stop reason to a rough confidence score.
// Truncated responses are penalized; everything else gets a flat default.
func confidenceFor(stopReason string) float64 {
	switch strings.ToLower(stopReason) {
	case "max_tokens", "length":
		return 0.5
	case "":
		return 0.7
	default:
		return 0.9
	}
}
