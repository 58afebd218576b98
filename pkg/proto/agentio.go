package proto

import "fmt"

// RequestContext carries contextual metadata for an agent invocation: outputs
// of phases already finished and the writer's stated style preferences.
type RequestContext struct {
	PriorOutputs     map[PhaseType]string `json:"prior_outputs,omitempty"`
	StylePreferences map[string]string    `json:"style_preferences,omitempty"`
	Pipeline         string               `json:"pipeline,omitempty"`
}

// AgentRequest is the uniform request every agent accepts.
type AgentRequest struct {
	OwnerID        string         `json:"owner_id"`
	ProjectID      string         `json:"project_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Phase          PhaseType      `json:"phase"`
	Content        string         `json:"content"`
	ContentType    ContentType    `json:"content_type,omitempty"`
	Context        RequestContext `json:"context"`
}

// Validate checks the request for the fields every agent requires.
func (r *AgentRequest) Validate() error {
	if r.OwnerID == "" {
		return fmt.Errorf("owner id cannot be empty")
	}
	if r.ProjectID == "" {
		return fmt.Errorf("project id cannot be empty")
	}
	if r.Content == "" {
		return fmt.Errorf("content cannot be empty")
	}
	return nil
}

// TokenUsage records token accounting for a single model call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ResponseMetadata carries model and cost accounting for an agent response.
type ResponseMetadata struct {
	Model      string     `json:"model"`
	TokenUsage TokenUsage `json:"token_usage"`
	CostUSD    float64    `json:"cost_usd"`
	Confidence float64    `json:"confidence"`
}

// AgentResponse is the uniform response every agent returns. Degraded responses
// still carry usable content; DegradedReason explains what was reduced.
type AgentResponse struct {
	Content        string           `json:"content"`
	Suggestions    []string         `json:"suggestions,omitempty"`
	Metadata       ResponseMetadata `json:"metadata"`
	Degraded       bool             `json:"degraded,omitempty"`
	DegradedReason string           `json:"degraded_reason,omitempty"`
}
