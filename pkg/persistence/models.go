// Package persistence provides SQLite-backed storage for projects, phases,
// conversations, and messages.
package persistence

import (
	"time"

	"github.com/google/uuid"

	"draftflow/pkg/proto"
)

// Project is the unit of work: one written artifact progressing through phases.
type Project struct {
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	ID            string              `json:"id"`
	OwnerID       string              `json:"owner_id"`
	Title         string              `json:"title"`
	Content       string              `json:"content"` // free-form content buffer
	Status        proto.ProjectStatus `json:"status"`
	Pipeline      string              `json:"pipeline"` // "blog" or "longform"
	ActivePhaseID string              `json:"active_phase_id,omitempty"`
	CanSkipPhases bool                `json:"can_skip_phases"`
}

// Phase is one ordered stage of a project's pipeline.
type Phase struct {
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	ID          string            `json:"id"`
	ProjectID   string            `json:"project_id"`
	Type        proto.PhaseType   `json:"type"`
	Status      proto.PhaseStatus `json:"status"`
	Output      *string           `json:"output,omitempty"` // serialized payload; nil until an agent produces one
}

// HasOutput reports whether the phase carries a non-empty output payload.
func (p *Phase) HasOutput() bool {
	return p.Output != nil && *p.Output != ""
}

// Conversation groups the messages exchanged with one agent type for one
// project. Created lazily on first agent invocation for that pair.
type Conversation struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	AgentType string    `json:"agent_type"`
}

// Message is one immutable entry in a conversation, ordered by creation time.
type Message struct {
	CreatedAt      time.Time         `json:"created_at"`
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	Role           proto.MessageRole `json:"role"`
	Content        string            `json:"content"`
	Metadata       string            `json:"metadata,omitempty"` // JSON blob: token/cost accounting
}

// GenerateProjectID generates a new unique project identifier.
func GenerateProjectID() string {
	return "proj-" + uuid.New().String()
}

// GeneratePhaseID generates a new unique phase identifier.
func GeneratePhaseID() string {
	return "phase-" + uuid.New().String()
}

// GenerateConversationID generates a new unique conversation identifier.
func GenerateConversationID() string {
	return "conv-" + uuid.New().String()
}

// GenerateMessageID generates a new unique message identifier.
func GenerateMessageID() string {
	return "msg-" + uuid.New().String()
}
