package persistence

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository is the storage contract the orchestrator consumes. Each call is
// transactional on its own; the orchestrator implements no durability of its
// own on top.
type Repository interface {
	// CreateProject persists a new project.
	CreateProject(ctx context.Context, project *Project) error

	// GetProject loads a project by id, or ErrNotFound.
	GetProject(ctx context.Context, id string) (*Project, error)

	// SaveProject updates an existing project.
	SaveProject(ctx context.Context, project *Project) error

	// DeleteProject removes a project and its phases, conversations, and messages.
	DeleteProject(ctx context.Context, id string) error

	// CreatePhase persists a new phase.
	CreatePhase(ctx context.Context, phase *Phase) error

	// GetPhase loads a phase by id, or ErrNotFound.
	GetPhase(ctx context.Context, id string) (*Phase, error)

	// SavePhase updates an existing phase.
	SavePhase(ctx context.Context, phase *Phase) error

	// PhasesByProject lists a project's phases ordered by creation time.
	PhasesByProject(ctx context.Context, projectID string) ([]*Phase, error)

	// EnsureConversation returns the conversation for a (project, agent type)
	// pair, creating it on first use.
	EnsureConversation(ctx context.Context, projectID, agentType string) (*Conversation, error)

	// AppendMessage appends an immutable message to a conversation.
	AppendMessage(ctx context.Context, message *Message) error

	// MessagesByConversation lists a conversation's messages ordered by creation time.
	MessagesByConversation(ctx context.Context, conversationID string) ([]*Message, error)

	// Close releases the underlying store.
	Close() error
}
