package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"draftflow/pkg/logx"
	"draftflow/pkg/proto"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	content         TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	pipeline        TEXT NOT NULL,
	active_phase_id TEXT NOT NULL DEFAULT '',
	can_skip_phases INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS phases (
	id           TEXT PRIMARY KEY,
	project_id   TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	type         TEXT NOT NULL,
	status       TEXT NOT NULL,
	output       TEXT,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_phases_project ON phases(project_id);

CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	agent_type TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE(project_id, agent_type)
);

CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	metadata        TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
`

// SQLiteRepository implements Repository over a SQLite database.
type SQLiteRepository struct {
	db     *sql.DB
	logger *logx.Logger
}

// NewSQLiteRepository opens (or creates) the database at dbPath with WAL mode
// and a busy timeout, and ensures the schema exists.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("persistence")
	logger.Info("database initialized: %s", dbPath)

	return &SQLiteRepository{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// CreateProject persists a new project.
func (r *SQLiteRepository) CreateProject(ctx context.Context, project *Project) error {
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, owner_id, title, content, status, pipeline, active_phase_id, can_skip_phases, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		project.ID, project.OwnerID, project.Title, project.Content, string(project.Status),
		project.Pipeline, project.ActivePhaseID, boolToInt(project.CanSkipPhases),
		project.CreatedAt, project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// GetProject loads a project by id.
func (r *SQLiteRepository) GetProject(ctx context.Context, id string) (*Project, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, content, status, pipeline, active_phase_id, can_skip_phases, created_at, updated_at
		 FROM projects WHERE id = ?`, id)

	var p Project
	var status string
	var canSkip int
	err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Content, &status, &p.Pipeline,
		&p.ActivePhaseID, &canSkip, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	p.Status = proto.ProjectStatus(status)
	p.CanSkipPhases = canSkip != 0
	return &p, nil
}

// SaveProject updates an existing project.
func (r *SQLiteRepository) SaveProject(ctx context.Context, project *Project) error {
	project.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx,
		`UPDATE projects SET owner_id = ?, title = ?, content = ?, status = ?, pipeline = ?,
		 active_phase_id = ?, can_skip_phases = ?, updated_at = ? WHERE id = ?`,
		project.OwnerID, project.Title, project.Content, string(project.Status), project.Pipeline,
		project.ActivePhaseID, boolToInt(project.CanSkipPhases), project.UpdatedAt, project.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return requireRow(result, "project", project.ID)
}

// DeleteProject removes a project; phases, conversations, and messages cascade.
func (r *SQLiteRepository) DeleteProject(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return requireRow(result, "project", id)
}

// CreatePhase persists a new phase. A caller-supplied CreatedAt is kept so
// pipeline order encoded in creation times survives.
func (r *SQLiteRepository) CreatePhase(ctx context.Context, phase *Phase) error {
	now := time.Now().UTC()
	if phase.CreatedAt.IsZero() {
		phase.CreatedAt = now
	}
	phase.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO phases (id, project_id, type, status, output, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		phase.ID, phase.ProjectID, string(phase.Type), string(phase.Status), phase.Output,
		phase.CreatedAt, phase.UpdatedAt, phase.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create phase: %w", err)
	}
	return nil
}

// GetPhase loads a phase by id.
func (r *SQLiteRepository) GetPhase(ctx context.Context, id string) (*Phase, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, project_id, type, status, output, created_at, updated_at, completed_at
		 FROM phases WHERE id = ?`, id)

	phase, err := scanPhase(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("phase %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load phase: %w", err)
	}
	return phase, nil
}

// SavePhase updates an existing phase.
func (r *SQLiteRepository) SavePhase(ctx context.Context, phase *Phase) error {
	phase.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx,
		`UPDATE phases SET status = ?, output = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(phase.Status), phase.Output, phase.UpdatedAt, phase.CompletedAt, phase.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save phase: %w", err)
	}
	return requireRow(result, "phase", phase.ID)
}

// PhasesByProject lists a project's phases ordered by creation time.
func (r *SQLiteRepository) PhasesByProject(ctx context.Context, projectID string) ([]*Phase, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, project_id, type, status, output, created_at, updated_at, completed_at
		 FROM phases WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var phases []*Phase
	for rows.Next() {
		phase, err := scanPhase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan phase: %w", err)
		}
		phases = append(phases, phase)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate phases: %w", err)
	}
	return phases, nil
}

// EnsureConversation returns the conversation for a (project, agent type)
// pair, creating it on first use.
func (r *SQLiteRepository) EnsureConversation(ctx context.Context, projectID, agentType string) (*Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, project_id, agent_type, created_at FROM conversations
		 WHERE project_id = ? AND agent_type = ?`, projectID, agentType)

	var conv Conversation
	err := row.Scan(&conv.ID, &conv.ProjectID, &conv.AgentType, &conv.CreatedAt)
	if err == nil {
		return &conv, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	conv = Conversation{
		ID:        GenerateConversationID(),
		ProjectID: projectID,
		AgentType: agentType,
		CreatedAt: time.Now().UTC(),
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO conversations (id, project_id, agent_type, created_at) VALUES (?, ?, ?, ?)`,
		conv.ID, conv.ProjectID, conv.AgentType, conv.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return &conv, nil
}

// AppendMessage appends an immutable message to a conversation.
func (r *SQLiteRepository) AppendMessage(ctx context.Context, message *Message) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		message.ID, message.ConversationID, string(message.Role), message.Content,
		message.Metadata, message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// MessagesByConversation lists a conversation's messages ordered by creation time.
func (r *SQLiteRepository) MessagesByConversation(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, metadata, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = proto.MessageRole(role)
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPhase(row rowScanner) (*Phase, error) {
	var p Phase
	var phaseType, status string
	if err := row.Scan(&p.ID, &p.ProjectID, &phaseType, &status, &p.Output,
		&p.CreatedAt, &p.UpdatedAt, &p.CompletedAt); err != nil {
		return nil, err
	}
	p.Type = proto.PhaseType(phaseType)
	p.Status = proto.PhaseStatus(status)
	return &p, nil
}

func requireRow(result sql.Result, kind, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
