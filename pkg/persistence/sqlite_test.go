package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draftflow/pkg/proto"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newTestProject(t *testing.T, repo *SQLiteRepository) *Project {
	t.Helper()
	project := &Project{
		ID:       GenerateProjectID(),
		OwnerID:  "owner-1",
		Title:    "Go concurrency piece",
		Status:   proto.ProjectActive,
		Pipeline: "blog",
	}
	require.NoError(t, repo.CreateProject(context.Background(), project))
	return project
}

func TestProjectCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	project := newTestProject(t, repo)

	loaded, err := repo.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.OwnerID, loaded.OwnerID)
	assert.Equal(t, proto.ProjectActive, loaded.Status)
	assert.False(t, loaded.CanSkipPhases)

	loaded.Content = "first draft text"
	loaded.CanSkipPhases = true
	require.NoError(t, repo.SaveProject(ctx, loaded))

	reloaded, err := repo.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "first draft text", reloaded.Content)
	assert.True(t, reloaded.CanSkipPhases)

	require.NoError(t, repo.DeleteProject(ctx, project.ID))
	_, err = repo.GetProject(ctx, project.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetProjectNotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetProject(context.Background(), "proj-missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPhaseLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	project := newTestProject(t, repo)

	phase := &Phase{
		ID:        GeneratePhaseID(),
		ProjectID: project.ID,
		Type:      proto.PhaseIdeation,
		Status:    proto.PhaseActive,
	}
	require.NoError(t, repo.CreatePhase(ctx, phase))

	loaded, err := repo.GetPhase(ctx, phase.ID)
	require.NoError(t, err)
	assert.Equal(t, proto.PhaseIdeation, loaded.Type)
	assert.False(t, loaded.HasOutput())

	output := `{"ideas":["goroutine leaks","channel patterns"]}`
	loaded.Output = &output
	loaded.Status = proto.PhaseCompleted
	require.NoError(t, repo.SavePhase(ctx, loaded))

	reloaded, err := repo.GetPhase(ctx, phase.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.HasOutput())
	assert.Equal(t, proto.PhaseCompleted, reloaded.Status)
}

func TestPhasesByProjectOrdered(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	project := newTestProject(t, repo)

	for _, pt := range []proto.PhaseType{proto.PhaseIdeation, proto.PhaseRefinement, proto.PhaseMedia} {
		require.NoError(t, repo.CreatePhase(ctx, &Phase{
			ID:        GeneratePhaseID(),
			ProjectID: project.ID,
			Type:      pt,
			Status:    proto.PhasePending,
		}))
	}

	phases, err := repo.PhasesByProject(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, phases, 3)
	assert.Equal(t, proto.PhaseIdeation, phases[0].Type)
	assert.Equal(t, proto.PhaseRefinement, phases[1].Type)
	assert.Equal(t, proto.PhaseMedia, phases[2].Type)
}

func TestCreatePhaseKeepsSuppliedCreatedAt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	project := newTestProject(t, repo)

	// Insert out of pipeline order; the supplied timestamps carry the order.
	base := time.Now().UTC().Truncate(time.Second)
	offsets := map[proto.PhaseType]time.Duration{
		proto.PhaseIdeation:   0,
		proto.PhaseRefinement: time.Microsecond,
		proto.PhaseMedia:      2 * time.Microsecond,
	}
	for _, pt := range []proto.PhaseType{proto.PhaseMedia, proto.PhaseIdeation, proto.PhaseRefinement} {
		require.NoError(t, repo.CreatePhase(ctx, &Phase{
			ID:        GeneratePhaseID(),
			ProjectID: project.ID,
			Type:      pt,
			Status:    proto.PhasePending,
			CreatedAt: base.Add(offsets[pt]),
		}))
	}

	phases, err := repo.PhasesByProject(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, phases, 3)
	assert.Equal(t, proto.PhaseIdeation, phases[0].Type)
	assert.Equal(t, proto.PhaseRefinement, phases[1].Type)
	assert.Equal(t, proto.PhaseMedia, phases[2].Type)
	assert.True(t, phases[0].CreatedAt.Equal(base), "supplied CreatedAt must survive: got %v", phases[0].CreatedAt)
}

func TestEnsureConversationLazyAndStable(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	project := newTestProject(t, repo)

	first, err := repo.EnsureConversation(ctx, project.ID, "ideation")
	require.NoError(t, err)

	second, err := repo.EnsureConversation(ctx, project.ID, "ideation")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "same pair must reuse the conversation")

	other, err := repo.EnsureConversation(ctx, project.ID, "factcheck")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID, "different agent type gets its own conversation")
}

func TestMessagesOrderedByCreation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	project := newTestProject(t, repo)

	conv, err := repo.EnsureConversation(ctx, project.ID, "ideation")
	require.NoError(t, err)

	contents := []string{"give me ideas", "here are three angles", "expand the second"}
	roles := []proto.MessageRole{proto.RoleUser, proto.RoleAgent, proto.RoleUser}
	for i := range contents {
		require.NoError(t, repo.AppendMessage(ctx, &Message{
			ID:             GenerateMessageID(),
			ConversationID: conv.ID,
			Role:           roles[i],
			Content:        contents[i],
		}))
	}

	messages, err := repo.MessagesByConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	for i, m := range messages {
		assert.Equal(t, contents[i], m.Content)
		assert.Equal(t, roles[i], m.Role)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	project := newTestProject(t, repo)

	phase := &Phase{ID: GeneratePhaseID(), ProjectID: project.ID, Type: proto.PhaseIdeation, Status: proto.PhaseActive}
	require.NoError(t, repo.CreatePhase(ctx, phase))
	conv, err := repo.EnsureConversation(ctx, project.ID, "ideation")
	require.NoError(t, err)

	require.NoError(t, repo.DeleteProject(ctx, project.ID))

	_, err = repo.GetPhase(ctx, phase.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	messages, err := repo.MessagesByConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}
