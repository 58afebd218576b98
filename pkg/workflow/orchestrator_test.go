package workflow

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draftflow/pkg/agent"
	"draftflow/pkg/agent/llm"
	"draftflow/pkg/cache"
	"draftflow/pkg/events"
	"draftflow/pkg/persistence"
	"draftflow/pkg/proto"
)

const testOwner = "owner-1"

// newTestRegistry registers mock-backed agents for every phase of both
// pipelines. Returned clients are keyed by agent type for call inspection.
func newTestRegistry(t *testing.T) (*agent.Registry, map[agent.Type]*agent.MockClient) {
	t.Helper()

	r := agent.NewRegistry()
	clients := make(map[agent.Type]*agent.MockClient)
	for _, agentType := range []agent.Type{
		agent.TypeIdeation, agent.TypeRefinement, agent.TypeFactCheck,
		agent.TypeVoiceTone, agent.TypeThesis, agent.TypeResearch, agent.TypeDraft, agent.TypeEditorial,
	} {
		client := agent.NewMockClientWithContent("claude-sonnet-4-0", "output from "+string(agentType))
		clients[agentType] = client
		a, err := agent.NewPromptAgent(agentType, client)
		require.NoError(t, err)
		require.NoError(t, r.Register(a))
	}

	mediaClient := agent.NewMockClientWithContent("gemini-2.0-flash", "output from media")
	clients[agent.TypeMedia] = mediaClient
	require.NoError(t, r.Register(agent.NewMediaAgent(mediaClient)))

	t.Setenv("GEMINI_API_KEY", "test-key")
	r.InitializeAll(context.Background())
	return r, clients
}

func newTestOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, map[agent.Type]*agent.MockClient) {
	t.Helper()

	repo, err := persistence.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	registry, clients := newTestRegistry(t)
	return New(repo, registry, opts...), clients
}

func createBlogProject(t *testing.T, o *Orchestrator, canSkip bool) *ProjectState {
	t.Helper()
	state, err := o.CreateProject(context.Background(), testOwner, "Caching deep dive", PipelineBlog, canSkip)
	require.NoError(t, err)
	return state
}

func TestCreateProjectInitialState(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	state := createBlogProject(t, o, false)

	assert.Equal(t, proto.PhaseIdeation, state.CurrentPhase)
	assert.NotEmpty(t, state.CurrentPhaseID)
	assert.Len(t, state.AllPhases, 4)
	assert.Equal(t, []proto.PhaseType{proto.PhaseRefinement}, state.AvailableTransitions)
	assert.Empty(t, state.CompletedPhases)
	assert.Equal(t,
		[]proto.PhaseType{proto.PhaseRefinement, proto.PhaseMedia, proto.PhaseFactCheck},
		state.PendingPhases)
	assert.False(t, state.CanSkip)
}

func TestCreateProjectValidation(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	_, err := o.CreateProject(context.Background(), "", "title", PipelineBlog, false)
	assert.Equal(t, proto.CodeValidation, ErrorCodeFor(err))

	_, err = o.CreateProject(context.Background(), testOwner, "", PipelineBlog, false)
	assert.Equal(t, proto.CodeValidation, ErrorCodeFor(err))

	_, err = o.CreateProject(context.Background(), testOwner, "title", "zine", false)
	assert.Equal(t, proto.CodeValidation, ErrorCodeFor(err))
}

func TestGetStateNotFoundAndOwnership(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	state := createBlogProject(t, o, false)

	_, err := o.GetState(context.Background(), testOwner, "proj-missing")
	assert.Equal(t, proto.CodeNotFound, ErrorCodeFor(err))

	// A foreign owner gets the same NotFound as a missing project.
	_, err = o.GetState(context.Background(), "intruder", state.ProjectID)
	assert.Equal(t, proto.CodeNotFound, ErrorCodeFor(err))
}

func TestTransitionToAdjacentPhase(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	state := createBlogProject(t, o, false)

	next, err := o.TransitionToPhase(context.Background(), testOwner, state.ProjectID, proto.PhaseRefinement, TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, proto.PhaseRefinement, next.CurrentPhase)

	// Ideation had no output, so it was skipped rather than completed.
	ideation := phaseOfType(next.AllPhases, proto.PhaseIdeation)
	require.NotNil(t, ideation)
	assert.Equal(t, proto.PhaseSkipped, ideation.Status)
}

func TestTransitionToNonAdjacentPhaseFails(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	state := createBlogProject(t, o, false)

	_, err := o.TransitionToPhase(context.Background(), testOwner, state.ProjectID, proto.PhaseFactCheck, TransitionOptions{})
	assert.Equal(t, proto.CodeInvalidTransition, ErrorCodeFor(err))

	// State is unchanged after the rejected transition.
	after, err := o.GetState(context.Background(), testOwner, state.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, proto.PhaseIdeation, after.CurrentPhase)
}

func TestTransitionSkipValidationOverride(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	state := createBlogProject(t, o, false)

	next, err := o.TransitionToPhase(context.Background(), testOwner, state.ProjectID, proto.PhaseFactCheck, TransitionOptions{SkipValidation: true})
	require.NoError(t, err)
	assert.Equal(t, proto.PhaseFactCheck, next.CurrentPhase)
}

func TestTransitionToUnknownPhaseFails(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	state := createBlogProject(t, o, false)

	// A phase from the other pipeline is invalid input here.
	_, err := o.TransitionToPhase(context.Background(), testOwner, state.ProjectID, proto.PhaseEditorial, TransitionOptions{})
	assert.Equal(t, proto.CodeValidation, ErrorCodeFor(err))
}

func TestTransitionReplayIsIdempotent(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	state := createBlogProject(t, o, false)

	opts := TransitionOptions{ExpectedFrom: proto.PhaseIdeation}
	first, err := o.TransitionToPhase(context.Background(), testOwner, state.ProjectID, proto.PhaseRefinement, opts)
	require.NoError(t, err)

	// Replaying the same request after a simulated transport timeout is a
	// no-op success, not a second transition.
	second, err := o.TransitionToPhase(context.Background(), testOwner, state.ProjectID, proto.PhaseRefinement, opts)
	require.NoError(t, err)

	assert.Equal(t, first.CurrentPhase, second.CurrentPhase)
	assert.Len(t, second.AllPhases, 4)
	assert.Equal(t, first.CurrentPhaseID, second.CurrentPhaseID)
}

func TestTransitionStaleExpectedFromFails(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	state := createBlogProject(t, o, false)

	_, err := o.TransitionToPhase(context.Background(), testOwner, state.ProjectID, proto.PhaseRefinement, TransitionOptions{})
	require.NoError(t, err)

	// The project moved on; a stale request targeting a different phase fails.
	_, err = o.TransitionToPhase(context.Background(), testOwner, state.ProjectID, proto.PhaseMedia, TransitionOptions{ExpectedFrom: proto.PhaseIdeation})
	assert.Equal(t, proto.CodeInvalidTransition, ErrorCodeFor(err))
}

func TestMoveToNextAndPreviousPhase(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	state := createBlogProject(t, o, false)

	next, err := o.MoveToNextPhase(context.Background(), testOwner, state.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, proto.PhaseRefinement, next.CurrentPhase)

	back, err := o.MoveToPreviousPhase(context.Background(), testOwner, state.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, proto.PhaseIdeation, back.CurrentPhase)
}

func TestMoveBoundaryErrors(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	state := createBlogProject(t, o, false)

	_, err := o.MoveToPreviousPhase(context.Background(), testOwner, state.ProjectID)
	assert.Equal(t, proto.CodeAlreadyFirst, ErrorCodeFor(err))

	for i := 0; i < 3; i++ {
		_, err = o.MoveToNextPhase(context.Background(), testOwner, state.ProjectID)
		require.NoError(t, err)
	}

	_, err = o.MoveToNextPhase(context.Background(), testOwner, state.ProjectID)
	assert.Equal(t, proto.CodeAlreadyFinal, ErrorCodeFor(err))
}

func TestSkipToPhase(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	// canSkipPhases=false: skipping is an invalid transition.
	locked := createBlogProject(t, o, false)
	_, err := o.SkipToPhase(context.Background(), testOwner, locked.ProjectID, proto.PhaseFactCheck)
	assert.Equal(t, proto.CodeInvalidTransition, ErrorCodeFor(err))

	// canSkipPhases=true: the jump succeeds and ideation is skipped.
	free := createBlogProject(t, o, true)
	state, err := o.SkipToPhase(context.Background(), testOwner, free.ProjectID, proto.PhaseFactCheck)
	require.NoError(t, err)
	assert.Equal(t, proto.PhaseFactCheck, state.CurrentPhase)

	ideation := phaseOfType(state.AllPhases, proto.PhaseIdeation)
	require.NotNil(t, ideation)
	assert.Equal(t, proto.PhaseSkipped, ideation.Status)
}

func TestCanSkipWidensAvailableTransitions(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	state := createBlogProject(t, o, true)

	assert.ElementsMatch(t,
		[]proto.PhaseType{proto.PhaseRefinement, proto.PhaseMedia, proto.PhaseFactCheck},
		state.AvailableTransitions)
}

func TestCompleteCurrentPhaseRequiresOutput(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	state := createBlogProject(t, o, false)

	_, err := o.CompleteCurrentPhase(context.Background(), testOwner, state.ProjectID)
	assert.Equal(t, proto.CodeValidation, ErrorCodeFor(err))

	_, err = o.InvokeAgent(context.Background(), testOwner, state.ProjectID, "brainstorm some angles", nil)
	require.NoError(t, err)

	next, err := o.CompleteCurrentPhase(context.Background(), testOwner, state.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, proto.PhaseRefinement, next.CurrentPhase)
	assert.Equal(t, []proto.PhaseType{proto.PhaseIdeation}, next.CompletedPhases)

	ideation := phaseOfType(next.AllPhases, proto.PhaseIdeation)
	require.NotNil(t, ideation)
	assert.Equal(t, proto.PhaseCompleted, ideation.Status)
	assert.NotNil(t, ideation.CompletedAt)
}

func TestCompleteFinalPhaseLeavesNoActivePhase(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	state := createBlogProject(t, o, true)

	_, err := o.SkipToPhase(context.Background(), testOwner, state.ProjectID, proto.PhaseFactCheck)
	require.NoError(t, err)
	_, err = o.InvokeAgent(context.Background(), testOwner, state.ProjectID, "check the claims", nil)
	require.NoError(t, err)

	final, err := o.CompleteCurrentPhase(context.Background(), testOwner, state.ProjectID)
	require.NoError(t, err)
	assert.Empty(t, final.CurrentPhase)
	assert.Empty(t, final.AvailableTransitions)

	// Nothing left to complete.
	_, err = o.CompleteCurrentPhase(context.Background(), testOwner, state.ProjectID)
	assert.Equal(t, proto.CodeValidation, ErrorCodeFor(err))
}

func TestInvokeAgentPersistsOutputAndMessages(t *testing.T) {
	repo, err := persistence.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	registry, _ := newTestRegistry(t)
	o := New(repo, registry)

	state := createBlogProject(t, o, false)
	resp, err := o.InvokeAgent(context.Background(), testOwner, state.ProjectID, "brainstorm", map[string]string{"tone": "dry"})
	require.NoError(t, err)
	assert.Equal(t, "output from ideation", resp.Content)

	// The phase output was persisted without changing phase status.
	after, err := o.GetState(context.Background(), testOwner, state.ProjectID)
	require.NoError(t, err)
	ideation := phaseOfType(after.AllPhases, proto.PhaseIdeation)
	require.NotNil(t, ideation)
	assert.Equal(t, proto.PhaseActive, ideation.Status)
	assert.True(t, ideation.HasOutput())

	// Both sides of the exchange landed in the conversation.
	conv, err := repo.EnsureConversation(context.Background(), state.ProjectID, "ideation")
	require.NoError(t, err)
	messages, err := repo.MessagesByConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, proto.RoleUser, messages[0].Role)
	assert.Equal(t, proto.RoleAgent, messages[1].Role)
	assert.Contains(t, messages[1].Metadata, "claude-sonnet-4-0")
}

func TestInvokeAgentUsesCache(t *testing.T) {
	responseCache := cache.New(nil)
	o, clients := newTestOrchestrator(t, WithCache(responseCache, time.Minute))

	state := createBlogProject(t, o, false)
	_, err := o.InvokeAgent(context.Background(), testOwner, state.ProjectID, "same prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, clients[agent.TypeIdeation].CallCount())

	// Identical input is served from the cache without a second model call.
	resp, err := o.InvokeAgent(context.Background(), testOwner, state.ProjectID, "Same   PROMPT", nil)
	require.NoError(t, err)
	assert.Equal(t, "output from ideation", resp.Content)
	assert.Equal(t, 1, clients[agent.TypeIdeation].CallCount())

	stats := responseCache.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestInvokeAgentFailureLeavesPhaseUntouched(t *testing.T) {
	repo, err := persistence.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	registry := agent.NewRegistry()
	failing := agent.NewMockClient("claude-sonnet-4-0", agent.MockResult{
		Err: context.DeadlineExceeded,
	})
	a, err := agent.NewPromptAgent(agent.TypeIdeation, failing)
	require.NoError(t, err)
	require.NoError(t, registry.Register(a))

	o := New(repo, registry)
	state := createBlogProject(t, o, false)

	_, err = o.InvokeAgent(context.Background(), testOwner, state.ProjectID, "brainstorm", nil)
	require.Error(t, err)

	after, err := o.GetState(context.Background(), testOwner, state.ProjectID)
	require.NoError(t, err)
	ideation := phaseOfType(after.AllPhases, proto.PhaseIdeation)
	require.NotNil(t, ideation)
	assert.Equal(t, proto.PhaseActive, ideation.Status)
	assert.False(t, ideation.HasOutput())
}

// stallingClient blocks inside Complete until released, so tests can hold an
// agent call in flight.
type stallingClient struct {
	entered chan struct{}
	release chan struct{}
}

func (c *stallingClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	close(c.entered)
	<-c.release
	return llm.CompletionResponse{Content: "slow output", StopReason: "end_turn"}, nil
}

func (c *stallingClient) ModelName() string { return "claude-sonnet-4-0" }

func TestTransitionProceedsDuringAgentCall(t *testing.T) {
	repo, err := persistence.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	registry := agent.NewRegistry()
	slow := &stallingClient{entered: make(chan struct{}), release: make(chan struct{})}
	a, err := agent.NewPromptAgent(agent.TypeIdeation, slow)
	require.NoError(t, err)
	require.NoError(t, registry.Register(a))

	o := New(repo, registry)
	state := createBlogProject(t, o, false)

	invokeDone := make(chan error, 1)
	go func() {
		_, err := o.InvokeAgent(context.Background(), testOwner, state.ProjectID, "brainstorm", nil)
		invokeDone <- err
	}()
	<-slow.entered

	// The model is still working; the transition must not wait for it.
	next, err := o.TransitionToPhase(context.Background(), testOwner, state.ProjectID, proto.PhaseRefinement, TransitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, proto.PhaseRefinement, next.CurrentPhase)

	// Once the call finishes, its phase is no longer active and the stale
	// result is rejected instead of being attached to the wrong phase.
	close(slow.release)
	err = <-invokeDone
	assert.Equal(t, proto.CodeInvalidTransition, ErrorCodeFor(err))

	after, err := o.GetState(context.Background(), testOwner, state.ProjectID)
	require.NoError(t, err)
	ideation := phaseOfType(after.AllPhases, proto.PhaseIdeation)
	require.NotNil(t, ideation)
	assert.Equal(t, proto.PhaseSkipped, ideation.Status)
	assert.False(t, ideation.HasOutput())
}

func TestEventsPublishedOnTransitions(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	sub := bus.Subscribe()

	o, _ := newTestOrchestrator(t, WithEventBus(bus))
	state := createBlogProject(t, o, false)

	_, err := o.MoveToNextPhase(context.Background(), testOwner, state.ProjectID)
	require.NoError(t, err)

	var types []events.EventType
	for len(types) < 2 {
		select {
		case ev := <-sub.C():
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("expected 2 events, got %v", types)
		}
	}
	assert.Equal(t, []events.EventType{events.EventProjectCreated, events.EventPhaseTransition}, types)
}

func TestSingleActivePhaseUnderConcurrentTransitions(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	state := createBlogProject(t, o, true)

	targets := []proto.PhaseType{
		proto.PhaseRefinement, proto.PhaseMedia, proto.PhaseFactCheck,
		proto.PhaseIdeation, proto.PhaseRefinement, proto.PhaseMedia,
	}

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(to proto.PhaseType) {
			defer wg.Done()
			// Failures are fine; the invariant is what matters.
			_, _ = o.SkipToPhase(context.Background(), testOwner, state.ProjectID, to)
		}(target)
	}
	wg.Wait()

	after, err := o.GetState(context.Background(), testOwner, state.ProjectID)
	require.NoError(t, err)

	active := 0
	for _, phase := range after.AllPhases {
		if phase.Status == proto.PhaseActive {
			active++
		}
	}
	assert.Equal(t, 1, active, "exactly one phase must be active")
}

func TestLongformPipelineEndToEnd(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	state, err := o.CreateProject(context.Background(), testOwner, "Essay", PipelineLongform, false)
	require.NoError(t, err)
	assert.Equal(t, proto.PhaseVoiceTone, state.CurrentPhase)

	for _, want := range []proto.PhaseType{
		proto.PhaseThesis, proto.PhaseResearch, proto.PhaseDraft, proto.PhaseEditorial,
	} {
		_, err = o.InvokeAgent(context.Background(), testOwner, state.ProjectID, "work on it", nil)
		require.NoError(t, err)
		state, err = o.CompleteCurrentPhase(context.Background(), testOwner, state.ProjectID)
		require.NoError(t, err)
		assert.Equal(t, want, state.CurrentPhase)
	}

	_, err = o.InvokeAgent(context.Background(), testOwner, state.ProjectID, "final pass", nil)
	require.NoError(t, err)
	state, err = o.CompleteCurrentPhase(context.Background(), testOwner, state.ProjectID)
	require.NoError(t, err)
	assert.Empty(t, state.CurrentPhase)
	assert.Len(t, state.CompletedPhases, 5)
}
