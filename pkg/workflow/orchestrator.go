package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"draftflow/pkg/agent"
	"draftflow/pkg/agent/middleware/metrics"
	"draftflow/pkg/cache"
	"draftflow/pkg/events"
	"draftflow/pkg/logx"
	"draftflow/pkg/persistence"
	"draftflow/pkg/proto"
)

// Orchestrator owns the phase state machine. All mutating operations on the
// same project are serialized through a per-project lock; different projects
// proceed in parallel.
type Orchestrator struct {
	repo     persistence.Repository
	registry *agent.Registry
	cache    *cache.ResponseCache // nil disables response caching
	cacheTTL time.Duration
	recorder metrics.Recorder
	bus      *events.Bus // nil disables event publication
	logger   *logx.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	callMu  sync.Mutex
	callCtx metrics.CallContext
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache enables response caching with the given TTL.
func WithCache(c *cache.ResponseCache, ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.cache = c
		o.cacheTTL = ttl
	}
}

// WithEventBus publishes status events to the given bus.
func WithEventBus(bus *events.Bus) Option {
	return func(o *Orchestrator) {
		o.bus = bus
	}
}

// WithMetricsRecorder records cache lookup metrics with the given recorder.
func WithMetricsRecorder(rec metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = rec
	}
}

// New creates an orchestrator.
func New(repo persistence.Repository, registry *agent.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:     repo,
		registry: registry,
		cacheTTL: cache.DefaultTTL,
		recorder: metrics.Nop(),
		logger:   logx.NewLogger("workflow"),
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CallContext implements metrics.ContextProvider: it reports the project and
// phase of the most recently dispatched agent call for metric labels.
func (o *Orchestrator) CallContext() metrics.CallContext {
	o.callMu.Lock()
	defer o.callMu.Unlock()
	return o.callCtx
}

func (o *Orchestrator) setCallContext(projectID string, phase proto.PhaseType) {
	o.callMu.Lock()
	defer o.callMu.Unlock()
	o.callCtx = metrics.CallContext{ProjectID: projectID, Phase: string(phase)}
}

// lockProject acquires the per-project mutex; the returned function releases it.
func (o *Orchestrator) lockProject(projectID string) func() {
	o.mu.Lock()
	lock, ok := o.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[projectID] = lock
	}
	o.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// CreateProject creates a project with its full phase sequence: every phase
// PENDING except the first, which starts ACTIVE.
func (o *Orchestrator) CreateProject(ctx context.Context, ownerID, title, pipelineName string, canSkipPhases bool) (*ProjectState, error) {
	if ownerID == "" {
		return nil, &ValidationError{Message: "owner id cannot be empty"}
	}
	if title == "" {
		return nil, &ValidationError{Message: "title cannot be empty"}
	}
	pipeline, err := PipelineByName(pipelineName)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	now := time.Now()
	project := &persistence.Project{
		ID:            persistence.GenerateProjectID(),
		OwnerID:       ownerID,
		Title:         title,
		Status:        proto.ProjectActive,
		Pipeline:      pipeline.Name,
		CanSkipPhases: canSkipPhases,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.repo.CreateProject(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	phases := make([]*persistence.Phase, 0, len(pipeline.Phases))
	for i, phaseType := range pipeline.Phases {
		status := proto.PhasePending
		if i == 0 {
			status = proto.PhaseActive
		}
		phase := &persistence.Phase{
			ID:        persistence.GeneratePhaseID(),
			ProjectID: project.ID,
			Type:      phaseType,
			Status:    status,
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond), // preserve pipeline order
			UpdatedAt: now,
		}
		if err := o.repo.CreatePhase(ctx, phase); err != nil {
			return nil, fmt.Errorf("failed to create phase %s: %w", phaseType, err)
		}
		phases = append(phases, phase)
	}

	project.ActivePhaseID = phases[0].ID
	if err := o.repo.SaveProject(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to save project: %w", err)
	}

	o.publish(events.Event{
		Type:      events.EventProjectCreated,
		ProjectID: project.ID,
		Phase:     phases[0].Type,
		Status:    proto.PhaseActive,
	})

	return buildState(project, phases, pipeline), nil
}

// GetState returns the read-only projection of a project's workflow state.
func (o *Orchestrator) GetState(ctx context.Context, ownerID, projectID string) (*ProjectState, error) {
	project, phases, pipeline, err := o.load(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	return buildState(project, phases, pipeline), nil
}

// TransitionOptions controls transition validation and idempotency.
type TransitionOptions struct {
	// SkipValidation bypasses the available-transitions check. Explicit user
	// override only.
	SkipValidation bool

	// ExpectedFrom keys the mutation on current-phase identity: the
	// transition is rejected when the active phase no longer matches, except
	// that a replay whose target already became active is a no-op success.
	ExpectedFrom proto.PhaseType
}

// TransitionToPhase moves the project's active phase to toPhase. The current
// phase is finalized as COMPLETED when it has output, SKIPPED otherwise.
func (o *Orchestrator) TransitionToPhase(ctx context.Context, ownerID, projectID string, toPhase proto.PhaseType, opts TransitionOptions) (*ProjectState, error) {
	unlock := o.lockProject(projectID)
	defer unlock()
	return o.transitionLocked(ctx, ownerID, projectID, toPhase, opts)
}

// transitionLocked applies a transition. Callers must hold the project lock.
func (o *Orchestrator) transitionLocked(ctx context.Context, ownerID, projectID string, toPhase proto.PhaseType, opts TransitionOptions) (*ProjectState, error) {
	project, phases, pipeline, err := o.load(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}

	if !pipeline.Contains(toPhase) {
		return nil, &ValidationError{Message: fmt.Sprintf("phase %s is not part of the %s pipeline", toPhase, pipeline.Name)}
	}

	current := activePhase(phases)
	if current == nil {
		return nil, &InvalidTransitionError{To: toPhase, Reason: "project has no active phase"}
	}

	// Idempotency: a replayed request whose expected source phase has moved
	// on is a no-op when its target already became active.
	if opts.ExpectedFrom != "" && current.Type != opts.ExpectedFrom {
		if current.Type == toPhase {
			return buildState(project, phases, pipeline), nil
		}
		return nil, &InvalidTransitionError{
			From:   current.Type,
			To:     toPhase,
			Reason: fmt.Sprintf("expected active phase %s no longer matches", opts.ExpectedFrom),
		}
	}

	if current.Type == toPhase {
		return buildState(project, phases, pipeline), nil
	}

	if !opts.SkipValidation {
		state := buildState(project, phases, pipeline)
		if !containsPhase(state.AvailableTransitions, toPhase) {
			return nil, &InvalidTransitionError{
				From:   current.Type,
				To:     toPhase,
				Reason: "target is not an available transition",
			}
		}
	}

	target := phaseOfType(phases, toPhase)
	if target == nil {
		return nil, &NotFoundError{Resource: "phase", ID: string(toPhase)}
	}

	now := time.Now()
	if current.HasOutput() {
		current.Status = proto.PhaseCompleted
		current.CompletedAt = &now
	} else {
		current.Status = proto.PhaseSkipped
	}
	current.UpdatedAt = now
	if err := o.repo.SavePhase(ctx, current); err != nil {
		return nil, fmt.Errorf("failed to finalize phase %s: %w", current.Type, err)
	}

	target.Status = proto.PhaseActive
	target.CompletedAt = nil
	target.UpdatedAt = now
	if err := o.repo.SavePhase(ctx, target); err != nil {
		return nil, fmt.Errorf("failed to activate phase %s: %w", target.Type, err)
	}

	project.ActivePhaseID = target.ID
	project.UpdatedAt = now
	if err := o.repo.SaveProject(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to save project: %w", err)
	}

	o.publish(events.Event{
		Type:      events.EventPhaseTransition,
		ProjectID: project.ID,
		Phase:     target.Type,
		Status:    proto.PhaseActive,
	})

	return buildState(project, phases, pipeline), nil
}

// MoveToNextPhase advances to the next phase in pipeline order.
func (o *Orchestrator) MoveToNextPhase(ctx context.Context, ownerID, projectID string) (*ProjectState, error) {
	unlock := o.lockProject(projectID)
	defer unlock()

	_, phases, pipeline, err := o.load(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	current := activePhase(phases)
	if current == nil {
		return nil, &BoundaryError{Final: true}
	}
	next, ok := pipeline.Next(current.Type)
	if !ok {
		return nil, &BoundaryError{Final: true}
	}
	return o.transitionLocked(ctx, ownerID, projectID, next, TransitionOptions{ExpectedFrom: current.Type})
}

// MoveToPreviousPhase steps back to the previous phase in pipeline order.
func (o *Orchestrator) MoveToPreviousPhase(ctx context.Context, ownerID, projectID string) (*ProjectState, error) {
	unlock := o.lockProject(projectID)
	defer unlock()

	_, phases, pipeline, err := o.load(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	current := activePhase(phases)
	if current == nil {
		return nil, &BoundaryError{Final: true}
	}
	previous, ok := pipeline.Previous(current.Type)
	if !ok {
		return nil, &BoundaryError{Final: false}
	}
	return o.transitionLocked(ctx, ownerID, projectID, previous, TransitionOptions{ExpectedFrom: current.Type})
}

// SkipToPhase jumps to an arbitrary phase. Allowed only for projects created
// with CanSkipPhases.
func (o *Orchestrator) SkipToPhase(ctx context.Context, ownerID, projectID string, target proto.PhaseType) (*ProjectState, error) {
	unlock := o.lockProject(projectID)
	defer unlock()

	project, phases, _, err := o.load(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	if !project.CanSkipPhases {
		from := proto.PhaseType("")
		if current := activePhase(phases); current != nil {
			from = current.Type
		}
		return nil, &InvalidTransitionError{
			From:   from,
			To:     target,
			Reason: "phase skipping is not enabled for this project",
		}
	}
	return o.transitionLocked(ctx, ownerID, projectID, target, TransitionOptions{SkipValidation: true})
}

// CompleteCurrentPhase marks the active phase COMPLETED and advances to the
// next phase. It requires the phase to already carry output from an agent
// invocation. Completing the final phase leaves the project with no active
// phase.
func (o *Orchestrator) CompleteCurrentPhase(ctx context.Context, ownerID, projectID string) (*ProjectState, error) {
	unlock := o.lockProject(projectID)
	defer unlock()

	project, phases, pipeline, err := o.load(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	current := activePhase(phases)
	if current == nil {
		return nil, &ValidationError{Message: "project has no active phase"}
	}
	if !current.HasOutput() {
		return nil, &ValidationError{Message: fmt.Sprintf("phase %s has no output to complete with", current.Type)}
	}

	if next, ok := pipeline.Next(current.Type); ok {
		return o.transitionLocked(ctx, ownerID, projectID, next, TransitionOptions{ExpectedFrom: current.Type})
	}

	// Final phase: complete it and leave the project without an active phase.
	now := time.Now()
	current.Status = proto.PhaseCompleted
	current.CompletedAt = &now
	current.UpdatedAt = now
	if err := o.repo.SavePhase(ctx, current); err != nil {
		return nil, fmt.Errorf("failed to complete phase %s: %w", current.Type, err)
	}

	project.ActivePhaseID = ""
	project.UpdatedAt = now
	if err := o.repo.SaveProject(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to save project: %w", err)
	}

	o.publish(events.Event{
		Type:      events.EventPhaseCompleted,
		ProjectID: project.ID,
		Phase:     current.Type,
		Status:    proto.PhaseCompleted,
	})

	return buildState(project, phases, pipeline), nil
}

// invocationPlan is the snapshot an agent dispatch needs once the project
// lock has been released.
type invocationPlan struct {
	project      *persistence.Project
	phaseID      string
	phaseType    proto.PhaseType
	agent        agent.Agent
	conversation *persistence.Conversation
	req          *proto.AgentRequest
}

// InvokeAgent dispatches the active phase's work to its agent, consulting the
// response cache first. On success the phase output and conversation messages
// are persisted. The phase state itself does not change; completion is a
// separate user checkpoint.
//
// The agent call itself runs without the project lock so a slow model never
// blocks transitions on the same project; output is persisted only if the
// dispatched phase is still active afterwards. If the caller abandons the
// request, the in-flight agent call still runs to completion and its result
// is persisted and cached.
func (o *Orchestrator) InvokeAgent(ctx context.Context, ownerID, projectID, content string, stylePrefs map[string]string) (*proto.AgentResponse, error) {
	if content == "" {
		return nil, &ValidationError{Message: "content cannot be empty"}
	}

	// Work outlives the caller: results are persisted and cached even if the
	// client disconnects mid-call.
	detached := context.WithoutCancel(ctx)

	plan, err := o.planInvocation(ctx, ownerID, projectID, content, stylePrefs)
	if err != nil {
		return nil, err
	}
	agentType := plan.agent.Type().String()

	o.setCallContext(plan.project.ID, plan.phaseType)

	response, cached := o.cachedResponse(detached, agentType, content)
	if !cached {
		response, err = plan.agent.ProcessRequest(detached, plan.req)
		if err != nil {
			// The phase stays in its pre-call state, safe for a retry.
			return nil, fmt.Errorf("agent %s failed: %w", agentType, err)
		}
		o.storeResponse(detached, agentType, content, response)
	}

	if err := o.commitInvocation(detached, plan, content, response); err != nil {
		return nil, err
	}
	return response, nil
}

// planInvocation snapshots the active phase and builds the agent request
// under the project lock.
func (o *Orchestrator) planInvocation(ctx context.Context, ownerID, projectID, content string, stylePrefs map[string]string) (*invocationPlan, error) {
	unlock := o.lockProject(projectID)
	defer unlock()

	project, phases, pipeline, err := o.load(ctx, ownerID, projectID)
	if err != nil {
		return nil, err
	}
	current := activePhase(phases)
	if current == nil {
		return nil, &ValidationError{Message: "project has no active phase"}
	}

	phaseAgent, err := o.registry.ForPhase(current.Type)
	if err != nil {
		return nil, fmt.Errorf("no agent for phase %s: %w", current.Type, err)
	}

	conversation, err := o.repo.EnsureConversation(ctx, project.ID, phaseAgent.Type().String())
	if err != nil {
		return nil, fmt.Errorf("failed to ensure conversation: %w", err)
	}

	return &invocationPlan{
		project:      project,
		phaseID:      current.ID,
		phaseType:    current.Type,
		agent:        phaseAgent,
		conversation: conversation,
		req: &proto.AgentRequest{
			OwnerID:        ownerID,
			ProjectID:      project.ID,
			ConversationID: conversation.ID,
			Phase:          current.Type,
			Content:        content,
			Context: proto.RequestContext{
				PriorOutputs:     priorOutputs(phases),
				StylePreferences: stylePrefs,
				Pipeline:         pipeline.Name,
			},
		},
	}, nil
}

// commitInvocation re-acquires the project lock and persists the agent's
// output, provided the phase the call was dispatched for is still active.
func (o *Orchestrator) commitInvocation(ctx context.Context, plan *invocationPlan, content string, response *proto.AgentResponse) error {
	unlock := o.lockProject(plan.project.ID)
	defer unlock()

	phases, err := o.repo.PhasesByProject(ctx, plan.project.ID)
	if err != nil {
		return fmt.Errorf("failed to reload phases: %w", err)
	}
	target := phaseByID(phases, plan.phaseID)
	if target == nil || target.Status != proto.PhaseActive {
		from := proto.PhaseType("")
		if current := activePhase(phases); current != nil {
			from = current.Type
		}
		// The response stays cached, so a retry on the new phase is cheap.
		return &InvalidTransitionError{
			From:   from,
			To:     plan.phaseType,
			Reason: "active phase changed while the agent call was in flight",
		}
	}

	if err := o.persistInvocation(ctx, target, plan.conversation, content, response); err != nil {
		return err
	}

	o.publish(events.Event{
		Type:      events.EventAgentResponse,
		ProjectID: plan.project.ID,
		Phase:     target.Type,
		Status:    target.Status,
	})
	return nil
}

// cachedResponse looks up a memoized agent response. Cache failures downgrade
// to a miss.
func (o *Orchestrator) cachedResponse(ctx context.Context, agentType, content string) (*proto.AgentResponse, bool) {
	if o.cache == nil {
		return nil, false
	}

	key := cache.Key(agentType, content)
	data, ok := o.cache.Get(ctx, key)
	o.recorder.ObserveCacheLookup(agentType, ok)
	if !ok {
		return nil, false
	}

	var response proto.AgentResponse
	if err := json.Unmarshal(data, &response); err != nil {
		o.logger.Warn("dropping undecodable cache entry for %s: %v", agentType, err)
		o.cache.Delete(ctx, key)
		return nil, false
	}
	return &response, true
}

// storeResponse memoizes a successful agent response, best effort.
func (o *Orchestrator) storeResponse(ctx context.Context, agentType, content string, response *proto.AgentResponse) {
	if o.cache == nil {
		return
	}
	data, err := json.Marshal(response)
	if err != nil {
		o.logger.Warn("failed to encode response for cache: %v", err)
		return
	}
	o.cache.Set(ctx, cache.Key(agentType, content), data, o.cacheTTL)
}

// persistInvocation records the phase output and the exchanged messages.
func (o *Orchestrator) persistInvocation(ctx context.Context, phase *persistence.Phase, conversation *persistence.Conversation, content string, response *proto.AgentResponse) error {
	now := time.Now()
	phase.Output = &response.Content
	phase.UpdatedAt = now
	if err := o.repo.SavePhase(ctx, phase); err != nil {
		return fmt.Errorf("failed to persist phase output: %w", err)
	}

	userMsg := &persistence.Message{
		ID:             persistence.GenerateMessageID(),
		ConversationID: conversation.ID,
		Role:           proto.RoleUser,
		Content:        content,
		CreatedAt:      now,
	}
	if err := o.repo.AppendMessage(ctx, userMsg); err != nil {
		return fmt.Errorf("failed to append user message: %w", err)
	}

	metadata, err := json.Marshal(response.Metadata)
	if err != nil {
		metadata = []byte("{}")
	}
	agentMsg := &persistence.Message{
		ID:             persistence.GenerateMessageID(),
		ConversationID: conversation.ID,
		Role:           proto.RoleAgent,
		Content:        response.Content,
		Metadata:       string(metadata),
		CreatedAt:      now.Add(time.Microsecond), // keep exchange order stable
	}
	if err := o.repo.AppendMessage(ctx, agentMsg); err != nil {
		return fmt.Errorf("failed to append agent message: %w", err)
	}
	return nil
}

// load fetches a project with its phases, enforcing ownership. Ownership
// failures report NotFound so callers cannot probe for foreign projects.
func (o *Orchestrator) load(ctx context.Context, ownerID, projectID string) (*persistence.Project, []*persistence.Phase, Pipeline, error) {
	project, err := o.repo.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, nil, Pipeline{}, &NotFoundError{Resource: "project", ID: projectID}
		}
		return nil, nil, Pipeline{}, fmt.Errorf("failed to load project: %w", err)
	}
	if project.OwnerID != ownerID {
		return nil, nil, Pipeline{}, &NotFoundError{Resource: "project", ID: projectID}
	}

	phases, err := o.repo.PhasesByProject(ctx, projectID)
	if err != nil {
		return nil, nil, Pipeline{}, fmt.Errorf("failed to load phases: %w", err)
	}

	pipeline, err := PipelineByName(project.Pipeline)
	if err != nil {
		return nil, nil, Pipeline{}, fmt.Errorf("project %s: %w", projectID, err)
	}
	return project, phases, pipeline, nil
}

func (o *Orchestrator) publish(event events.Event) {
	if o.bus != nil {
		o.bus.Publish(event)
	}
}

func containsPhase(list []proto.PhaseType, phase proto.PhaseType) bool {
	for _, p := range list {
		if p == phase {
			return true
		}
	}
	return false
}

func activePhase(phases []*persistence.Phase) *persistence.Phase {
	for _, phase := range phases {
		if phase.Status == proto.PhaseActive {
			return phase
		}
	}
	return nil
}

func phaseByID(phases []*persistence.Phase, id string) *persistence.Phase {
	for _, phase := range phases {
		if phase.ID == id {
			return phase
		}
	}
	return nil
}

func phaseOfType(phases []*persistence.Phase, phaseType proto.PhaseType) *persistence.Phase {
	for _, phase := range phases {
		if phase.Type == phaseType {
			return phase
		}
	}
	return nil
}

func priorOutputs(phases []*persistence.Phase) map[proto.PhaseType]string {
	outputs := make(map[proto.PhaseType]string)
	for _, phase := range phases {
		if phase.Status == proto.PhaseCompleted && phase.HasOutput() {
			outputs[phase.Type] = *phase.Output
		}
	}
	if len(outputs) == 0 {
		return nil
	}
	return outputs
}
