package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"draftflow/pkg/agent/middleware/metrics"
	"draftflow/pkg/config"
	"draftflow/pkg/logx"
	"draftflow/pkg/proto"
)

// Health describes an agent's availability.
type Health struct {
	Available bool   `json:"available"`
	Degraded  bool   `json:"degraded"`
	Reason    string `json:"reason,omitempty"`
}

// Registry holds the set of available agents and routes phases to them.
// Agents whose dependencies are unavailable are recorded as degraded rather
// than removed; the workflow decides what to do with degraded output.
type Registry struct {
	mu     sync.RWMutex
	agents map[Type]Agent
	health map[Type]Health
	logger *logx.Logger
}

// NewRegistry creates an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[Type]Agent),
		health: make(map[Type]Health),
		logger: logx.NewLogger("agent-registry"),
	}
}

// NewDefaultRegistry builds a registry with the full agent set, one per
// workflow phase, using the factory for model clients. An agent whose client
// cannot be constructed (typically a missing API key) is recorded as
// unavailable instead of failing the whole registry.
func NewDefaultRegistry(cfg config.Config, factory *ClientFactory, ctxProvider metrics.ContextProvider) *Registry {
	r := NewRegistry()

	for _, agentType := range []Type{
		TypeIdeation, TypeRefinement, TypeFactCheck,
		TypeVoiceTone, TypeThesis, TypeResearch, TypeDraft, TypeEditorial,
	} {
		client, err := factory.CreateClientWithContext(agentType, ctxProvider)
		if err != nil {
			r.logger.Warn("agent %s unavailable: %v", agentType, err)
			r.markUnavailable(agentType, err.Error())
			continue
		}
		a, err := NewPromptAgent(agentType, client)
		if err != nil {
			r.logger.Warn("agent %s unavailable: %v", agentType, err)
			r.markUnavailable(agentType, err.Error())
			continue
		}
		if err := r.Register(a); err != nil {
			r.logger.Error("failed to register agent %s: %v", agentType, err)
		}
	}

	// The media agent tolerates a missing client; it degrades instead.
	mediaClient, err := factory.CreateClientWithContext(TypeMedia, ctxProvider)
	if err != nil {
		r.logger.Warn("media model client unavailable, media agent will degrade: %v", err)
		mediaClient = nil
	}
	if err := r.Register(NewMediaAgent(mediaClient)); err != nil {
		r.logger.Error("failed to register media agent: %v", err)
	}

	return r
}

// Register adds an agent to the registry.
func (r *Registry) Register(a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := a.Type()
	if _, exists := r.agents[t]; exists {
		return fmt.Errorf("agent type %s already registered", t)
	}
	r.agents[t] = a
	r.health[t] = Health{Available: true}
	return nil
}

// Get returns the agent for a type.
func (r *Registry) Get(agentType Type) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[agentType]
	if !ok {
		// An agent recorded unavailable has a missing dependency and, unlike
		// the media agent, no reduced mode to fall back to.
		if h, known := r.health[agentType]; known && !h.Available {
			return nil, &DegradedError{AgentType: agentType, Dependency: "model client", Reason: h.Reason}
		}
		return nil, fmt.Errorf("agent %s not registered", agentType)
	}
	return a, nil
}

// ForPhase returns the agent serving a workflow phase.
func (r *Registry) ForPhase(phase proto.PhaseType) (Agent, error) {
	agentType, err := TypeForPhase(phase)
	if err != nil {
		return nil, err
	}
	return r.Get(agentType)
}

// InitializeAll initializes every registered agent. Initialization failures
// mark the agent degraded and do not block the others.
func (r *Registry) InitializeAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for t, a := range r.agents {
		if err := a.Initialize(ctx); err != nil {
			r.logger.Warn("agent %s initialization failed, marking degraded: %v", t, err)
			r.health[t] = Health{Available: true, Degraded: true, Reason: err.Error()}
			continue
		}
		// Agents that degrade themselves during Initialize report it here.
		if ma, ok := a.(*MediaAgent); ok {
			if degraded, reason := ma.Degraded(); degraded {
				r.health[t] = Health{Available: true, Degraded: true, Reason: reason}
			}
		}
	}
}

// CleanupAll releases resources for every registered agent.
func (r *Registry) CleanupAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for t, a := range r.agents {
		if err := a.Cleanup(); err != nil {
			r.logger.Warn("agent %s cleanup failed: %v", t, err)
		}
	}
}

// Health returns the availability of every known agent type, including
// unavailable ones.
func (r *Registry) Health() map[Type]Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Type]Health, len(r.health))
	for t, h := range r.health {
		out[t] = h
	}
	return out
}

// Types returns the registered agent types in stable order.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]Type, 0, len(r.agents))
	for t := range r.agents {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (r *Registry) markUnavailable(agentType Type, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health[agentType] = Health{Available: false, Reason: reason}
}
