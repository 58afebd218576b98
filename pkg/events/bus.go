// Package events provides a channel-based status bus. Subscribers get their
// own buffered channel and an explicit handle to unsubscribe with; slow
// subscribers drop events rather than blocking publishers.
package events

import (
	"sync"
	"time"

	"draftflow/pkg/logx"
	"draftflow/pkg/proto"
)

// EventType classifies a bus event.
type EventType string

const (
	// EventPhaseTransition fires when a project's active phase changes.
	EventPhaseTransition EventType = "phase_transition"
	// EventPhaseCompleted fires when a phase is completed.
	EventPhaseCompleted EventType = "phase_completed"
	// EventAgentResponse fires when an agent produces output for a phase.
	EventAgentResponse EventType = "agent_response"
	// EventProjectCreated fires when a new project is created.
	EventProjectCreated EventType = "project_created"
)

// Event is one status update on the bus.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	ProjectID string            `json:"project_id"`
	Phase     proto.PhaseType   `json:"phase,omitempty"`
	Status    proto.PhaseStatus `json:"status,omitempty"`
	Detail    string            `json:"detail,omitempty"`
}

const subscriberBuffer = 16

// Subscription is a handle to one subscriber's event stream.
type Subscription struct {
	bus *Bus
	ch  chan Event
	id  int
}

// C returns the subscriber's event channel. It is closed on Unsubscribe and
// on bus shutdown.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Unsubscribe removes the subscriber and closes its channel. Safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
	logger *logx.Logger
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[int]chan Event),
		logger: logx.NewLogger("events"),
	}
}

// Subscribe registers a new subscriber.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return &Subscription{bus: b, ch: ch, id: -1}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	return &Subscription{bus: b, ch: ch, id: id}
}

// Publish delivers an event to every subscriber. Subscribers with full
// buffers miss the event.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.Debug("subscriber %d lagging, dropped %s event", id, event.Type)
		}
	}
}

// Close shuts the bus down and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(ch)
}
