package arena

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType names a category of arena event.
type EventType string

const (
	EventCycleStarted   EventType = "cycle_started"
	EventCycleCompleted EventType = "cycle_completed"
	EventCycleSkipped   EventType = "cycle_skipped"
	EventAgentDecision  EventType = "agent_decision"
	EventPositionOpened EventType = "position_opened"
	EventPositionClosed EventType = "position_closed"
	EventAccountUpdated EventType = "account_updated"
	EventTriggerFired   EventType = "trigger_fired"
	EventReconcileDone  EventType = "reconcile_done"
	EventAgentDisabled  EventType = "agent_disabled"
	EventSystemError    EventType = "system_error"
)

// Event is a single arena occurrence fanned out to subscribers.
type Event struct {
	Type    EventType   `json:"type"`
	At      time.Time   `json:"at"`
	CycleID string      `json:"cycle_id,omitempty"`
	AgentID string      `json:"agent_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Subscription is one subscriber's bounded outbox. Events that arrive while
// the outbox is full are dropped and counted; a slow consumer never blocks
// the trading path.
type Subscription struct {
	name    string
	ch      chan Event
	dropped atomic.Uint64
}

// Events returns the subscriber's receive channel. It is closed by Bus.Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Name returns the subscriber name.
func (s *Subscription) Name() string { return s.name }

// Dropped returns how many events were discarded because the outbox was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Bus is an in-process publish/subscribe fan-out. Publish never blocks.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

// NewBus returns an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*Subscription)}
}

// Subscribe registers a named subscriber with its own outbox. Buffer sizes
// below 1 are raised to 1.
func (b *Bus) Subscribe(name string, buffer int) (*Subscription, error) {
	if buffer < 1 {
		buffer = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	if _, ok := b.subs[name]; ok {
		return nil, ErrDuplicateSubscriber
	}
	sub := &Subscription{name: name, ch: make(chan Event, buffer)}
	b.subs[name] = sub
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[name]; ok {
		delete(b.subs, name)
		close(sub.ch)
	}
}

// Publish delivers the event to every subscriber whose outbox has room and
// drops it for the rest. A zero At is stamped with the current time.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
}

// DropCounts reports per-subscriber drop totals.
func (b *Bus) DropCounts() map[string]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]uint64, len(b.subs))
	for name, sub := range b.subs {
		out[name] = sub.dropped.Load()
	}
	return out
}

// Close closes every subscriber channel and rejects further activity.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for name, sub := range b.subs {
		delete(b.subs, name)
		close(sub.ch)
	}
}
