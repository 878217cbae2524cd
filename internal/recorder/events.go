package recorder

import (
	"sync"
	"time"
)

// EventType identifies a session lifecycle event.
type EventType string

const (
	EventStarted EventType = "started"
	EventStopped EventType = "stopped"
	EventPaused  EventType = "paused"
	EventResumed EventType = "resumed"
	EventFailed  EventType = "failed"
)

// Event describes a session lifecycle transition.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	MeetingID string    `json:"meeting_id"`
	Time      time.Time `json:"time"`
	Error     string    `json:"error,omitempty"`
}

// eventBufferSize is the per-subscriber channel depth. A slow subscriber
// loses events rather than blocking session operations.
const eventBufferSize = 64

// Bus fans session lifecycle events out to subscribers. Publish never
// blocks.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called to release the subscription.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, eventBufferSize)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Close drops all subscribers and closes their channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers ev to all subscribers, dropping it for any subscriber
// whose buffer is full.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
