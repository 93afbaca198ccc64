package engine

import (
	"sync"
	"time"
)

// Event is one operator-visible occurrence, broadcast to event stream
// subscribers.
type Event struct {
	Type       string      `json:"type"`
	PositionID string      `json:"positionId,omitempty"`
	Time       time.Time   `json:"time"`
	Data       interface{} `json:"data,omitempty"`
}

const (
	EventPositionCreated   = "position_created"
	EventPositionUpdated   = "position_updated"
	EventPositionClosed    = "position_closed"
	EventPositionCompleted = "position_completed"
	EventFill              = "fill"
)

// Bus is a fan-out broadcaster for operator events. Slow subscribers
// lose events rather than stalling the publisher.
type Bus struct {
	mu   sync.Mutex
	subs map[chan Event]bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]bool)}
}

// Subscribe returns a channel of events and a cancel function.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = true
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if b.subs[ch] {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish broadcasts an event to all subscribers, dropping it for any
// whose buffer is full.
func (b *Bus) Publish(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
