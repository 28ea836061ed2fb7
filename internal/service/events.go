package service

import (
	"sync"
	"time"

	"cvswatch/internal/syncloop"
	"cvswatch/internal/view"
)

// EventType defines the type of event
type EventType string

const (
	EventSnapshotCommitted EventType = "snapshot_committed"
	EventTickCompleted     EventType = "tick_completed"
	EventSyncTriggered     EventType = "sync_triggered"
)

// Event represents an event that occurred in the system
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// SnapshotPayload carries every view of one committed snapshot so clients
// re-render all three views from the same version
type SnapshotPayload struct {
	Version     uint64          `json:"version"`
	CommittedAt time.Time       `json:"committed_at"`
	Map         view.Collection `json:"map"`
	Analytics   view.Summary    `json:"analytics"`
	Devices     view.Panel      `json:"devices"`
}

// TickPayload reports a finished tick
type TickPayload struct {
	Report syncloop.TickReport `json:"report"`
}

// EventBus allows publishing and subscribing to events
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Unsubscribe removes a subscriber. The channel is not closed.
func (eb *EventBus) Unsubscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
