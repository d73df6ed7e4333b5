// Package notify fans queue events out to interested listeners.
package notify

import (
	"sync"
	"time"

	"github.com/sevir/agentq/pkg/models"
)

// EventType names the kind of change an Event describes.
type EventType string

const (
	EventTaskCreated  EventType = "task-created"
	EventTaskUpdated  EventType = "task-updated"
	EventTaskRemoved  EventType = "task-removed"
	EventTaskOutput   EventType = "task-output"
	EventQueueUpdated EventType = "queue-updated"
)

// Event is a single notification. Task is a snapshot taken when the event was
// raised; Chunk is set for output events only.
type Event struct {
	Type   EventType           `json:"type"`
	TaskID string              `json:"task_id,omitempty"`
	Task   *models.TaskSummary `json:"task,omitempty"`
	Chunk  string              `json:"chunk,omitempty"`
	Queue  *models.QueueStatus `json:"queue,omitempty"`
	At     time.Time           `json:"at"`
}

// Sink receives queue events. Notify must not block.
type Sink interface {
	Notify(ev Event)
}

// Discard drops every event.
type Discard struct{}

// Notify implements Sink.
func (Discard) Notify(Event) {}

// Hub is a Sink that broadcasts to any number of subscribers. Slow
// subscribers miss events rather than stall the queue.
type Hub struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	buffer int
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		subs:   make(map[chan Event]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a listener. The returned function unsubscribes and
// closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of registered listeners.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Notify implements Sink.
func (h *Hub) Notify(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// Channel full, skip
		}
	}
}

// Recorder is a Sink that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Notify implements Sink.
func (r *Recorder) Notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of the given type.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
