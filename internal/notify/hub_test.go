package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(4)
	a, cancelA := hub.Subscribe()
	defer cancelA()
	b, cancelB := hub.Subscribe()
	defer cancelB()
	assert.Equal(t, 2, hub.Subscribers())

	hub.Notify(Event{Type: EventTaskCreated, TaskID: "t1"})

	for _, ch := range []<-chan Event{a, b} {
		ev := <-ch
		assert.Equal(t, EventTaskCreated, ev.Type)
		assert.Equal(t, "t1", ev.TaskID)
		assert.False(t, ev.At.IsZero())
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(1)
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Notify(Event{Type: EventTaskOutput, Chunk: "1"})
	hub.Notify(Event{Type: EventTaskOutput, Chunk: "2"})

	ev := <-ch
	assert.Equal(t, "1", ev.Chunk)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %+v", extra)
	default:
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub := NewHub(1)
	ch, cancel := hub.Subscribe()
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Subscribers())

	hub.Notify(Event{Type: EventQueueUpdated})
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Notify(Event{Type: EventTaskCreated})
	r.Notify(Event{Type: EventTaskOutput})
	r.Notify(Event{Type: EventTaskOutput})

	require.Len(t, r.Events(), 3)
	assert.Len(t, r.OfType(EventTaskOutput), 2)

	Discard{}.Notify(Event{})
}
