package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampConcurrency(t *testing.T) {
	for in, want := range map[int]int{-3: 1, 0: 1, 1: 1, 3: 3, 5: 5, 6: 5, 100: 5} {
		assert.Equal(t, want, ClampConcurrency(in), in)
	}
}

func TestNewQueueClamps(t *testing.T) {
	q := NewQueue(9)
	assert.Equal(t, MaxConcurrent, q.MaxConcurrent)
	assert.False(t, q.IsRunning)
	assert.NotNil(t, q.Tasks)
}

func TestQueueFindAndStatus(t *testing.T) {
	q := NewQueue(2)
	q.Tasks = []*Task{
		{ID: "a", Status: TaskStatusQueued},
		{ID: "b", Status: TaskStatusRunning},
		{ID: "c", Status: TaskStatusCompleted},
		{ID: "d", Status: TaskStatusFailed},
		{ID: "e", Status: TaskStatusCancelled},
		{ID: "f", Status: TaskStatusQueued},
	}

	task, idx := q.Find("c")
	assert.Equal(t, "c", task.ID)
	assert.Equal(t, 2, idx)

	task, idx = q.Find("missing")
	assert.Nil(t, task)
	assert.Equal(t, -1, idx)

	assert.Equal(t, 2, q.CountStatus(TaskStatusQueued))

	st := q.Status()
	assert.Equal(t, QueueStatus{
		Total:         6,
		Queued:        2,
		Running:       1,
		Completed:     1,
		Failed:        1,
		Cancelled:     1,
		IsRunning:     false,
		MaxConcurrent: 2,
	}, st)
}
