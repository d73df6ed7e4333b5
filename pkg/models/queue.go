package models

const (
	// MinConcurrent and MaxConcurrent bound the number of simultaneously running tasks.
	MinConcurrent = 1
	MaxConcurrent = 5

	// DefaultMaxConcurrent is used when no persisted or configured value exists.
	DefaultMaxConcurrent = 2
)

// ClampConcurrency forces n into [MinConcurrent, MaxConcurrent].
func ClampConcurrency(n int) int {
	if n < MinConcurrent {
		return MinConcurrent
	}
	if n > MaxConcurrent {
		return MaxConcurrent
	}
	return n
}

// Queue is the persisted queue document: the ordered task list plus the
// global settings. Task order is placement order, not insertion order.
type Queue struct {
	Tasks         []*Task `json:"tasks"`
	MaxConcurrent int     `json:"max_concurrent"`
	IsRunning     bool    `json:"is_running"`
}

// NewQueue returns an empty, paused queue.
func NewQueue(maxConcurrent int) *Queue {
	return &Queue{
		Tasks:         []*Task{},
		MaxConcurrent: ClampConcurrency(maxConcurrent),
	}
}

// Find returns the task with the given ID and its index, or nil and -1.
func (q *Queue) Find(id string) (*Task, int) {
	for i, t := range q.Tasks {
		if t.ID == id {
			return t, i
		}
	}
	return nil, -1
}

// CountStatus returns how many tasks are in the given status.
func (q *Queue) CountStatus(status TaskStatus) int {
	n := 0
	for _, t := range q.Tasks {
		if t.Status == status {
			n++
		}
	}
	return n
}

// Status summarizes the queue.
func (q *Queue) Status() QueueStatus {
	st := QueueStatus{
		IsRunning:     q.IsRunning,
		MaxConcurrent: q.MaxConcurrent,
	}
	for _, t := range q.Tasks {
		st.Total++
		switch t.Status {
		case TaskStatusQueued:
			st.Queued++
		case TaskStatusRunning:
			st.Running++
		case TaskStatusCompleted:
			st.Completed++
		case TaskStatusFailed:
			st.Failed++
		case TaskStatusCancelled:
			st.Cancelled++
		}
	}
	return st
}

// QueueStatus holds task counts by status plus the queue settings.
type QueueStatus struct {
	Total         int  `json:"total"`
	Queued        int  `json:"queued"`
	Running       int  `json:"running"`
	Completed     int  `json:"completed"`
	Failed        int  `json:"failed"`
	Cancelled     int  `json:"cancelled"`
	IsRunning     bool `json:"is_running"`
	MaxConcurrent int  `json:"max_concurrent"`
}
