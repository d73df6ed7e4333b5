// Package models defines the core domain types for the agentq task queue.
package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// ValidStatus checks if a status is one of the known task states.
func ValidStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusQueued, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// Priority controls the order in which queued tasks are promoted to running.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority converts user input into a Priority. Empty input yields PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityNormal, nil
	case PriorityLow, PriorityNormal, PriorityHigh:
		return p, nil
	}
	return "", fmt.Errorf("invalid priority: %q (valid: low, normal, high)", s)
}

// Rank returns the dispatch rank of the priority; lower ranks are dispatched first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Task represents one prompt to run against the wrapped CLI in a project directory.
type Task struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Prompt       string        `json:"prompt"`
	ProjectPath  string        `json:"project_path"`
	Status       TaskStatus    `json:"status"`
	Priority     Priority      `json:"priority"`
	CreatedAt    time.Time     `json:"created_at"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	LastActivity *time.Time    `json:"last_activity,omitempty"`
	PID          int           `json:"pid,omitempty"`
	ExitCode     *int          `json:"exit_code,omitempty"`
	Output       *OutputBuffer `json:"output"`
	Error        string        `json:"error,omitempty"`
}

// IsTerminal returns true if the task finished one way or another.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted ||
		t.Status == TaskStatusFailed ||
		t.Status == TaskStatusCancelled
}

// IsRunning returns true if the task is currently running.
func (t *Task) IsRunning() bool {
	return t.Status == TaskStatusRunning
}

// IsQueued returns true if the task is waiting for a slot.
func (t *Task) IsQueued() bool {
	return t.Status == TaskStatusQueued
}

// CanRetry reports whether the task may be put back into the queue.
func (t *Task) CanRetry() bool {
	return t.Status == TaskStatusFailed || t.Status == TaskStatusCancelled
}

// ResetForRetry puts the task back into the queued state, dropping everything
// left over from the previous run.
func (t *Task) ResetForRetry() {
	t.Status = TaskStatusQueued
	t.StartedAt = nil
	t.CompletedAt = nil
	t.LastActivity = nil
	t.PID = 0
	t.ExitCode = nil
	t.Error = ""
	t.Output = NewOutputBuffer(MaxOutputChunks)
}

// Clone returns a deep copy safe to hand outside the queue lock.
func (t *Task) Clone() *Task {
	c := *t
	c.StartedAt = cloneTime(t.StartedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.LastActivity = cloneTime(t.LastActivity)
	if t.ExitCode != nil {
		code := *t.ExitCode
		c.ExitCode = &code
	}
	if t.Output != nil {
		c.Output = t.Output.Clone()
	}
	return &c
}

// Duration returns how long the task ran, or zero if it has not finished.
func (t *Task) Duration() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TaskSummary provides a condensed view of a task for listing.
type TaskSummary struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Prompt       string     `json:"prompt"`
	ProjectPath  string     `json:"project_path"`
	Status       TaskStatus `json:"status"`
	Priority     Priority   `json:"priority"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	PID          int        `json:"pid,omitempty"`
	ExitCode     *int       `json:"exit_code,omitempty"`
	OutputChunks int        `json:"output_chunks"`
	Error        string     `json:"error,omitempty"`
	Duration     string     `json:"duration,omitempty"`
}

// ToSummary converts a Task to a TaskSummary.
func (t *Task) ToSummary() TaskSummary {
	summary := TaskSummary{
		ID:           t.ID,
		Name:         t.Name,
		Prompt:       truncateString(t.Prompt, 100),
		ProjectPath:  t.ProjectPath,
		Status:       t.Status,
		Priority:     t.Priority,
		CreatedAt:    t.CreatedAt,
		StartedAt:    t.StartedAt,
		CompletedAt:  t.CompletedAt,
		LastActivity: t.LastActivity,
		PID:          t.PID,
		ExitCode:     t.ExitCode,
		Error:        t.Error,
	}
	if t.Output != nil {
		summary.OutputChunks = t.Output.Len()
	}
	if d := t.Duration(); d > 0 {
		summary.Duration = d.String()
	}
	return summary
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// AddRequest represents a request to enqueue a new task.
type AddRequest struct {
	Name        string `json:"name"`
	Prompt      string `json:"prompt"`
	ProjectPath string `json:"project_path"`
	Priority    string `json:"priority,omitempty"`
}

// Duration is a wrapper around time.Duration for JSON and YAML marshaling.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) < 2 {
		return nil
	}
	// Remove quotes
	s := string(b[1 : len(b)-1])
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}
