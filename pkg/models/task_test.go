package models

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatus(t *testing.T) {
	task := &Task{ID: "test-1", Status: TaskStatusQueued}

	assert.True(t, task.IsQueued())
	assert.False(t, task.IsRunning())
	assert.False(t, task.IsTerminal())
	assert.False(t, task.CanRetry())

	task.Status = TaskStatusRunning
	assert.True(t, task.IsRunning())
	assert.False(t, task.IsTerminal())

	for _, st := range []TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled} {
		task.Status = st
		assert.True(t, task.IsTerminal(), st)
	}

	task.Status = TaskStatusCompleted
	assert.False(t, task.CanRetry())
	task.Status = TaskStatusFailed
	assert.True(t, task.CanRetry())
	task.Status = TaskStatusCancelled
	assert.True(t, task.CanRetry())
}

func TestParsePriority(t *testing.T) {
	cases := map[string]Priority{
		"":       PriorityNormal,
		"low":    PriorityLow,
		"NORMAL": PriorityNormal,
		" high ": PriorityHigh,
	}
	for in, want := range cases {
		got, err := ParsePriority(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePriority("urgent")
	assert.Error(t, err)
}

func TestPriorityRank(t *testing.T) {
	assert.Less(t, PriorityHigh.Rank(), PriorityNormal.Rank())
	assert.Less(t, PriorityNormal.Rank(), PriorityLow.Rank())
	assert.Equal(t, PriorityNormal.Rank(), Priority("").Rank())
}

func TestResetForRetry(t *testing.T) {
	now := time.Now()
	code := 2
	task := &Task{
		ID:          "t",
		Status:      TaskStatusFailed,
		StartedAt:   &now,
		CompletedAt: &now,
		ExitCode:    &code,
		Error:       "process exited with code 2",
		Output:      NewOutputBuffer(MaxOutputChunks),
	}
	task.Output.Append("boom")

	task.ResetForRetry()

	assert.Equal(t, TaskStatusQueued, task.Status)
	assert.Nil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)
	assert.Nil(t, task.ExitCode)
	assert.Empty(t, task.Error)
	assert.Equal(t, 0, task.Output.Len())
}

func TestTaskClone(t *testing.T) {
	now := time.Now()
	task := &Task{ID: "t", StartedAt: &now, Output: NewOutputBuffer(4)}
	task.Output.Append("a")

	c := task.Clone()
	c.Output.Append("b")
	*c.StartedAt = now.Add(time.Hour)

	assert.Equal(t, []string{"a"}, task.Output.Chunks())
	assert.Equal(t, now, *task.StartedAt)
}

func TestTaskToSummary(t *testing.T) {
	now := time.Now()
	later := now.Add(5 * time.Minute)

	task := &Task{
		ID:          "test-1",
		Name:        "refactor",
		Prompt:      "Test prompt",
		ProjectPath: "/test/dir",
		Status:      TaskStatusCompleted,
		Priority:    PriorityHigh,
		CreatedAt:   now,
		StartedAt:   &now,
		CompletedAt: &later,
		Output:      NewOutputBuffer(MaxOutputChunks),
	}
	task.Output.Append("hello")

	summary := task.ToSummary()
	assert.Equal(t, task.ID, summary.ID)
	assert.Equal(t, PriorityHigh, summary.Priority)
	assert.Equal(t, 1, summary.OutputChunks)
	assert.Equal(t, "5m0s", summary.Duration)
}

func TestTaskSummaryTruncatesPrompt(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "x"
	}
	summary := (&Task{Prompt: long}).ToSummary()
	assert.Len(t, summary.Prompt, 100)
	assert.Equal(t, "...", summary.Prompt[97:])
}

func TestTaskJSON(t *testing.T) {
	task := &Task{
		ID:        "t",
		Status:    TaskStatusQueued,
		Priority:  PriorityLow,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		Output:    NewOutputBuffer(MaxOutputChunks),
	}
	task.Output.Append("line 1")
	task.Output.Append("line 2")

	data, err := json.Marshal(task)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"output":["line 1","line 2"]`)

	var decoded Task
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Output)
	assert.Equal(t, []string{"line 1", "line 2"}, decoded.Output.Chunks())
	assert.Equal(t, MaxOutputChunks, decoded.Output.Cap())
}

func TestDurationJSON(t *testing.T) {
	data, err := json.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))

	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"2s"`), &d))
	assert.Equal(t, Duration(2*time.Second), d)

	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
}

func TestOutputBufferEviction(t *testing.T) {
	b := NewOutputBuffer(3)
	for i := 1; i <= 3; i++ {
		assert.False(t, b.Append(fmt.Sprintf("c%d", i)))
	}
	assert.True(t, b.Append("c4"))
	assert.True(t, b.Append("c5"))

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []string{"c3", "c4", "c5"}, b.Chunks())
	assert.Equal(t, []string{"c4", "c5"}, b.Tail(2))
}

func TestOutputBufferNeverExceedsCap(t *testing.T) {
	b := NewOutputBuffer(MaxOutputChunks)
	for i := 0; i < MaxOutputChunks*2+7; i++ {
		b.Append(fmt.Sprintf("chunk-%d", i))
		require.LessOrEqual(t, b.Len(), MaxOutputChunks)
	}
	chunks := b.Chunks()
	assert.Equal(t, fmt.Sprintf("chunk-%d", MaxOutputChunks+7), chunks[0])
	assert.Equal(t, fmt.Sprintf("chunk-%d", MaxOutputChunks*2+6), chunks[len(chunks)-1])
}

func TestOutputBufferUnmarshalKeepsNewest(t *testing.T) {
	chunks := make([]string, MaxOutputChunks+5)
	for i := range chunks {
		chunks[i] = fmt.Sprintf("%d", i)
	}
	data, err := json.Marshal(chunks)
	require.NoError(t, err)

	var b OutputBuffer
	require.NoError(t, json.Unmarshal(data, &b))
	assert.Equal(t, MaxOutputChunks, b.Len())
	assert.Equal(t, "5", b.Chunks()[0])
}

func TestOutputBufferReset(t *testing.T) {
	b := NewOutputBuffer(2)
	b.Append("a")
	b.Append("b")
	b.Append("c")
	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Chunks())
	b.Append("d")
	assert.Equal(t, []string{"d"}, b.Chunks())
}
