// Package ui renders queue state for the terminal.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/sevir/agentq/pkg/models"
)

// Sprint color functions for building styled strings.
var (
	Bold      = color.New(color.Bold).SprintFunc()
	Dim       = color.New(color.Faint).SprintFunc()
	Cyan      = color.New(color.FgCyan).SprintFunc()
	Green     = color.New(color.FgGreen).SprintFunc()
	Red       = color.New(color.FgRed).SprintFunc()
	Yellow    = color.New(color.FgYellow).SprintFunc()
	BoldCyan  = color.New(color.Bold, color.FgCyan).SprintFunc()
	BoldRed   = color.New(color.Bold, color.FgRed).SprintFunc()
	BoldGreen = color.New(color.Bold, color.FgGreen).SprintFunc()
)

// StatusIcon returns a colored status icon for compact table display.
func StatusIcon(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusCompleted:
		return Green("✓")
	case models.TaskStatusRunning:
		return Cyan("●")
	case models.TaskStatusFailed:
		return Red("✗")
	case models.TaskStatusCancelled:
		return Dim("⊘")
	default:
		return Dim("◌")
	}
}

// StatusText returns the status padded to width and colored.
func StatusText(status models.TaskStatus, width int) string {
	s := fmt.Sprintf("%-*s", width, status)
	switch status {
	case models.TaskStatusCompleted:
		return Green(s)
	case models.TaskStatusRunning:
		return BoldCyan(s)
	case models.TaskStatusFailed:
		return Red(s)
	case models.TaskStatusCancelled:
		return Dim(s)
	default:
		return s
	}
}

// PriorityText returns the priority padded to width and colored.
func PriorityText(p models.Priority, width int) string {
	s := fmt.Sprintf("%-*s", width, p)
	switch p {
	case models.PriorityHigh:
		return BoldRed(s)
	case models.PriorityLow:
		return Dim(s)
	default:
		return s
	}
}

// TaskTable writes one line per task in queue order.
func TaskTable(w io.Writer, tasks []models.TaskSummary) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, Dim("No tasks in the queue."))
		return
	}

	fmt.Fprintf(w, "  %-3s %-13s %-10s %-7s %-24s %s\n", "#", "ID", "STATUS", "PRIO", "NAME", "DETAIL")
	for i, t := range tasks {
		fmt.Fprintf(w, "%s %-3d %-13s %s %s %-24s %s\n",
			StatusIcon(t.Status),
			i,
			t.ID,
			StatusText(t.Status, 10),
			PriorityText(t.Priority, 7),
			truncate(t.Name, 24),
			Dim(detail(t)),
		)
	}
}

// TaskDetail writes every field of one task.
func TaskDetail(w io.Writer, t *models.TaskSummary) {
	fmt.Fprintf(w, "%s %s\n", StatusIcon(t.Status), Bold(t.ID))
	fmt.Fprintf(w, "  Name:     %s\n", t.Name)
	fmt.Fprintf(w, "  Status:   %s\n", StatusText(t.Status, 0))
	fmt.Fprintf(w, "  Priority: %s\n", PriorityText(t.Priority, 0))
	fmt.Fprintf(w, "  Project:  %s\n", t.ProjectPath)
	fmt.Fprintf(w, "  Created:  %s\n", t.CreatedAt.Format(time.RFC3339))
	if t.StartedAt != nil {
		fmt.Fprintf(w, "  Started:  %s\n", t.StartedAt.Format(time.RFC3339))
	}
	if t.CompletedAt != nil {
		fmt.Fprintf(w, "  Finished: %s\n", t.CompletedAt.Format(time.RFC3339))
	}
	if t.PID != 0 {
		fmt.Fprintf(w, "  PID:      %d\n", t.PID)
	}
	if t.ExitCode != nil {
		fmt.Fprintf(w, "  Exit:     %d\n", *t.ExitCode)
	}
	if t.Error != "" {
		fmt.Fprintf(w, "  Error:    %s\n", Red(t.Error))
	}
	fmt.Fprintf(w, "  Output:   %d chunks\n", t.OutputChunks)
	fmt.Fprintf(w, "  Prompt:   %s\n", t.Prompt)
}

// QueueSummary writes the queue counters on two lines.
func QueueSummary(w io.Writer, st *models.QueueStatus) {
	state := Yellow("paused")
	if st.IsRunning {
		state = BoldGreen("running")
	}
	fmt.Fprintf(w, "Queue %s  max concurrent %s\n", state, Bold(st.MaxConcurrent))
	fmt.Fprintf(w, "  %d total  %s queued  %s running  %s completed  %s failed  %s cancelled\n",
		st.Total,
		Bold(st.Queued),
		Cyan(st.Running),
		Green(st.Completed),
		Red(st.Failed),
		Dim(st.Cancelled),
	)
}

func detail(t models.TaskSummary) string {
	switch {
	case t.Error != "":
		return truncate(t.Error, 48)
	case t.Duration != "":
		return t.Duration
	case t.ProjectPath != "":
		return t.ProjectPath
	}
	return ""
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
