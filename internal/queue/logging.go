package queue

import (
	"strconv"

	"github.com/sevir/agentq/pkg/models"
)

func (c *Controller) logTaskReceived(task *models.Task) {
	c.logger.Info("task_event=received",
		"task_id", task.ID,
		"name", task.Name,
		"status", task.Status,
		"priority", task.Priority,
		"project_path", task.ProjectPath,
		"prompt_len", len(task.Prompt),
		"prompt_preview", truncateForLog(task.Prompt, 160),
	)
}

func (c *Controller) logTaskStarted(task *models.Task) {
	c.logger.Info("task_event=started",
		"task_id", task.ID,
		"status", task.Status,
		"pid", task.PID,
		"project_path", task.ProjectPath,
	)
}

func (c *Controller) logTaskFinished(task *models.Task) {
	exitCode := ""
	if task.ExitCode != nil {
		exitCode = strconv.Itoa(*task.ExitCode)
	}

	c.logger.Info("task_event=finished",
		"task_id", task.ID,
		"status", task.Status,
		"exit_code", exitCode,
		"error", task.Error,
		"duration", task.Duration().String(),
		"output_chunks", task.Output.Len(),
	)
}

func truncateForLog(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
