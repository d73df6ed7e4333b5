package queue

import (
	"sort"

	"github.com/sevir/agentq/pkg/models"
)

// SelectForDispatch picks up to slots queued tasks to promote, high priority
// first. Tasks of equal priority keep their list order. Running tasks are
// never preempted, so the result only ever contains queued tasks.
func SelectForDispatch(tasks []*models.Task, slots int) []*models.Task {
	if slots <= 0 {
		return nil
	}

	var queued []*models.Task
	for _, t := range tasks {
		if t.IsQueued() {
			queued = append(queued, t)
		}
	}

	sort.SliceStable(queued, func(i, j int) bool {
		return queued[i].Priority.Rank() < queued[j].Priority.Rank()
	})

	if len(queued) > slots {
		queued = queued[:slots]
	}
	return queued
}

// dispatchLocked fills free slots with queued tasks. Killed workers that
// have not exited yet still hold a slot. It loops because a task whose
// worker fails to spawn leaves its slot free again.
func (c *Controller) dispatchLocked() {
	if !c.queue.IsRunning || c.closed {
		return
	}

	for {
		slots := c.queue.MaxConcurrent - c.queue.CountStatus(models.TaskStatusRunning) - len(c.dying)
		next := SelectForDispatch(c.queue.Tasks, slots)
		if len(next) == 0 {
			return
		}
		for _, task := range next {
			c.startLocked(task)
		}
	}
}
