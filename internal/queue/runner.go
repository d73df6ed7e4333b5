package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sevir/agentq/internal/agent"
	"github.com/sevir/agentq/internal/notify"
	"github.com/sevir/agentq/pkg/models"
)

const (
	submitKey = "\r"
	// keystrokeDelay separates typed text from the submit key so interactive
	// CLIs do not treat the pair as a paste.
	keystrokeDelay = 50 * time.Millisecond
	readBufferSize = 4096
)

// worker is the registry entry of one live process. The controller compares
// entries by pointer, so events from a process that was replaced or removed
// are recognised as stale.
type worker struct {
	proc   agent.Process
	ctx    context.Context
	cancel context.CancelFunc
	timer  *time.Timer

	// guarded by Controller.mu
	armed bool
	tail  string
	ready chan struct{}
	seen  bool

	stopOnce sync.Once
}

func (w *worker) stop() {
	w.stopOnce.Do(func() {
		w.cancel()
		if w.timer != nil {
			w.timer.Stop()
		}
	})
}

// observe scans output for the ready marker once the CLI has been launched.
// A short tail is kept so a marker split across chunks still matches.
func (w *worker) observe(chunk, marker string) {
	if marker == "" || !w.armed || w.seen {
		return
	}

	w.tail += chunk
	if strings.Contains(w.tail, marker) {
		w.seen = true
		close(w.ready)
		return
	}
	if keep := len(marker) - 1; len(w.tail) > keep {
		w.tail = w.tail[len(w.tail)-keep:]
	}
}

// startLocked promotes a queued task to running and launches its worker. A
// spawn failure fails the task and leaves its slot free.
func (c *Controller) startLocked(task *models.Task) {
	now := c.now()
	task.Status = models.TaskStatusRunning
	task.StartedAt = &now
	task.LastActivity = &now
	task.CompletedAt = nil
	task.ExitCode = nil
	task.Error = ""
	task.PID = 0

	c.persistLocked()
	c.notifyTaskLocked(notify.EventTaskUpdated, task)

	proc, err := c.spawner.Spawn(c.ctx, agent.SpawnOptions{
		Dir:  task.ProjectPath,
		Env:  agent.WorkerEnv(c.environ(), c.blockedEnv),
		Cols: c.cols,
		Rows: c.rows,
	})
	if err != nil {
		c.logger.Error("failed to spawn worker", "task_id", task.ID, "err", err)
		c.finishLocked(task, models.TaskStatusFailed, fmt.Sprintf("failed to spawn worker: %v", err))
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	w := &worker{
		proc:   proc,
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan struct{}),
	}
	c.live[task.ID] = w
	task.PID = proc.PID()

	if c.taskTimeout > 0 {
		id := task.ID
		w.timer = time.AfterFunc(c.taskTimeout, func() { c.expire(id, w) })
	}

	c.logTaskStarted(task)
	c.persistLocked()
	c.notifyTaskLocked(notify.EventTaskUpdated, task)

	go c.pump(task.ID, w)
	go c.feed(task.ID, w, task.Prompt)
}

// pump streams process output into the task until the process exits, then
// reports the exit.
func (c *Controller) pump(id string, w *worker) {
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		buf := make([]byte, readBufferSize)
		for {
			n, err := w.proc.Read(buf)
			if n > 0 {
				c.handleOutput(id, w, string(buf[:n]))
			}
			if err != nil {
				return
			}
		}
	}()

	code, err := w.proc.Wait()

	// Give the reader a moment to drain what the process wrote last.
	select {
	case <-readDone:
	case <-time.After(c.drainTimeout):
	}
	if cerr := w.proc.Close(); cerr != nil {
		c.logger.Debug("closing worker terminal", "task_id", id, "err", cerr)
	}
	<-readDone

	c.handleExit(id, w, code, err)
}

// feed types the CLI binary name and then the prompt into the worker shell.
func (c *Controller) feed(id string, w *worker, prompt string) {
	if !sleepCtx(w.ctx, c.settleDelay) {
		return
	}

	// Arm marker detection before launching so a fast CLI cannot print the
	// marker unseen.
	c.mu.Lock()
	w.armed = true
	c.mu.Unlock()

	binary := c.settings.CLIBinaryName()
	if !c.typeLine(id, w, binary) {
		return
	}

	if c.readyMarker != "" {
		select {
		case <-w.ctx.Done():
			return
		case <-w.ready:
		case <-time.After(c.promptDelay):
			c.logger.Debug("ready marker not seen, sending prompt", "task_id", id)
		}
	} else if !sleepCtx(w.ctx, c.promptDelay) {
		return
	}

	if c.typeLine(id, w, prompt) {
		c.logger.Debug("prompt sent", "task_id", id, "cli", binary)
	}
}

func (c *Controller) typeLine(id string, w *worker, text string) bool {
	if _, err := w.proc.Write([]byte(text)); err != nil {
		c.logger.Warn("failed to write to worker", "task_id", id, "err", err)
		return false
	}
	if !sleepCtx(w.ctx, keystrokeDelay) {
		return false
	}
	if _, err := w.proc.Write([]byte(submitKey)); err != nil {
		c.logger.Warn("failed to write to worker", "task_id", id, "err", err)
		return false
	}
	return true
}

func (c *Controller) handleOutput(id string, w *worker, chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.live[id] != w {
		return
	}
	task, _ := c.queue.Find(id)
	if task == nil {
		return
	}

	now := c.now()
	task.Output.Append(chunk)
	task.LastActivity = &now
	c.dirty = true

	w.observe(chunk, c.readyMarker)
	c.sink.Notify(notify.Event{Type: notify.EventTaskOutput, TaskID: id, Chunk: chunk})
}

// handleExit records the outcome of a process. Exits of processes that were
// killed by cancel, remove or timeout change no task, but every exit frees a
// slot and so triggers dispatch.
func (c *Controller) handleExit(id string, w *worker, code int, waitErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w.stop()
	delete(c.dying, w)
	if c.closed {
		return
	}

	if c.live[id] == w {
		delete(c.live, id)
		if task, _ := c.queue.Find(id); task != nil && task.IsRunning() {
			task.ExitCode = &code
			switch {
			case waitErr != nil:
				c.finishLocked(task, models.TaskStatusFailed, fmt.Sprintf("worker wait failed: %v", waitErr))
			case code != 0:
				c.finishLocked(task, models.TaskStatusFailed, fmt.Sprintf("process exited with code %d", code))
			default:
				c.finishLocked(task, models.TaskStatusCompleted, "")
			}
		}
	}

	c.dispatchLocked()
}

// expire fails a task that ran past the configured timeout.
func (c *Controller) expire(id string, w *worker) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.live[id] != w {
		return
	}
	task, _ := c.queue.Find(id)
	c.killLocked(id)
	if task != nil && task.IsRunning() {
		c.logger.Warn("task timed out", "task_id", id, "timeout", c.taskTimeout)
		c.finishLocked(task, models.TaskStatusFailed, fmt.Sprintf("task exceeded timeout of %s", c.taskTimeout))
	}
}

// killLocked removes the live process of a task from the registry and asks
// it to terminate. Its eventual exit is then stale, but the process keeps
// its slot until that exit arrives.
func (c *Controller) killLocked(id string) {
	w, ok := c.live[id]
	if !ok {
		return
	}
	delete(c.live, id)
	c.dying[w] = struct{}{}
	w.stop()
	if err := w.proc.Kill(); err != nil {
		c.logger.Warn("failed to kill worker", "task_id", id, "err", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
