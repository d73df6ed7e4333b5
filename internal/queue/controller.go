// Package queue owns the task list and runs queued tasks on interactive
// workers with a bounded level of concurrency.
package queue

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/sevir/agentq/internal/agent"
	"github.com/sevir/agentq/internal/notify"
	"github.com/sevir/agentq/internal/settings"
	"github.com/sevir/agentq/internal/store"
	"github.com/sevir/agentq/pkg/models"
)

const (
	DefaultSettleDelay   = time.Second
	DefaultPromptDelay   = 3 * time.Second
	DefaultFlushInterval = 5 * time.Second
	DefaultDrainTimeout  = 250 * time.Millisecond
	DefaultCols          = 120
	DefaultRows          = 40
)

// Config holds controller configuration. Store and Spawner are required.
type Config struct {
	Store    store.Store
	Spawner  agent.Spawner
	Settings settings.Provider
	Sink     notify.Sink
	Logger   *log.Logger

	Cols uint16
	Rows uint16

	// SettleDelay is the pause between spawning the shell and typing the
	// CLI binary name. Zero types it immediately.
	SettleDelay time.Duration
	// PromptDelay is the pause between launching the CLI and typing the prompt.
	PromptDelay time.Duration
	// ReadyMarker, when set, lets the prompt be typed as soon as the CLI
	// prints it instead of waiting out the whole PromptDelay.
	ReadyMarker string
	// TaskTimeout fails tasks that run longer. Zero disables it.
	TaskTimeout time.Duration

	FlushInterval time.Duration
	DrainTimeout  time.Duration

	BlockedEnv []string
	Environ    func() []string
	Now        func() time.Time
}

// Controller is the single writer of the queue. Every mutation of the task
// list and of the live process registry happens under mu.
type Controller struct {
	mu    sync.Mutex
	queue *models.Queue
	live  map[string]*worker
	// dying holds killed workers until their exit arrives. They still
	// occupy a slot.
	dying map[*worker]struct{}
	dirty bool

	closed bool

	store    store.Store
	spawner  agent.Spawner
	settings settings.Provider
	sink     notify.Sink
	logger   *log.Logger

	cols, rows    uint16
	settleDelay   time.Duration
	promptDelay   time.Duration
	readyMarker   string
	taskTimeout   time.Duration
	flushInterval time.Duration
	drainTimeout  time.Duration
	blockedEnv    []string
	environ       func() []string
	now           func() time.Time

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New loads the persisted queue and starts the background flusher. A queue
// that was running when it was saved resumes dispatching immediately.
func New(cfg Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("queue: store is required")
	}
	if cfg.Spawner == nil {
		return nil, fmt.Errorf("queue: spawner is required")
	}

	if cfg.Settings == nil {
		cfg.Settings = settings.Static(settings.DefaultCLIBinary)
	}
	if cfg.Sink == nil {
		cfg.Sink = notify.Discard{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	if cfg.Cols == 0 {
		cfg.Cols = DefaultCols
	}
	if cfg.Rows == 0 {
		cfg.Rows = DefaultRows
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.BlockedEnv == nil {
		cfg.BlockedEnv = agent.BlockedEnv
	}
	if cfg.Environ == nil {
		cfg.Environ = os.Environ
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	q, err := cfg.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		queue:         q,
		live:          make(map[string]*worker),
		dying:         make(map[*worker]struct{}),
		store:         cfg.Store,
		spawner:       cfg.Spawner,
		settings:      cfg.Settings,
		sink:          cfg.Sink,
		logger:        cfg.Logger,
		cols:          cfg.Cols,
		rows:          cfg.Rows,
		settleDelay:   cfg.SettleDelay,
		promptDelay:   cfg.PromptDelay,
		readyMarker:   cfg.ReadyMarker,
		taskTimeout:   cfg.TaskTimeout,
		flushInterval: cfg.FlushInterval,
		drainTimeout:  cfg.DrainTimeout,
		blockedEnv:    cfg.BlockedEnv,
		environ:       cfg.Environ,
		now:           cfg.Now,
		ctx:           ctx,
		cancel:        cancel,
	}

	c.wg.Add(1)
	go c.flushLoop()

	c.mu.Lock()
	c.dispatchLocked()
	c.mu.Unlock()

	return c, nil
}

// Add appends a new queued task and returns a snapshot of it. An empty or
// unknown priority becomes normal.
func (c *Controller) Add(name, prompt, projectPath string, priority models.Priority) *models.Task {
	priority, err := models.ParsePriority(string(priority))
	if err != nil {
		priority = models.PriorityNormal
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	task := &models.Task{
		ID:          c.newIDLocked(),
		Name:        name,
		Prompt:      prompt,
		ProjectPath: projectPath,
		Status:      models.TaskStatusQueued,
		Priority:    priority,
		CreatedAt:   c.now(),
		Output:      models.NewOutputBuffer(models.MaxOutputChunks),
	}
	c.queue.Tasks = append(c.queue.Tasks, task)

	c.logTaskReceived(task)
	c.persistLocked()
	c.notifyTaskLocked(notify.EventTaskCreated, task)
	c.dispatchLocked()

	return task.Clone()
}

func (c *Controller) newIDLocked() string {
	for {
		id := "task-" + uuid.New().String()[:8]
		if t, _ := c.queue.Find(id); t == nil {
			return id
		}
	}
}

// Remove deletes a task, killing its worker first if it is running.
func (c *Controller) Remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, idx := c.queue.Find(id)
	if task == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	c.killLocked(id)
	last := len(c.queue.Tasks) - 1
	copy(c.queue.Tasks[idx:], c.queue.Tasks[idx+1:])
	c.queue.Tasks[last] = nil
	c.queue.Tasks = c.queue.Tasks[:last]

	c.logger.Info("task_event=removed", "task_id", id, "status", task.Status)
	c.persistLocked()
	c.sink.Notify(notify.Event{Type: notify.EventTaskRemoved, TaskID: id})
	c.notifyQueueLocked()
	return nil
}

// Cancel stops a running or queued task and marks it cancelled. Tasks that
// already finished cannot be cancelled.
func (c *Controller) Cancel(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, _ := c.queue.Find(id)
	if task == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if task.IsTerminal() {
		return fmt.Errorf("%w: task %s is already %s", ErrInvalidTransition, id, task.Status)
	}

	c.killLocked(id)
	c.finishLocked(task, models.TaskStatusCancelled, "")
	return nil
}

// Retry puts a failed or cancelled task back in the queue with its run state
// and output cleared.
func (c *Controller) Retry(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, _ := c.queue.Find(id)
	if task == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if !task.CanRetry() {
		return fmt.Errorf("%w: cannot retry task %s in status %s", ErrInvalidTransition, id, task.Status)
	}

	task.ResetForRetry()

	c.logger.Info("task_event=retried", "task_id", id)
	c.persistLocked()
	c.notifyTaskLocked(notify.EventTaskUpdated, task)
	c.dispatchLocked()
	return nil
}

// StartQueue enables dispatching. Calling it on a running queue is a no-op
// apart from filling any free slots.
func (c *Controller) StartQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.queue.IsRunning {
		c.queue.IsRunning = true
		c.logger.Info("queue started", "max_concurrent", c.queue.MaxConcurrent)
		c.persistLocked()
		c.notifyQueueLocked()
	}
	c.dispatchLocked()
}

// PauseQueue stops new tasks from being dispatched. Running tasks continue.
func (c *Controller) PauseQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.queue.IsRunning {
		return
	}
	c.queue.IsRunning = false
	c.logger.Info("queue paused", "running", c.queue.CountStatus(models.TaskStatusRunning))
	c.persistLocked()
	c.notifyQueueLocked()
}

// SetMaxConcurrent changes the concurrency limit, clamped to [1,5], and
// returns the value in effect. Lowering it never kills running tasks; the
// queue drains down and nothing new starts until fewer than n are running.
func (c *Controller) SetMaxConcurrent(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue.MaxConcurrent = models.ClampConcurrency(n)
	c.logger.Info("concurrency changed", "requested", n, "max_concurrent", c.queue.MaxConcurrent)
	c.persistLocked()
	c.notifyQueueLocked()
	c.dispatchLocked()
	return c.queue.MaxConcurrent
}

// SetPriority changes a task's priority. It only affects future dispatch.
func (c *Controller) SetPriority(id string, priority models.Priority) error {
	if priority == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPriority)
	}
	if _, err := models.ParsePriority(string(priority)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, priority)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	task, _ := c.queue.Find(id)
	if task == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	task.Priority = priority
	c.persistLocked()
	c.notifyTaskLocked(notify.EventTaskUpdated, task)
	return nil
}

// Reorder moves a queued task to newIndex in the full task list. The index
// is clamped to the list bounds.
func (c *Controller) Reorder(id string, newIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, idx := c.queue.Find(id)
	if task == nil {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if !task.IsQueued() {
		return fmt.Errorf("%w: only queued tasks can be reordered, %s is %s", ErrInvalidTransition, id, task.Status)
	}

	tasks := append(c.queue.Tasks[:idx:idx], c.queue.Tasks[idx+1:]...)
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(tasks) {
		newIndex = len(tasks)
	}

	reordered := make([]*models.Task, 0, len(tasks)+1)
	reordered = append(reordered, tasks[:newIndex]...)
	reordered = append(reordered, task)
	reordered = append(reordered, tasks[newIndex:]...)
	c.queue.Tasks = reordered

	c.persistLocked()
	c.notifyQueueLocked()
	return nil
}

// ClearCompleted removes every finished task (completed, failed or
// cancelled) and returns how many were removed.
func (c *Controller) ClearCompleted() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.queue.Tasks[:0]
	var removed []string
	for _, t := range c.queue.Tasks {
		if t.IsTerminal() {
			removed = append(removed, t.ID)
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(c.queue.Tasks); i++ {
		c.queue.Tasks[i] = nil
	}
	c.queue.Tasks = kept

	if len(removed) == 0 {
		return 0
	}

	c.logger.Info("cleared completed tasks", "count", len(removed))
	c.persistLocked()
	for _, id := range removed {
		c.sink.Notify(notify.Event{Type: notify.EventTaskRemoved, TaskID: id})
	}
	c.notifyQueueLocked()
	return len(removed)
}

// List returns snapshots of every task in list order.
func (c *Controller) List() []*models.Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*models.Task, 0, len(c.queue.Tasks))
	for _, t := range c.queue.Tasks {
		out = append(out, t.Clone())
	}
	return out
}

// Get returns a snapshot of one task.
func (c *Controller) Get(id string) (*models.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, _ := c.queue.Find(id)
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return task.Clone(), nil
}

// Output returns the retained output chunks of a task, oldest first. A
// positive tail limits the result to the newest chunks.
func (c *Controller) Output(id string, tail int) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	task, _ := c.queue.Find(id)
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if tail > 0 {
		return task.Output.Tail(tail), nil
	}
	return task.Output.Chunks(), nil
}

// Status returns the queue counters.
func (c *Controller) Status() models.QueueStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Status()
}

// Shutdown kills every live worker, stops the flusher and writes the final
// snapshot. Tasks still marked running are recovered to queued on the next
// load.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id := range c.live {
		c.killLocked(id)
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Save(c.queue); err != nil {
		c.logger.Error("failed to save queue on shutdown", "err", err)
	}
}

func (c *Controller) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.dirty && !c.closed {
				c.persistLocked()
			}
			c.mu.Unlock()
		}
	}
}

// persistLocked saves the queue. Failures are logged and the in-memory state
// stays authoritative; the next mutation or flush tries again.
func (c *Controller) persistLocked() {
	if err := c.store.Save(c.queue); err != nil {
		c.dirty = true
		c.logger.Error("failed to persist queue", "err", err)
		return
	}
	c.dirty = false
}

func (c *Controller) notifyTaskLocked(typ notify.EventType, task *models.Task) {
	summary := task.ToSummary()
	c.sink.Notify(notify.Event{Type: typ, TaskID: task.ID, Task: &summary})
	c.notifyQueueLocked()
}

func (c *Controller) notifyQueueLocked() {
	status := c.queue.Status()
	c.sink.Notify(notify.Event{Type: notify.EventQueueUpdated, Queue: &status})
}

// finishLocked moves a task into a terminal status and publishes the change.
func (c *Controller) finishLocked(task *models.Task, status models.TaskStatus, errMsg string) {
	if task.IsRunning() {
		now := c.now()
		task.CompletedAt = &now
	}
	task.Status = status
	task.Error = errMsg

	c.logTaskFinished(task)
	c.persistLocked()
	c.notifyTaskLocked(notify.EventTaskUpdated, task)
}
