// Package store provides queue persistence and retrieval.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/sevir/agentq/pkg/models"
)

// Store defines the interface for queue storage.
type Store interface {
	Load() (*models.Queue, error)
	Save(q *models.Queue) error
}

// FileStore implements Store using a single JSON document on disk.
type FileStore struct {
	path          string
	logger        *log.Logger
	maxConcurrent int
	mu            sync.Mutex
}

// Option configures a FileStore.
type Option func(fs *FileStore)

// WithLogger sets the logger used for recovery and corruption messages.
func WithLogger(logger *log.Logger) Option {
	return func(fs *FileStore) {
		fs.logger = logger
	}
}

// WithDefaultMaxConcurrent sets the concurrency limit used when no queue document exists yet.
func WithDefaultMaxConcurrent(n int) Option {
	return func(fs *FileStore) {
		fs.maxConcurrent = models.ClampConcurrency(n)
	}
}

// NewFileStore creates a new file-based store.
func NewFileStore(path string, opts ...Option) (*FileStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	fs := &FileStore{
		path:          path,
		logger:        log.New(io.Discard),
		maxConcurrent: models.DefaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs, nil
}

// Path returns the location of the queue document.
func (fs *FileStore) Path() string {
	return fs.path
}

// Load reads the queue document. A missing or malformed document yields an
// empty queue; a malformed one is moved aside so the next save does not
// destroy it. Tasks persisted as running are reset to queued because their
// processes died with the previous run.
func (fs *FileStore) Load() (*models.Queue, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.NewQueue(fs.maxConcurrent), nil
		}
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}

	if len(data) == 0 {
		return models.NewQueue(fs.maxConcurrent), nil
	}

	var q models.Queue
	if err := json.Unmarshal(data, &q); err != nil {
		backup := fs.path + ".corrupt"
		if renameErr := os.Rename(fs.path, backup); renameErr != nil {
			fs.logger.Error("failed to move corrupt store file aside", "path", fs.path, "err", renameErr)
		}
		fs.logger.Warn("store file is malformed, starting with an empty queue", "path", fs.path, "backup", backup, "err", err)
		return models.NewQueue(fs.maxConcurrent), nil
	}

	fs.normalize(&q)
	return &q, nil
}

func (fs *FileStore) normalize(q *models.Queue) {
	if q.MaxConcurrent == 0 {
		q.MaxConcurrent = fs.maxConcurrent
	}
	q.MaxConcurrent = models.ClampConcurrency(q.MaxConcurrent)

	seen := make(map[string]bool, len(q.Tasks))
	tasks := make([]*models.Task, 0, len(q.Tasks))
	for _, task := range q.Tasks {
		if task == nil || task.ID == "" || seen[task.ID] {
			continue
		}
		seen[task.ID] = true

		if task.Output == nil {
			task.Output = models.NewOutputBuffer(models.MaxOutputChunks)
		}
		if p, err := models.ParsePriority(string(task.Priority)); err != nil {
			fs.logger.Warn("unknown task priority, using normal", "task_id", task.ID, "priority", task.Priority)
			task.Priority = models.PriorityNormal
		} else {
			task.Priority = p
		}
		if !models.ValidStatus(task.Status) {
			task.Status = models.TaskStatusQueued
		}
		if task.Status == models.TaskStatusRunning {
			task.Status = models.TaskStatusQueued
			task.StartedAt = nil
			task.LastActivity = nil
			task.PID = 0
			fs.logger.Info("task_event=recovered", "task_id", task.ID, "status", task.Status)
		}
		tasks = append(tasks, task)
	}
	q.Tasks = tasks
}

// Save atomically replaces the queue document with the given state.
func (fs *FileStore) Save(q *models.Queue) error {
	data, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	tmpPath := fs.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, fs.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
