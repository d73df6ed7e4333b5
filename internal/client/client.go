// Package client talks to a running agentq server over its JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sevir/agentq/pkg/models"
)

// Error is a failed API call. Status is the HTTP status code.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client is an agentq API client.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type envelope struct {
	Success       bool                 `json:"success"`
	Error         string               `json:"error,omitempty"`
	Task          *models.TaskSummary  `json:"task,omitempty"`
	Tasks         []models.TaskSummary `json:"tasks,omitempty"`
	Output        []string             `json:"output,omitempty"`
	Status        *models.QueueStatus  `json:"status,omitempty"`
	MaxConcurrent int                  `json:"max_concurrent,omitempty"`
	Removed       int                  `json:"removed,omitempty"`
	Version       string               `json:"version,omitempty"`
	Commit        string               `json:"commit,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("is the agentq server running? %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &Error{Status: resp.StatusCode, Message: "invalid response: " + err.Error()}
	}
	if resp.StatusCode >= 400 || !env.Success {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &Error{Status: resp.StatusCode, Message: msg}
	}
	return &env, nil
}

// List returns the tasks in queue order, optionally filtered by status.
func (c *Client) List(ctx context.Context, statuses ...models.TaskStatus) ([]models.TaskSummary, error) {
	path := "/api/tasks"
	if len(statuses) > 0 {
		q := url.Values{}
		for _, st := range statuses {
			q.Add("status", string(st))
		}
		path += "?" + q.Encode()
	}
	env, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return env.Tasks, nil
}

// Get returns one task.
func (c *Client) Get(ctx context.Context, id string) (*models.TaskSummary, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return env.Task, nil
}

// Add enqueues a task.
func (c *Client) Add(ctx context.Context, req models.AddRequest) (*models.TaskSummary, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/tasks", req)
	if err != nil {
		return nil, err
	}
	return env.Task, nil
}

// Remove deletes a task.
func (c *Client) Remove(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil)
	return err
}

// Cancel cancels a task.
func (c *Client) Cancel(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/cancel", nil)
	return err
}

// Retry requeues a failed or cancelled task.
func (c *Client) Retry(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(id)+"/retry", nil)
	return err
}

// SetPriority changes a task's priority.
func (c *Client) SetPriority(ctx context.Context, id, priority string) error {
	_, err := c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(id)+"/priority", map[string]string{"priority": priority})
	return err
}

// Reorder moves a queued task to index.
func (c *Client) Reorder(ctx context.Context, id string, index int) error {
	_, err := c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(id)+"/position", map[string]int{"index": index})
	return err
}

// Output returns a task's output chunks. A positive tail limits the result
// to the newest chunks.
func (c *Client) Output(ctx context.Context, id string, tail int) ([]string, error) {
	path := "/api/tasks/" + url.PathEscape(id) + "/output"
	if tail > 0 {
		path += "?tail=" + strconv.Itoa(tail)
	}
	env, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return env.Output, nil
}

// Status returns the queue counters.
func (c *Client) Status(ctx context.Context) (*models.QueueStatus, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/queue/status", nil)
	if err != nil {
		return nil, err
	}
	return env.Status, nil
}

// Start starts the queue.
func (c *Client) Start(ctx context.Context) (*models.QueueStatus, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/queue/start", nil)
	if err != nil {
		return nil, err
	}
	return env.Status, nil
}

// Pause pauses the queue.
func (c *Client) Pause(ctx context.Context) (*models.QueueStatus, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/queue/pause", nil)
	if err != nil {
		return nil, err
	}
	return env.Status, nil
}

// SetConcurrency changes the concurrency limit and returns the clamped value.
func (c *Client) SetConcurrency(ctx context.Context, n int) (int, error) {
	env, err := c.do(ctx, http.MethodPut, "/api/queue/concurrency", map[string]int{"max_concurrent": n})
	if err != nil {
		return 0, err
	}
	return env.MaxConcurrent, nil
}

// ClearCompleted removes completed tasks and returns how many were removed.
func (c *Client) ClearCompleted(ctx context.Context) (int, error) {
	env, err := c.do(ctx, http.MethodPost, "/api/queue/clear", nil)
	if err != nil {
		return 0, err
	}
	return env.Removed, nil
}

// Version returns the server version and commit.
func (c *Client) Version(ctx context.Context) (string, string, error) {
	env, err := c.do(ctx, http.MethodGet, "/api/version", nil)
	if err != nil {
		return "", "", err
	}
	return env.Version, env.Commit, nil
}
