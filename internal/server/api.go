package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sevir/agentq/internal/queue"
	"github.com/sevir/agentq/pkg/models"
)

const defaultNameLen = 40

var _ Queue = (*queue.Controller)(nil)

type apiError struct{ msg string }

func (e *apiError) Error() string { return e.msg }

func badRequest(msg string) error { return &apiError{msg: msg} }

// writeError maps queue errors to HTTP statuses. The body always carries
// success=false and the error text.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var bad *apiError
	switch {
	case errors.As(err, &bad), errors.Is(err, queue.ErrInvalidPriority):
		status = http.StatusBadRequest
	case errors.Is(err, queue.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, queue.ErrInvalidTransition):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  "healthy",
		"queue":   s.queue.Status(),
	})
}

func (s *Server) handleAPIVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"version": s.version,
		"commit":  s.commit,
	})
}

func (s *Server) handleAPITasksList(c *gin.Context) {
	statuses, err := parseStatusQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}

	tasks := s.queue.List()
	items := make([]models.TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		if len(statuses) > 0 && !containsStatus(statuses, t.Status) {
			continue
		}
		items = append(items, t.ToSummary())
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "tasks": items})
}

func (s *Server) handleAPITaskAdd(c *gin.Context) {
	var req models.AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid request body: "+err.Error()))
		return
	}

	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		writeError(c, badRequest("prompt is required"))
		return
	}
	priority, err := models.ParsePriority(req.Priority)
	if err != nil {
		writeError(c, badRequest(err.Error()))
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = promptExcerpt(req.Prompt, defaultNameLen)
	}

	task := s.queue.Add(name, req.Prompt, strings.TrimSpace(req.ProjectPath), priority)
	c.JSON(http.StatusCreated, gin.H{"success": true, "task": task.ToSummary()})
}

func (s *Server) handleAPITaskGet(c *gin.Context) {
	task, err := s.queue.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "task": task.ToSummary()})
}

func (s *Server) handleAPITaskRemove(c *gin.Context) {
	if err := s.queue.Remove(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleAPITaskCancel(c *gin.Context) {
	if err := s.queue.Cancel(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleAPITaskRetry(c *gin.Context) {
	if err := s.queue.Retry(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleAPITaskPriority(c *gin.Context) {
	var req struct {
		Priority string `json:"priority"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid request body: "+err.Error()))
		return
	}
	if err := s.queue.SetPriority(c.Param("id"), models.Priority(strings.ToLower(strings.TrimSpace(req.Priority)))); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleAPITaskPosition(c *gin.Context) {
	var req struct {
		Index *int `json:"index"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid request body: "+err.Error()))
		return
	}
	if req.Index == nil {
		writeError(c, badRequest("index is required"))
		return
	}
	if err := s.queue.Reorder(c.Param("id"), *req.Index); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleAPITaskOutput(c *gin.Context) {
	tail := 0
	if raw := strings.TrimSpace(c.Query("tail")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(c, badRequest("invalid tail"))
			return
		}
		tail = v
	}

	chunks, err := s.queue.Output(c.Param("id"), tail)
	if err != nil {
		writeError(c, err)
		return
	}
	if chunks == nil {
		chunks = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "output": chunks})
}

func (s *Server) handleAPIQueueStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "status": s.queue.Status()})
}

func (s *Server) handleAPIQueueStart(c *gin.Context) {
	s.queue.StartQueue()
	c.JSON(http.StatusOK, gin.H{"success": true, "status": s.queue.Status()})
}

func (s *Server) handleAPIQueuePause(c *gin.Context) {
	s.queue.PauseQueue()
	c.JSON(http.StatusOK, gin.H{"success": true, "status": s.queue.Status()})
}

func (s *Server) handleAPIQueueConcurrency(c *gin.Context) {
	var req struct {
		MaxConcurrent *int `json:"max_concurrent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, badRequest("invalid request body: "+err.Error()))
		return
	}
	if req.MaxConcurrent == nil {
		writeError(c, badRequest("max_concurrent is required"))
		return
	}
	n := s.queue.SetMaxConcurrent(*req.MaxConcurrent)
	c.JSON(http.StatusOK, gin.H{"success": true, "max_concurrent": n})
}

func (s *Server) handleAPIQueueClear(c *gin.Context) {
	removed := s.queue.ClearCompleted()
	c.JSON(http.StatusOK, gin.H{"success": true, "removed": removed})
}

func parseStatusQuery(c *gin.Context) ([]models.TaskStatus, error) {
	raw := c.QueryArray("status")
	if len(raw) == 1 && strings.Contains(raw[0], ",") {
		raw = strings.Split(raw[0], ",")
	}

	var statuses []models.TaskStatus
	for _, part := range raw {
		st := models.TaskStatus(strings.TrimSpace(part))
		if st == "" {
			continue
		}
		if !models.ValidStatus(st) {
			return nil, badRequest("invalid status: " + string(st))
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func containsStatus(list []models.TaskStatus, st models.TaskStatus) bool {
	for _, s := range list {
		if s == st {
			return true
		}
	}
	return false
}

func promptExcerpt(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
