// Package server exposes the task queue over HTTP: a JSON API for every
// queue operation and a Server-Sent Events stream of queue notifications.
package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sevir/agentq/internal/notify"
	"github.com/sevir/agentq/pkg/models"
)

// Queue is the operation surface the server drives. *queue.Controller
// implements it.
type Queue interface {
	Add(name, prompt, projectPath string, priority models.Priority) *models.Task
	Remove(id string) error
	Cancel(id string) error
	Retry(id string) error
	StartQueue()
	PauseQueue()
	SetMaxConcurrent(n int) int
	SetPriority(id string, priority models.Priority) error
	Reorder(id string, index int) error
	ClearCompleted() int
	List() []*models.Task
	Get(id string) (*models.Task, error)
	Output(id string, tail int) ([]string, error)
	Status() models.QueueStatus
}

// Server is the HTTP front end of the queue.
type Server struct {
	queue      Queue
	hub        *notify.Hub
	addr       string
	version    string
	commit     string
	logger     *log.Logger
	heartbeat  time.Duration
	httpServer *http.Server

	done      chan struct{}
	closeOnce sync.Once
}

// Config holds server configuration.
type Config struct {
	Addr    string
	Queue   Queue
	Hub     *notify.Hub
	Version string
	Commit  string
	Logger  *log.Logger
	// Heartbeat is the interval of ping events on the event stream.
	Heartbeat time.Duration
}

// New creates a new server.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard)
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}

	s := &Server{
		queue:     cfg.Queue,
		hub:       cfg.Hub,
		addr:      cfg.Addr,
		version:   cfg.Version,
		commit:    cfg.Commit,
		logger:    cfg.Logger,
		heartbeat: cfg.Heartbeat,
		done:      make(chan struct{}),
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.corsMiddleware(s.newGinEngine()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
	}

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", "addr", s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown ends open event streams and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.done) })
	return s.httpServer.Shutdown(ctx)
}
