package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevir/agentq/internal/agent"
	"github.com/sevir/agentq/internal/notify"
	"github.com/sevir/agentq/internal/queue"
	"github.com/sevir/agentq/internal/store"
)

// idleProcess is a worker that prints nothing and runs until killed.
type idleProcess struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	done chan struct{}
	once sync.Once
}

func (p *idleProcess) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *idleProcess) Write(b []byte) (int, error) { return len(b), nil }
func (p *idleProcess) PID() int                    { return 4242 }

func (p *idleProcess) Wait() (int, error) {
	<-p.done
	return -1, nil
}

func (p *idleProcess) Kill() error {
	p.once.Do(func() { close(p.done) })
	return nil
}

func (p *idleProcess) Close() error {
	p.w.Close()
	return p.r.Close()
}

type idleSpawner struct{}

func (idleSpawner) Spawn(ctx context.Context, opts agent.SpawnOptions) (agent.Process, error) {
	r, w := io.Pipe()
	return &idleProcess{r: r, w: w, done: make(chan struct{})}, nil
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	fs, err := store.NewFileStore(filepath.Join(t.TempDir(), "queue.json"))
	require.NoError(t, err)

	hub := notify.NewHub(64)
	ctrl, err := queue.New(queue.Config{
		Store:        fs,
		Spawner:      idleSpawner{},
		Sink:         hub,
		DrainTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Shutdown)

	return New(Config{
		Addr:      ":0",
		Queue:     ctrl,
		Hub:       hub,
		Version:   "1.2.3",
		Commit:    "abc123",
		Heartbeat: time.Hour,
	})
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(v)
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	}
	return w, resp
}

func TestHealthEndpoint(t *testing.T) {
	srv := setupTestServer(t)

	w, resp := doJSON(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", resp["status"])

	q, ok := resp["queue"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), q["max_concurrent"])
	assert.Equal(t, false, q["is_running"])
}

func TestVersionEndpoint(t *testing.T) {
	srv := setupTestServer(t)

	w, resp := doJSON(t, srv, http.MethodGet, "/api/version", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.2.3", resp["version"])
	assert.Equal(t, "abc123", resp["commit"])
}

func TestCORSPreflight(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestUnknownRoute(t *testing.T) {
	srv := setupTestServer(t)

	w, resp := doJSON(t, srv, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, resp["success"])
}

func TestEventStream(t *testing.T) {
	srv := setupTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	names := make(chan string, 32)
	go func() {
		defer close(names)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event:") {
				names <- strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
		}
	}()

	waitFor := func(want string) {
		t.Helper()
		timeout := time.After(3 * time.Second)
		for {
			select {
			case name, ok := <-names:
				require.True(t, ok, "stream closed before %s", want)
				if name == want {
					return
				}
			case <-timeout:
				t.Fatalf("no %s event", want)
			}
		}
	}

	waitFor("connected")

	body := strings.NewReader(`{"name":"streamed","prompt":"hello"}`)
	post, err := http.Post(ts.URL+"/api/tasks", "application/json", body)
	require.NoError(t, err)
	post.Body.Close()
	require.Equal(t, http.StatusCreated, post.StatusCode)

	waitFor(string(notify.EventTaskCreated))
	waitFor(string(notify.EventQueueUpdated))

	cancel()
	require.NoError(t, srv.Shutdown(context.Background()))
}
