package queue

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sevir/agentq/internal/agent"
	"github.com/sevir/agentq/internal/notify"
	"github.com/sevir/agentq/internal/settings"
	"github.com/sevir/agentq/internal/store"
	"github.com/sevir/agentq/pkg/models"
)

type fakeProcess struct {
	pid  int
	opts agent.SpawnOptions

	outR *io.PipeReader
	outW *io.PipeWriter

	mu    sync.Mutex
	input strings.Builder

	done     chan struct{}
	exitOnce sync.Once
	code     int
	killed   atomic.Bool

	// ignoreKill keeps the process alive after Kill, like a shell still
	// inside its hangup grace period.
	ignoreKill atomic.Bool
}

func newFakeProcess(pid int, opts agent.SpawnOptions) *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{pid: pid, opts: opts, outR: r, outW: w, done: make(chan struct{})}
}

func (p *fakeProcess) Read(b []byte) (int, error) { return p.outR.Read(b) }

func (p *fakeProcess) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.Write(b)
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Wait() (int, error) {
	<-p.done
	return p.code, nil
}

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	if !p.ignoreKill.Load() {
		p.exit(-1)
	}
	return nil
}

func (p *fakeProcess) Close() error {
	p.outW.Close()
	return p.outR.Close()
}

func (p *fakeProcess) exit(code int) {
	p.exitOnce.Do(func() {
		p.code = code
		close(p.done)
	})
}

func (p *fakeProcess) emit(s string) {
	_, _ = p.outW.Write([]byte(s))
}

func (p *fakeProcess) typed() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.String()
}

// fakeSpawner hands out fake processes keyed by working directory, which the
// tests set to the task name.
type fakeSpawner struct {
	mu    sync.Mutex
	procs map[string]*fakeProcess
	order []string
	err   error
	next  int
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{procs: make(map[string]*fakeProcess), next: 1000}
}

func (s *fakeSpawner) Spawn(ctx context.Context, opts agent.SpawnOptions) (agent.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	s.next++
	p := newFakeProcess(s.next, opts)
	s.procs[opts.Dir] = p
	s.order = append(s.order, opts.Dir)
	return p, nil
}

func (s *fakeSpawner) proc(dir string) *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[dir]
}

func (s *fakeSpawner) started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *fakeSpawner) failWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type failingStore struct {
	saves atomic.Int32
}

func (s *failingStore) Load() (*models.Queue, error) {
	return models.NewQueue(models.DefaultMaxConcurrent), nil
}

func (s *failingStore) Save(*models.Queue) error {
	s.saves.Add(1)
	return errors.New("disk full")
}

type harness struct {
	ctrl    *Controller
	spawner *fakeSpawner
	events  *notify.Recorder
	path    string
}

func newHarness(t *testing.T, mutate ...func(cfg *Config)) *harness {
	t.Helper()

	path := filepath.Join(t.TempDir(), "queue.json")
	fs, err := store.NewFileStore(path)
	require.NoError(t, err)

	h := &harness{spawner: newFakeSpawner(), events: &notify.Recorder{}, path: path}
	cfg := Config{
		Store:        fs,
		Spawner:      h.spawner,
		Settings:     settings.Static("claude"),
		Sink:         h.events,
		DrainTimeout: 10 * time.Millisecond,
		Environ:      func() []string { return []string{"PATH=/usr/bin", "CLAUDECODE=1"} },
	}
	for _, m := range mutate {
		m(&cfg)
	}

	h.ctrl, err = New(cfg)
	require.NoError(t, err)
	t.Cleanup(h.ctrl.Shutdown)
	return h
}

// add queues a task whose worker will be spawned in a directory named after it.
func (h *harness) add(name string, priority models.Priority) *models.Task {
	return h.ctrl.Add(name, "prompt for "+name, name, priority)
}

func (h *harness) status(t *testing.T, id string) models.TaskStatus {
	t.Helper()
	task, err := h.ctrl.Get(id)
	require.NoError(t, err)
	return task.Status
}

func (h *harness) waitStatus(t *testing.T, id string, want models.TaskStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		task, err := h.ctrl.Get(id)
		return err == nil && task.Status == want
	}, 2*time.Second, 5*time.Millisecond, "task %s never reached %s", id, want)
}

func (h *harness) waitProc(t *testing.T, dir string) *fakeProcess {
	t.Helper()
	var p *fakeProcess
	require.Eventually(t, func() bool {
		p = h.spawner.proc(dir)
		return p != nil
	}, 2*time.Second, 5*time.Millisecond, "worker for %s never spawned", dir)
	return p
}
