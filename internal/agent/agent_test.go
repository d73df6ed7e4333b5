package agent

import (
	"bytes"
	"context"
	"os"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerEnvDropsBlockedVariables(t *testing.T) {
	base := []string{
		"HOME=/home/dev",
		"CLAUDECODE=1",
		"CLAUDE_CODE_ENTRYPOINT=cli",
		"PATH=/usr/bin",
		"TERM=dumb",
	}

	env := WorkerEnv(base, BlockedEnv)

	assert.Contains(t, env, "HOME=/home/dev")
	assert.Contains(t, env, "PATH=/usr/bin")
	assert.Contains(t, env, "TERM=xterm-256color")
	assert.NotContains(t, env, "TERM=dumb")
	for _, kv := range env {
		assert.False(t, strings.HasPrefix(kv, "CLAUDECODE="), kv)
		assert.False(t, strings.HasPrefix(kv, "CLAUDE_CODE_ENTRYPOINT="), kv)
	}
}

func TestWorkerEnvKeepsLookalikes(t *testing.T) {
	env := WorkerEnv([]string{"CLAUDECODE_HOME=/x"}, BlockedEnv)
	assert.Contains(t, env, "CLAUDECODE_HOME=/x")
}

func TestDefaultShell(t *testing.T) {
	t.Setenv("SHELL", "/bin/zsh")
	assert.Equal(t, "/bin/zsh", DefaultShell())

	t.Setenv("SHELL", "")
	assert.Equal(t, "/bin/bash", DefaultShell())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func drain(proc Process, out *syncBuffer) {
	buf := make([]byte, 1024)
	for {
		n, err := proc.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func TestPTYSpawnerRunsShell(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pseudo-terminals are unix only")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	dir := t.TempDir()
	spawner := &PTYSpawner{Shell: "/bin/sh"}
	proc, err := spawner.Spawn(context.Background(), SpawnOptions{
		Dir: dir,
		Env: WorkerEnv(os.Environ(), BlockedEnv),
	})
	require.NoError(t, err)
	defer proc.Close()
	assert.NotZero(t, proc.PID())

	out := &syncBuffer{}
	go drain(proc, out)

	_, err = proc.Write([]byte("echo agentq-$((40+2))\r"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "agentq-42")
	}, 5*time.Second, 20*time.Millisecond)

	_, err = proc.Write([]byte("exit 3\r"))
	require.NoError(t, err)

	code, err := proc.Wait()
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestPTYSpawnerKill(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pseudo-terminals are unix only")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	spawner := &PTYSpawner{Shell: "/bin/sh", KillGrace: 200 * time.Millisecond}
	proc, err := spawner.Spawn(context.Background(), SpawnOptions{Dir: t.TempDir(), Env: os.Environ()})
	require.NoError(t, err)
	defer proc.Close()
	go drain(proc, &syncBuffer{})

	require.NoError(t, proc.Kill())

	done := make(chan int, 1)
	go func() {
		code, _ := proc.Wait()
		done <- code
	}()

	select {
	case code := <-done:
		assert.NotEqual(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit after Kill")
	}
}

func TestPTYSpawnerBadDirectory(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("pseudo-terminals are unix only")
	}
	spawner := &PTYSpawner{Shell: "/bin/sh"}
	_, err := spawner.Spawn(context.Background(), SpawnOptions{Dir: "/definitely/not/here", Env: os.Environ()})
	assert.Error(t, err)
}

func TestPTYSpawnerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&PTYSpawner{}).Spawn(ctx, SpawnOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
