// Package agent spawns and manages the interactive worker processes that run queued tasks.
package agent

import (
	"context"
	"io"
)

// SpawnOptions describes the worker process to start.
type SpawnOptions struct {
	// Dir is the working directory of the process.
	Dir string
	// Env is the complete environment of the process.
	Env []string
	// Cols and Rows size the pseudo-terminal.
	Cols uint16
	Rows uint16
}

// Process is a live interactive worker process.
//
// Read streams the process output until the process goes away, at which point
// it returns an error (io.EOF or the terminal's EIO). Write sends raw input as
// if typed on a keyboard.
type Process interface {
	io.ReadWriter

	// PID returns the operating system process id.
	PID() int

	// Wait blocks until the process exits and returns its exit code.
	// A process killed by a signal reports -1.
	Wait() (int, error)

	// Kill asks the process to terminate. It does not wait for the exit.
	Kill() error

	// Close releases the terminal. Pending reads return an error afterwards.
	Close() error
}

// Spawner starts worker processes.
type Spawner interface {
	Spawn(ctx context.Context, opts SpawnOptions) (Process, error)
}
