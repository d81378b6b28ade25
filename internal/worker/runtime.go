// Package worker implements the worker session manager: spawning,
// reusing and evicting the sandboxed per-workspace worker process, the
// activity watchdog behind idle eviction, and the reader goroutines that
// turn a worker's output/ and stderr streams into host-side events.
//
// The concrete worker runtime — the container engine or process launcher
// that actually starts the sandboxed agent — is explicitly out of scope:
// the core launches an opaque child. This package depends only on the
// Runtime interface; a composition root supplies the concrete
// implementation.
package worker

import (
	"context"
	"io"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
)

// SpawnRequest carries everything a Runtime needs to start one worker
// invocation.
type SpawnRequest struct {
	Workspace       domain.Workspace
	WorkspaceFolder string
	ChatID          string
	IsAdmin         bool
	IsScheduledTask bool
	SessionToken    string // resume token, empty for a cold start
	DataRoot        string // host-owned root; the worker's IPC dirs live under DataRoot/ipc/<folder>
}

// Handle is a live worker process as far as the session manager is
// concerned: something it can check for liveness, read stderr from, and
// terminate.
type Handle interface {
	// PID returns the runtime's process identifier, for logging only.
	PID() int
	// Stderr returns the worker's standard error stream.
	Stderr() io.Reader
	// Wait blocks until the process exits and returns its exit error (nil
	// on a clean exit).
	Wait(ctx context.Context) error
	// Signal requests a graceful stop (e.g. SIGTERM / container stop).
	Signal(ctx context.Context) error
	// Kill forces termination immediately.
	Kill(ctx context.Context) error
}

// Runtime launches an opaque worker process for a workspace invocation.
type Runtime interface {
	Spawn(ctx context.Context, req SpawnRequest) (Handle, error)
}
