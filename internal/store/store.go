// Package store defines the persistence interfaces for the host's
// single-process ACID state store: workspace registry, message history with
// idempotent ingestion, per-channel delivery cursors, session tokens,
// scheduled tasks, host jobs, and the audit log. Pending approvals and
// pending questions are deliberately NOT modeled here — the filesystem under
// each workspace's IPC directory is their unambiguous source of truth; the
// store never shadows them.
package store

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
)

// StoreConfig configures the backing database.
type StoreConfig struct {
	// Path is the filesystem path to the SQLite database file.
	Path string
}

// Stores aggregates every store interface the host depends on.
type Stores struct {
	Workspaces WorkspaceStore
	Messages   MessageStore
	Cursors    CursorStore
	Sessions   SessionStore
	Schedules  ScheduleStore
	HostJobs   HostJobStore
	Audit      AuditStore
}

// WorkspaceStore manages the workspace registry.
type WorkspaceStore interface {
	Upsert(ctx context.Context, ws domain.Workspace) error
	Get(ctx context.Context, folder string) (*domain.Workspace, error)
	GetByID(ctx context.Context, id string) (*domain.Workspace, error)
	List(ctx context.Context) ([]domain.Workspace, error)
}

// MessageStore manages the durable chat history. Ingestion is idempotent on
// (chat_id, id): re-delivering the same message is a no-op, not a duplicate.
type MessageStore interface {
	Append(ctx context.Context, msg domain.Message) (inserted bool, err error)
	Exists(ctx context.Context, chatID, id string) (bool, error)
	History(ctx context.Context, chatID string, limit int) ([]domain.Message, error)
	PruneBySender(ctx context.Context, chatID, sender string, keepLast int) error
	// ClearHistory marks chatID cleared as of now: History stops returning
	// messages timestamped at or before this point, archiving them without
	// deleting them. Used by the reset magic command.
	ClearHistory(ctx context.Context, chatID string, at time.Time) error
}

// CursorStore tracks the last-delivered message position per channel/chat/
// direction pair. Cursor advancement is forward-only: AdvanceCursor never
// moves the stored value backward.
type CursorStore interface {
	GetCursor(ctx context.Context, channel, chatID string, dir domain.CursorDirection) (string, error)
	AdvanceCursor(ctx context.Context, channel, chatID string, dir domain.CursorDirection, value string) error
}

// SessionStore persists the resumable session token per workspace.
type SessionStore interface {
	Get(ctx context.Context, workspaceFolder string) (*domain.Session, error)
	Set(ctx context.Context, session domain.Session) error
}

// ScheduleStore manages the scheduler's per-chat scheduled agent tasks.
type ScheduleStore interface {
	Create(ctx context.Context, task domain.ScheduledTask) error
	Get(ctx context.Context, id string) (*domain.ScheduledTask, error)
	List(ctx context.Context) ([]domain.ScheduledTask, error)
	ListDue(ctx context.Context, now time.Time) ([]domain.ScheduledTask, error)
	UpdateStatus(ctx context.Context, id string, status domain.TaskStatus) error
	UpdateRun(ctx context.Context, id string, lastRun, nextRun time.Time) error
	Delete(ctx context.Context, id string) error
}

// HostJobStore manages the scheduler's host-level maintenance jobs (e.g. the
// audit retention pruning job).
type HostJobStore interface {
	Create(ctx context.Context, job domain.HostJob) error
	List(ctx context.Context) ([]domain.HostJob, error)
	ListDue(ctx context.Context, now time.Time) ([]domain.HostJob, error)
	UpdateRun(ctx context.Context, id string, lastRun, nextRun time.Time) error
}

// AuditStore appends and prunes the security decision log.
type AuditStore interface {
	Append(ctx context.Context, ev domain.AuditEvent) error
	ListSince(ctx context.Context, since time.Time) ([]domain.AuditEvent, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
