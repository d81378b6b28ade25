// Package scheduler implements the cron/interval scheduler: next-run
// computation for ScheduledTasks and HostJobs, due-work dispatch gated on
// workspace busy-ness, and host-job execution. next-run computation for
// cron strings uses github.com/adhocore/gronx.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
	"github.com/nextlevelbuilder/agenthost/internal/store"
)

// TaskDispatcher enqueues a scheduled task's prompt on the owning
// workspace's queue, mirroring an inbound message. Implemented by the
// router.
type TaskDispatcher interface {
	EnqueueScheduled(ctx context.Context, workspaceFolder, chatID, prompt string, contextMode domain.ContextMode) error
	IsWorkspaceBusy(workspaceFolder string) bool
}

// Scheduler runs one ticker that drives both ScheduledTasks (agent cron
// jobs) and HostJobs. A HostJob normally runs a bounded shell command, but
// a job whose Command names a registered builtin runs that Go function
// instead — the mechanism behind the built-in, non-disableable maintenance
// jobs the host seeds for itself (e.g. audit retention pruning), which
// still flow through the same ListDue/UpdateRun path as any HostJob a
// worker schedules.
type Scheduler struct {
	stores       *store.Stores
	dispatcher   TaskDispatcher
	pollInterval time.Duration
	location     *time.Location

	builtins map[string]func(context.Context) (string, error)
}

// New constructs a Scheduler. loc is the process-wide IANA timezone; pass
// time.UTC if none is configured.
func New(stores *store.Stores, dispatcher TaskDispatcher, pollInterval time.Duration, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		stores:       stores,
		dispatcher:   dispatcher,
		pollInterval: pollInterval,
		location:     loc,
		builtins:     make(map[string]func(context.Context) (string, error)),
	}
}

// RegisterBuiltin binds a HostJob.Command value to a Go function. A due
// HostJob whose Command matches a registered name runs fn instead of being
// handed to the shell.
func (s *Scheduler) RegisterBuiltin(command string, fn func(context.Context) (string, error)) {
	s.builtins[command] = fn
}

// BuiltinHostJobCommand is the Command value of the host's self-seeded
// audit retention pruning job.
const BuiltinHostJobCommand = "builtin:prune_audit_log"

// EnsureHostJob creates job if no HostJob with the same ID already exists.
// Used at startup to seed built-in jobs idempotently across restarts.
func EnsureHostJob(ctx context.Context, jobs store.HostJobStore, job domain.HostJob) error {
	existing, err := jobs.List(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list host jobs: %w", err)
	}
	for _, j := range existing {
		if j.ID == job.ID {
			return nil
		}
	}
	return jobs.Create(ctx, job)
}

// Run blocks, ticking every pollInterval, until ctx is cancelled. On
// startup it runs one immediate tick so overdue tasks (host was down
// through a fire window) fire at most once before settling into the
// regular cadence: a single coalesced fire, not one fire per missed tick.
func (s *Scheduler) Run(ctx context.Context) error {
	s.tick(ctx)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().In(s.location)
	s.tickTasks(ctx, now)
	s.tickHostJobs(ctx, now)
}

func (s *Scheduler) tickTasks(ctx context.Context, now time.Time) {
	due, err := s.stores.Schedules.ListDue(ctx, now)
	if err != nil {
		slog.Error("scheduler.list_due_tasks_failed", "error", err)
		return
	}
	for _, task := range due {
		if s.dispatcher.IsWorkspaceBusy(task.WorkspaceFolder) {
			// Slips to the next tick, no queuing beyond one.
			slog.Info("scheduler.task_slipped_busy", "task_id", task.ID, "workspace", task.WorkspaceFolder)
			continue
		}
		if err := s.dispatcher.EnqueueScheduled(ctx, task.WorkspaceFolder, task.ChatID, task.Prompt, task.ContextMode); err != nil {
			slog.Error("scheduler.enqueue_failed", "task_id", task.ID, "error", err)
			continue
		}

		next, err := NextRun(task.ScheduleKind, task.ScheduleValue, now)
		if err != nil {
			slog.Error("scheduler.next_run_failed", "task_id", task.ID, "error", err)
			continue
		}
		if err := s.stores.Schedules.UpdateRun(ctx, task.ID, now, next); err != nil {
			slog.Error("scheduler.update_run_failed", "task_id", task.ID, "error", err)
		}
	}
}

func (s *Scheduler) tickHostJobs(ctx context.Context, now time.Time) {
	due, err := s.stores.HostJobs.ListDue(ctx, now)
	if err != nil {
		slog.Error("scheduler.list_due_jobs_failed", "error", err)
		return
	}
	for _, job := range due {
		s.runHostJob(ctx, job)

		next, err := NextRun(job.ScheduleKind, job.ScheduleValue, now)
		if err != nil {
			slog.Error("scheduler.job_next_run_failed", "job_id", job.ID, "error", err)
			continue
		}
		if err := s.stores.HostJobs.UpdateRun(ctx, job.ID, now, next); err != nil {
			slog.Error("scheduler.job_update_run_failed", "job_id", job.ID, "error", err)
		}
	}
}

// runHostJob executes a HostJob with a bounded timeout: a registered
// builtin runs as a Go function, anything else runs as a shell command. A
// failure is logged but never disables the job.
func (s *Scheduler) runHostJob(ctx context.Context, job domain.HostJob) {
	timeout := time.Duration(job.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if fn, ok := s.builtins[job.Command]; ok {
		result, err := fn(runCtx)
		if err != nil {
			slog.Warn("scheduler.host_job_failed", "job_id", job.ID, "command", job.Command, "error", err)
			return
		}
		slog.Info("scheduler.host_job_ok", "job_id", job.ID, "result", result)
		return
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", job.Command)
	out, err := cmd.CombinedOutput()
	if err != nil {
		slog.Warn("scheduler.host_job_failed", "job_id", job.ID, "command", job.Command, "error", err, "output", truncate(string(out), 2000))
		return
	}
	slog.Info("scheduler.host_job_ok", "job_id", job.ID)
}

// NextRun computes the next fire instant strictly after now, for either a
// cron-string or a fixed-interval schedule.
func NextRun(kind domain.ScheduleKind, value string, now time.Time) (time.Time, error) {
	switch kind {
	case domain.ScheduleCron:
		next, err := gronx.NextTickAfter(value, now, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("scheduler: bad cron expression %q: %w", value, err)
		}
		return next, nil
	case domain.ScheduleInterval:
		var seconds int64
		if _, err := fmt.Sscanf(value, "%d", &seconds); err != nil || seconds <= 0 {
			return time.Time{}, fmt.Errorf("scheduler: bad interval %q", value)
		}
		return now.Add(time.Duration(seconds) * time.Second), nil
	default:
		return time.Time{}, fmt.Errorf("scheduler: unknown schedule kind %q", kind)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...[truncated]"
}
