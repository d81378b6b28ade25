package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
)

type fakeHostJobStore struct {
	jobs []domain.HostJob
}

func (f *fakeHostJobStore) Create(_ context.Context, job domain.HostJob) error {
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeHostJobStore) List(_ context.Context) ([]domain.HostJob, error) {
	return append([]domain.HostJob(nil), f.jobs...), nil
}

func (f *fakeHostJobStore) ListDue(context.Context, time.Time) ([]domain.HostJob, error) {
	return nil, nil
}

func (f *fakeHostJobStore) UpdateRun(context.Context, string, time.Time, time.Time) error {
	return nil
}

func TestNextRun_CronComputesNextMatchingInstant(t *testing.T) {
	now := time.Date(2026, 8, 1, 8, 59, 0, 0, time.UTC)
	next, err := NextRun(domain.ScheduleCron, "0 9 * * *", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC), next.UTC())
}

func TestNextRun_CronStrictlyAfterNow(t *testing.T) {
	now := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	next, err := NextRun(domain.ScheduleCron, "0 9 * * *", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC), next.UTC())
}

func TestNextRun_IntervalAddsSeconds(t *testing.T) {
	now := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	next, err := NextRun(domain.ScheduleInterval, "3600", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), next)
}

func TestNextRun_RejectsBadCron(t *testing.T) {
	_, err := NextRun(domain.ScheduleCron, "not a cron", time.Now())
	assert.Error(t, err)
}

func TestNextRun_RejectsBadInterval(t *testing.T) {
	_, err := NextRun(domain.ScheduleInterval, "not-a-number", time.Now())
	assert.Error(t, err)

	_, err = NextRun(domain.ScheduleInterval, "-5", time.Now())
	assert.Error(t, err)
}

func TestNextRun_RejectsUnknownKind(t *testing.T) {
	_, err := NextRun(domain.ScheduleKind("carrier-pigeon"), "", time.Now())
	assert.Error(t, err)
}

func TestEnsureHostJob_CreatesWhenMissing(t *testing.T) {
	store := &fakeHostJobStore{}
	job := domain.HostJob{ID: "builtin:prune_audit_log", Command: "builtin:prune_audit_log"}

	require.NoError(t, EnsureHostJob(context.Background(), store, job))
	require.Len(t, store.jobs, 1)
	assert.Equal(t, job.ID, store.jobs[0].ID)
}

func TestEnsureHostJob_NoopsWhenAlreadySeeded(t *testing.T) {
	job := domain.HostJob{ID: "builtin:prune_audit_log", Command: "builtin:prune_audit_log"}
	store := &fakeHostJobStore{jobs: []domain.HostJob{job}}

	require.NoError(t, EnsureHostJob(context.Background(), store, job))
	assert.Len(t, store.jobs, 1, "must not insert a second row for the same builtin id")
}

func TestRunHostJob_DispatchesRegisteredBuiltinInsteadOfShell(t *testing.T) {
	s := New(nil, nil, time.Minute, time.UTC)

	var called bool
	s.RegisterBuiltin("builtin:noop", func(context.Context) (string, error) {
		called = true
		return "ok", nil
	})

	s.runHostJob(context.Background(), domain.HostJob{ID: "job-1", Command: "builtin:noop"})
	assert.True(t, called, "a job whose command matches a registered builtin must run the Go function, not a shell")
}

func TestRunHostJob_FallsBackToShellForUnregisteredCommand(t *testing.T) {
	s := New(nil, nil, time.Minute, time.UTC)
	// No builtin registered for this command; runHostJob must not panic and
	// must fall through to the shell-exec path.
	s.runHostJob(context.Background(), domain.HostJob{ID: "job-2", Command: "true", TimeoutSeconds: 1})
}
