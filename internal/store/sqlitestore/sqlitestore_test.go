package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
	"github.com/nextlevelbuilder/agenthost/internal/hosterr"
	"github.com/nextlevelbuilder/agenthost/internal/store"
)

func openTestDB(t *testing.T) *store.Stores {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db.Stores()
}

func TestWorkspaceStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	stores := openTestDB(t)

	ws := domain.Workspace{
		ID:      "ws-1",
		Name:    "Team Alpha",
		Folder:  "/workspaces/alpha",
		Trigger: "@alpha",
		Security: domain.WorkspaceSecurity{
			Services:        map[string]domain.ServiceTrustConfig{"web_search": domain.DefaultServiceTrustConfig()},
			ContainsSecrets: true,
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, stores.Workspaces.Upsert(ctx, ws))

	got, err := stores.Workspaces.Get(ctx, ws.Folder)
	require.NoError(t, err)
	assert.Equal(t, ws.ID, got.ID)
	assert.True(t, got.Security.ContainsSecrets)
	assert.Equal(t, domain.TrustTrue, got.Security.Services["web_search"].PublicSource)

	ws.Name = "Team Alpha Renamed"
	require.NoError(t, stores.Workspaces.Upsert(ctx, ws))
	got, err = stores.Workspaces.GetByID(ctx, ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "Team Alpha Renamed", got.Name)
}

func TestWorkspaceStore_GetMissingReturnsNotFound(t *testing.T) {
	stores := openTestDB(t)
	_, err := stores.Workspaces.Get(context.Background(), "/nope")
	assert.ErrorIs(t, err, hosterr.ErrNotFound)
}

func TestMessageStore_AppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	stores := openTestDB(t)

	msg := domain.Message{ID: "m1", ChatID: "chat-1", Sender: "alice", Content: "hi", Timestamp: "2026-01-01T00:00:00Z", Direction: domain.DirectionInbound}

	inserted, err := stores.Messages.Append(ctx, msg)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = stores.Messages.Append(ctx, msg)
	require.NoError(t, err)
	assert.False(t, inserted)

	exists, err := stores.Messages.Exists(ctx, "chat-1", "m1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMessageStore_HistoryIsChronological(t *testing.T) {
	ctx := context.Background()
	stores := openTestDB(t)

	for i, ts := range []string{"2026-01-01T00:00:00Z", "2026-01-01T00:00:01Z", "2026-01-01T00:00:02Z"} {
		_, err := stores.Messages.Append(ctx, domain.Message{ID: string(rune('a' + i)), ChatID: "chat-1", Content: "m", Timestamp: ts, Direction: domain.DirectionInbound})
		require.NoError(t, err)
	}

	history, err := stores.Messages.History(ctx, "chat-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "2026-01-01T00:00:00Z", history[0].Timestamp)
	assert.Equal(t, "2026-01-01T00:00:02Z", history[2].Timestamp)
}

func TestMessageStore_ClearHistoryArchivesWithoutDeleting(t *testing.T) {
	ctx := context.Background()
	stores := openTestDB(t)

	_, err := stores.Messages.Append(ctx, domain.Message{ID: "a", ChatID: "chat-1", Content: "old", Timestamp: "2026-01-01T00:00:00Z", Direction: domain.DirectionInbound})
	require.NoError(t, err)

	clearedAt, err := time.Parse(time.RFC3339, "2026-01-01T00:00:01Z")
	require.NoError(t, err)
	require.NoError(t, stores.Messages.ClearHistory(ctx, "chat-1", clearedAt))

	history, err := stores.Messages.History(ctx, "chat-1", 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	exists, err := stores.Messages.Exists(ctx, "chat-1", "a")
	require.NoError(t, err)
	assert.True(t, exists, "cleared history is archived, not deleted")

	_, err = stores.Messages.Append(ctx, domain.Message{ID: "b", ChatID: "chat-1", Content: "new", Timestamp: "2026-01-01T00:00:02Z", Direction: domain.DirectionInbound})
	require.NoError(t, err)

	history, err = stores.Messages.History(ctx, "chat-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "b", history[0].ID)
}

func TestCursorStore_AdvanceIsForwardOnly(t *testing.T) {
	ctx := context.Background()
	stores := openTestDB(t)

	require.NoError(t, stores.Cursors.AdvanceCursor(ctx, "telegram", "chat-1", domain.CursorInbound, "002-aaa"))
	require.NoError(t, stores.Cursors.AdvanceCursor(ctx, "telegram", "chat-1", domain.CursorInbound, "001-bbb"))

	v, err := stores.Cursors.GetCursor(ctx, "telegram", "chat-1", domain.CursorInbound)
	require.NoError(t, err)
	assert.Equal(t, "002-aaa", v, "cursor must not move backward")

	require.NoError(t, stores.Cursors.AdvanceCursor(ctx, "telegram", "chat-1", domain.CursorInbound, "003-ccc"))
	v, err = stores.Cursors.GetCursor(ctx, "telegram", "chat-1", domain.CursorInbound)
	require.NoError(t, err)
	assert.Equal(t, "003-ccc", v)
}

func TestSessionStore_SetAndGet(t *testing.T) {
	ctx := context.Background()
	stores := openTestDB(t)

	s := domain.Session{WorkspaceFolder: "/ws/a", Token: "tok-1", UpdatedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, stores.Sessions.Set(ctx, s))

	got, err := stores.Sessions.Get(ctx, "/ws/a")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got.Token)
}

func TestScheduleStore_ListDue(t *testing.T) {
	ctx := context.Background()
	stores := openTestDB(t)

	past := domain.ScheduledTask{ID: "t1", WorkspaceFolder: "/ws/a", Prompt: "p", ScheduleKind: domain.ScheduleCron, ScheduleValue: "* * * * *", ContextMode: domain.ContextResume, NextRun: time.Now().Add(-time.Hour), Status: domain.TaskActive}
	future := domain.ScheduledTask{ID: "t2", WorkspaceFolder: "/ws/a", Prompt: "p", ScheduleKind: domain.ScheduleCron, ScheduleValue: "* * * * *", ContextMode: domain.ContextResume, NextRun: time.Now().Add(time.Hour), Status: domain.TaskActive}
	require.NoError(t, stores.Schedules.Create(ctx, past))
	require.NoError(t, stores.Schedules.Create(ctx, future))

	due, err := stores.Schedules.ListDue(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "t1", due[0].ID)
}

func TestAuditStore_AppendAndPrune(t *testing.T) {
	ctx := context.Background()
	stores := openTestDB(t)

	old := domain.AuditEvent{RequestID: "r1", Decision: domain.DecisionAllow, Workspace: "/ws/a", Timestamp: time.Now().Add(-100 * 24 * time.Hour)}
	recent := domain.AuditEvent{RequestID: "r2", Decision: domain.DecisionDeny, Workspace: "/ws/a", Timestamp: time.Now()}
	require.NoError(t, stores.Audit.Append(ctx, old))
	require.NoError(t, stores.Audit.Append(ctx, recent))

	n, err := stores.Audit.PruneOlderThan(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	remaining, err := stores.Audit.ListSince(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "r2", remaining[0].RequestID)
}
