package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
	"github.com/nextlevelbuilder/agenthost/internal/security"
)

type fakeAuditStore struct {
	events []domain.AuditEvent
}

func (s *fakeAuditStore) Append(ctx context.Context, ev domain.AuditEvent) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeAuditStore) ListSince(ctx context.Context, since time.Time) ([]domain.AuditEvent, error) {
	var out []domain.AuditEvent
	for _, ev := range s.events {
		if ev.Timestamp.After(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeAuditStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var kept []domain.AuditEvent
	var pruned int64
	for _, ev := range s.events {
		if ev.Timestamp.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return pruned, nil
}

func TestLog_RecordDecisionAppendsToStore(t *testing.T) {
	fs := &fakeAuditStore{}
	l := New(fs)

	ev := domain.AuditEvent{
		Decision:  domain.DecisionDeny,
		ToolName:  "bash",
		Workspace: "acme",
		Reason:    "lethal trifecta",
		RequestID: "req-1",
	}
	require.NoError(t, l.RecordDecision(context.Background(), ev))

	require.Len(t, fs.events, 1)
	assert.Equal(t, domain.DecisionDeny, fs.events[0].Decision)
	assert.False(t, fs.events[0].Timestamp.IsZero(), "zero timestamp must be stamped with now")
}

func TestLog_RecordDecisionPreservesExplicitTimestamp(t *testing.T) {
	fs := &fakeAuditStore{}
	l := New(fs)

	stamp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ev := domain.AuditEvent{Decision: domain.DecisionAllow, Timestamp: stamp}
	require.NoError(t, l.RecordDecision(context.Background(), ev))

	require.Len(t, fs.events, 1)
	assert.Equal(t, stamp, fs.events[0].Timestamp)
}

func TestLog_RecordFromGateResultCopiesFields(t *testing.T) {
	fs := &fakeAuditStore{}
	l := New(fs)

	res := security.Result{
		Decision:          domain.DecisionNeedsHuman,
		Reason:            "dangerous write",
		CorruptionTainted: true,
		SecretTainted:     false,
	}
	require.NoError(t, l.RecordFromGateResult(context.Background(), "acme", "write_file", "req-2", res))

	require.Len(t, fs.events, 1)
	got := fs.events[0]
	assert.Equal(t, domain.DecisionNeedsHuman, got.Decision)
	assert.Equal(t, "write_file", got.ToolName)
	assert.Equal(t, "acme", got.Workspace)
	assert.True(t, got.CorruptionTainted)
	assert.Equal(t, "req-2", got.RequestID)
}

func TestLog_PruneRetentionRemovesOlderEvents(t *testing.T) {
	fs := &fakeAuditStore{}
	l := New(fs)

	now := time.Now().UTC()
	fs.events = []domain.AuditEvent{
		{RequestID: "old", Timestamp: now.Add(-48 * time.Hour)},
		{RequestID: "new", Timestamp: now},
	}

	pruned, err := l.PruneRetention(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
	require.Len(t, fs.events, 1)
	assert.Equal(t, "new", fs.events[0].RequestID)
}
