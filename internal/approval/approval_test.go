package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
	"github.com/nextlevelbuilder/agenthost/internal/hosterr"
)

type fakeNotifier struct {
	approvalRequests []domain.PendingApproval
}

func (f *fakeNotifier) NotifyApprovalRequested(_ context.Context, _, _ string, p domain.PendingApproval) error {
	f.approvalRequests = append(f.approvalRequests, p)
	return nil
}

func (f *fakeNotifier) AskUser(_ context.Context, _, _, _, _ string, _ []domain.QuestionSpec) (string, error) {
	return "msg-1", nil
}

func TestRequestApprovalApproveDispatchesHandler(t *testing.T) {
	dir := t.TempDir()
	notifier := &fakeNotifier{}
	m := New(dir, notifier, time.Second)

	requestID := NewRequestID()
	handlerCalled := false

	done := make(chan struct{})
	go func() {
		m.RequestApproval(context.Background(), requestID, "slack_post", "acme", "chat-1", map[string]any{"text": "hi"}, domain.HandlerService, func(_ context.Context, p domain.PendingApproval) (any, error) {
			handlerCalled = true
			return "ok", nil
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		ws, id, err := m.ResolveShortID(requestID[:ShortIDLen])
		return err == nil && ws == "acme" && id == requestID
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, m.RecordDecision("acme", requestID, DecisionApprove))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RequestApproval did not return")
	}
	require.True(t, handlerCalled)
	require.Len(t, notifier.approvalRequests, 1)
}

func TestRequestApprovalDenyWritesDenialResponse(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, &fakeNotifier{}, time.Second)
	requestID := NewRequestID()

	done := make(chan struct{})
	go func() {
		m.RequestApproval(context.Background(), requestID, "slack_post", "acme", "chat-1", nil, domain.HandlerService, func(_ context.Context, _ domain.PendingApproval) (any, error) {
			t.Fatal("handler must not run on deny")
			return nil, nil
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, _, err := m.ResolveShortID(requestID[:ShortIDLen])
		return err == nil
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, m.RecordDecision("acme", requestID, DecisionDeny))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RequestApproval did not return")
	}
}

func TestRequestApprovalTimeoutFailsClosed(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, &fakeNotifier{}, 50*time.Millisecond)
	requestID := NewRequestID()

	m.RequestApproval(context.Background(), requestID, "slack_post", "acme", "chat-1", nil, domain.HandlerService, func(_ context.Context, _ domain.PendingApproval) (any, error) {
		t.Fatal("handler must not run on timeout")
		return nil, nil
	})

	_, _, err := m.ResolveShortID(requestID[:ShortIDLen])
	require.ErrorIs(t, err, hosterr.ErrNotFound)
}

func TestResolveShortIDAmbiguous(t *testing.T) {
	dir := t.TempDir()
	m := New(dir, &fakeNotifier{}, time.Minute)

	id1 := "aaaaaaaa-1111-1111-1111-111111111111"
	id2 := "aaaaaaaa-2222-2222-2222-222222222222"

	go m.RequestApproval(context.Background(), id1, "svc", "ws1", "c1", nil, domain.HandlerService, func(context.Context, domain.PendingApproval) (any, error) { return nil, nil })
	go m.RequestApproval(context.Background(), id2, "svc", "ws2", "c1", nil, domain.HandlerService, func(context.Context, domain.PendingApproval) (any, error) { return nil, nil })

	require.Eventually(t, func() bool {
		pending, err := m.ListPending()
		return err == nil && len(pending) == 2
	}, time.Second, 10*time.Millisecond)

	_, _, err := m.ResolveShortID("aaaaaaaa")
	require.ErrorIs(t, err, hosterr.ErrAmbiguous)

	require.NoError(t, m.RecordDecision("ws1", id1, DecisionDeny))
	require.NoError(t, m.RecordDecision("ws2", id2, DecisionDeny))
}
