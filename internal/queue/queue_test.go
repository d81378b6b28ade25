package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
)

type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []string
	release   chan struct{}
	overlap   bool
	inFlight  bool
}

func newRecordingDeliverer() *recordingDeliverer {
	return &recordingDeliverer{release: make(chan struct{}, 64)}
}

func (d *recordingDeliverer) Deliver(ctx context.Context, ws domain.Workspace, chatID, text string) error {
	d.mu.Lock()
	if d.inFlight {
		d.overlap = true
	}
	d.inFlight = true
	d.mu.Unlock()

	<-d.release

	d.mu.Lock()
	d.delivered = append(d.delivered, text)
	d.inFlight = false
	d.mu.Unlock()
	return nil
}

func (d *recordingDeliverer) Interrupt(ctx context.Context, folder string) error { return nil }

func TestQueueBatchesMessagesArrivingDuringTurn(t *testing.T) {
	d := newRecordingDeliverer()
	q := New(d)
	ws := domain.Workspace{Folder: "acme"}

	q.Enqueue(context.Background(), ws, "chat-1", "hi")
	require.Eventually(t, func() bool { return q.IsActive("acme") }, time.Second, time.Millisecond)

	q.Enqueue(context.Background(), ws, "chat-1", "again")
	q.Enqueue(context.Background(), ws, "chat-1", "and again")

	d.release <- struct{}{}
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.delivered) == 1
	}, time.Second, time.Millisecond)

	d.release <- struct{}{}
	require.Eventually(t, func() bool { return !q.IsActive("acme") }, time.Second, time.Millisecond)

	d.mu.Lock()
	defer d.mu.Unlock()
	require.False(t, d.overlap, "no two turns of the same workspace may overlap")
	require.Equal(t, []string{"hi", "again\nand again"}, d.delivered)
}

func TestQueueDifferentWorkspacesRunConcurrently(t *testing.T) {
	d := newRecordingDeliverer()
	q := New(d)

	q.Enqueue(context.Background(), domain.Workspace{Folder: "a"}, "c1", "x")
	q.Enqueue(context.Background(), domain.Workspace{Folder: "b"}, "c1", "y")

	require.Eventually(t, func() bool { return q.IsActive("a") && q.IsActive("b") }, time.Second, time.Millisecond)

	d.release <- struct{}{}
	d.release <- struct{}{}
}

func TestQueueInterruptClearsPending(t *testing.T) {
	d := newRecordingDeliverer()
	q := New(d)
	ws := domain.Workspace{Folder: "acme"}

	q.Enqueue(context.Background(), ws, "chat-1", "hi")
	require.Eventually(t, func() bool { return q.IsActive("acme") }, time.Second, time.Millisecond)
	q.Enqueue(context.Background(), ws, "chat-1", "queued")

	require.NoError(t, q.Interrupt(context.Background(), "acme"))
	d.release <- struct{}{}

	require.Eventually(t, func() bool { return !q.IsActive("acme") }, time.Second, time.Millisecond)
	d.mu.Lock()
	defer d.mu.Unlock()
	require.Equal(t, []string{"hi"}, d.delivered)
}
