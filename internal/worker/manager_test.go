package worker

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
	"github.com/nextlevelbuilder/agenthost/pkg/protocol"
)

// fakeHandle is a controllable in-memory Handle for exercising the session
// manager without a real subprocess or container.
type fakeHandle struct {
	pid    int
	stderr *bytes.Buffer

	mu       sync.Mutex
	exitCh   chan struct{}
	exitErr  error
	signaled bool
	killed   bool
}

func newFakeHandle(pid int) *fakeHandle {
	return &fakeHandle{pid: pid, stderr: bytes.NewBufferString(""), exitCh: make(chan struct{})}
}

func (h *fakeHandle) PID() int          { return h.pid }
func (h *fakeHandle) Stderr() io.Reader { return h.stderr }

func (h *fakeHandle) Wait(ctx context.Context) error {
	select {
	case <-h.exitCh:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.exitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *fakeHandle) Signal(ctx context.Context) error {
	h.mu.Lock()
	h.signaled = true
	h.mu.Unlock()
	return nil
}

func (h *fakeHandle) Kill(ctx context.Context) error {
	h.mu.Lock()
	h.killed = true
	h.mu.Unlock()
	h.exit(nil)
	return nil
}

func (h *fakeHandle) exit(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.exitCh:
	default:
		h.exitErr = err
		close(h.exitCh)
	}
}

type fakeRuntime struct {
	mu      sync.Mutex
	handles []*fakeHandle
	nextPID int
}

func (r *fakeRuntime) Spawn(ctx context.Context, req SpawnRequest) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextPID++
	h := newFakeHandle(r.nextPID)
	r.handles = append(r.handles, h)
	return h, nil
}

type fakeOutputHandler struct {
	mu       sync.Mutex
	events   []protocol.OutputEvent
	ended    []string
	crashed  map[string]bool
}

func newFakeOutputHandler() *fakeOutputHandler {
	return &fakeOutputHandler{crashed: make(map[string]bool)}
}

func (h *fakeOutputHandler) HandleOutputEvent(workspaceFolder string, ev protocol.OutputEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *fakeOutputHandler) HandleTask(workspaceFolder string, req protocol.TaskRequest) {}

func (h *fakeOutputHandler) HandleSessionEnded(workspaceFolder string, crashed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ended = append(h.ended, workspaceFolder)
	h.crashed[workspaceFolder] = crashed
}

func (h *fakeOutputHandler) endedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ended)
}

func TestManager_GetOrSpawnReusesLiveSession(t *testing.T) {
	rt := &fakeRuntime{}
	handler := newFakeOutputHandler()
	m := NewManager(rt, t.TempDir(), 0, handler)

	ws := domain.Workspace{Folder: "acme", ID: "acme"}
	_, ts1, err := m.GetOrSpawn(context.Background(), ws, "chat-1", "", false)
	require.NoError(t, err)

	_, ts2, err := m.GetOrSpawn(context.Background(), ws, "chat-1", "", false)
	require.NoError(t, err)

	assert.Equal(t, ts1, ts2, "second call must reuse the live session, not spawn a new one")
	assert.Len(t, rt.handles, 1)
}

func TestManager_WatchExitReleasesSessionAndNotifiesCrash(t *testing.T) {
	rt := &fakeRuntime{}
	handler := newFakeOutputHandler()
	m := NewManager(rt, t.TempDir(), 0, handler)

	ws := domain.Workspace{Folder: "acme", ID: "acme"}
	_, _, err := m.GetOrSpawn(context.Background(), ws, "chat-1", "", false)
	require.NoError(t, err)
	require.True(t, m.IsAlive("acme"))

	rt.handles[0].exit(assert.AnError)

	require.Eventually(t, func() bool { return handler.endedCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, m.IsAlive("acme"))
	handler.mu.Lock()
	assert.True(t, handler.crashed["acme"])
	handler.mu.Unlock()
}

func TestManager_StopGracefulWritesCloseSentinel(t *testing.T) {
	rt := &fakeRuntime{}
	handler := newFakeOutputHandler()
	dataRoot := t.TempDir()
	m := NewManager(rt, dataRoot, 0, handler)

	ws := domain.Workspace{Folder: "acme", ID: "acme"}
	fabric, _, err := m.GetOrSpawn(context.Background(), ws, "chat-1", "", false)
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		rt.handles[0].exit(nil)
	}()

	require.NoError(t, m.Stop(context.Background(), "acme", true))

	_, err = os.Stat(fabric.Paths.CloseSentinel())
	require.NoError(t, err, "_close sentinel must exist after a graceful stop")
}
