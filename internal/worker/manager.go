package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
	"github.com/nextlevelbuilder/agenthost/internal/hosterr"
	"github.com/nextlevelbuilder/agenthost/internal/ipc"
	"github.com/nextlevelbuilder/agenthost/pkg/protocol"
)

// stderrCap bounds the in-memory stderr buffer per session; past this the
// buffer is truncated with a marker.
const stderrCap = 64 * 1024

const gracefulStopWait = 10 * time.Second

// OutputHandler receives every output event and the query-done pulse
// signal for a workspace's live session. Implemented by the router.
type OutputHandler interface {
	HandleOutputEvent(workspaceFolder string, ev protocol.OutputEvent)
	HandleTask(workspaceFolder string, req protocol.TaskRequest)
	HandleSessionEnded(workspaceFolder string, crashed bool)
}

// session is the manager's bookkeeping for one live worker invocation.
type session struct {
	handle       Handle
	fabric       *ipc.Fabric
	invocationTS int64
	folder       string

	mu           sync.Mutex
	lastActivity time.Time
	stderrBuf    bytes.Buffer

	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *session) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// Manager is the per-host worker session registry, keyed by workspace
// folder.
type Manager struct {
	runtime     Runtime
	dataRoot    string
	idleTimeout time.Duration
	handler     OutputHandler

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager constructs a worker session manager.
func NewManager(runtime Runtime, dataRoot string, idleTimeout time.Duration, handler OutputHandler) *Manager {
	m := &Manager{
		runtime:     runtime,
		dataRoot:    dataRoot,
		idleTimeout: idleTimeout,
		handler:     handler,
		sessions:    make(map[string]*session),
	}
	return m
}

// IsAlive reports whether a live, non-crashed session exists for folder.
func (m *Manager) IsAlive(folder string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[folder]
	return ok
}

// FabricFor returns the live session's IPC fabric for folder, or nil if no
// session is live. Used to write a task response directly without going
// through GetOrSpawn when the caller already knows a session exists.
func (m *Manager) FabricFor(folder string) *ipc.Fabric {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[folder]; ok {
		return s.fabric
	}
	return nil
}

// InvocationTS returns the current session's monotonic invocation id, used
// as half of the security gate registry key. Returns 0 if no session is
// live.
func (m *Manager) InvocationTS(folder string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[folder]; ok {
		return s.invocationTS
	}
	return 0
}

// GetOrSpawn returns the existing live session's Fabric for ws, or spawns a
// new worker invocation and returns its Fabric. sessionToken resumes
// logical conversation context on a cold start; pass "" for a fresh start.
func (m *Manager) GetOrSpawn(ctx context.Context, ws domain.Workspace, chatID, sessionToken string, isScheduledTask bool) (*ipc.Fabric, int64, error) {
	m.mu.Lock()
	if s, ok := m.sessions[ws.Folder]; ok {
		m.mu.Unlock()
		s.touch()
		return s.fabric, s.invocationTS, nil
	}
	m.mu.Unlock()

	fabric, err := ipc.NewFabric(m.dataRoot, ws.Folder)
	if err != nil {
		return nil, 0, fmt.Errorf("worker: prepare ipc dirs: %w", err)
	}

	handle, err := m.runtime.Spawn(ctx, SpawnRequest{
		Workspace:       ws,
		WorkspaceFolder: ws.Folder,
		ChatID:          chatID,
		IsAdmin:         ws.IsAdmin,
		IsScheduledTask: isScheduledTask,
		SessionToken:    sessionToken,
		DataRoot:        m.dataRoot,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("worker: spawn: %w", err)
	}

	invocationTS := time.Now().UnixNano()
	sessCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		handle:       handle,
		fabric:       fabric,
		invocationTS: invocationTS,
		folder:       ws.Folder,
		lastActivity: time.Now(),
		cancel:       cancel,
	}

	m.mu.Lock()
	m.sessions[ws.Folder] = s
	m.mu.Unlock()

	go m.readOutput(sessCtx, s)
	go m.readTasks(sessCtx, s)
	go m.readStderr(s)
	go m.watchExit(sessCtx, s)
	go m.watchIdle(sessCtx, s)

	slog.Info("worker.spawned", "workspace", ws.Folder, "pid", handle.PID(), "invocation_ts", invocationTS)
	return fabric, invocationTS, nil
}

// Deliver writes a message event into the workspace's live session input.
// Callers must already hold a session (via GetOrSpawn).
func (m *Manager) Deliver(folder, text string) error {
	m.mu.Lock()
	s, ok := m.sessions[folder]
	m.mu.Unlock()
	if !ok {
		return hosterr.ErrNotFound
	}
	s.touch()
	return s.fabric.DeliverInput(text)
}

// Stop ends the session for folder. graceful=true writes the _close
// sentinel and waits up to gracefulStopWait before escalating to Signal
// then Kill; graceful=false skips straight to Signal/Kill. The security
// gate for this invocation is always released by the caller observing
// HandleSessionEnded.
func (m *Manager) Stop(ctx context.Context, folder string, graceful bool) error {
	m.mu.Lock()
	s, ok := m.sessions[folder]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	if graceful {
		if err := s.fabric.Close(); err != nil {
			slog.Warn("worker.close_sentinel_failed", "workspace", folder, "error", err)
		}
		waitCtx, cancel := context.WithTimeout(ctx, gracefulStopWait)
		err := s.handle.Wait(waitCtx)
		cancel()
		if err == nil {
			return nil
		}
	}

	if err := s.handle.Signal(ctx); err != nil {
		slog.Warn("worker.signal_failed", "workspace", folder, "error", err)
	}
	stopCtx, cancel := context.WithTimeout(ctx, gracefulStopWait)
	defer cancel()
	if err := s.handle.Wait(stopCtx); err == nil {
		return nil
	}
	return s.handle.Kill(ctx)
}

func (m *Manager) readOutput(ctx context.Context, s *session) {
	err := s.fabric.WatchOutput(ctx, func(ev protocol.OutputEvent) {
		s.touch()
		if m.handler != nil {
			m.handler.HandleOutputEvent(s.folder, ev)
		}
	})
	if err != nil {
		slog.Warn("worker.output_watch_failed", "workspace", s.folder, "error", err)
	}
}

func (m *Manager) readTasks(ctx context.Context, s *session) {
	err := s.fabric.WatchTasks(ctx, func(req protocol.TaskRequest) {
		s.touch()
		if m.handler != nil {
			m.handler.HandleTask(s.folder, req)
		}
	})
	if err != nil {
		slog.Warn("worker.tasks_watch_failed", "workspace", s.folder, "error", err)
	}
}

func (m *Manager) readStderr(s *session) {
	r := s.handle.Stderr()
	if r == nil {
		return
	}
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.mu.Lock()
			if s.stderrBuf.Len() < stderrCap {
				remaining := stderrCap - s.stderrBuf.Len()
				chunk := buf[:n]
				if len(chunk) > remaining {
					chunk = chunk[:remaining]
				}
				s.stderrBuf.Write(chunk)
				if s.stderrBuf.Len() >= stderrCap {
					s.stderrBuf.WriteString("\n... [stderr truncated] ...")
				}
			}
			s.mu.Unlock()
		}
		if err != nil {
			if err != io.EOF {
				slog.Debug("worker.stderr_read_error", "workspace", s.folder, "error", err)
			}
			return
		}
	}
}

func (m *Manager) watchExit(ctx context.Context, s *session) {
	err := s.handle.Wait(ctx)

	m.mu.Lock()
	delete(m.sessions, s.folder)
	m.mu.Unlock()
	s.cancel()

	crashed := err != nil
	if crashed {
		s.mu.Lock()
		stderr := s.stderrBuf.String()
		s.mu.Unlock()
		slog.Warn("worker.crashed", "workspace", s.folder, "error", err, "stderr_tail", stderr)
	} else {
		slog.Info("worker.exited", "workspace", s.folder)
	}

	if m.handler != nil {
		m.handler.HandleSessionEnded(s.folder, crashed)
	}
}

// watchIdle evicts a session after idleTimeout with no input delivered and
// no output observed.
func (m *Manager) watchIdle(ctx context.Context, s *session) {
	if m.idleTimeout <= 0 {
		return
	}
	ticker := time.NewTicker(m.idleTimeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.idleFor() >= m.idleTimeout {
				slog.Info("worker.idle_evict", "workspace", s.folder)
				_ = m.Stop(context.Background(), s.folder, true)
				return
			}
		}
	}
}
