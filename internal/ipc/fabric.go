package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/agenthost/internal/fsatomic"
	"github.com/nextlevelbuilder/agenthost/internal/hosterr"
	"github.com/nextlevelbuilder/agenthost/pkg/protocol"
)

// DefaultResponseTimeout is the generic IPC request/response wait bound.
const DefaultResponseTimeout = 5 * time.Minute

// AskUserResponseTimeout is the longer wait bound for the ask_user flow.
const AskUserResponseTimeout = 30 * time.Minute

// Fabric is the host-side handle onto one workspace's IPC directory tree. It
// never blocks a caller beyond the operation requested — long waits (output
// streaming, task dispatch, approval) are the caller's watchers, not this
// type's state.
type Fabric struct {
	Paths Paths
}

// NewFabric ensures the workspace's IPC directories exist and returns a
// handle onto them.
func NewFabric(dataRoot, workspaceFolder string) (*Fabric, error) {
	p := NewPaths(dataRoot, workspaceFolder)
	for _, dir := range p.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ipc: mkdir %s: %w", dir, err)
		}
	}
	return &Fabric{Paths: p}, nil
}

// DeliverInput writes a "message" input event as a monotonically-named JSON
// file, preserving delivery order across concatenated batches.
func (f *Fabric) DeliverInput(text string) error {
	name := fsatomic.MonotonicJSONName()
	payload := map[string]any{
		protocol.KeyType: protocol.InputMessage,
		"text":           text,
		protocol.KeyTimestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ipc: marshal input event: %w", err)
	}
	return fsatomic.WriteFile(filepath.Join(f.Paths.Input(), name), data)
}

// Close writes the _close sentinel. The worker must not process any
// input/*.json file that appears strictly after this write; callers must
// not call DeliverInput again for this invocation once Close has returned.
func (f *Fabric) Close() error {
	return fsatomic.WriteFile(f.Paths.CloseSentinel(), []byte{})
}

// WatchOutput streams the worker's output/ directory in filename order,
// invoking onEvent for each decoded OutputEvent. It blocks until ctx is
// cancelled.
func (f *Fabric) WatchOutput(ctx context.Context, onEvent func(protocol.OutputEvent)) error {
	return WatchDir(ctx, f.Paths.Output(), func(_ context.Context, name string, data []byte) error {
		var ev protocol.OutputEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return fmt.Errorf("ipc: decode output event %s: %w", name, err)
		}
		onEvent(ev)
		return nil
	})
}

// WatchTasks streams the worker's tasks/ directory, invoking onTask for each
// decoded TaskRequest. A response already present for a request id means
// the request was already handled; onTask is still invoked (duplicates are
// suppressed by the response writer's at-most-once check, not here) so a
// crash-and-resweep sees consistent behavior.
func (f *Fabric) WatchTasks(ctx context.Context, onTask func(protocol.TaskRequest)) error {
	return WatchDir(ctx, f.Paths.Tasks(), func(_ context.Context, name string, data []byte) error {
		var req protocol.TaskRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return fmt.Errorf("ipc: decode task request %s: %w", name, err)
		}
		onTask(req)
		return nil
	})
}

// WriteResponse writes a task's reply atomically. If a response file for
// requestID already exists, WriteResponse is a no-op and returns nil — this
// is the at-most-once guarantee: a duplicate tasks/ file for an
// already-answered request_id must not re-execute the handler.
func (f *Fabric) WriteResponse(requestID string, resp protocol.TaskResponse) error {
	path := f.Paths.ResponseFile(requestID)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("ipc: marshal response: %w", err)
	}
	return fsatomic.WriteFile(path, data)
}

// WaitForResponse polls for responses/<requestID>.json, reads and unlinks
// it, and returns the decoded response. This is used by the worker side of
// the contract in tests/simulation; the host's own handlers write responses
// directly and never wait on them.
func (f *Fabric) WaitForResponse(ctx context.Context, requestID string, timeout time.Duration) (*protocol.TaskResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	path := f.Paths.ResponseFile(requestID)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		data, err := os.ReadFile(path)
		if err == nil {
			os.Remove(path)
			var resp protocol.TaskResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				return nil, fmt.Errorf("ipc: decode response: %w", err)
			}
			return &resp, nil
		}
		select {
		case <-ctx.Done():
			return nil, hosterr.ErrTimeout
		case <-ticker.C:
		}
	}
}

// WriteCurrentTasks atomically replaces the current_tasks.json snapshot the
// worker reads at startup and on demand.
func (f *Fabric) WriteCurrentTasks(v any) error {
	return fsatomic.WriteJSON(f.Paths.CurrentTasksFile(), v)
}

// WriteAvailableWorkspaces atomically replaces available_workspaces.json.
func (f *Fabric) WriteAvailableWorkspaces(v any) error {
	return fsatomic.WriteJSON(f.Paths.AvailableWorkspacesFile(), v)
}
