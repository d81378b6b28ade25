// Package approval implements the two file-backed state machines the gate
// and the ask_user flow hand off to a human: PendingApproval records created
// when the security gate returns needs_human, and PendingQuestion records
// created when a worker blocks on ask_user. Both sets live on disk under
// each workspace's IPC directory; this package never shadows them in
// memory beyond the short-id resolver, which is rebuilt on demand from
// the filesystem.
package approval

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
	"github.com/nextlevelbuilder/agenthost/internal/fsatomic"
	"github.com/nextlevelbuilder/agenthost/internal/hosterr"
	"github.com/nextlevelbuilder/agenthost/internal/ipc"
	"github.com/nextlevelbuilder/agenthost/pkg/protocol"
)

// ShortIDLen is the prefix length used for human-facing approval ids.
const ShortIDLen = 8

// Decision is the human's verdict on a pending approval.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDeny    Decision = "deny"
)

// Notifier sends the human-facing side effects of the state machines: the
// approval prompt, the ask_user question, and their resolutions. It is
// satisfied by the router so this package never imports the channels
// package directly.
type Notifier interface {
	NotifyApprovalRequested(ctx context.Context, workspaceFolder, chatID string, pending domain.PendingApproval) error
	AskUser(ctx context.Context, workspaceFolder, chatID, channelName, requestID string, questions []domain.QuestionSpec) (messageID string, err error)
}

// ActionHandler executes the original privileged action once a human
// approves it, returning the result to write back to the worker.
type ActionHandler func(ctx context.Context, pending domain.PendingApproval) (any, error)

// Manager owns both pending-state machines for every workspace the host
// serves. paths maps a workspace folder to its Fabric; fabrics are created
// lazily as workspaces are first seen.
type Manager struct {
	dataRoot string
	notifier Notifier
	timeout  time.Duration

	mu      sync.Mutex
	fabrics map[string]*ipc.Fabric
}

// New constructs a Manager. timeout bounds how long a PendingApproval waits
// for a decision before it fails closed.
func New(dataRoot string, notifier Notifier, timeout time.Duration) *Manager {
	return &Manager{dataRoot: dataRoot, notifier: notifier, timeout: timeout, fabrics: make(map[string]*ipc.Fabric)}
}

func (m *Manager) fabric(workspaceFolder string) (*ipc.Fabric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.fabrics[workspaceFolder]; ok {
		return f, nil
	}
	f, err := ipc.NewFabric(m.dataRoot, workspaceFolder)
	if err != nil {
		return nil, err
	}
	m.fabrics[workspaceFolder] = f
	return f, nil
}

// RequestApproval is called by the gate's needs_human path. It creates the
// pending record, notifies the channel, waits (without holding any
// per-workspace lock, since the approval wait is explicitly long-running)
// for a decision or timeout, then dispatches the handler and writes the
// worker's response.
func (m *Manager) RequestApproval(ctx context.Context, requestID, toolName, workspaceFolder, chatID string, requestData map[string]any, handlerType domain.HandlerType, handler ActionHandler) {
	f, err := m.fabric(workspaceFolder)
	if err != nil {
		slog.Error("approval.fabric_failed", "workspace", workspaceFolder, "error", err)
		return
	}

	pending := domain.PendingApproval{
		RequestID:       requestID,
		ShortID:         shortID(requestID),
		ToolName:        toolName,
		SourceWorkspace: workspaceFolder,
		ChatID:          chatID,
		RequestData:     requestData,
		HandlerType:     handlerType,
		CreatedAt:       time.Now().UTC(),
	}

	if err := fsatomic.WriteJSON(f.Paths.PendingApprovalFile(requestID), pending); err != nil {
		slog.Error("approval.write_pending_failed", "request_id", requestID, "error", err)
		_ = f.WriteResponse(requestID, protocol.TaskResponse{Error: "internal error creating approval"})
		return
	}

	if m.notifier != nil {
		if err := m.notifier.NotifyApprovalRequested(ctx, workspaceFolder, chatID, pending); err != nil {
			slog.Warn("approval.notify_failed", "request_id", requestID, "error", err)
		}
	}

	decision, err := m.waitForDecision(ctx, f, requestID)
	os.Remove(f.Paths.PendingApprovalFile(requestID))

	if err != nil {
		// Approval timeout fails closed.
		_ = f.WriteResponse(requestID, protocol.TaskResponse{Error: "timeout"})
		slog.Info("approval.timeout", "request_id", requestID, "workspace", workspaceFolder)
		return
	}

	switch decision {
	case DecisionDeny:
		_ = f.WriteResponse(requestID, protocol.TaskResponse{Error: "Denied by user"})
	case DecisionApprove:
		result, err := handler(ctx, pending)
		if err != nil {
			_ = f.WriteResponse(requestID, protocol.TaskResponse{Error: err.Error()})
			return
		}
		_ = f.WriteResponse(requestID, protocol.TaskResponse{Result: result})
	}
}

// waitForDecision polls approval_decisions/<requestID>.json until it
// appears or the manager's timeout elapses.
func (m *Manager) waitForDecision(ctx context.Context, f *ipc.Fabric, requestID string) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	path := f.Paths.ApprovalDecisionFile(requestID)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		data, err := os.ReadFile(path)
		if err == nil {
			os.Remove(path)
			var body struct {
				Decision string `json:"decision"`
			}
			if jsonErr := json.Unmarshal(data, &body); jsonErr == nil && body.Decision != "" {
				return Decision(body.Decision), nil
			}
			return DecisionDeny, nil
		}
		select {
		case <-ctx.Done():
			return "", hosterr.ErrTimeout
		case <-ticker.C:
		}
	}
}

// RecordDecision writes a human decision (from the "approve <short_id>" /
// "deny <short_id>" magic commands) for requestID. This is the sole write
// side of the approval_decisions/ directory the waiting RequestApproval
// call polls.
func (m *Manager) RecordDecision(workspaceFolder, requestID string, decision Decision) error {
	f, err := m.fabric(workspaceFolder)
	if err != nil {
		return err
	}
	return fsatomic.WriteJSON(f.Paths.ApprovalDecisionFile(requestID), map[string]string{"decision": string(decision)})
}

// ResolveShortID scans every known workspace's pending_approvals/ directory
// for a unique prefix match on shortID. Ambiguous matches return
// hosterr.ErrAmbiguous; no match returns hosterr.ErrNotFound.
func (m *Manager) ResolveShortID(shortID string) (workspaceFolder, requestID string, err error) {
	root := filepath.Join(m.dataRoot, "ipc")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", hosterr.ErrNotFound
		}
		return "", "", err
	}

	type match struct{ workspace, requestID string }
	var matches []match

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name(), "pending_approvals")
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || fsatomic.IsTempName(f.Name()) {
				continue
			}
			id := strings.TrimSuffix(f.Name(), ".json")
			if strings.HasPrefix(id, shortID) {
				matches = append(matches, match{workspace: e.Name(), requestID: id})
			}
		}
	}

	switch len(matches) {
	case 0:
		return "", "", hosterr.ErrNotFound
	case 1:
		return matches[0].workspace, matches[0].requestID, nil
	default:
		return "", "", hosterr.ErrAmbiguous
	}
}

// ListPending returns every PendingApproval across all workspaces, sorted
// by creation time, for the admin "pending" command.
func (m *Manager) ListPending() ([]domain.PendingApproval, error) {
	root := filepath.Join(m.dataRoot, "ipc")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []domain.PendingApproval
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name(), "pending_approvals")
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() || fsatomic.IsTempName(f.Name()) {
				continue
			}
			var p domain.PendingApproval
			if err := fsatomic.ReadJSON(filepath.Join(dir, f.Name()), &p); err != nil {
				continue
			}
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func shortID(requestID string) string {
	if len(requestID) <= ShortIDLen {
		return requestID
	}
	return requestID[:ShortIDLen]
}

// NewRequestID mints a fresh UUID request id for a newly gated action.
func NewRequestID() string { return uuid.NewString() }
