package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agenthost/internal/approval"
	"github.com/nextlevelbuilder/agenthost/internal/audit"
	"github.com/nextlevelbuilder/agenthost/internal/channels"
	"github.com/nextlevelbuilder/agenthost/internal/config"
	"github.com/nextlevelbuilder/agenthost/internal/cop"
	"github.com/nextlevelbuilder/agenthost/internal/deploy"
	"github.com/nextlevelbuilder/agenthost/internal/domain"
	"github.com/nextlevelbuilder/agenthost/internal/providers"
	"github.com/nextlevelbuilder/agenthost/internal/queue"
	"github.com/nextlevelbuilder/agenthost/internal/router"
	"github.com/nextlevelbuilder/agenthost/internal/scheduler"
	"github.com/nextlevelbuilder/agenthost/internal/security"
	"github.com/nextlevelbuilder/agenthost/internal/store"
	"github.com/nextlevelbuilder/agenthost/internal/store/sqlitestore"
	"github.com/nextlevelbuilder/agenthost/internal/telemetry"
	"github.com/nextlevelbuilder/agenthost/internal/worker"
	"github.com/nextlevelbuilder/agenthost/pkg/protocol"
)

// ServiceExecutor performs the actual side effect of a service:<tool> task
// once the security gate allows it (immediately, or after a human
// approves). Concrete services — "post to Slack", "browse the web",
// whatever a deployment's workers actually call out to — are explicitly
// outside this core's scope: the host treats every service uniformly
// through the gate, never its implementation. A composition root that
// bundles real services supplies its own ServiceExecutor.
type ServiceExecutor interface {
	Execute(ctx context.Context, service string, isRead bool, payload map[string]any) (any, error)
}

// unboundExecutor is the default ServiceExecutor: it lets the gate do its
// job but refuses to perform any action, so a build with no services
// wired fails loudly instead of silently no-opping a tool call the worker
// is waiting on.
type unboundExecutor struct{}

func (unboundExecutor) Execute(_ context.Context, service string, _ bool, _ map[string]any) (any, error) {
	return nil, fmt.Errorf("host: no ServiceExecutor bound for service %q", service)
}

// unconfiguredRuntime is the default worker.Runtime: it reports why no
// worker ever starts, rather than leaving GetOrSpawn to hang or panic.
// The concrete runtime (a container launcher, a subprocess launcher) is a
// composition-root concern per worker/runtime.go's package doc.
type unconfiguredRuntime struct{}

func (unconfiguredRuntime) Spawn(context.Context, worker.SpawnRequest) (worker.Handle, error) {
	return nil, fmt.Errorf("worker: no Runtime configured for this build")
}

// passthroughAliases is the default JIDAliasResolver: no per-channel
// chat-id aliasing table ships in this core, so the platform-native chat
// id is already canonical.
type passthroughAliases struct{}

func (passthroughAliases) Canonicalize(_, platformChatID string) string { return platformChatID }

// workspaceByChatID resolves a canonical chat id straight to the
// Workspace sharing that id as its primary key. Per domain.Workspace's
// doc comment, ID is "canonical address (stable string)" — this host's
// decision (DESIGN.md) is that a workspace's ID *is* the canonical chat
// id it is addressed under, so the router's chat-id → workspace lookup
// is the same lookup as the workspace registry's primary key lookup.
type workspaceByChatID struct{ stores *store.Stores }

func (w workspaceByChatID) ResolveByChatID(ctx context.Context, chatID string) (*domain.Workspace, error) {
	return w.stores.Workspaces.GetByID(ctx, chatID)
}

// Host is the composition root's glue value: a small explicit value
// passed to components instead of process-wide singletons. It satisfies
// every small consumer-defined interface the internal packages
// declare (worker.OutputHandler, queue.Deliverer, scheduler.TaskDispatcher,
// approval.Notifier/AliveChecker, router.Handlers, deploy.Terminator) so
// those packages never import each other directly.
type Host struct {
	cfg       *config.Config
	dataRoot  string
	stores    *store.Stores
	channels  *channels.Manager
	workers   *worker.Manager
	queue     *queue.Queue
	router    *router.Router
	approvals *approval.Manager
	audit     *audit.Log
	gates     *security.Registry
	deploy    *deploy.Controller
	executor  ServiceExecutor
	location  *time.Location

	mu          sync.Mutex
	chats       map[string]string        // workspace folder -> chat id of its live turn
	invocations map[string]int64         // workspace folder -> live gate's invocation ts
	turnDone    map[string]chan struct{} // workspace folder -> signal for the in-flight turn's completion

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

func newHost(cfg *config.Config, dataRoot string, stores *store.Stores, chMgr *channels.Manager, gates *security.Registry, executor ServiceExecutor, loc *time.Location) *Host {
	return &Host{
		cfg:         cfg,
		dataRoot:    dataRoot,
		stores:      stores,
		channels:    chMgr,
		gates:       gates,
		executor:    executor,
		location:    loc,
		chats:       make(map[string]string),
		invocations: make(map[string]int64),
		turnDone:    make(map[string]chan struct{}),
		shutdownCh:  make(chan struct{}),
	}
}

// --- queue.Deliverer -------------------------------------------------

// Deliver implements queue.Deliverer: get-or-spawn the workspace's worker
// session, register its security gate on a cold start, write the batch as
// one input event, then block until the worker's query-done pulse (or a
// session end) reports the turn finished. The queue's lane stays held for
// the whole wait, so two turns of a workspace never overlap.
func (h *Host) Deliver(ctx context.Context, ws domain.Workspace, chatID, text string) error {
	wasAlive := h.workers.IsAlive(ws.Folder)

	var token string
	if sess, err := h.stores.Sessions.Get(ctx, ws.Folder); err == nil && sess != nil {
		token = sess.Token
	}

	_, invocationTS, err := h.workers.GetOrSpawn(ctx, ws, chatID, token, false)
	if err != nil {
		return fmt.Errorf("host: spawn worker for %s: %w", ws.Folder, err)
	}

	done := h.armTurnDone(ws.Folder)

	h.mu.Lock()
	h.chats[ws.Folder] = chatID
	h.invocations[ws.Folder] = invocationTS
	h.mu.Unlock()

	if !wasAlive {
		h.gates.Create(security.GateKey{WorkspaceFolder: ws.Folder, InvocationTS: invocationTS}, ws)
	}

	if err := h.workers.Deliver(ws.Folder, text); err != nil {
		h.disarmTurnDone(ws.Folder, done)
		return err
	}

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// armTurnDone installs a fresh completion signal for folder's next turn.
// The queue serializes turns per workspace, so at most one is armed at a
// time.
func (h *Host) armTurnDone(folder string) chan struct{} {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	h.turnDone[folder] = ch
	h.mu.Unlock()
	return ch
}

// disarmTurnDone removes ch if it is still the armed signal for folder,
// used when the turn never started (input write failed).
func (h *Host) disarmTurnDone(folder string, ch chan struct{}) {
	h.mu.Lock()
	if h.turnDone[folder] == ch {
		delete(h.turnDone, folder)
	}
	h.mu.Unlock()
}

// signalTurnDone wakes whatever Deliver call is waiting on folder's
// in-flight turn, if any.
func (h *Host) signalTurnDone(folder string) {
	h.mu.Lock()
	ch, ok := h.turnDone[folder]
	if ok {
		delete(h.turnDone, folder)
	}
	h.mu.Unlock()
	if ok {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Interrupt implements queue.Deliverer: request a graceful stop of the
// workspace's active worker.
func (h *Host) Interrupt(ctx context.Context, workspaceFolder string) error {
	return h.workers.Stop(ctx, workspaceFolder, true)
}

// --- worker.OutputHandler ---------------------------------------------

// HandleOutputEvent implements worker.OutputHandler: broadcasts text
// events and persists the session token on the query-done pulse.
func (h *Host) HandleOutputEvent(workspaceFolder string, ev protocol.OutputEvent) {
	ctx := context.Background()

	if ev.Type == protocol.OutputText && ev.Content != "" {
		if chatID := h.chatFor(workspaceFolder); chatID != "" {
			h.router.BroadcastText(ctx, chatID, ev.Content, true)
		}
		return
	}

	if ev.IsQueryDonePulse() {
		sess := domain.Session{WorkspaceFolder: workspaceFolder, Token: ev.NewSessionToken, UpdatedAt: time.Now().UTC()}
		if err := h.stores.Sessions.Set(ctx, sess); err != nil {
			slog.Warn("host.persist_session_failed", "workspace", workspaceFolder, "error", err)
		}
		h.signalTurnDone(workspaceFolder)
	}
}

// HandleSessionEnded implements worker.OutputHandler: releases the
// workspace's security gate once the worker process exits.
func (h *Host) HandleSessionEnded(workspaceFolder string, crashed bool) {
	h.mu.Lock()
	ts, ok := h.invocations[workspaceFolder]
	delete(h.invocations, workspaceFolder)
	h.mu.Unlock()

	if ok {
		h.gates.Destroy(security.GateKey{WorkspaceFolder: workspaceFolder, InvocationTS: ts})
	}
	if crashed {
		slog.Warn("host.worker_crashed", "workspace", workspaceFolder)
	}
	// A crash or unprompted exit mid-turn never emits a query-done pulse;
	// wake a waiting Deliver so the lane doesn't hang forever.
	h.signalTurnDone(workspaceFolder)
}

// HandleTask implements worker.OutputHandler: dispatches a tasks/ file by
// its type prefix.
func (h *Host) HandleTask(workspaceFolder string, req protocol.TaskRequest) {
	switch {
	case req.Type == protocol.TaskBashCheck:
		h.handleBashCheck(workspaceFolder, req)
	case req.Type == protocol.TaskAskUser:
		h.handleAskUser(workspaceFolder, req)
	case strings.HasPrefix(req.Type, protocol.PrefixService):
		h.handleServiceTask(workspaceFolder, req)
	case req.Type == protocol.TaskResetContext:
		h.handleLifecycle(workspaceFolder, req, func(ctx context.Context) (any, error) {
			return nil, h.resetWorkspace(ctx, workspaceFolder)
		})
	case req.Type == protocol.TaskFinishedWork:
		h.handleLifecycle(workspaceFolder, req, func(context.Context) (any, error) { return "ok", nil })
	case req.Type == protocol.TaskRegisterWorkspace:
		h.handleRegisterWorkspace(workspaceFolder, req)
	case req.Type == protocol.TaskDeploy:
		h.handleDeployTask(workspaceFolder, req)
	case req.Type == protocol.TaskScheduleTask:
		h.handleScheduleTask(workspaceFolder, req)
	case req.Type == protocol.TaskScheduleHostJob:
		h.handleScheduleHostJob(workspaceFolder, req)
	case req.Type == protocol.TaskPauseTask:
		h.handleSetTaskStatus(workspaceFolder, req, domain.TaskPaused)
	case req.Type == protocol.TaskResumeTask:
		h.handleSetTaskStatus(workspaceFolder, req, domain.TaskActive)
	case req.Type == protocol.TaskCancelTask:
		h.handleCancelTask(workspaceFolder, req)
	default:
		h.respond(workspaceFolder, req.RequestID, protocol.TaskResponse{Error: fmt.Sprintf("unknown task type %q", req.Type)})
	}
}

// respond writes a task response directly, bypassing the worker manager
// for tasks that can be answered without a live session lookup (e.g. a
// register_workspace call from a brand-new workspace with no prior
// activity recorded yet).
func (h *Host) respond(workspaceFolder, requestID string, resp protocol.TaskResponse) {
	f := h.workers.FabricFor(workspaceFolder)
	if f == nil {
		slog.Error("host.respond_no_fabric", "workspace", workspaceFolder, "request_id", requestID)
		return
	}
	if err := f.WriteResponse(requestID, resp); err != nil {
		slog.Error("host.write_response_failed", "workspace", workspaceFolder, "request_id", requestID, "error", err)
	}
}

func (h *Host) chatFor(folder string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.chats[folder]
}

func (h *Host) gateFor(folder string) (*security.Gate, bool) {
	ts := h.workers.InvocationTS(folder)
	if ts == 0 {
		return nil, false
	}
	return h.gates.Get(security.GateKey{WorkspaceFolder: folder, InvocationTS: ts})
}

func decodePayload(payload map[string]any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (h *Host) handleBashCheck(workspaceFolder string, req protocol.TaskRequest) {
	ctx := context.Background()
	var breq protocol.BashCheckRequest
	if err := decodePayload(req.Payload, &breq); err != nil {
		h.respond(workspaceFolder, req.RequestID, protocol.TaskResponse{Error: "bad bash_check payload"})
		return
	}

	gate, ok := h.gateFor(workspaceFolder)
	if !ok {
		h.respond(workspaceFolder, req.RequestID, protocol.TaskResponse{Result: protocol.BashCheckResponse{Decision: "allow"}})
		return
	}

	class := security.ClassifyCommand(breq.Command)
	res := gate.EvaluateBash(ctx, class, breq.Command)
	_ = h.audit.RecordFromGateResult(ctx, workspaceFolder, "bash:"+class.String(), req.RequestID, res)

	if res.Decision == domain.DecisionNeedsHuman {
		chatID := h.chatFor(workspaceFolder)
		go h.approvals.RequestApproval(ctx, req.RequestID, "bash", workspaceFolder, chatID,
			map[string]any{"command": breq.Command}, domain.HandlerIPC,
			func(context.Context, domain.PendingApproval) (any, error) {
				return protocol.BashCheckResponse{Decision: "allow"}, nil
			})
		return
	}

	decision := "allow"
	if res.Decision == domain.DecisionDeny {
		decision = "deny"
	}
	h.respond(workspaceFolder, req.RequestID, protocol.TaskResponse{Result: protocol.BashCheckResponse{Decision: decision, Reason: res.Reason}})
}

func (h *Host) handleServiceTask(workspaceFolder string, req protocol.TaskRequest) {
	ctx := context.Background()
	service := strings.TrimPrefix(req.Type, protocol.PrefixService)

	isRead, _ := req.Payload["is_read"].(bool)
	payloadStr, _ := req.Payload["payload"].(string)
	summary, _ := req.Payload["summary"].(string)

	gate, ok := h.gateFor(workspaceFolder)
	if !ok {
		h.respond(workspaceFolder, req.RequestID, protocol.TaskResponse{Error: "no active security gate for this invocation"})
		return
	}

	res := gate.Evaluate(ctx, security.Action{Service: service, IsRead: isRead, Payload: payloadStr, Summary: summary})
	_ = h.audit.RecordFromGateResult(ctx, workspaceFolder, service, req.RequestID, res)

	switch res.Decision {
	case domain.DecisionDeny:
		h.respond(workspaceFolder, req.RequestID, protocol.TaskResponse{Error: "denied: " + res.Reason})
	case domain.DecisionNeedsHuman:
		chatID := h.chatFor(workspaceFolder)
		go h.approvals.RequestApproval(ctx, req.RequestID, service, workspaceFolder, chatID, req.Payload, domain.HandlerService,
			func(ctx context.Context, pending domain.PendingApproval) (any, error) {
				pendingIsRead, _ := pending.RequestData["is_read"].(bool)
				result, err := h.executor.Execute(ctx, service, pendingIsRead, pending.RequestData)
				if err != nil {
					return nil, err
				}
				return fenceServiceResult(service, pendingIsRead, result), nil
			})
	default: // allow
		result, err := h.executor.Execute(ctx, service, isRead, req.Payload)
		if err != nil {
			h.respond(workspaceFolder, req.RequestID, protocol.TaskResponse{Error: err.Error()})
			return
		}
		h.respond(workspaceFolder, req.RequestID, protocol.TaskResponse{Result: fenceServiceResult(service, isRead, result)})
	}
}

// fenceServiceResult wraps a read-only service's result in the untrusted-
// content fence before it is written back as a tool_result the worker will
// feed straight into the agent's context. Write-only services return their
// own confirmation text, not fetched external content, so they pass
// through unfenced; only a string result is fenced, since structured
// results are consumed programmatically rather than read by the model.
func fenceServiceResult(service string, isRead bool, result any) any {
	if !isRead {
		return result
	}
	text, ok := result.(string)
	if !ok {
		return result
	}
	return security.FenceUntrustedContent(text, service)
}

func (h *Host) handleAskUser(workspaceFolder string, req protocol.TaskRequest) {
	ctx := context.Background()
	var areq protocol.AskUserRequest
	if err := decodePayload(req.Payload, &areq); err != nil {
		h.respond(workspaceFolder, req.RequestID, protocol.TaskResponse{Error: "bad ask_user payload"})
		return
	}

	questions := make([]domain.QuestionSpec, len(areq.Questions))
	for i, q := range areq.Questions {
		questions[i] = domain.QuestionSpec{Text: q.Text, Options: q.Options}
	}

	chatID := h.chatFor(workspaceFolder)
	channelName := ""
	if ch, ok := h.channels.Resolve(chatID); ok {
		channelName = ch.Name()
	}

	var token string
	if sess, err := h.stores.Sessions.Get(ctx, workspaceFolder); err == nil && sess != nil {
		token = sess.Token
	}

	if err := h.approvals.RequestQuestion(ctx, req.RequestID, workspaceFolder, chatID, channelName, token, questions); err != nil {
		h.respond(workspaceFolder, req.RequestID, protocol.TaskResponse{Error: err.Error()})
	}
}

func (h *Host) handleLifecycle(workspaceFolder string, req protocol.TaskRequest, fn func(context.Context) (any, error)) {
	result, err := fn(context.Background())
	if err != nil {
		h.respond(workspaceFolder, req.RequestID, protocol.TaskResponse{Error: err.Error()})
		return
	}
	h.respond(workspaceFolder, req.RequestID, protocol.TaskResponse{Result: result})
}

func (h *Host) handleRegisterWorkspace(workspaceFolder string, req protocol.TaskRequest) {
	h.handleLifecycle(workspaceFolder, req, func(ctx context.Context) (any, error) {
		var ws domain.Workspace
		if err := decodePayload(req.Payload, &ws); err != nil {
			return nil, fmt.Errorf("bad register_workspace payload: %w", err)
		}
		if ws.Folder == "" {
			ws.Folder = workspaceFolder
		}
		if ws.CreatedAt.IsZero() {
			ws.CreatedAt = time.Now().UTC()
		}
		if err := h.stores.Workspaces.Upsert(ctx, ws); err != nil {
			return nil, err
		}
		return ws.ID, nil
	})
}

func (h *Host) handleDeployTask(workspaceFolder string, req protocol.TaskRequest) {
	ctx := context.Background()
	chatID := h.chatFor(workspaceFolder)
	tokens := h.collectSessionTokens(ctx)
	if err := h.deploy.Redeploy(ctx, chatID, tokens, h.cfg.Hash()); err != nil {
		h.respond(workspaceFolder, req.RequestID, protocol.TaskResponse{Error: err.Error()})
	}
	// On success the process is about to receive RequestShutdown; no
	// response is expected back since the worker's host is going away.
}

func (h *Host) handleScheduleTask(workspaceFolder string, req protocol.TaskRequest) {
	h.handleLifecycle(workspaceFolder, req, func(ctx context.Context) (any, error) {
		var body struct {
			ChatID        string             `json:"chat_id"`
			Prompt        string             `json:"prompt"`
			ScheduleKind  domain.ScheduleKind `json:"schedule_kind"`
			ScheduleValue string             `json:"schedule_value"`
			ContextMode   domain.ContextMode `json:"context_mode"`
		}
		if err := decodePayload(req.Payload, &body); err != nil {
			return nil, fmt.Errorf("bad schedule_task payload: %w", err)
		}
		now := time.Now().In(h.location)
		next, err := scheduler.NextRun(body.ScheduleKind, body.ScheduleValue, now)
		if err != nil {
			return nil, err
		}
		if body.ContextMode == "" {
			body.ContextMode = domain.ContextResume
		}
		task := domain.ScheduledTask{
			ID:              uuid.NewString(),
			WorkspaceFolder: workspaceFolder,
			ChatID:          body.ChatID,
			Prompt:          body.Prompt,
			ScheduleKind:    body.ScheduleKind,
			ScheduleValue:   body.ScheduleValue,
			ContextMode:     body.ContextMode,
			NextRun:         next,
			Status:          domain.TaskActive,
		}
		if err := h.stores.Schedules.Create(ctx, task); err != nil {
			return nil, err
		}
		return task.ID, nil
	})
}

func (h *Host) handleScheduleHostJob(workspaceFolder string, req protocol.TaskRequest) {
	h.handleLifecycle(workspaceFolder, req, func(ctx context.Context) (any, error) {
		var body struct {
			Command        string             `json:"command"`
			ScheduleKind   domain.ScheduleKind `json:"schedule_kind"`
			ScheduleValue  string             `json:"schedule_value"`
			TimeoutSeconds int                `json:"timeout_seconds"`
		}
		if err := decodePayload(req.Payload, &body); err != nil {
			return nil, fmt.Errorf("bad schedule_host_job payload: %w", err)
		}
		now := time.Now().In(h.location)
		next, err := scheduler.NextRun(body.ScheduleKind, body.ScheduleValue, now)
		if err != nil {
			return nil, err
		}
		job := domain.HostJob{
			ID:              uuid.NewString(),
			WorkspaceFolder: workspaceFolder,
			Command:         body.Command,
			ScheduleKind:    body.ScheduleKind,
			ScheduleValue:   body.ScheduleValue,
			TimeoutSeconds:  body.TimeoutSeconds,
			Enabled:         true,
			NextRun:         next,
		}
		if err := h.stores.HostJobs.Create(ctx, job); err != nil {
			return nil, err
		}
		return job.ID, nil
	})
}

func (h *Host) handleSetTaskStatus(workspaceFolder string, req protocol.TaskRequest, status domain.TaskStatus) {
	h.handleLifecycle(workspaceFolder, req, func(ctx context.Context) (any, error) {
		id, _ := req.Payload["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("missing task id")
		}
		if err := h.stores.Schedules.UpdateStatus(ctx, id, status); err != nil {
			return nil, err
		}
		return "ok", nil
	})
}

func (h *Host) handleCancelTask(workspaceFolder string, req protocol.TaskRequest) {
	h.handleLifecycle(workspaceFolder, req, func(ctx context.Context) (any, error) {
		id, _ := req.Payload["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("missing task id")
		}
		if err := h.stores.Schedules.Delete(ctx, id); err != nil {
			return nil, err
		}
		return "ok", nil
	})
}

func (h *Host) resetWorkspace(ctx context.Context, folder string) error {
	_ = h.workers.Stop(ctx, folder, true)
	return h.stores.Sessions.Set(ctx, domain.Session{WorkspaceFolder: folder, Token: "", UpdatedAt: time.Now().UTC()})
}

func (h *Host) collectSessionTokens(ctx context.Context) map[string]string {
	out := map[string]string{}
	workspaces, err := h.stores.Workspaces.List(ctx)
	if err != nil {
		return out
	}
	for _, ws := range workspaces {
		if sess, err := h.stores.Sessions.Get(ctx, ws.Folder); err == nil && sess != nil && sess.Token != "" {
			out[ws.Folder] = sess.Token
		}
	}
	return out
}

// --- scheduler.TaskDispatcher -------------------------------------------

// EnqueueScheduled implements scheduler.TaskDispatcher. An isolated
// context mode stops any warm session first, so the turn that follows is
// a cold start rather than a continuation of the workspace's ongoing
// conversation.
func (h *Host) EnqueueScheduled(ctx context.Context, workspaceFolder, chatID, prompt string, contextMode domain.ContextMode) error {
	ws, err := h.stores.Workspaces.Get(ctx, workspaceFolder)
	if err != nil {
		return err
	}
	if ws == nil {
		return fmt.Errorf("host: unknown workspace %q", workspaceFolder)
	}
	if contextMode == domain.ContextIsolated {
		_ = h.workers.Stop(ctx, workspaceFolder, true)
	}
	h.queue.Enqueue(ctx, *ws, chatID, prompt)
	return nil
}

// IsWorkspaceBusy implements scheduler.TaskDispatcher.
func (h *Host) IsWorkspaceBusy(workspaceFolder string) bool { return h.queue.IsActive(workspaceFolder) }

// --- approval.Notifier / approval.AliveChecker --------------------------

// NotifyApprovalRequested implements approval.Notifier.
func (h *Host) NotifyApprovalRequested(ctx context.Context, _ string, chatID string, pending domain.PendingApproval) error {
	h.router.NotifyHost(ctx, chatID, fmt.Sprintf(
		"approval needed [%s] %s — reply \"approve %s\" or \"deny %s\"",
		pending.ShortID, pending.ToolName, pending.ShortID, pending.ShortID))
	return nil
}

// AskUser implements approval.Notifier: renders the question on the
// owning channel, preferring its AskUserSender capability and falling
// back to a plain-text rendering when the channel doesn't have one.
func (h *Host) AskUser(ctx context.Context, _, chatID, channelName, requestID string, questions []domain.QuestionSpec) (string, error) {
	ch, ok := h.channels.Get(channelName)
	if !ok {
		ch, ok = h.channels.Resolve(chatID)
	}
	if !ok {
		return "", fmt.Errorf("host: no channel to ask_user on %s", chatID)
	}

	if asker, ok := channels.SupportsAskUser(ch); ok {
		opts := make([]channels.QuestionOption, len(questions))
		for i, q := range questions {
			opts[i] = channels.QuestionOption{Text: q.Text, Options: q.Options}
		}
		return asker.SendAskUser(ctx, chatID, requestID, opts)
	}

	var b strings.Builder
	for _, q := range questions {
		b.WriteString(q.Text)
		if len(q.Options) > 0 {
			b.WriteString(" Options: ")
			b.WriteString(strings.Join(q.Options, ", "))
		}
		b.WriteString("\n")
	}
	return "", ch.SendMessage(ctx, chatID, b.String())
}

// IsAlive implements approval.AliveChecker.
func (h *Host) IsAlive(workspaceFolder string) bool { return h.workers.IsAlive(workspaceFolder) }

// AnswerQuestion implements the "on reply" side of the ask_user flow. A
// composition root's channel adapter calls this once it recognizes an
// inbound message as a reply to a pending question's rendered bubble
// (recognizing that relationship is itself channel-specific and out of
// this core's scope). On the warm path the worker is still alive and
// unblocks in place; on the cold path the Q&A is reformatted as context
// and replayed as an ordinary message so a fresh worker resumes the
// conversation with it.
func (h *Host) AnswerQuestion(ctx context.Context, workspaceFolder, requestID string, answers map[string]string) error {
	rec, warm, err := h.approvals.AnswerQuestion(h, workspaceFolder, requestID, answers)
	if err != nil {
		return fmt.Errorf("host: answer question: %w", err)
	}
	if warm {
		return nil
	}

	ws, err := h.stores.Workspaces.Get(ctx, workspaceFolder)
	if err != nil {
		return fmt.Errorf("host: resolve workspace %s: %w", workspaceFolder, err)
	}
	if ws == nil {
		return fmt.Errorf("host: unknown workspace %q", workspaceFolder)
	}

	coldContext := approval.FormatColdContext(*rec, answers)
	h.queue.Enqueue(ctx, *ws, rec.ChatID, coldContext)
	return nil
}

// --- router.Handlers -----------------------------------------------------

// Reset implements the "reset" magic command: unlike the worker-initiated
// reset_context task, which only drops the session token,
// the user-facing reset also archives chat history so a fresh session
// starts with no prior context bleeding through.
func (h *Host) Reset(ctx context.Context, ws domain.Workspace, chatID string) error {
	if err := h.resetWorkspace(ctx, ws.Folder); err != nil {
		return err
	}
	if chatID == "" {
		chatID = ws.ID
	}
	return h.stores.Messages.ClearHistory(ctx, chatID, time.Now().UTC())
}

func (h *Host) EndSession(ctx context.Context, ws domain.Workspace, _ string) error {
	return h.workers.Stop(ctx, ws.Folder, true)
}

func (h *Host) Redeploy(ctx context.Context, ws domain.Workspace, chatID string) error {
	return h.deploy.Redeploy(ctx, chatID, h.collectSessionTokens(ctx), h.cfg.Hash())
}

func (h *Host) Approve(_ context.Context, shortID string) (string, error) {
	folder, requestID, err := h.approvals.ResolveShortID(shortID)
	if err != nil {
		return "", err
	}
	if err := h.approvals.RecordDecision(folder, requestID, approval.DecisionApprove); err != nil {
		return "", err
	}
	return fmt.Sprintf("approved %s", shortID), nil
}

func (h *Host) Deny(_ context.Context, shortID string) (string, error) {
	folder, requestID, err := h.approvals.ResolveShortID(shortID)
	if err != nil {
		return "", err
	}
	if err := h.approvals.RecordDecision(folder, requestID, approval.DecisionDeny); err != nil {
		return "", err
	}
	return fmt.Sprintf("denied %s", shortID), nil
}

func (h *Host) ListPending(_ context.Context) (string, error) {
	pending, err := h.approvals.ListPending()
	if err != nil {
		return "", err
	}
	if len(pending) == 0 {
		return "no pending approvals", nil
	}
	var b strings.Builder
	for _, p := range pending {
		fmt.Fprintf(&b, "%s  %s  %s\n", p.ShortID, p.ToolName, p.SourceWorkspace)
	}
	return b.String(), nil
}

// --- deploy.Terminator -----------------------------------------------------

// RequestShutdown implements deploy.Terminator: closes the channel runHost
// is blocked on, triggering the same graceful shutdown path as SIGTERM.
func (h *Host) RequestShutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdownCh) })
}

// runHost is the composition root: it wires every internal package into a
// runnable process and blocks until SIGINT/SIGTERM or a deploy-requested
// shutdown.
func runHost() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	if v := strings.ToLower(os.Getenv("AGENTHOST_LOG_LEVEL")); v != "" {
		switch v {
		case "debug":
			logLevel = slog.LevelDebug
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		}
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	dataRoot := os.Getenv("AGENTHOST_DATA_ROOT")
	if dataRoot == "" {
		dataRoot = config.ExpandHome("~/.agenthost")
	}
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		slog.Error("data root unavailable", "path", dataRoot, "error", err)
		os.Exit(1)
	}

	loc := time.UTC
	tzName := os.Getenv("AGENTHOST_TZ")
	if tzName == "" {
		tzName = cfg.Scheduler.TimezoneOverride
	}
	if tzName != "" {
		if l, err := time.LoadLocation(tzName); err == nil {
			loc = l
		} else {
			slog.Warn("unknown timezone, falling back to UTC", "tz", tzName, "error", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without export", "error", err)
	} else {
		defer shutdownTelemetry(context.Background())
	}

	storePath := config.ExpandHome(cfg.Store.Path)
	if storePath == "" {
		storePath = filepath.Join(dataRoot, "state.db")
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0o755); err != nil {
		slog.Error("store directory unavailable", "path", storePath, "error", err)
		os.Exit(1)
	}

	db, err := sqlitestore.Open(ctx, storePath)
	if err != nil {
		slog.Error("store open failed", "path", storePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	stores := db.Stores()

	var llmProvider providers.Provider
	if cfg.Providers.Anthropic.APIKey != "" {
		llmProvider = providers.NewAnthropicProvider(cfg.Providers.Anthropic.APIKey,
			providers.WithAnthropicModel(cfg.Providers.Anthropic.Model),
			providers.WithAnthropicBaseURL(cfg.Providers.Anthropic.BaseURL))
	}
	secondaryClassifier := cop.New(llmProvider, cfg.Providers.Anthropic.Model)
	gates := security.NewRegistry(secondaryClassifier)

	chMgr := channels.NewManager()

	host := newHost(cfg, dataRoot, stores, chMgr, gates, unboundExecutor{}, loc)

	host.workers = worker.NewManager(unconfiguredRuntime{}, dataRoot, cfg.Worker.IdleTimeout(), host)
	host.queue = queue.New(host)
	host.router = router.New(stores, chMgr, host.queue, passthroughAliases{}, workspaceByChatID{stores: stores}, cfg.Commands, cfg.Agent.Name)
	host.router.SetHandlers(host)
	host.approvals = approval.New(dataRoot, host, cfg.Security.ApprovalTimeout())
	host.audit = audit.New(stores.Audit)
	host.deploy = deploy.New(dataRoot, deploy.ExecRebuilder{Command: os.Getenv("AGENTHOST_REBUILD_COMMAND")}, host)

	sched := scheduler.New(stores, host, cfg.Scheduler.PollInterval(), loc)
	sched.RegisterBuiltin(scheduler.BuiltinHostJobCommand, func(ctx context.Context) (string, error) {
		n, err := host.audit.PruneRetention(ctx, cfg.Security.AuditRetention())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("pruned %d", n), nil
	})
	if err := scheduler.EnsureHostJob(ctx, stores.HostJobs, domain.HostJob{
		ID:             scheduler.BuiltinHostJobCommand,
		Command:        scheduler.BuiltinHostJobCommand,
		ScheduleKind:   domain.ScheduleInterval,
		ScheduleValue:  "86400",
		TimeoutSeconds: 30,
		Enabled:        true,
		NextRun:        time.Now().In(loc),
	}); err != nil {
		slog.Error("seed audit retention host job failed", "error", err)
		os.Exit(1)
	}

	if cont, err := host.deploy.LoadContinuation(); err != nil {
		slog.Warn("deploy continuation unreadable", "error", err)
	} else if cont != nil {
		slog.Info("resuming after redeploy", "chat_id", cont.ChatID)
		if cont.ConfigHash != "" && cont.ConfigHash != cfg.Hash() {
			slog.Warn("config changed across redeploy", "workspace_count", len(cont.SessionTokens))
		}
		for folder, token := range cont.SessionTokens {
			_ = stores.Sessions.Set(ctx, domain.Session{WorkspaceFolder: folder, Token: token, UpdatedAt: time.Now().UTC()})
		}
		if cont.ChatID != "" {
			host.router.NotifyHost(ctx, cont.ChatID, cont.ResumePrompt)
		}
	}

	go func() {
		if err := sched.Run(ctx); err != nil {
			slog.Error("scheduler stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	slog.Info("agenthost starting", "version", Version, "data_root", dataRoot, "store", storePath, "timezone", loc.String())

	select {
	case sig := <-sigCh:
		slog.Info("graceful shutdown initiated", "signal", sig)
	case <-host.shutdownCh:
		slog.Info("graceful shutdown initiated", "reason", "redeploy")
	}
	cancel()
}
