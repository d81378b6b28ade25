// Package security implements the per-invocation security gate: the taint
// model, the service trust evaluation, the bash command classifier, and the
// deterministic secrets scanner every privileged IPC handler consults before
// it takes effect.
package security

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/agenthost/internal/cop"
	"github.com/nextlevelbuilder/agenthost/internal/domain"
)

// GateKey identifies one worker invocation's gate.
type GateKey struct {
	WorkspaceFolder string
	InvocationTS    int64
}

// Action describes one privileged operation submitted for evaluation.
type Action struct {
	Service string
	IsRead  bool // true for a read-path action, false for a write-path action
	Payload string
	Summary string // short human-readable description, used as the Cop prompt
}

// Result is the outcome of one Evaluate call.
type Result struct {
	Decision          domain.GateDecision
	Reason            string
	CorruptionTainted bool
	SecretTainted     bool
}

// Gate is instantiated once per worker invocation and consulted by every
// privileged IPC handler before any side effect. Its two taints are sticky
// for the lifetime of the invocation and never cross gates.
type Gate struct {
	mu         sync.Mutex
	workspace  domain.Workspace
	corruption bool
	secret     bool
	cop        cop.Cop
	scanner    *SecretScanner
}

// Registry tracks live gates keyed by (workspace_folder, invocation_ts).
type Registry struct {
	mu    sync.Mutex
	gates map[GateKey]*Gate
	cop   cop.Cop
}

// NewRegistry creates an empty gate registry. c may be nil; a nil Cop always
// fails open (flagged=false).
func NewRegistry(c cop.Cop) *Registry {
	return &Registry{gates: make(map[GateKey]*Gate), cop: c}
}

// Create instantiates and registers a gate for a freshly spawned worker
// invocation. The workspace's contains_secrets flag pre-sets the secret
// taint at spawn time.
func (r *Registry) Create(key GateKey, ws domain.Workspace) *Gate {
	g := &Gate{
		workspace: ws,
		secret:    ws.Security.ContainsSecrets,
		cop:       r.cop,
		scanner:   NewSecretScanner(),
	}
	r.mu.Lock()
	r.gates[key] = g
	r.mu.Unlock()
	return g
}

// Get returns the gate for key, if one is registered.
func (r *Registry) Get(key GateKey) (*Gate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gates[key]
	return g, ok
}

// Destroy removes the gate for key, releasing its taint state. Called when
// the worker process for that invocation exits.
func (r *Registry) Destroy(key GateKey) {
	r.mu.Lock()
	delete(r.gates, key)
	r.mu.Unlock()
}

// Evaluate applies the taint and trust-bit rules from the security gate
// design to a in Action against service S, returning the decision and the
// gate's taint state after the action.
func (g *Gate) Evaluate(ctx context.Context, action Action) Result {
	if g.workspace.IsAdmin {
		return Result{Decision: domain.DecisionAllow, Reason: "admin workspace"}
	}

	cfg := g.workspace.Security.ServiceConfig(action.Service)

	if action.IsRead {
		return g.evaluateRead(cfg, action)
	}
	return g.evaluateWrite(ctx, cfg, action)
}

func (g *Gate) evaluateRead(cfg domain.ServiceTrustConfig, action Action) Result {
	if cfg.PublicSource == domain.TrustForbidden || cfg.SecretData == domain.TrustForbidden {
		return Result{Decision: domain.DecisionDeny, Reason: fmt.Sprintf("service %s forbidden for reads", action.Service)}
	}

	g.mu.Lock()
	if cfg.PublicSource == domain.TrustTrue {
		g.corruption = true
	}
	if cfg.SecretData == domain.TrustTrue {
		g.secret = true
	}
	corruption, secret := g.corruption, g.secret
	g.mu.Unlock()

	return Result{Decision: domain.DecisionAllow, CorruptionTainted: corruption, SecretTainted: secret}
}

func (g *Gate) evaluateWrite(ctx context.Context, cfg domain.ServiceTrustConfig, action Action) Result {
	if cfg.PublicSink == domain.TrustForbidden || cfg.DangerousWrites == domain.TrustForbidden {
		return Result{Decision: domain.DecisionDeny, Reason: fmt.Sprintf("service %s forbidden for writes", action.Service)}
	}

	if g.scanner.Scan(action.Payload) {
		g.mu.Lock()
		g.secret = true
		g.mu.Unlock()
	}

	g.mu.Lock()
	corruption, secret := g.corruption, g.secret
	g.mu.Unlock()

	isPublicSink := cfg.PublicSink == domain.TrustTrue
	isDangerous := cfg.DangerousWrites == domain.TrustTrue

	// Lethal trifecta: secret-tainted data reaching a public sink always
	// escalates to a human, no Cop involved.
	if isPublicSink && secret {
		return Result{
			Decision:          domain.DecisionNeedsHuman,
			Reason:            "secret-tainted write to a public sink",
			CorruptionTainted: corruption,
			SecretTainted:     secret,
		}
	}

	needsScrutiny := (isPublicSink && corruption) || (isDangerous && (corruption || secret))
	if !needsScrutiny {
		return Result{Decision: domain.DecisionAllow, CorruptionTainted: corruption, SecretTainted: secret}
	}

	verdict := g.cop.Classify(ctx, action.Summary, action.Payload)
	if verdict.Flagged {
		return Result{
			Decision:          domain.DecisionNeedsHuman,
			Reason:            "cop flagged: " + verdict.Reason,
			CorruptionTainted: corruption,
			SecretTainted:     secret,
		}
	}
	return Result{Decision: domain.DecisionAllow, CorruptionTainted: corruption, SecretTainted: secret}
}

// EvaluateBash applies the bash sub-protocol's taint table to a NETWORK or
// UNKNOWN classified command. SAFE commands never reach this method — the
// worker executes them without IPC.
func (g *Gate) EvaluateBash(ctx context.Context, class CommandClass, command string) Result {
	g.mu.Lock()
	corruption, secret := g.corruption, g.secret
	g.mu.Unlock()

	if !corruption && !secret {
		return Result{Decision: domain.DecisionAllow}
	}

	if class == ClassNetwork && corruption && secret {
		return Result{
			Decision:          domain.DecisionNeedsHuman,
			Reason:            "tainted worker issuing network command",
			CorruptionTainted: corruption,
			SecretTainted:     secret,
		}
	}

	// Corruption-only + network, or any taint + unknown: Cop review.
	verdict := g.cop.Classify(ctx, "bash command under taint: "+class.String(), command)
	if verdict.Flagged {
		return Result{
			Decision:          domain.DecisionNeedsHuman,
			Reason:            "cop flagged bash command: " + verdict.Reason,
			CorruptionTainted: corruption,
			SecretTainted:     secret,
		}
	}
	return Result{Decision: domain.DecisionAllow, CorruptionTainted: corruption, SecretTainted: secret}
}

// NotifyFileAccess marks corruption taint for a read of workspace-local
// untrusted files (e.g. project source checked out from a public repo),
// independent of the service-trust-config path.
func (g *Gate) NotifyFileAccess(corrupting bool) {
	if !corrupting {
		return
	}
	g.mu.Lock()
	g.corruption = true
	g.mu.Unlock()
}

// Taints returns the current sticky taint state.
func (g *Gate) Taints() (corruption, secret bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.corruption, g.secret
}

// LogDecision writes a structured log line mirroring the audit event the
// caller is about to persist.
func LogDecision(ev domain.AuditEvent) {
	slog.Info("security.decision",
		"decision", ev.Decision,
		"tool", ev.ToolName,
		"workspace", ev.Workspace,
		"corruption_tainted", ev.CorruptionTainted,
		"secret_tainted", ev.SecretTainted,
		"reason", ev.Reason,
		"request_id", ev.RequestID,
		"timestamp", ev.Timestamp.Format(time.RFC3339),
	)
}
