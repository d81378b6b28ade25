// Package audit wraps the security decision log: persisting every
// gate decision, tracing each one as an OpenTelemetry span via
// go.opentelemetry.io/otel, and a retention pruning housekeeping job.
package audit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
	"github.com/nextlevelbuilder/agenthost/internal/security"
	"github.com/nextlevelbuilder/agenthost/internal/store"
)

const tracerName = "github.com/nextlevelbuilder/agenthost/internal/audit"

// Log records a security gate decision: it writes the structured log line
// (via security.LogDecision), appends the AuditEvent to the durable store,
// and wraps the whole evaluation in a trace span so a gate decision shows
// up alongside the turn it belongs to.
type Log struct {
	store store.AuditStore
}

// New constructs an audit Log backed by store.
func New(auditStore store.AuditStore) *Log {
	return &Log{store: auditStore}
}

// RecordDecision persists ev and emits a span describing it. ctx should
// carry the parent span for the enclosing IPC task handler, if any.
func (l *Log) RecordDecision(ctx context.Context, ev domain.AuditEvent) error {
	tracer := otel.Tracer(tracerName)
	_, span := tracer.Start(ctx, "security.gate_decision", trace.WithAttributes(
		attribute.String("workspace", ev.Workspace),
		attribute.String("tool", ev.ToolName),
		attribute.String("decision", string(ev.Decision)),
		attribute.Bool("corruption_tainted", ev.CorruptionTainted),
		attribute.Bool("secret_tainted", ev.SecretTainted),
		attribute.String("request_id", ev.RequestID),
	))
	defer span.End()

	if ev.Decision == domain.DecisionDeny {
		span.SetStatus(codes.Error, ev.Reason)
	}

	security.LogDecision(ev)

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return l.store.Append(ctx, ev)
}

// RecordFromGateResult is a convenience wrapper turning a security.Result
// directly into a persisted, traced AuditEvent.
func (l *Log) RecordFromGateResult(ctx context.Context, workspace, toolName, requestID string, res security.Result) error {
	return l.RecordDecision(ctx, domain.AuditEvent{
		Decision:          res.Decision,
		ToolName:          toolName,
		Workspace:         workspace,
		CorruptionTainted: res.CorruptionTainted,
		SecretTainted:     res.SecretTainted,
		Reason:            res.Reason,
		RequestID:         requestID,
		Timestamp:         time.Now().UTC(),
	})
}

// PruneRetention deletes AuditEvents older than retention. Registered as a
// built-in, non-disableable host job by the scheduler's bootstrap.
func (l *Log) PruneRetention(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	return l.store.PruneOlderThan(ctx, cutoff)
}
