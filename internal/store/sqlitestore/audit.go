package sqlitestore

import (
	"context"
	"database/sql"
	"time"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
)

type auditStore struct{ db *DB }

func (s *auditStore) Append(ctx context.Context, ev domain.AuditEvent) error {
	return s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO audit_events (request_id, decision, tool_name, workspace, corruption_tainted, secret_tainted, reason, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, ev.RequestID, string(ev.Decision), ev.ToolName, ev.Workspace, ev.CorruptionTainted, ev.SecretTainted, ev.Reason, ev.Timestamp.UTC().Format(time.RFC3339))
		return err
	})
}

func (s *auditStore) ListSince(ctx context.Context, since time.Time) ([]domain.AuditEvent, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT request_id, decision, tool_name, workspace, corruption_tainted, secret_tainted, reason, timestamp
		FROM audit_events WHERE timestamp >= ? ORDER BY timestamp
	`, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		var ev domain.AuditEvent
		var decision, timestamp string
		if err := rows.Scan(&ev.RequestID, &decision, &ev.ToolName, &ev.Workspace, &ev.CorruptionTainted, &ev.SecretTainted, &ev.Reason, &timestamp); err != nil {
			return nil, err
		}
		ev.Decision = domain.GateDecision(decision)
		ts, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return nil, err
		}
		ev.Timestamp = ts
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PruneOlderThan deletes audit events older than cutoff, returning the
// number of rows removed. Called by the scheduler's retention host-job.
func (s *auditStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var affected int64
	err := s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < ?`, cutoff.UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}
