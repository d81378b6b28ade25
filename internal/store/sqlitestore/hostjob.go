package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
)

type hostJobStore struct{ db *DB }

const hostJobCols = `id, workspace_folder, command, schedule_kind, schedule_value, timeout_seconds, enabled, next_run, last_run`

func (s *hostJobStore) Create(ctx context.Context, job domain.HostJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	return s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO host_jobs (id, workspace_folder, command, schedule_kind, schedule_value, timeout_seconds, enabled, next_run, last_run)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, job.ID, job.WorkspaceFolder, job.Command, string(job.ScheduleKind), job.ScheduleValue,
			job.TimeoutSeconds, job.Enabled, job.NextRun.UTC().Format(time.RFC3339), formatOptionalTime(job.LastRun))
		return err
	})
}

func (s *hostJobStore) List(ctx context.Context) ([]domain.HostJob, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT `+hostJobCols+` FROM host_jobs ORDER BY next_run`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHostJobs(rows)
}

func (s *hostJobStore) ListDue(ctx context.Context, now time.Time) ([]domain.HostJob, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT `+hostJobCols+` FROM host_jobs
		WHERE enabled = 1 AND next_run <= ?
		ORDER BY next_run
	`, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectHostJobs(rows)
}

func (s *hostJobStore) UpdateRun(ctx context.Context, id string, lastRun, nextRun time.Time) error {
	return s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE host_jobs SET last_run = ?, next_run = ? WHERE id = ?
		`, lastRun.UTC().Format(time.RFC3339), nextRun.UTC().Format(time.RFC3339), id)
		return err
	})
}

func collectHostJobs(rows *sql.Rows) ([]domain.HostJob, error) {
	var out []domain.HostJob
	for rows.Next() {
		job, err := scanHostJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func scanHostJob(row scanner) (*domain.HostJob, error) {
	var j domain.HostJob
	var kind, nextRun, lastRun string
	if err := row.Scan(&j.ID, &j.WorkspaceFolder, &j.Command, &kind, &j.ScheduleValue, &j.TimeoutSeconds, &j.Enabled, &nextRun, &lastRun); err != nil {
		return nil, err
	}
	j.ScheduleKind = domain.ScheduleKind(kind)

	parsed, err := time.Parse(time.RFC3339, nextRun)
	if err != nil {
		return nil, fmt.Errorf("parse next_run: %w", err)
	}
	j.NextRun = parsed

	if lastRun != "" {
		if parsed, err := time.Parse(time.RFC3339, lastRun); err == nil {
			j.LastRun = parsed
		}
	}
	return &j, nil
}
