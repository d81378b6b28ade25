package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
	"github.com/nextlevelbuilder/agenthost/internal/hosterr"
)

type scheduleStore struct{ db *DB }

const scheduledTaskCols = `id, workspace_folder, chat_id, prompt, schedule_kind, schedule_value, context_mode, next_run, last_run, status`

func (s *scheduleStore) Create(ctx context.Context, task domain.ScheduledTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	return s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scheduled_tasks (id, workspace_folder, chat_id, prompt, schedule_kind, schedule_value, context_mode, next_run, last_run, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, task.ID, task.WorkspaceFolder, task.ChatID, task.Prompt, string(task.ScheduleKind), task.ScheduleValue,
			string(task.ContextMode), task.NextRun.UTC().Format(time.RFC3339), formatOptionalTime(task.LastRun), string(task.Status))
		return err
	})
}

func (s *scheduleStore) Get(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	row := s.db.conn.QueryRowContext(ctx, `SELECT `+scheduledTaskCols+` FROM scheduled_tasks WHERE id = ?`, id)
	task, err := scanScheduledTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hosterr.ErrNotFound
	}
	return task, err
}

func (s *scheduleStore) List(ctx context.Context) ([]domain.ScheduledTask, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT `+scheduledTaskCols+` FROM scheduled_tasks ORDER BY next_run`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScheduledTasks(rows)
}

func (s *scheduleStore) ListDue(ctx context.Context, now time.Time) ([]domain.ScheduledTask, error) {
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT `+scheduledTaskCols+` FROM scheduled_tasks
		WHERE status = ? AND next_run <= ?
		ORDER BY next_run
	`, string(domain.TaskActive), now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectScheduledTasks(rows)
}

func (s *scheduleStore) UpdateStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	return s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE scheduled_tasks SET status = ? WHERE id = ?`, string(status), id)
		return err
	})
}

func (s *scheduleStore) UpdateRun(ctx context.Context, id string, lastRun, nextRun time.Time) error {
	return s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE scheduled_tasks SET last_run = ?, next_run = ? WHERE id = ?
		`, lastRun.UTC().Format(time.RFC3339), nextRun.UTC().Format(time.RFC3339), id)
		return err
	})
}

func (s *scheduleStore) Delete(ctx context.Context, id string) error {
	return s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = ?`, id)
		return err
	})
}

func collectScheduledTasks(rows *sql.Rows) ([]domain.ScheduledTask, error) {
	var out []domain.ScheduledTask
	for rows.Next() {
		task, err := scanScheduledTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *task)
	}
	return out, rows.Err()
}

func scanScheduledTask(row scanner) (*domain.ScheduledTask, error) {
	var t domain.ScheduledTask
	var kind, contextMode, status, nextRun, lastRun string
	if err := row.Scan(&t.ID, &t.WorkspaceFolder, &t.ChatID, &t.Prompt, &kind, &t.ScheduleValue, &contextMode, &nextRun, &lastRun, &status); err != nil {
		return nil, err
	}
	t.ScheduleKind = domain.ScheduleKind(kind)
	t.ContextMode = domain.ContextMode(contextMode)
	t.Status = domain.TaskStatus(status)

	parsed, err := time.Parse(time.RFC3339, nextRun)
	if err != nil {
		return nil, fmt.Errorf("parse next_run: %w", err)
	}
	t.NextRun = parsed

	if lastRun != "" {
		if parsed, err := time.Parse(time.RFC3339, lastRun); err == nil {
			t.LastRun = parsed
		}
	}
	return &t, nil
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
