package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
	"github.com/nextlevelbuilder/agenthost/internal/hosterr"
)

type workspaceStore struct{ db *DB }

const workspaceSelectCols = `folder, id, name, trigger, is_admin, security, container_config, created_at`

func (s *workspaceStore) Upsert(ctx context.Context, ws domain.Workspace) error {
	security, err := json.Marshal(ws.Security)
	if err != nil {
		return fmt.Errorf("marshal security: %w", err)
	}
	containerConfig, err := json.Marshal(ws.ContainerConfig)
	if err != nil {
		return fmt.Errorf("marshal container config: %w", err)
	}

	return s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workspaces (folder, id, name, trigger, is_admin, security, container_config, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(folder) DO UPDATE SET
				id = excluded.id,
				name = excluded.name,
				trigger = excluded.trigger,
				is_admin = excluded.is_admin,
				security = excluded.security,
				container_config = excluded.container_config
		`, ws.Folder, ws.ID, ws.Name, ws.Trigger, ws.IsAdmin, string(security), string(containerConfig), ws.CreatedAt.UTC().Format(time.RFC3339))
		return err
	})
}

func (s *workspaceStore) Get(ctx context.Context, folder string) (*domain.Workspace, error) {
	row := s.db.conn.QueryRowContext(ctx, `SELECT `+workspaceSelectCols+` FROM workspaces WHERE folder = ?`, folder)
	return scanWorkspace(row)
}

func (s *workspaceStore) GetByID(ctx context.Context, id string) (*domain.Workspace, error) {
	row := s.db.conn.QueryRowContext(ctx, `SELECT `+workspaceSelectCols+` FROM workspaces WHERE id = ?`, id)
	return scanWorkspace(row)
}

func (s *workspaceStore) List(ctx context.Context) ([]domain.Workspace, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT `+workspaceSelectCols+` FROM workspaces ORDER BY folder`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Workspace
	for rows.Next() {
		ws, err := scanWorkspaceRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ws)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWorkspace(row *sql.Row) (*domain.Workspace, error) {
	ws, err := scanWorkspaceRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hosterr.ErrNotFound
	}
	return ws, err
}

func scanWorkspaceRow(row scanner) (*domain.Workspace, error) {
	var ws domain.Workspace
	var security, containerConfig, createdAt string
	var isAdmin bool

	if err := row.Scan(&ws.Folder, &ws.ID, &ws.Name, &ws.Trigger, &isAdmin, &security, &containerConfig, &createdAt); err != nil {
		return nil, err
	}
	ws.IsAdmin = isAdmin
	if err := json.Unmarshal([]byte(security), &ws.Security); err != nil {
		return nil, fmt.Errorf("unmarshal security: %w", err)
	}
	if err := json.Unmarshal([]byte(containerConfig), &ws.ContainerConfig); err != nil {
		return nil, fmt.Errorf("unmarshal container config: %w", err)
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	ws.CreatedAt = t
	return &ws, nil
}
