package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
	"github.com/nextlevelbuilder/agenthost/internal/hosterr"
)

type sessionStore struct{ db *DB }

func (s *sessionStore) Get(ctx context.Context, workspaceFolder string) (*domain.Session, error) {
	var session domain.Session
	var updatedAt string
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT workspace_folder, token, updated_at FROM sessions WHERE workspace_folder = ?
	`, workspaceFolder).Scan(&session.WorkspaceFolder, &session.Token, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hosterr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	session.UpdatedAt = t
	return &session, nil
}

func (s *sessionStore) Set(ctx context.Context, session domain.Session) error {
	return s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (workspace_folder, token, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(workspace_folder) DO UPDATE SET
				token = excluded.token,
				updated_at = excluded.updated_at
		`, session.WorkspaceFolder, session.Token, session.UpdatedAt.UTC().Format(time.RFC3339))
		return err
	})
}
