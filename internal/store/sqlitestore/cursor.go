package sqlitestore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
)

type cursorStore struct{ db *DB }

func (s *cursorStore) GetCursor(ctx context.Context, channel, chatID string, dir domain.CursorDirection) (string, error) {
	var value string
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT value FROM channel_cursors WHERE channel = ? AND chat_id = ? AND direction = ?
	`, channel, chatID, string(dir)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// AdvanceCursor stores value only if it sorts at or after the current
// cursor value — lexicographic order on monotonic filenames equals
// chronological order, so a plain string comparison is sufficient.
func (s *cursorStore) AdvanceCursor(ctx context.Context, channel, chatID string, dir domain.CursorDirection, value string) error {
	return s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO channel_cursors (channel, chat_id, direction, value)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(channel, chat_id, direction) DO UPDATE SET
				value = excluded.value
			WHERE excluded.value > channel_cursors.value
		`, channel, chatID, string(dir), value)
		return err
	})
}
