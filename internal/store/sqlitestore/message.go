package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/agenthost/internal/domain"
)

type messageStore struct{ db *DB }

const messageSelectCols = `chat_id, id, sender, sender_name, content, timestamp, direction, metadata`

// Append inserts msg if (chat_id, id) is new; a duplicate delivery is a
// silent no-op, not an error, so the IPC/channel retry path can call this
// unconditionally.
func (s *messageStore) Append(ctx context.Context, msg domain.Message) (bool, error) {
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return false, fmt.Errorf("marshal metadata: %w", err)
	}

	var inserted bool
	err = s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO messages (chat_id, id, sender, sender_name, content, timestamp, direction, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, msg.ChatID, msg.ID, msg.Sender, msg.SenderName, msg.Content, msg.Timestamp, string(msg.Direction), string(metadata))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n > 0
		return nil
	})
	return inserted, err
}

func (s *messageStore) Exists(ctx context.Context, chatID, id string) (bool, error) {
	var count int
	err := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE chat_id = ? AND id = ?`, chatID, id).Scan(&count)
	return count > 0, err
}

func (s *messageStore) History(ctx context.Context, chatID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var clearedAt string
	_ = s.db.conn.QueryRowContext(ctx, `SELECT cleared_at FROM chat_clears WHERE chat_id = ?`, chatID).Scan(&clearedAt)

	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT `+messageSelectCols+` FROM messages
		WHERE chat_id = ? AND timestamp > ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, chatID, clearedAt, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse back to chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// PruneBySender deletes all but the most recent keepLast messages from the
// given sender in a chat — used by the audit/retention housekeeping job,
// never by the hot path.
func (s *messageStore) PruneBySender(ctx context.Context, chatID, sender string, keepLast int) error {
	return s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM messages
			WHERE chat_id = ? AND sender = ? AND id NOT IN (
				SELECT id FROM messages WHERE chat_id = ? AND sender = ?
				ORDER BY timestamp DESC LIMIT ?
			)
		`, chatID, sender, chatID, sender, keepLast)
		return err
	})
}

// ClearHistory records a cleared_at marker for chatID; subsequent History
// calls only return messages strictly after it. History is archived, not
// deleted, so audit and prune_messages_by_sender retention still see it.
func (s *messageStore) ClearHistory(ctx context.Context, chatID string, at time.Time) error {
	return s.db.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chat_clears (chat_id, cleared_at) VALUES (?, ?)
			ON CONFLICT (chat_id) DO UPDATE SET cleared_at = excluded.cleared_at
			WHERE excluded.cleared_at > chat_clears.cleared_at
		`, chatID, at.UTC().Format(time.RFC3339Nano))
		return err
	})
}

func scanMessage(row scanner) (*domain.Message, error) {
	var msg domain.Message
	var direction, metadata string
	if err := row.Scan(&msg.ChatID, &msg.ID, &msg.Sender, &msg.SenderName, &msg.Content, &msg.Timestamp, &direction, &metadata); err != nil {
		return nil, err
	}
	msg.Direction = domain.MessageDirection(direction)
	if metadata != "" && metadata != "null" {
		if err := json.Unmarshal([]byte(metadata), &msg.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &msg, nil
}
