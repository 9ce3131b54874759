package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

func scanSession(row interface{ Scan(dest ...any) error }) (*Session, error) {
	var s Session
	var createdAt, updatedAt, expiresAt string
	var contextData sql.NullString

	err := row.Scan(&s.SessionID, &s.UserID, &s.ChatID,
		&createdAt, &updatedAt, &expiresAt,
		&s.ContextType, &contextData, &s.MessageCount)
	if err != nil {
		return nil, err
	}

	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse session created_at: %w", err)
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse session updated_at: %w", err)
	}
	if s.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse session expires_at: %w", err)
	}
	s.ContextData = contextData.String
	return &s, nil
}

const sessionColumns = `session_id, user_id, chat_id, created_at, updated_at,
	expires_at, context_type, context_data, message_count`

// InsertSession writes a new session row.
func (s *Store) InsertSession(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.SessionID, sess.UserID, sess.ChatID,
		formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt), formatTime(sess.ExpiresAt),
		sess.ContextType, nullString(sess.ContextData), sess.MessageCount)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession returns the session row regardless of expiry, or nil.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE session_id = ?", sessionID)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	return sess, nil
}

// LatestSession returns the most recently created session for the
// (user, context type) key, expired or not, or nil.
func (s *Store) LatestSession(ctx context.Context, userID int64, contextType string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ? AND context_type = ?
		ORDER BY created_at DESC
		LIMIT 1`, userID, contextType)

	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest session: %w", err)
	}
	return sess, nil
}

// AppendMessage inserts the message row and bumps the session counters in
// one transaction so message_count stays equal to the row count.
func (s *Store) AppendMessage(ctx context.Context, msg *Message) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, session_id, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			msg.ID, msg.SessionID, msg.Role, msg.Content, formatTime(msg.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sessions
			SET message_count = message_count + 1, updated_at = ?
			WHERE session_id = ?`,
			formatTime(msg.CreatedAt), msg.SessionID)
		if err != nil {
			return fmt.Errorf("bump session counters: %w", err)
		}
		return nil
	})
}

// SessionMessages returns messages ordered by creation time ascending.
func (s *Store) SessionMessages(ctx context.Context, sessionID string, limit int) ([]*Message, error) {
	query := `
		SELECT id, session_id, role, content, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY created_at ASC`
	args := []any{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse message created_at: %w", err)
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// SetSessionExpiry overwrites expires_at; used for explicit session end.
func (s *Store) SetSessionExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET expires_at = ? WHERE session_id = ?",
		formatTime(expiresAt), sessionID)
	if err != nil {
		return fmt.Errorf("set session expiry: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes sessions expired before cutoff along with
// their messages, returning how many sessions were removed.
func (s *Store) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int, error) {
	var deleted int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT session_id FROM sessions WHERE expires_at < ?", formatTime(cutoff))
		if err != nil {
			return fmt.Errorf("query expired sessions: %w", err)
		}
		var expired []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			expired = append(expired, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(expired)), ",")
		args := make([]any, len(expired))
		for i, id := range expired {
			args[i] = id
		}

		if _, err := tx.ExecContext(ctx,
			"DELETE FROM messages WHERE session_id IN ("+placeholders+")", args...); err != nil {
			return fmt.Errorf("delete expired messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM sessions WHERE session_id IN ("+placeholders+")", args...); err != nil {
			return fmt.Errorf("delete expired sessions: %w", err)
		}
		deleted = len(expired)
		return nil
	})
	return deleted, err
}

// CountSessionMessages returns the number of message rows for a session.
func (s *Store) CountSessionMessages(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&n)
	return n, err
}
