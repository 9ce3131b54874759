package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SyncCursor returns the singleton sync watermark or nil when no sync has
// ever completed.
func (s *Store) GetSyncCursor(ctx context.Context) (*SyncCursor, error) {
	var lastSyncAt sql.NullString
	var token sql.NullString

	err := s.db.QueryRowContext(ctx,
		"SELECT last_sync_at, sync_token FROM calendar_sync WHERE id = 1").
		Scan(&lastSyncAt, &token)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync cursor: %w", err)
	}
	if !lastSyncAt.Valid || lastSyncAt.String == "" {
		return nil, nil
	}

	t, err := parseTime(lastSyncAt.String)
	if err != nil {
		return nil, fmt.Errorf("parse sync cursor: %w", err)
	}
	return &SyncCursor{LastSyncAt: t, SyncToken: token.String}, nil
}

// SetSyncCursor advances the singleton watermark row.
func (s *Store) SetSyncCursor(ctx context.Context, cursor SyncCursor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO calendar_sync (id, last_sync_at, sync_token)
		VALUES (1, ?, ?)`,
		formatTime(cursor.LastSyncAt), nullString(cursor.SyncToken))
	if err != nil {
		return fmt.Errorf("set sync cursor: %w", err)
	}
	return nil
}
