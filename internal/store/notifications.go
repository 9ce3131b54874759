package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const notificationColumns = `id, type, scheduled_for, sent_at, acknowledged_at, response_summary`

func scanNotification(row interface{ Scan(dest ...any) error }) (*Notification, error) {
	var n Notification
	var scheduledFor string
	var sentAt, ackedAt, summary sql.NullString

	err := row.Scan(&n.ID, &n.Type, &scheduledFor, &sentAt, &ackedAt, &summary)
	if err != nil {
		return nil, err
	}

	if n.ScheduledFor, err = parseTime(scheduledFor); err != nil {
		return nil, fmt.Errorf("parse notification scheduled_for: %w", err)
	}
	n.SentAt = parseTimePtr(sentAt)
	n.AcknowledgedAt = parseTimePtr(ackedAt)
	n.ResponseSummary = summary.String
	return &n, nil
}

// InsertNotification tracks a new notification.
func (s *Store) InsertNotification(ctx context.Context, n *Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, type, scheduled_for)
		VALUES (?, ?, ?)`,
		n.ID, n.Type, formatTime(n.ScheduledFor))
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// GetNotification returns the notification row or nil.
func (s *Store) GetNotification(ctx context.Context, id string) (*Notification, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+notificationColumns+" FROM notifications WHERE id = ?", id)

	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification %s: %w", id, err)
	}
	return n, nil
}

// MarkNotificationSent stamps sent_at.
func (s *Store) MarkNotificationSent(ctx context.Context, id string, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET sent_at = ? WHERE id = ?",
		formatTime(sentAt), id)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// AcknowledgeNotification stamps acknowledged_at with an optional summary.
func (s *Store) AcknowledgeNotification(ctx context.Context, id string, ackedAt time.Time, responseSummary string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications
		SET acknowledged_at = ?, response_summary = ?
		WHERE id = ?`,
		formatTime(ackedAt), nullString(responseSummary), id)
	if err != nil {
		return fmt.Errorf("acknowledge notification: %w", err)
	}
	return nil
}

// PendingNotifications returns sent-but-unacknowledged rows, newest first.
func (s *Store) PendingNotifications(ctx context.Context) ([]*Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE sent_at IS NOT NULL AND acknowledged_at IS NULL
		ORDER BY sent_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query pending notifications: %w", err)
	}
	defer rows.Close()

	var pending []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		pending = append(pending, n)
	}
	return pending, rows.Err()
}
