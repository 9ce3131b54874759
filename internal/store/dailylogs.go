package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertDailyLog inserts a daily log row outside a rebuild.
func (s *Store) InsertDailyLog(ctx context.Context, d *DailyLog) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return InsertDailyLog(ctx, tx, d)
	})
}

// UpdateMorningCheckin stamps the morning check-in time on an existing log
// row. Energy levels are written through UpdateEnergyLevel so neither update
// clobbers the other.
func (s *Store) UpdateMorningCheckin(ctx context.Context, logID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE daily_logs
		SET morning_checkin_at = ?
		WHERE id = ?`,
		formatTime(at), logID)
	if err != nil {
		return fmt.Errorf("update morning checkin %s: %w", logID, err)
	}
	return nil
}

// UpdateEveningReview stamps the evening review time on an existing log row.
func (s *Store) UpdateEveningReview(ctx context.Context, logID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE daily_logs
		SET evening_review_at = ?
		WHERE id = ?`,
		formatTime(at), logID)
	if err != nil {
		return fmt.Errorf("update evening review %s: %w", logID, err)
	}
	return nil
}

// UpdateEnergyLevel records a morning or evening energy level without
// touching the check-in timestamps.
func (s *Store) UpdateEnergyLevel(ctx context.Context, logID string, evening bool, level int) error {
	column := "energy_level_morning"
	if evening {
		column = "energy_level_evening"
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE daily_logs SET "+column+" = ? WHERE id = ?", level, logID)
	if err != nil {
		return fmt.Errorf("update energy level %s: %w", logID, err)
	}
	return nil
}

// ReplaceHabits swaps the habit rows for a log in one transaction.
func (s *Store) ReplaceHabits(ctx context.Context, logID string, habits map[string]bool) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM daily_log_habits WHERE log_id = ?", logID); err != nil {
			return fmt.Errorf("clear habits: %w", err)
		}
		return InsertHabits(ctx, tx, logID, habits)
	})
}
