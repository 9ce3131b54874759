package store

import (
	"context"
	"database/sql"
	"fmt"
)

// WipeProjections clears the four vault-derived tables and their side tables.
// Runs on the rebuild transaction so readers never observe an empty index.
func WipeProjections(ctx context.Context, q dbtx) error {
	for _, table := range []string{
		"tasks", "task_tags", "task_people",
		"projects", "people", "daily_logs", "daily_log_habits",
	} {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("wipe %s: %w", table, err)
		}
	}
	return nil
}

// InsertProject writes a project projection row.
func InsertProject(ctx context.Context, q dbtx, p *Project) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO projects (id, title, status, created_at, updated_at, deadline, file_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, nullString(p.Title), nullString(p.Status),
		formatTimePtr(p.CreatedAt), formatTimePtr(p.UpdatedAt),
		nullString(p.Deadline), nullString(p.FilePath))
	if err != nil {
		return fmt.Errorf("insert project %s: %w", p.ID, err)
	}
	return nil
}

// InsertPerson writes a person projection row.
func InsertPerson(ctx context.Context, q dbtx, p *Person) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO people (id, name, role, company, email, phone,
			created_at, updated_at, last_contact, contact_frequency_days, file_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, nullString(p.Name), nullString(p.Role), nullString(p.Company),
		nullString(p.Email), nullString(p.Phone),
		formatTimePtr(p.CreatedAt), formatTimePtr(p.UpdatedAt),
		nullString(p.LastContact), nullInt(p.ContactFrequencyDays),
		nullString(p.FilePath))
	if err != nil {
		return fmt.Errorf("insert person %s: %w", p.ID, err)
	}
	return nil
}

// InsertDailyLog writes a daily log projection row.
func InsertDailyLog(ctx context.Context, q dbtx, d *DailyLog) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO daily_logs (id, date, created_at, morning_checkin_at,
			evening_review_at, total_planned_minutes, total_actual_minutes,
			energy_level_morning, energy_level_evening, file_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, nullString(d.Date), formatTimePtr(d.CreatedAt),
		formatTimePtr(d.MorningCheckinAt), formatTimePtr(d.EveningReviewAt),
		d.TotalPlannedMinutes, d.TotalActualMinutes,
		nullInt(d.EnergyLevelMorning), nullInt(d.EnergyLevelEvening),
		nullString(d.FilePath))
	if err != nil {
		return fmt.Errorf("insert daily log %s: %w", d.ID, err)
	}
	return nil
}

// InsertHabits writes habit rows for a daily log.
func InsertHabits(ctx context.Context, q dbtx, logID string, habits map[string]bool) error {
	for key, completed := range habits {
		done := 0
		if completed {
			done = 1
		}
		if _, err := q.ExecContext(ctx,
			"INSERT INTO daily_log_habits (log_id, habit_key, completed) VALUES (?, ?, ?)",
			logID, key, done); err != nil {
			return fmt.Errorf("insert habit %s: %w", key, err)
		}
	}
	return nil
}

// GetDailyLog returns the log row for a date or nil.
func (s *Store) GetDailyLog(ctx context.Context, date string) (*DailyLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, created_at, morning_checkin_at, evening_review_at,
			total_planned_minutes, total_actual_minutes,
			energy_level_morning, energy_level_evening, file_path
		FROM daily_logs WHERE date = ?`, date)
	if err != nil {
		return nil, fmt.Errorf("get daily log: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanDailyLog(rows)
}

func scanDailyLog(row interface{ Scan(dest ...any) error }) (*DailyLog, error) {
	var d DailyLog
	var date, createdAt, morning, evening, filePath sql.NullString
	var energyMorning, energyEvening sql.NullInt64

	err := row.Scan(&d.ID, &date, &createdAt, &morning, &evening,
		&d.TotalPlannedMinutes, &d.TotalActualMinutes,
		&energyMorning, &energyEvening, &filePath)
	if err != nil {
		return nil, err
	}

	d.Date = date.String
	d.CreatedAt = parseTimePtr(createdAt)
	d.MorningCheckinAt = parseTimePtr(morning)
	d.EveningReviewAt = parseTimePtr(evening)
	d.EnergyLevelMorning = intPtr(energyMorning)
	d.EnergyLevelEvening = intPtr(energyEvening)
	d.FilePath = filePath.String
	return &d, nil
}
