package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so projection writes can run
// standalone or inside the rebuild transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const taskColumns = `id, title, status, created_at, updated_at, due_date, priority,
	project_id, project_name, time_estimate_minutes, time_estimate_source,
	time_actual_minutes, calendar_event_id, scheduled_start, scheduled_end,
	context, completed_at, file_path`

func scanTask(row interface{ Scan(dest ...any) error }) (*Task, error) {
	var t Task
	var createdAt, updatedAt, dueDate, priority sql.NullString
	var projectID, projectName, estimateSource sql.NullString
	var estimate, actual sql.NullInt64
	var eventID, schedStart, schedEnd, taskContext, completedAt, filePath sql.NullString
	var title, status sql.NullString

	err := row.Scan(
		&t.ID, &title, &status, &createdAt, &updatedAt, &dueDate, &priority,
		&projectID, &projectName, &estimate, &estimateSource,
		&actual, &eventID, &schedStart, &schedEnd,
		&taskContext, &completedAt, &filePath,
	)
	if err != nil {
		return nil, err
	}

	t.Title = title.String
	t.Status = status.String
	t.CreatedAt = parseTimePtr(createdAt)
	t.UpdatedAt = parseTimePtr(updatedAt)
	t.DueDate = dueDate.String
	t.Priority = priority.String
	t.ProjectID = projectID.String
	t.ProjectName = projectName.String
	t.TimeEstimateMinutes = intPtr(estimate)
	t.TimeEstimateSource = estimateSource.String
	t.TimeActualMinutes = intPtr(actual)
	t.CalendarEventID = eventID.String
	t.ScheduledStart = parseTimePtr(schedStart)
	t.ScheduledEnd = parseTimePtr(schedEnd)
	t.Context = taskContext.String
	t.CompletedAt = parseTimePtr(completedAt)
	t.FilePath = filePath.String
	return &t, nil
}

// GetTask returns the task row or nil when no row exists.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

// TasksWithCalendarEvent returns every task holding a calendar back-reference.
func (s *Store) TasksWithCalendarEvent(ctx context.Context) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE calendar_event_id IS NOT NULL AND calendar_event_id != ''")
	if err != nil {
		return nil, fmt.Errorf("query linked tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan linked task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// TasksByStatus returns tasks in the given status ordered by creation time.
func (s *Store) TasksByStatus(ctx context.Context, status string) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE status = ? ORDER BY created_at ASC", status)
	if err != nil {
		return nil, fmt.Errorf("query tasks by status: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// InsertTask writes the projection row plus tag and people side rows.
func InsertTask(ctx context.Context, q dbtx, t *Task) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, nullString(t.Title), nullString(t.Status),
		formatTimePtr(t.CreatedAt), formatTimePtr(t.UpdatedAt),
		nullString(t.DueDate), nullString(t.Priority),
		nullString(t.ProjectID), nullString(t.ProjectName),
		nullInt(t.TimeEstimateMinutes), nullString(t.TimeEstimateSource),
		nullInt(t.TimeActualMinutes), nullString(t.CalendarEventID),
		formatTimePtr(t.ScheduledStart), formatTimePtr(t.ScheduledEnd),
		nullString(t.Context), formatTimePtr(t.CompletedAt),
		nullString(t.FilePath),
	)
	if err != nil {
		return fmt.Errorf("insert task %s: %w", t.ID, err)
	}

	for _, tag := range t.Tags {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO task_tags (task_id, tag) VALUES (?, ?)", t.ID, tag); err != nil {
			return fmt.Errorf("insert task tag: %w", err)
		}
	}
	for _, personID := range t.PeopleIDs {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO task_people (task_id, person_id) VALUES (?, ?)", t.ID, personID); err != nil {
			return fmt.Errorf("insert task person: %w", err)
		}
	}
	return nil
}

// InsertTask inserts a task row outside a rebuild (e.g. on task creation).
func (s *Store) InsertTask(ctx context.Context, t *Task) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return InsertTask(ctx, tx, t)
	})
}

// UpdateTaskSchedule writes sync-driven schedule fields to the projection.
func (s *Store) UpdateTaskSchedule(ctx context.Context, id string, start, end time.Time, eventID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET scheduled_start = ?, scheduled_end = ?, calendar_event_id = ?, updated_at = ?
		WHERE id = ?`,
		formatTime(start), formatTime(end), eventID, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update task schedule %s: %w", id, err)
	}
	return nil
}

// UpdateTaskStatus writes a status transition, including the new file path
// when the vault relocated the document.
func (s *Store) UpdateTaskStatus(ctx context.Context, id, status string, completedAt *time.Time, filePath string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, completed_at = ?, file_path = ?, updated_at = ?
		WHERE id = ?`,
		status, formatTimePtr(completedAt), nullString(filePath),
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update task status %s: %w", id, err)
	}
	return nil
}

// ClearTaskCalendarLink drops the event back-reference after a status push
// so the next pass does not touch the event again.
func (s *Store) ClearTaskCalendarLink(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET calendar_event_id = NULL, updated_at = ?
		WHERE id = ?`,
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("clear task calendar link %s: %w", id, err)
	}
	return nil
}

// TaskTags returns the tag side rows for a task.
func (s *Store) TaskTags(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT tag FROM task_tags WHERE task_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("query task tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// CountTasks returns the number of task rows, used by health checks.
func (s *Store) CountTasks(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&n)
	return n, err
}
