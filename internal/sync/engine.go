package sync

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/koyomidev/koyomi/internal/calendar"
	"github.com/koyomidev/koyomi/internal/clock"
	"github.com/koyomidev/koyomi/internal/config"
	"github.com/koyomidev/koyomi/internal/errors"
	"github.com/koyomidev/koyomi/internal/store"
	"github.com/koyomidev/koyomi/internal/vault"
)

// taskMarker is the free-text reverse link embedded in event descriptions.
// The structured extended property is preferred; the marker stays as a
// fallback for events created by hand or by older tooling. Only the first
// occurrence counts.
var taskMarker = regexp.MustCompile(`(?m)^Task ID:\s*(\S+)`)

const (
	completedTitlePrefix = "✅ "
	completedColorID     = "10"
)

// Engine reconciles calendar events and task records in two ordered passes.
// Calendar→task runs first so external reschedules land in the task state
// before task-side status pushes touch the same events.
type Engine struct {
	store  *store.Store
	vault  *vault.Vault
	client calendar.Client
	loc    *time.Location
	now    clock.Now
	window windowConfig
	retry  retryPolicy
}

type windowConfig struct {
	pastDays   int
	futureDays int
	maxResults int
}

func NewEngine(s *store.Store, v *vault.Vault, client calendar.Client, loc *time.Location, cfg config.SyncConfig, now clock.Now) *Engine {
	if now == nil {
		now = time.Now
	}
	if cfg.WindowPastDays <= 0 {
		cfg.WindowPastDays = config.DefaultSyncWindowPastDays
	}
	if cfg.WindowFutureDays <= 0 {
		cfg.WindowFutureDays = config.DefaultSyncWindowFutureDays
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = config.DefaultSyncMaxResults
	}
	backoff, _ := config.DurationOrDefault(cfg.RetryBackoff, config.DefaultSyncRetryBackoff)
	retryMax := cfg.RetryMax
	if retryMax <= 0 {
		retryMax = config.DefaultSyncRetryMax
	}
	return &Engine{
		store:  s,
		vault:  v,
		client: client,
		loc:    loc,
		now:    now,
		window: windowConfig{
			pastDays:   cfg.WindowPastDays,
			futureDays: cfg.WindowFutureDays,
			maxResults: cfg.MaxResults,
		},
		retry: retryPolicy{maxAttempts: retryMax, backoff: backoff},
	}
}

// Result summarises one bidirectional pass.
type Result struct {
	Pulled int
	Pushed int
}

// RunBidirectionalSync runs calendar→task then task→calendar. A failed pull
// pass aborts before the push pass so stale task state is never pushed over
// fresh calendar edits.
func (e *Engine) RunBidirectionalSync(ctx context.Context) (Result, error) {
	pulled, err := e.CalendarToTasks(ctx)
	if err != nil {
		return Result{Pulled: pulled}, fmt.Errorf("calendar to tasks: %w", err)
	}

	pushed, err := e.TasksToCalendar(ctx)
	if err != nil {
		return Result{Pulled: pulled, Pushed: pushed}, fmt.Errorf("tasks to calendar: %w", err)
	}

	slog.Info("Completed bidirectional sync", "pulled", pulled, "pushed", pushed)
	return Result{Pulled: pulled, Pushed: pushed}, nil
}

// CalendarToTasks pulls externally-made schedule changes into the vault and
// the index. Returns the number of tasks updated.
func (e *Engine) CalendarToTasks(ctx context.Context) (int, error) {
	now := e.now()
	timeMin := now.AddDate(0, 0, -e.window.pastDays)
	var token string
	if cursor, err := e.store.GetSyncCursor(ctx); err != nil {
		return 0, err
	} else if cursor != nil {
		timeMin = cursor.LastSyncAt
		token = cursor.SyncToken
	}
	timeMax := now.AddDate(0, 0, e.window.futureDays)

	var events []calendar.Event
	err := e.retry.do(ctx, "list events", func() error {
		var err error
		events, err = e.client.Events(ctx, timeMin, timeMax, e.window.maxResults)
		return err
	})
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, event := range events {
		changed, err := e.pullEvent(ctx, event)
		if err != nil {
			return updated, err
		}
		if changed {
			updated++
		}
	}

	if err := e.store.SetSyncCursor(ctx, store.SyncCursor{LastSyncAt: now, SyncToken: token}); err != nil {
		return updated, err
	}

	slog.Info("Pulled calendar changes",
		"events", len(events), "updated", updated,
		"window_start", timeMin.Format(time.RFC3339))
	return updated, nil
}

// pullEvent applies one event to its linked task. Unlinked, all-day and
// orphaned events are skipped without error.
func (e *Engine) pullEvent(ctx context.Context, event calendar.Event) (bool, error) {
	taskID := linkedTaskID(event)
	if taskID == "" {
		return false, nil
	}
	if event.Start.AllDay() || event.End.AllDay() {
		return false, nil
	}

	start, err := event.Start.Time()
	if err != nil {
		slog.Warn("Skipping event with bad start time", "event_id", event.ID, "error", err)
		return false, nil
	}
	end, err := event.End.Time()
	if err != nil {
		slog.Warn("Skipping event with bad end time", "event_id", event.ID, "error", err)
		return false, nil
	}
	start = start.In(e.loc)
	end = end.In(e.loc)

	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return false, err
	}
	if task == nil {
		slog.Warn("Event references unknown task", "event_id", event.ID, "task_id", taskID)
		return false, nil
	}
	// A terminal task was already pushed and unlinked; its event still carries
	// the marker, and re-linking here would ping-pong between the two passes.
	if task.Status == store.TaskStatusCompleted || task.Status == store.TaskStatusCancelled {
		return false, nil
	}

	if sameInstant(task.ScheduledStart, start) &&
		sameInstant(task.ScheduledEnd, end) &&
		task.CalendarEventID == event.ID {
		return false, nil
	}

	// The vault document and the index row change together; a reschedule
	// seen on the calendar must not leave the two diverged.
	_, err = e.vault.UpdateTask(taskID, func(fm *vault.TaskFrontmatter) {
		fm.ScheduledStart = start.Format(time.RFC3339)
		fm.ScheduledEnd = end.Format(time.RFC3339)
		fm.CalendarEventID = event.ID
	})
	if err != nil {
		if errors.IsCategory(err, errors.ErrNotFound) {
			slog.Warn("Task indexed but missing from vault", "task_id", taskID)
			return false, nil
		}
		return false, err
	}
	if err := e.store.UpdateTaskSchedule(ctx, taskID, start, end, event.ID); err != nil {
		return false, err
	}

	slog.Info("Pulled reschedule from calendar",
		"task_id", taskID, "event_id", event.ID,
		"start", start.Format(time.RFC3339))
	return true, nil
}

// TasksToCalendar pushes task status changes to their linked events.
// Per-task failures are logged and skipped; one bad calendar call must not
// abort the batch.
func (e *Engine) TasksToCalendar(ctx context.Context) (int, error) {
	tasks, err := e.store.TasksWithCalendarEvent(ctx)
	if err != nil {
		return 0, err
	}

	pushed := 0
	for _, task := range tasks {
		changed, err := e.pushTask(ctx, task)
		if err != nil {
			slog.Error("Failed to push task status to calendar",
				"task_id", task.ID, "event_id", task.CalendarEventID, "error", err)
			continue
		}
		if changed {
			pushed++
		}
	}
	return pushed, nil
}

func (e *Engine) pushTask(ctx context.Context, task *store.Task) (bool, error) {
	switch task.Status {
	case store.TaskStatusCompleted:
		if task.CompletedAt == nil {
			return false, nil
		}
		title := task.Title
		if !strings.HasPrefix(title, completedTitlePrefix) {
			title = completedTitlePrefix + title
		}
		patch := calendar.EventPatch{
			Summary: calendar.String(title),
			ColorID: calendar.String(completedColorID),
		}
		err := e.retry.do(ctx, "mark event completed", func() error {
			return e.client.UpdateEvent(ctx, task.CalendarEventID, patch)
		})
		if err != nil {
			return false, err
		}
		if err := e.unlinkTask(ctx, task.ID); err != nil {
			return false, err
		}
		slog.Info("Marked event completed", "task_id", task.ID, "event_id", task.CalendarEventID)
		return true, nil

	case store.TaskStatusCancelled:
		err := e.retry.do(ctx, "delete cancelled event", func() error {
			return e.client.DeleteEvent(ctx, task.CalendarEventID)
		})
		if err != nil && !errors.IsCategory(err, errors.ErrNotFound) {
			return false, err
		}
		if err := e.unlinkTask(ctx, task.ID); err != nil {
			return false, err
		}
		slog.Info("Deleted event for cancelled task", "task_id", task.ID, "event_id", task.CalendarEventID)
		return true, nil

	default:
		return false, nil
	}
}

// unlinkTask drops the event reference in both copies so the push is not
// repeated on the next pass.
func (e *Engine) unlinkTask(ctx context.Context, taskID string) error {
	_, err := e.vault.UpdateTask(taskID, func(fm *vault.TaskFrontmatter) {
		fm.CalendarEventID = ""
	})
	if err != nil && !errors.IsCategory(err, errors.ErrNotFound) {
		return err
	}
	return e.store.ClearTaskCalendarLink(ctx, taskID)
}

// ScheduleTask books a slot for a task: creates a linked event and writes
// the schedule to the vault document and the index row.
func (e *Engine) ScheduleTask(ctx context.Context, taskID string, slot calendar.FreeSlot) (*calendar.Event, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, errors.NotFound("task " + taskID)
	}

	event := &calendar.Event{
		Summary:     task.Title,
		Description: "Task ID: " + taskID,
		Start:       calendar.EventTime{DateTime: slot.Start.Format(time.RFC3339)},
		End:         calendar.EventTime{DateTime: slot.End.Format(time.RFC3339)},
		ExtendedProperties: &calendar.ExtendedProperties{
			Private: map[string]string{"taskId": taskID},
		},
	}

	var created *calendar.Event
	err = e.retry.do(ctx, "create event", func() error {
		var err error
		created, err = e.client.CreateEvent(ctx, event)
		return err
	})
	if err != nil {
		return nil, err
	}

	_, err = e.vault.UpdateTask(taskID, func(fm *vault.TaskFrontmatter) {
		fm.ScheduledStart = slot.Start.Format(time.RFC3339)
		fm.ScheduledEnd = slot.End.Format(time.RFC3339)
		fm.CalendarEventID = created.ID
	})
	if err != nil {
		return nil, err
	}
	if err := e.store.UpdateTaskSchedule(ctx, taskID, slot.Start, slot.End, created.ID); err != nil {
		return nil, err
	}

	slog.Info("Scheduled task", "task_id", taskID, "event_id", created.ID,
		"start", slot.Start.Format(time.RFC3339))
	return created, nil
}

// linkedTaskID recovers the task reference from an event: the structured
// extended property wins, the description marker is the fallback.
func linkedTaskID(event calendar.Event) string {
	if id := event.TaskID(); id != "" {
		return id
	}
	if m := taskMarker.FindStringSubmatch(event.Description); m != nil {
		return m[1]
	}
	return ""
}

func sameInstant(a *time.Time, b time.Time) bool {
	return a != nil && a.Equal(b)
}
