package checkin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/koyomidev/koyomi/internal/clock"
	"github.com/koyomidev/koyomi/internal/errors"
	"github.com/koyomidev/koyomi/internal/notify"
	"github.com/koyomidev/koyomi/internal/store"
	"github.com/koyomidev/koyomi/internal/vault"
)

// Notification types tracked by check-ins.
const (
	TypeMorningCheckin  = "morning-checkin"
	TypeEveningReview   = "evening-review"
	TypePeriodicCheckin = "periodic-checkin"
)

const dateLayout = "2006-01-02"

// Service drives the scheduled check-ins: each one stamps the daily log in
// both the vault and the index and goes out as a tracked notification, so an
// ignored check-in escalates like any other unacknowledged push.
type Service struct {
	store  *store.Store
	vault  *vault.Vault
	notify *notify.Manager
	loc    *time.Location
	now    clock.Now
}

func NewService(s *store.Store, v *vault.Vault, n *notify.Manager, loc *time.Location, now clock.Now) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: s, vault: v, notify: n, loc: loc, now: now}
}

// Morning opens the day: ensures the daily log exists, stamps the check-in
// and pushes a plan summary.
func (s *Service) Morning(ctx context.Context) error {
	now := s.now().In(s.loc)
	date := now.Format(dateLayout)

	log, err := s.ensureIndexedLog(ctx, date)
	if err != nil {
		return err
	}

	if _, err := s.vault.UpdateDailyLog(date, func(fm *vault.DailyLogFrontmatter) {
		fm.MorningCheckinAt = now.Format(time.RFC3339)
	}); err != nil {
		return err
	}
	if err := s.store.UpdateMorningCheckin(ctx, log.ID, now); err != nil {
		return err
	}

	body, err := s.morningBody(ctx, now)
	if err != nil {
		return err
	}
	return s.send(ctx, TypeMorningCheckin, "Good morning", body, now)
}

// Evening closes the day with a review prompt and the day's completion tally.
func (s *Service) Evening(ctx context.Context) error {
	now := s.now().In(s.loc)
	date := now.Format(dateLayout)

	log, err := s.ensureIndexedLog(ctx, date)
	if err != nil {
		return err
	}

	if _, err := s.vault.UpdateDailyLog(date, func(fm *vault.DailyLogFrontmatter) {
		fm.EveningReviewAt = now.Format(time.RFC3339)
	}); err != nil {
		return err
	}
	if err := s.store.UpdateEveningReview(ctx, log.ID, now); err != nil {
		return err
	}

	body, err := s.eveningBody(ctx, now)
	if err != nil {
		return err
	}
	return s.send(ctx, TypeEveningReview, "Evening review", body, now)
}

// Periodic is the work-hours nudge; it does not touch the daily log.
func (s *Service) Periodic(ctx context.Context) error {
	now := s.now().In(s.loc)

	body, err := s.periodicBody(ctx, now)
	if err != nil {
		return err
	}
	if body == "" {
		slog.Debug("Skipping periodic checkin, nothing scheduled")
		return nil
	}
	return s.send(ctx, TypePeriodicCheckin, "Check-in", body, now)
}

// ensureIndexedLog makes sure both the vault file and the index row exist
// for the date, returning the index row.
func (s *Service) ensureIndexedLog(ctx context.Context, date string) (*store.DailyLog, error) {
	doc, err := s.vault.EnsureDailyLog(date)
	if err != nil {
		return nil, err
	}

	log, err := s.store.GetDailyLog(ctx, date)
	if err != nil {
		return nil, err
	}
	if log != nil {
		return log, nil
	}

	log = &store.DailyLog{
		ID:       doc.Frontmatter.ID,
		Date:     date,
		FilePath: doc.Path,
	}
	if t := doc.Frontmatter.CreatedAt; t != "" {
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			log.CreatedAt = &parsed
		}
	}
	if err := s.store.InsertDailyLog(ctx, log); err != nil {
		return nil, err
	}
	return log, nil
}

func (s *Service) send(ctx context.Context, notificationType, title, body string, now time.Time) error {
	id, err := s.notify.Track(ctx, notificationType, now)
	if err != nil {
		return err
	}
	err = s.notify.Send(ctx, id, notify.PushMessage{
		Title:    title,
		Body:     body,
		Priority: notify.PriorityDefault,
		Tags:     []string{"calendar"},
	})
	if err != nil {
		return fmt.Errorf("send %s: %w", notificationType, err)
	}
	slog.Info("Sent checkin", "type", notificationType, "notification_id", id)
	return nil
}

func (s *Service) morningBody(ctx context.Context, now time.Time) (string, error) {
	active, err := s.store.TasksByStatus(ctx, store.TaskStatusActive)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	scheduled := tasksScheduledOn(active, now)
	fmt.Fprintf(&b, "%d active tasks, %d scheduled today.", len(active), len(scheduled))
	for _, t := range scheduled {
		fmt.Fprintf(&b, "\n%s  %s", t.ScheduledStart.In(s.loc).Format("15:04"), t.Title)
	}
	return b.String(), nil
}

func (s *Service) eveningBody(ctx context.Context, now time.Time) (string, error) {
	completed, err := s.store.TasksByStatus(ctx, store.TaskStatusCompleted)
	if err != nil {
		return "", err
	}
	active, err := s.store.TasksByStatus(ctx, store.TaskStatusActive)
	if err != nil {
		return "", err
	}

	completedToday := 0
	for _, t := range completed {
		if t.CompletedAt != nil && sameDay(t.CompletedAt.In(s.loc), now) {
			completedToday++
		}
	}
	return fmt.Sprintf("Completed %d tasks today, %d still active. How did the day go?",
		completedToday, len(active)), nil
}

func (s *Service) periodicBody(ctx context.Context, now time.Time) (string, error) {
	active, err := s.store.TasksByStatus(ctx, store.TaskStatusActive)
	if err != nil {
		return "", err
	}

	// Surface only what is scheduled within the next two hours.
	horizon := now.Add(2 * time.Hour)
	var upcoming []*store.Task
	for _, t := range active {
		if t.ScheduledStart == nil {
			continue
		}
		start := t.ScheduledStart.In(s.loc)
		if start.After(now) && start.Before(horizon) {
			upcoming = append(upcoming, t)
		}
	}
	if len(upcoming) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("Coming up:")
	for _, t := range upcoming {
		fmt.Fprintf(&b, "\n%s  %s", t.ScheduledStart.In(s.loc).Format("15:04"), t.Title)
	}
	return b.String(), nil
}

// RecordEnergy stamps a morning or evening energy level on today's log.
func (s *Service) RecordEnergy(ctx context.Context, evening bool, level int) error {
	if level < 1 || level > 10 {
		return errors.InvalidInput("energy level must be between 1 and 10")
	}
	now := s.now().In(s.loc)
	date := now.Format(dateLayout)

	log, err := s.ensureIndexedLog(ctx, date)
	if err != nil {
		return err
	}

	if _, err := s.vault.UpdateDailyLog(date, func(fm *vault.DailyLogFrontmatter) {
		if evening {
			fm.EnergyLevelEvening = &level
		} else {
			fm.EnergyLevelMorning = &level
		}
	}); err != nil {
		return err
	}
	return s.store.UpdateEnergyLevel(ctx, log.ID, evening, level)
}

// RecordHabit marks a habit done or skipped on today's log, in both copies.
func (s *Service) RecordHabit(ctx context.Context, key string, completed bool) error {
	key = strings.TrimSpace(strings.ToLower(key))
	if key == "" {
		return errors.InvalidInput("habit key is empty")
	}
	now := s.now().In(s.loc)
	date := now.Format(dateLayout)

	log, err := s.ensureIndexedLog(ctx, date)
	if err != nil {
		return err
	}

	var habits map[string]bool
	if _, err := s.vault.UpdateDailyLog(date, func(fm *vault.DailyLogFrontmatter) {
		if fm.Habits == nil {
			fm.Habits = map[string]bool{}
		}
		fm.Habits[key] = completed
		habits = fm.Habits
	}); err != nil {
		return err
	}
	return s.store.ReplaceHabits(ctx, log.ID, habits)
}

func tasksScheduledOn(tasks []*store.Task, day time.Time) []*store.Task {
	var out []*store.Task
	for _, t := range tasks {
		if t.ScheduledStart != nil && sameDay(t.ScheduledStart.In(day.Location()), day) {
			out = append(out, t)
		}
	}
	return out
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
