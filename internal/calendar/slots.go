package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/koyomidev/koyomi/internal/clock"
	"github.com/koyomidev/koyomi/internal/config"
	"github.com/koyomidev/koyomi/internal/errors"
)

// SlotFinder computes available same-duration slots from calendar busy data.
// All arithmetic happens in the configured location; weekends and hours
// outside the work window are never offered.
type SlotFinder struct {
	client   Client
	loc      *time.Location
	now      clock.Now
	cfg      config.SlotsConfig
	stride   time.Duration
	maxSlots int
}

func NewSlotFinder(client Client, loc *time.Location, cfg config.SlotsConfig, now clock.Now) *SlotFinder {
	if now == nil {
		now = time.Now
	}
	if cfg.WorkHoursStart == 0 && cfg.WorkHoursEnd == 0 {
		cfg.WorkHoursStart = config.DefaultSlotsWorkHoursStart
		cfg.WorkHoursEnd = config.DefaultSlotsWorkHoursEnd
	}
	if cfg.StrideMinutes <= 0 {
		cfg.StrideMinutes = config.DefaultSlotsStrideMinutes
	}
	if cfg.MaxSlots <= 0 {
		cfg.MaxSlots = config.DefaultSlotsMaxSlots
	}
	return &SlotFinder{
		client:   client,
		loc:      loc,
		now:      now,
		cfg:      cfg,
		stride:   time.Duration(cfg.StrideMinutes) * time.Minute,
		maxSlots: cfg.MaxSlots,
	}
}

// SlotRequest narrows one search. Zero values fall back to the configured
// defaults; the default window is the next seven days.
type SlotRequest struct {
	DurationMinutes int
	TimeMin         time.Time
	TimeMax         time.Time
	CalendarIDs     []string
	MaxSlots        int
}

// FindFreeSlots returns up to MaxSlots candidate slots ordered by start time.
// An upstream free/busy failure fails the whole call; there is no partial
// result.
func (f *SlotFinder) FindFreeSlots(ctx context.Context, req SlotRequest) ([]FreeSlot, error) {
	if req.DurationMinutes <= 0 {
		return nil, errors.InvalidInput("slot duration must be positive")
	}

	timeMin := req.TimeMin
	if timeMin.IsZero() {
		timeMin = f.now()
	}
	timeMax := req.TimeMax
	if timeMax.IsZero() {
		timeMax = timeMin.Add(7 * 24 * time.Hour)
	}
	if !timeMax.After(timeMin) {
		return nil, errors.InvalidInput("search window is empty")
	}
	maxSlots := req.MaxSlots
	if maxSlots <= 0 {
		maxSlots = f.maxSlots
	}

	busy, err := f.client.FreeBusy(ctx, timeMin, timeMax, req.CalendarIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch busy intervals: %w", err)
	}
	for i := range busy {
		busy[i].Start = busy[i].Start.In(f.loc)
		busy[i].End = busy[i].End.In(f.loc)
	}
	sort.Slice(busy, func(i, j int) bool {
		return busy[i].Start.Before(busy[j].Start)
	})

	duration := time.Duration(req.DurationMinutes) * time.Minute
	slots := f.walk(timeMin.In(f.loc), timeMax.In(f.loc), duration, busy, maxSlots)

	slog.Debug("Computed free slots",
		"duration_minutes", req.DurationMinutes,
		"busy", len(busy), "slots", len(slots))
	return slots, nil
}

// walk advances a cursor through the window, snapping it into work hours,
// skipping weekends and jumping past conflicts rather than probing through
// them.
func (f *SlotFinder) walk(t, timeMax time.Time, duration time.Duration, busy []BusyInterval, maxSlots int) []FreeSlot {
	var slots []FreeSlot

	for t.Before(timeMax) && len(slots) < maxSlots {
		if moved, next := f.snapToWorkHours(t); moved {
			t = next
			continue
		}

		candidateEnd := t.Add(duration)
		if candidateEnd.After(f.workEnd(t)) {
			t = f.nextWorkStart(t)
			continue
		}

		if conflict, ok := firstConflict(t, candidateEnd, busy); ok {
			t = conflict.End
			continue
		}

		slots = append(slots, FreeSlot{
			Start:           t,
			End:             candidateEnd,
			DurationMinutes: int(duration / time.Minute),
		})
		t = t.Add(f.stride)
	}
	return slots
}

// snapToWorkHours moves the cursor to the next valid working instant. The
// second return is meaningful only when the first is true.
func (f *SlotFinder) snapToWorkHours(t time.Time) (bool, time.Time) {
	switch t.Weekday() {
	case time.Saturday:
		return true, f.workStart(t.AddDate(0, 0, 2))
	case time.Sunday:
		return true, f.workStart(t.AddDate(0, 0, 1))
	}
	if t.Before(f.workStart(t)) {
		return true, f.workStart(t)
	}
	if !t.Before(f.workEnd(t)) {
		return true, f.nextWorkStart(t)
	}
	return false, time.Time{}
}

func (f *SlotFinder) workStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), f.cfg.WorkHoursStart, 0, 0, 0, f.loc)
}

func (f *SlotFinder) workEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), f.cfg.WorkHoursEnd, 0, 0, 0, f.loc)
}

func (f *SlotFinder) nextWorkStart(t time.Time) time.Time {
	return f.workStart(t.AddDate(0, 0, 1))
}

// firstConflict finds the earliest busy interval overlapping [start, end).
func firstConflict(start, end time.Time, busy []BusyInterval) (BusyInterval, bool) {
	for _, b := range busy {
		if start.Before(b.End) && end.After(b.Start) {
			return b, true
		}
	}
	return BusyInterval{}, false
}
