package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/koyomidev/koyomi/internal/clock"
	"github.com/koyomidev/koyomi/internal/config"
	"github.com/koyomidev/koyomi/internal/errors"
)

type fakeCalendar struct {
	busy    []BusyInterval
	busyErr error

	events    []Event
	eventsErr error

	created []Event
	updates map[string]EventPatch
	deleted []string

	deleteErr error
	updateErr error
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{updates: make(map[string]EventPatch)}
}

func (f *fakeCalendar) FreeBusy(ctx context.Context, timeMin, timeMax time.Time, calendarIDs []string) ([]BusyInterval, error) {
	if f.busyErr != nil {
		return nil, f.busyErr
	}
	return f.busy, nil
}

func (f *fakeCalendar) Events(ctx context.Context, timeMin, timeMax time.Time, maxResults int) ([]Event, error) {
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	return f.events, nil
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, event *Event) (*Event, error) {
	created := *event
	created.ID = "evt-created"
	f.created = append(f.created, created)
	return &created, nil
}

func (f *fakeCalendar) UpdateEvent(ctx context.Context, eventID string, patch EventPatch) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates[eventID] = patch
	return nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, eventID)
	return nil
}

func testFinder(t *testing.T, cal Client, now time.Time) *SlotFinder {
	t.Helper()
	fake := clock.NewFake(now)
	return NewSlotFinder(cal, time.UTC, config.SlotsConfig{
		WorkHoursStart: 9,
		WorkHoursEnd:   17,
		StrideMinutes:  15,
		MaxSlots:       10,
	}, fake.Now)
}

// Tuesday 2026-01-06.
var tuesday = time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)

func TestFindFreeSlots_AroundOneBusyInterval(t *testing.T) {
	cal := newFakeCalendar()
	cal.busy = []BusyInterval{
		{Start: tuesday.Add(10 * time.Hour), End: tuesday.Add(11 * time.Hour)},
	}
	finder := testFinder(t, cal, tuesday)

	slots, err := finder.FindFreeSlots(context.Background(), SlotRequest{
		DurationMinutes: 30,
		TimeMin:         tuesday.Add(9 * time.Hour),
		TimeMax:         tuesday.Add(17 * time.Hour),
	})
	if err != nil {
		t.Fatalf("FindFreeSlots failed: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("Expected slots")
	}

	first := slots[0]
	if !first.Start.Equal(tuesday.Add(9 * time.Hour)) {
		t.Errorf("First slot should start 09:00, got %v", first.Start)
	}
	if !slots[1].Start.Equal(tuesday.Add(9*time.Hour + 15*time.Minute)) {
		t.Errorf("Second slot should start 09:15, got %v", slots[1].Start)
	}

	for _, s := range slots {
		for _, b := range cal.busy {
			if s.Start.Before(b.End) && s.End.After(b.Start) {
				t.Errorf("Slot %v-%v overlaps busy %v-%v", s.Start, s.End, b.Start, b.End)
			}
		}
	}
}

func TestFindFreeSlots_ResumesAfterConflict(t *testing.T) {
	cal := newFakeCalendar()
	cal.busy = []BusyInterval{
		{Start: tuesday.Add(9 * time.Hour), End: tuesday.Add(12 * time.Hour)},
	}
	finder := testFinder(t, cal, tuesday)

	slots, err := finder.FindFreeSlots(context.Background(), SlotRequest{
		DurationMinutes: 60,
		TimeMin:         tuesday.Add(9 * time.Hour),
		TimeMax:         tuesday.Add(17 * time.Hour),
		MaxSlots:        1,
	})
	if err != nil {
		t.Fatalf("FindFreeSlots failed: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("Expected 1 slot, got %d", len(slots))
	}
	if !slots[0].Start.Equal(tuesday.Add(12 * time.Hour)) {
		t.Errorf("Slot should jump to busy end 12:00, got %v", slots[0].Start)
	}
}

func TestFindFreeSlots_WorkHoursContainment(t *testing.T) {
	finder := testFinder(t, newFakeCalendar(), tuesday)

	// Start at 02:00, well before work hours.
	slots, err := finder.FindFreeSlots(context.Background(), SlotRequest{
		DurationMinutes: 45,
		TimeMin:         tuesday.Add(2 * time.Hour),
		TimeMax:         tuesday.AddDate(0, 0, 7),
	})
	if err != nil {
		t.Fatalf("FindFreeSlots failed: %v", err)
	}

	for _, s := range slots {
		if s.Start.Hour() < 9 {
			t.Errorf("Slot starts before work hours: %v", s.Start)
		}
		endOfDay := time.Date(s.Start.Year(), s.Start.Month(), s.Start.Day(), 17, 0, 0, 0, time.UTC)
		if s.End.After(endOfDay) {
			t.Errorf("Slot crosses work-hours end: %v", s.End)
		}
		if wd := s.Start.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Errorf("Slot lands on a weekend: %v", s.Start)
		}
	}
}

func TestFindFreeSlots_SkipsWeekend(t *testing.T) {
	// Saturday 2026-01-10.
	saturday := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	finder := testFinder(t, newFakeCalendar(), saturday)

	slots, err := finder.FindFreeSlots(context.Background(), SlotRequest{
		DurationMinutes: 30,
		TimeMin:         saturday,
		TimeMax:         saturday.AddDate(0, 0, 7),
		MaxSlots:        1,
	})
	if err != nil {
		t.Fatalf("FindFreeSlots failed: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("Expected 1 slot, got %d", len(slots))
	}

	monday := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	if !slots[0].Start.Equal(monday) {
		t.Errorf("Slot should land Monday 09:00, got %v", slots[0].Start)
	}
}

func TestFindFreeSlots_BoundedCount(t *testing.T) {
	finder := testFinder(t, newFakeCalendar(), tuesday)

	slots, err := finder.FindFreeSlots(context.Background(), SlotRequest{
		DurationMinutes: 15,
		TimeMin:         tuesday,
		TimeMax:         tuesday.AddDate(0, 0, 7),
		MaxSlots:        3,
	})
	if err != nil {
		t.Fatalf("FindFreeSlots failed: %v", err)
	}
	if len(slots) != 3 {
		t.Errorf("Expected exactly 3 slots, got %d", len(slots))
	}
}

func TestFindFreeSlots_UpstreamFailurePropagates(t *testing.T) {
	cal := newFakeCalendar()
	cal.busyErr = errors.Upstream("quota exceeded")
	finder := testFinder(t, cal, tuesday)

	_, err := finder.FindFreeSlots(context.Background(), SlotRequest{DurationMinutes: 30})
	if err == nil {
		t.Fatal("Expected error when the busy query fails")
	}
	if !errors.IsCategory(err, errors.ErrUpstream) {
		t.Errorf("Expected upstream category, got %v", err)
	}
}

func TestFindFreeSlots_RejectsBadDuration(t *testing.T) {
	finder := testFinder(t, newFakeCalendar(), tuesday)

	_, err := finder.FindFreeSlots(context.Background(), SlotRequest{DurationMinutes: 0})
	if !errors.IsCategory(err, errors.ErrInvalidInput) {
		t.Errorf("Expected invalid input, got %v", err)
	}
}

func TestFindFreeSlots_DefaultsToNowPlusSevenDays(t *testing.T) {
	finder := testFinder(t, newFakeCalendar(), tuesday.Add(10*time.Hour))

	slots, err := finder.FindFreeSlots(context.Background(), SlotRequest{DurationMinutes: 30})
	if err != nil {
		t.Fatalf("FindFreeSlots failed: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("Expected slots from the default window")
	}
	if slots[0].Start.Before(tuesday.Add(10 * time.Hour)) {
		t.Errorf("Slot before the search window: %v", slots[0].Start)
	}
}
