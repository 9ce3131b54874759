package calendar

import (
	"context"
	"fmt"
	"time"
)

// BusyInterval is one occupied range reported by the provider. Input only;
// never persisted.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// FreeSlot is a computed candidate range of the requested duration. Ephemeral;
// it becomes an event only when the caller schedules it.
type FreeSlot struct {
	Start           time.Time
	End             time.Time
	DurationMinutes int
}

// EventTime carries either a timed instant or an all-day date, matching the
// provider wire shape.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// AllDay reports whether the value is a date-only marker.
func (t EventTime) AllDay() bool {
	return t.DateTime == "" && t.Date != ""
}

// Time parses the timed instant. An empty value is an error so a stub event
// never reads as the zero instant; callers check AllDay first for date-only
// markers.
func (t EventTime) Time() (time.Time, error) {
	if t.DateTime == "" {
		return time.Time{}, fmt.Errorf("event time is empty")
	}
	return time.Parse(time.RFC3339, t.DateTime)
}

// ExtendedProperties holds the provider's structured key/value attachments.
type ExtendedProperties struct {
	Private map[string]string `json:"private,omitempty"`
	Shared  map[string]string `json:"shared,omitempty"`
}

// Event is the provider event surface the sync engine works with.
type Event struct {
	ID                 string              `json:"id,omitempty"`
	Summary            string              `json:"summary,omitempty"`
	Description        string              `json:"description,omitempty"`
	Start              EventTime           `json:"start,omitempty"`
	End                EventTime           `json:"end,omitempty"`
	ColorID            string              `json:"colorId,omitempty"`
	Status             string              `json:"status,omitempty"`
	ExtendedProperties *ExtendedProperties `json:"extendedProperties,omitempty"`
}

// TaskID returns the structured task linkage if present.
func (e *Event) TaskID() string {
	if e.ExtendedProperties == nil {
		return ""
	}
	return e.ExtendedProperties.Private["taskId"]
}

// EventPatch is a partial event update. Nil fields are left untouched.
type EventPatch struct {
	Summary     *string             `json:"summary,omitempty"`
	Description *string             `json:"description,omitempty"`
	Start       *EventTime          `json:"start,omitempty"`
	End         *EventTime          `json:"end,omitempty"`
	ColorID     *string             `json:"colorId,omitempty"`
	Extended    *ExtendedProperties `json:"extendedProperties,omitempty"`
}

// Client is the provider surface consumed by the slot finder and the sync
// engine. Implementations handle credential refresh internally.
type Client interface {
	FreeBusy(ctx context.Context, timeMin, timeMax time.Time, calendarIDs []string) ([]BusyInterval, error)
	Events(ctx context.Context, timeMin, timeMax time.Time, maxResults int) ([]Event, error)
	CreateEvent(ctx context.Context, event *Event) (*Event, error)
	UpdateEvent(ctx context.Context, eventID string, patch EventPatch) error
	DeleteEvent(ctx context.Context, eventID string) error
}

// String formats a pointer for patch literals.
func String(s string) *string { return &s }

// Time wraps an instant into a pointer-to-EventTime for patch literals.
func Time(t time.Time) *EventTime {
	return &EventTime{DateTime: t.Format(time.RFC3339)}
}
