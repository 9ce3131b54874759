package store

import "time"

// Task statuses mirror the vault folder layout plus capture states.
const (
	TaskStatusActive    = "active"
	TaskStatusCompleted = "completed"
	TaskStatusCancelled = "cancelled"
	TaskStatusSomeday   = "someday"
	TaskStatusInbox     = "inbox"
	TaskStatusBlocked   = "blocked"
)

// Task is the relational projection of a vault task document.
type Task struct {
	ID                  string
	Title               string
	Status              string
	CreatedAt           *time.Time
	UpdatedAt           *time.Time
	DueDate             string
	Priority            string
	ProjectID           string
	ProjectName         string
	TimeEstimateMinutes *int
	TimeEstimateSource  string
	TimeActualMinutes   *int
	CalendarEventID     string
	ScheduledStart      *time.Time
	ScheduledEnd        *time.Time
	Context             string
	CompletedAt         *time.Time
	FilePath            string
	Tags                []string
	PeopleIDs           []string
}

type Project struct {
	ID        string
	Title     string
	Status    string
	CreatedAt *time.Time
	UpdatedAt *time.Time
	Deadline  string
	FilePath  string
}

type Person struct {
	ID                   string
	Name                 string
	Role                 string
	Company              string
	Email                string
	Phone                string
	CreatedAt            *time.Time
	UpdatedAt            *time.Time
	LastContact          string
	ContactFrequencyDays *int
	FilePath             string
}

type DailyLog struct {
	ID                  string
	Date                string
	CreatedAt           *time.Time
	MorningCheckinAt    *time.Time
	EveningReviewAt     *time.Time
	TotalPlannedMinutes int
	TotalActualMinutes  int
	EnergyLevelMorning  *int
	EnergyLevelEvening  *int
	FilePath            string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Session struct {
	SessionID    string
	UserID       int64
	ChatID       int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExpiresAt    time.Time
	ContextType  string
	ContextData  string
	MessageCount int
}

type Message struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

type Notification struct {
	ID              string
	Type            string
	ScheduledFor    time.Time
	SentAt          *time.Time
	AcknowledgedAt  *time.Time
	ResponseSummary string
}

// Pending reports whether the notification was sent but never acknowledged.
func (n *Notification) Pending() bool {
	return n.SentAt != nil && n.AcknowledgedAt == nil
}

// SyncCursor is the singleton watermark row advanced after each sync pass.
type SyncCursor struct {
	LastSyncAt time.Time
	SyncToken  string
}
