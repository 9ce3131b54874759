package vault

import (
	"time"

	"github.com/koyomidev/koyomi/internal/store"
)

// Vault layout: tasks partitioned by status, completed further split into
// year-month folders; projects, people and daily logs under their own roots.
const (
	TasksDir     = "01-tasks"
	ProjectsDir  = "02-projects"
	PeopleDir    = "03-people"
	DailyLogsDir = "04-daily-logs"
)

// TaskFrontmatter is the authoritative metadata header of a task document.
// Timestamps are RFC 3339 strings so the files stay editable by hand.
type TaskFrontmatter struct {
	ID                  string   `yaml:"id"`
	Type                string   `yaml:"type"`
	Title               string   `yaml:"title"`
	Status              string   `yaml:"status"`
	CreatedAt           string   `yaml:"created_at"`
	UpdatedAt           string   `yaml:"updated_at"`
	DueDate             string   `yaml:"due_date,omitempty"`
	Priority            string   `yaml:"priority,omitempty"`
	ProjectID           string   `yaml:"project_id,omitempty"`
	ProjectName         string   `yaml:"project_name,omitempty"`
	PeopleIDs           []string `yaml:"people_ids,omitempty"`
	TimeEstimateMinutes *int     `yaml:"time_estimate_minutes,omitempty"`
	TimeEstimateSource  string   `yaml:"time_estimate_source,omitempty"`
	TimeActualMinutes   *int     `yaml:"time_actual_minutes,omitempty"`
	CalendarEventID     string   `yaml:"calendar_event_id,omitempty"`
	ScheduledStart      string   `yaml:"scheduled_start,omitempty"`
	ScheduledEnd        string   `yaml:"scheduled_end,omitempty"`
	CompletedAt         string   `yaml:"completed_at,omitempty"`
	Context             string   `yaml:"context,omitempty"`
	Tags                []string `yaml:"tags,omitempty"`
}

type ProjectFrontmatter struct {
	ID        string `yaml:"id"`
	Type      string `yaml:"type"`
	Title     string `yaml:"title"`
	Status    string `yaml:"status"`
	CreatedAt string `yaml:"created_at"`
	UpdatedAt string `yaml:"updated_at"`
	Deadline  string `yaml:"deadline,omitempty"`
}

type PersonFrontmatter struct {
	ID                   string `yaml:"id"`
	Type                 string `yaml:"type"`
	Name                 string `yaml:"name"`
	Role                 string `yaml:"role,omitempty"`
	Company              string `yaml:"company,omitempty"`
	Email                string `yaml:"email,omitempty"`
	Phone                string `yaml:"phone,omitempty"`
	CreatedAt            string `yaml:"created_at"`
	UpdatedAt            string `yaml:"updated_at"`
	LastContact          string `yaml:"last_contact,omitempty"`
	ContactFrequencyDays *int   `yaml:"contact_frequency_days,omitempty"`
}

type DailyLogFrontmatter struct {
	ID                  string `yaml:"id"`
	Type                string `yaml:"type"`
	Date                string `yaml:"date"`
	CreatedAt           string `yaml:"created_at"`
	MorningCheckinAt    string `yaml:"morning_checkin_at,omitempty"`
	EveningReviewAt     string `yaml:"evening_review_at,omitempty"`
	TotalPlannedMinutes int    `yaml:"total_planned_minutes,omitempty"`
	TotalActualMinutes  int    `yaml:"total_actual_minutes,omitempty"`
	EnergyLevelMorning  *int   `yaml:"energy_level_morning,omitempty"`
	EnergyLevelEvening  *int   `yaml:"energy_level_evening,omitempty"`

	Habits map[string]bool `yaml:"habits,omitempty"`
}

// TaskDocument pairs parsed frontmatter with the free-form body. The body is
// never projected into the index; rich content stays in the vault.
type TaskDocument struct {
	Frontmatter TaskFrontmatter
	Body        string
	Path        string
}

const timeLayout = time.RFC3339

func formatDocTime(t time.Time) string {
	return t.Format(timeLayout)
}

// parseDocTime tolerates empty and malformed values; hand-edited files lose
// a timestamp rather than the whole document.
func parseDocTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, s); err != nil {
			return nil
		}
	}
	return &t
}

// Projection converts the document frontmatter to its relational row.
func (d *TaskDocument) Projection() *store.Task {
	fm := d.Frontmatter
	return &store.Task{
		ID:                  fm.ID,
		Title:               fm.Title,
		Status:              fm.Status,
		CreatedAt:           parseDocTime(fm.CreatedAt),
		UpdatedAt:           parseDocTime(fm.UpdatedAt),
		DueDate:             fm.DueDate,
		Priority:            fm.Priority,
		ProjectID:           fm.ProjectID,
		ProjectName:         fm.ProjectName,
		TimeEstimateMinutes: fm.TimeEstimateMinutes,
		TimeEstimateSource:  fm.TimeEstimateSource,
		TimeActualMinutes:   fm.TimeActualMinutes,
		CalendarEventID:     fm.CalendarEventID,
		ScheduledStart:      parseDocTime(fm.ScheduledStart),
		ScheduledEnd:        parseDocTime(fm.ScheduledEnd),
		Context:             fm.Context,
		CompletedAt:         parseDocTime(fm.CompletedAt),
		FilePath:            d.Path,
		Tags:                fm.Tags,
		PeopleIDs:           fm.PeopleIDs,
	}
}
