package task

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/koyomidev/koyomi/internal/clock"
	"github.com/koyomidev/koyomi/internal/errors"
	"github.com/koyomidev/koyomi/internal/nlp"
	"github.com/koyomidev/koyomi/internal/store"
	"github.com/koyomidev/koyomi/internal/vault"
)

// Service owns task lifecycle transitions. Every mutation touches the vault
// document first (source of truth) and the index row second.
type Service struct {
	store *store.Store
	vault *vault.Vault
	now   clock.Now
}

func NewService(s *store.Store, v *vault.Vault, now clock.Now) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: s, vault: v, now: now}
}

// Create materializes a parsed task as a vault document plus index row.
func (s *Service) Create(ctx context.Context, parsed *nlp.ParsedTask) (*store.Task, error) {
	if strings.TrimSpace(parsed.Title) == "" {
		return nil, errors.InvalidInput("task title is empty")
	}

	fm := vault.TaskFrontmatter{
		ID:                  "task-" + strings.ToLower(ulid.Make().String()),
		Title:               parsed.Title,
		Priority:            parsed.Priority,
		DueDate:             parsed.DueDate,
		ProjectName:         parsed.Project,
		TimeEstimateMinutes: parsed.TimeEstimateMinutes,
		Context:             parsed.Context,
		Tags:                parsed.Tags,
	}
	if parsed.TimeEstimateMinutes != nil {
		fm.TimeEstimateSource = "llm"
	}

	doc, err := s.vault.CreateTask(fm, "")
	if err != nil {
		return nil, err
	}

	row := doc.Projection()
	if err := s.store.InsertTask(ctx, row); err != nil {
		return nil, err
	}

	slog.Info("Created task", "task_id", row.ID, "title", row.Title)
	return row, nil
}

// Complete marks a task done, relocating its file into the completed tree.
func (s *Service) Complete(ctx context.Context, taskID string) (*store.Task, error) {
	return s.transition(ctx, taskID, store.TaskStatusCompleted)
}

// Cancel marks a task cancelled. The linked calendar event, if any, is
// removed by the next sync pass.
func (s *Service) Cancel(ctx context.Context, taskID string) (*store.Task, error) {
	return s.transition(ctx, taskID, store.TaskStatusCancelled)
}

func (s *Service) transition(ctx context.Context, taskID, status string) (*store.Task, error) {
	doc, err := s.vault.SetTaskStatus(taskID, status)
	if err != nil {
		return nil, err
	}

	row := doc.Projection()
	if err := s.store.UpdateTaskStatus(ctx, taskID, status, row.CompletedAt, doc.Path); err != nil {
		return nil, err
	}

	slog.Info("Transitioned task", "task_id", taskID, "status", status)
	return row, nil
}

// Get returns the indexed task row, tags included, or a not-found error.
func (s *Service) Get(ctx context.Context, taskID string) (*store.Task, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.NotFound("task " + taskID)
	}
	if t.Tags, err = s.store.TaskTags(ctx, taskID); err != nil {
		return nil, err
	}
	return t, nil
}

// Active returns active tasks in creation order.
func (s *Service) Active(ctx context.Context) ([]*store.Task, error) {
	return s.store.TasksByStatus(ctx, store.TaskStatusActive)
}
