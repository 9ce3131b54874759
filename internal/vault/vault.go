package vault

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/natefinch/atomic"

	"github.com/koyomidev/koyomi/internal/clock"
	"github.com/koyomidev/koyomi/internal/errors"
	"github.com/koyomidev/koyomi/internal/store"
)

// Vault owns reads and writes of the markdown document tree. The directory
// tree is the source of truth; the relational index is derived from it.
type Vault struct {
	root string
	now  clock.Now
}

func New(root string, now clock.Now) *Vault {
	if now == nil {
		now = time.Now
	}
	return &Vault{root: root, now: now}
}

func (v *Vault) Root() string {
	return v.root
}

// taskFileName derives the canonical file name for a task id.
func taskFileName(taskID string) string {
	return "task-" + taskID + ".md"
}

// taskFolder derives the status folder; completed tasks are partitioned by
// the year-month of completion.
func (v *Vault) taskFolder(status string, completedAt time.Time) string {
	switch status {
	case store.TaskStatusCompleted:
		return filepath.Join(v.root, TasksDir, "completed", completedAt.Format("2006-01"))
	case store.TaskStatusSomeday:
		return filepath.Join(v.root, TasksDir, "someday")
	default:
		return filepath.Join(v.root, TasksDir, "active")
	}
}

// CreateTask writes a new task document and returns it with Path set.
func (v *Vault) CreateTask(fm TaskFrontmatter, body string) (*TaskDocument, error) {
	if fm.ID == "" {
		return nil, errors.InvalidInput("task id is empty")
	}
	now := v.now()
	fm.Type = "task"
	if fm.Status == "" {
		fm.Status = store.TaskStatusActive
	}
	if fm.CreatedAt == "" {
		fm.CreatedAt = formatDocTime(now)
	}
	fm.UpdatedAt = formatDocTime(now)

	folder := v.taskFolder(fm.Status, now)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("create task folder: %w", err)
	}

	doc := &TaskDocument{
		Frontmatter: fm,
		Body:        body,
		Path:        filepath.Join(folder, taskFileName(fm.ID)),
	}
	if body == "" {
		doc.Body = defaultTaskBody(fm)
	}

	if err := v.writeDocument(doc.Path, doc.Frontmatter, doc.Body); err != nil {
		return nil, err
	}

	slog.Info("Created task file", "path", doc.Path)
	return doc, nil
}

func defaultTaskBody(fm TaskFrontmatter) string {
	var b strings.Builder
	b.WriteString("# " + fm.Title + "\n\n")
	b.WriteString("## Description\n\n")
	if fm.Context != "" {
		b.WriteString(fm.Context + "\n\n")
	}
	b.WriteString("## Notes\n\n")
	b.WriteString("## Subtasks\n\n")
	b.WriteString("## Related\n")
	return b.String()
}

// FindTaskFile locates a task document by id across the status subtrees.
// Returns ErrNotFound when no file exists.
func (v *Vault) FindTaskFile(taskID string) (string, error) {
	pattern := filepath.Join(TasksDir, "**", taskFileName(taskID))
	matches, err := doublestar.Glob(os.DirFS(v.root), filepath.ToSlash(pattern))
	if err != nil {
		return "", fmt.Errorf("glob task file: %w", err)
	}
	if len(matches) == 0 {
		return "", errors.NotFound("task file for " + taskID)
	}
	return filepath.Join(v.root, filepath.FromSlash(matches[0])), nil
}

// LoadTask reads and parses the task document for an id.
func (v *Vault) LoadTask(taskID string) (*TaskDocument, error) {
	path, err := v.FindTaskFile(taskID)
	if err != nil {
		return nil, err
	}
	return v.loadTaskPath(path)
}

func (v *Vault) loadTaskPath(path string) (*TaskDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task file: %w", err)
	}

	var fm TaskFrontmatter
	body, err := decodeDocument(raw, &fm)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %v: %w", path, err, errors.ErrMalformedDocument)
	}
	return &TaskDocument{Frontmatter: fm, Body: body, Path: path}, nil
}

// UpdateTask loads the document, applies mutate, bumps updated_at and writes
// it back atomically. The id field is immutable.
func (v *Vault) UpdateTask(taskID string, mutate func(*TaskFrontmatter)) (*TaskDocument, error) {
	doc, err := v.LoadTask(taskID)
	if err != nil {
		return nil, err
	}

	id := doc.Frontmatter.ID
	mutate(&doc.Frontmatter)
	doc.Frontmatter.ID = id
	doc.Frontmatter.UpdatedAt = formatDocTime(v.now())

	if err := v.writeDocument(doc.Path, doc.Frontmatter, doc.Body); err != nil {
		return nil, err
	}

	slog.Info("Updated task file", "path", doc.Path)
	return doc, nil
}

// SetTaskStatus rewrites the status, stamps completion when appropriate and
// relocates the file when the status folder changes.
func (v *Vault) SetTaskStatus(taskID, status string) (*TaskDocument, error) {
	doc, err := v.LoadTask(taskID)
	if err != nil {
		return nil, err
	}

	now := v.now()
	doc.Frontmatter.Status = status
	doc.Frontmatter.UpdatedAt = formatDocTime(now)
	if status == store.TaskStatusCompleted && doc.Frontmatter.CompletedAt == "" {
		doc.Frontmatter.CompletedAt = formatDocTime(now)
	}

	completedAt := now
	if t := parseDocTime(doc.Frontmatter.CompletedAt); t != nil {
		completedAt = *t
	}
	newPath := filepath.Join(v.taskFolder(status, completedAt), taskFileName(taskID))

	if err := v.writeDocument(newPath, doc.Frontmatter, doc.Body); err != nil {
		return nil, err
	}
	if newPath != doc.Path {
		if err := os.Remove(doc.Path); err != nil {
			return nil, fmt.Errorf("remove old task file: %w", err)
		}
		slog.Info("Moved task file", "from", doc.Path, "to", newPath)
	}
	doc.Path = newPath
	return doc, nil
}

func (v *Vault) writeDocument(path string, frontmatter any, body string) error {
	raw, err := encodeDocument(frontmatter, body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create document folder: %w", err)
	}
	if err := atomic.WriteFile(path, strings.NewReader(string(raw))); err != nil {
		return fmt.Errorf("write document %s: %w", path, err)
	}
	return nil
}
