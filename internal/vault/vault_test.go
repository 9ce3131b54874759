package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/koyomidev/koyomi/internal/clock"
	"github.com/koyomidev/koyomi/internal/errors"
	"github.com/koyomidev/koyomi/internal/store"
)

var testNow = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

func testVault(t *testing.T) (*Vault, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(testNow)
	return New(t.TempDir(), fake.Now), fake
}

func TestCreateTask_WritesActiveFolder(t *testing.T) {
	v, _ := testVault(t)

	doc, err := v.CreateTask(TaskFrontmatter{ID: "task-1", Title: "Write report"}, "")
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	wantDir := filepath.Join(v.Root(), TasksDir, "active")
	if filepath.Dir(doc.Path) != wantDir {
		t.Errorf("Task should live under active, got %s", doc.Path)
	}
	if doc.Frontmatter.Status != store.TaskStatusActive {
		t.Errorf("Status should default to active, got %s", doc.Frontmatter.Status)
	}
	if doc.Frontmatter.CreatedAt == "" || doc.Frontmatter.UpdatedAt == "" {
		t.Error("Timestamps should be stamped on create")
	}
	if !strings.Contains(doc.Body, "# Write report") {
		t.Error("Default body should carry the title heading")
	}
}

func TestCreateTask_RequiresID(t *testing.T) {
	v, _ := testVault(t)

	_, err := v.CreateTask(TaskFrontmatter{Title: "No id"}, "")
	if !errors.IsCategory(err, errors.ErrInvalidInput) {
		t.Errorf("Expected invalid input, got %v", err)
	}
}

func TestLoadTask_RoundTrip(t *testing.T) {
	v, _ := testVault(t)

	estimate := 45
	fm := TaskFrontmatter{
		ID:                  "task-2",
		Title:               "Call dentist",
		Priority:            "high",
		DueDate:             "2026-03-15",
		Tags:                []string{"health", "phone"},
		PeopleIDs:           []string{"person-9"},
		TimeEstimateMinutes: &estimate,
	}
	if _, err := v.CreateTask(fm, "body text"); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	loaded, err := v.LoadTask("task-2")
	if err != nil {
		t.Fatalf("LoadTask failed: %v", err)
	}
	if loaded.Frontmatter.Title != "Call dentist" {
		t.Errorf("Title mismatch: %s", loaded.Frontmatter.Title)
	}
	if len(loaded.Frontmatter.Tags) != 2 || loaded.Frontmatter.Tags[0] != "health" {
		t.Errorf("Tags mismatch: %v", loaded.Frontmatter.Tags)
	}
	if loaded.Frontmatter.TimeEstimateMinutes == nil || *loaded.Frontmatter.TimeEstimateMinutes != 45 {
		t.Error("Estimate should survive the round trip")
	}
	if loaded.Body != "body text" {
		t.Errorf("Body mismatch: %q", loaded.Body)
	}
}

func TestFindTaskFile_NotFound(t *testing.T) {
	v, _ := testVault(t)

	_, err := v.FindTaskFile("task-missing")
	if !errors.IsCategory(err, errors.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestUpdateTask_KeepsIDAndBumpsUpdatedAt(t *testing.T) {
	v, fake := testVault(t)

	if _, err := v.CreateTask(TaskFrontmatter{ID: "task-3", Title: "Old"}, ""); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	fake.Advance(time.Hour)

	doc, err := v.UpdateTask("task-3", func(fm *TaskFrontmatter) {
		fm.Title = "New"
		fm.ID = "task-hijacked"
	})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if doc.Frontmatter.ID != "task-3" {
		t.Errorf("ID must be immutable, got %s", doc.Frontmatter.ID)
	}
	if doc.Frontmatter.Title != "New" {
		t.Errorf("Title should change, got %s", doc.Frontmatter.Title)
	}
	if doc.Frontmatter.UpdatedAt != formatDocTime(testNow.Add(time.Hour)) {
		t.Errorf("UpdatedAt should advance, got %s", doc.Frontmatter.UpdatedAt)
	}
}

func TestSetTaskStatus_MovesCompletedFile(t *testing.T) {
	v, _ := testVault(t)

	created, err := v.CreateTask(TaskFrontmatter{ID: "task-4", Title: "Ship"}, "")
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	doc, err := v.SetTaskStatus("task-4", store.TaskStatusCompleted)
	if err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}

	wantDir := filepath.Join(v.Root(), TasksDir, "completed", testNow.Format("2006-01"))
	if filepath.Dir(doc.Path) != wantDir {
		t.Errorf("Completed task should move to %s, got %s", wantDir, doc.Path)
	}
	if doc.Frontmatter.CompletedAt == "" {
		t.Error("CompletedAt should be stamped")
	}
	if _, err := os.Stat(created.Path); !os.IsNotExist(err) {
		t.Error("Old file should be removed after the move")
	}
}

func TestLoadTask_MalformedHeader(t *testing.T) {
	v, _ := testVault(t)

	dir := filepath.Join(v.Root(), TasksDir, "active")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "task-bad.md")
	if err := os.WriteFile(bad, []byte("no frontmatter here"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := v.LoadTask("task-bad")
	if !errors.IsCategory(err, errors.ErrMalformedDocument) {
		t.Errorf("Expected malformed document, got %v", err)
	}
}

func TestEnsureDailyLog_CreateThenReuse(t *testing.T) {
	v, _ := testVault(t)

	first, err := v.EnsureDailyLog("2026-03-10")
	if err != nil {
		t.Fatalf("EnsureDailyLog failed: %v", err)
	}
	if first.Frontmatter.Date != "2026-03-10" {
		t.Errorf("Date mismatch: %s", first.Frontmatter.Date)
	}

	second, err := v.EnsureDailyLog("2026-03-10")
	if err != nil {
		t.Fatalf("EnsureDailyLog failed on reuse: %v", err)
	}
	if second.Frontmatter.ID != first.Frontmatter.ID {
		t.Error("Second ensure should reuse the existing log")
	}
}

func TestEncodeDecodeDocument(t *testing.T) {
	fm := TaskFrontmatter{ID: "task-x", Type: "task", Title: "Roundtrip", Status: "active"}
	raw, err := encodeDocument(fm, "## Notes\n")
	if err != nil {
		t.Fatalf("encodeDocument failed: %v", err)
	}

	var decoded TaskFrontmatter
	body, err := decodeDocument(raw, &decoded)
	if err != nil {
		t.Fatalf("decodeDocument failed: %v", err)
	}
	if decoded.ID != "task-x" || decoded.Title != "Roundtrip" {
		t.Errorf("Frontmatter mismatch: %+v", decoded)
	}
	if body != "## Notes\n" {
		t.Errorf("Body mismatch: %q", body)
	}
}
