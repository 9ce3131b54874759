package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/koyomidev/koyomi/internal/store"
)

func testIndexer(t *testing.T) (*Indexer, *Vault, *store.Store) {
	t.Helper()
	v, _ := testVault(t)

	st, err := store.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open store failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return NewIndexer(v, st), v, st
}

func writeRaw(t *testing.T, root string, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRebuild_EmptyVault(t *testing.T) {
	ix, _, _ := testIndexer(t)

	report, err := ix.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if report.Tasks != 0 || report.Projects != 0 || report.People != 0 || report.DailyLogs != 0 {
		t.Errorf("Empty vault should index nothing: %+v", report)
	}
}

func TestRebuild_IndexesAllEntityTypes(t *testing.T) {
	ix, v, st := testIndexer(t)
	ctx := context.Background()

	if _, err := v.CreateTask(TaskFrontmatter{
		ID: "task-1", Title: "Alpha", Tags: []string{"deep"}, PeopleIDs: []string{"person-1"},
	}, ""); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	writeRaw(t, v.Root(), "02-projects/project-1.md",
		"---\nid: project-1\ntype: project\ntitle: Launch\nstatus: active\n---\n\nbody\n")
	writeRaw(t, v.Root(), "03-people/person-1.md",
		"---\nid: person-1\ntype: person\nname: Sam\n---\n\nbody\n")
	writeRaw(t, v.Root(), "04-daily-logs/2026-03-10.md",
		"---\nid: log-1\ntype: daily-log\ndate: \"2026-03-10\"\n---\n\nbody\n")

	report, err := ix.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if report.Tasks != 1 || report.Projects != 1 || report.People != 1 || report.DailyLogs != 1 {
		t.Fatalf("Unexpected counts: %+v", report)
	}
	if len(report.Failures) != 0 {
		t.Errorf("Unexpected failures: %v", report.Failures)
	}

	task, err := st.GetTask(ctx, "task-1")
	if err != nil || task == nil {
		t.Fatalf("Task row missing: %v", err)
	}
	tags, err := st.TaskTags(ctx, "task-1")
	if err != nil || len(tags) != 1 || tags[0] != "deep" {
		t.Errorf("Tag side table wrong: %v %v", tags, err)
	}
	log, err := st.GetDailyLog(ctx, "2026-03-10")
	if err != nil || log == nil {
		t.Fatalf("Daily log row missing: %v", err)
	}
}

func TestRebuild_MalformedFileIsIsolated(t *testing.T) {
	ix, v, st := testIndexer(t)
	ctx := context.Background()

	if _, err := v.CreateTask(TaskFrontmatter{ID: "task-good", Title: "Good"}, ""); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	writeRaw(t, v.Root(), "01-tasks/active/task-broken.md", "not a document at all")

	report, err := ix.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild should tolerate bad files: %v", err)
	}
	if report.Tasks != 1 {
		t.Errorf("Valid task should still index, got %d", report.Tasks)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("Expected one reported failure, got %d", len(report.Failures))
	}

	good, err := st.GetTask(ctx, "task-good")
	if err != nil || good == nil {
		t.Errorf("Good task should be indexed: %v", err)
	}
}

func TestRebuild_Idempotent(t *testing.T) {
	ix, v, st := testIndexer(t)
	ctx := context.Background()

	if _, err := v.CreateTask(TaskFrontmatter{ID: "task-1", Title: "Once"}, ""); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	if _, err := ix.Rebuild(ctx); err != nil {
		t.Fatalf("First rebuild failed: %v", err)
	}
	if _, err := ix.Rebuild(ctx); err != nil {
		t.Fatalf("Second rebuild failed: %v", err)
	}

	n, err := st.CountTasks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Rebuild must not duplicate rows, got %d tasks", n)
	}
}

func TestRebuild_SkipsUndatedDailyLogFiles(t *testing.T) {
	ix, v, _ := testIndexer(t)

	writeRaw(t, v.Root(), "04-daily-logs/template.md",
		"---\nid: log-t\ntype: daily-log\n---\n\nbody\n")
	writeRaw(t, v.Root(), "04-daily-logs/2026-03-11.md",
		"---\nid: log-2\ntype: daily-log\ndate: \"2026-03-11\"\n---\n\nbody\n")

	report, err := ix.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if report.DailyLogs != 1 {
		t.Errorf("Only dated filenames should index, got %d", report.DailyLogs)
	}
}
