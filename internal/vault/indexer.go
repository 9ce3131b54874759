package vault

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/koyomidev/koyomi/internal/store"
)

// Indexer re-derives the relational projections from the vault tree. The
// wipe and the re-population share one transaction, so a concurrent reader
// sees either the old index or the new one, never an empty window.
type Indexer struct {
	vault *Vault
	store *store.Store
}

func NewIndexer(v *Vault, s *store.Store) *Indexer {
	return &Indexer{vault: v, store: s}
}

// FileFailure records a document that could not be indexed.
type FileFailure struct {
	Path string
	Err  error
}

// Report summarises one rebuild pass. Failures are per-file parse errors
// that were skipped; they never abort the rebuild.
type Report struct {
	Tasks     int
	Projects  int
	People    int
	DailyLogs int
	Failures  []FileFailure
}

var dailyLogName = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\.md$`)

// Rebuild wipes the four projection tables and re-populates them from the
// vault. Missing subtrees are treated as empty.
func (ix *Indexer) Rebuild(ctx context.Context) (*Report, error) {
	report := &Report{}

	err := ix.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := store.WipeProjections(ctx, tx); err != nil {
			return err
		}
		if err := ix.indexTasks(ctx, tx, report); err != nil {
			return err
		}
		if err := ix.indexProjects(ctx, tx, report); err != nil {
			return err
		}
		if err := ix.indexPeople(ctx, tx, report); err != nil {
			return err
		}
		return ix.indexDailyLogs(ctx, tx, report)
	})
	if err != nil {
		return nil, fmt.Errorf("rebuild index: %w", err)
	}

	slog.Info("Rebuilt index from vault",
		"tasks", report.Tasks, "projects", report.Projects,
		"people", report.People, "daily_logs", report.DailyLogs,
		"failures", len(report.Failures))
	return report, nil
}

func (ix *Indexer) glob(pattern string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(ix.vault.Root()), pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		paths = append(paths, filepath.Join(ix.vault.Root(), filepath.FromSlash(m)))
	}
	return paths, nil
}

func (ix *Indexer) indexTasks(ctx context.Context, tx *sql.Tx, report *Report) error {
	paths, err := ix.glob(TasksDir + "/**/task-*.md")
	if err != nil {
		return err
	}

	for _, path := range paths {
		doc, err := ix.vault.loadTaskPath(path)
		if err != nil {
			report.Failures = append(report.Failures, FileFailure{Path: path, Err: err})
			slog.Warn("Skipping unparseable task file", "path", path, "error", err)
			continue
		}
		if err := store.InsertTask(ctx, tx, doc.Projection()); err != nil {
			return err
		}
		report.Tasks++
	}
	return nil
}

func (ix *Indexer) indexProjects(ctx context.Context, tx *sql.Tx, report *Report) error {
	paths, err := ix.glob(ProjectsDir + "/project-*.md")
	if err != nil {
		return err
	}

	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			report.Failures = append(report.Failures, FileFailure{Path: path, Err: err})
			continue
		}
		var fm ProjectFrontmatter
		if _, err := decodeDocument(raw, &fm); err != nil {
			report.Failures = append(report.Failures, FileFailure{Path: path, Err: err})
			slog.Warn("Skipping unparseable project file", "path", path, "error", err)
			continue
		}
		project := &store.Project{
			ID:        fm.ID,
			Title:     fm.Title,
			Status:    fm.Status,
			CreatedAt: parseDocTime(fm.CreatedAt),
			UpdatedAt: parseDocTime(fm.UpdatedAt),
			Deadline:  fm.Deadline,
			FilePath:  path,
		}
		if err := store.InsertProject(ctx, tx, project); err != nil {
			return err
		}
		report.Projects++
	}
	return nil
}

func (ix *Indexer) indexPeople(ctx context.Context, tx *sql.Tx, report *Report) error {
	paths, err := ix.glob(PeopleDir + "/person-*.md")
	if err != nil {
		return err
	}

	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			report.Failures = append(report.Failures, FileFailure{Path: path, Err: err})
			continue
		}
		var fm PersonFrontmatter
		if _, err := decodeDocument(raw, &fm); err != nil {
			report.Failures = append(report.Failures, FileFailure{Path: path, Err: err})
			slog.Warn("Skipping unparseable person file", "path", path, "error", err)
			continue
		}
		person := &store.Person{
			ID:                   fm.ID,
			Name:                 fm.Name,
			Role:                 fm.Role,
			Company:              fm.Company,
			Email:                fm.Email,
			Phone:                fm.Phone,
			CreatedAt:            parseDocTime(fm.CreatedAt),
			UpdatedAt:            parseDocTime(fm.UpdatedAt),
			LastContact:          fm.LastContact,
			ContactFrequencyDays: fm.ContactFrequencyDays,
			FilePath:             path,
		}
		if err := store.InsertPerson(ctx, tx, person); err != nil {
			return err
		}
		report.People++
	}
	return nil
}

func (ix *Indexer) indexDailyLogs(ctx context.Context, tx *sql.Tx, report *Report) error {
	paths, err := ix.glob(DailyLogsDir + "/**/*.md")
	if err != nil {
		return err
	}

	for _, path := range paths {
		// Only dated file names are daily logs; templates and notes are not.
		if !dailyLogName.MatchString(filepath.Base(path)) {
			continue
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			report.Failures = append(report.Failures, FileFailure{Path: path, Err: err})
			continue
		}
		var fm DailyLogFrontmatter
		if _, err := decodeDocument(raw, &fm); err != nil {
			report.Failures = append(report.Failures, FileFailure{Path: path, Err: err})
			slog.Warn("Skipping unparseable daily log", "path", path, "error", err)
			continue
		}
		log := &store.DailyLog{
			ID:                  fm.ID,
			Date:                fm.Date,
			CreatedAt:           parseDocTime(fm.CreatedAt),
			MorningCheckinAt:    parseDocTime(fm.MorningCheckinAt),
			EveningReviewAt:     parseDocTime(fm.EveningReviewAt),
			TotalPlannedMinutes: fm.TotalPlannedMinutes,
			TotalActualMinutes:  fm.TotalActualMinutes,
			EnergyLevelMorning:  fm.EnergyLevelMorning,
			EnergyLevelEvening:  fm.EnergyLevelEvening,
			FilePath:            path,
		}
		if err := store.InsertDailyLog(ctx, tx, log); err != nil {
			return err
		}
		if len(fm.Habits) > 0 {
			if err := store.InsertHabits(ctx, tx, fm.ID, fm.Habits); err != nil {
				return err
			}
		}
		report.DailyLogs++
	}
	return nil
}
