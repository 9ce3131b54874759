package vault

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"

	"github.com/koyomidev/koyomi/internal/errors"
)

// DailyLogDocument pairs a daily log header with its body.
type DailyLogDocument struct {
	Frontmatter DailyLogFrontmatter
	Body        string
	Path        string
}

// dailyLogPath derives the file location for a date (YYYY-MM-DD).
func (v *Vault) dailyLogPath(date string) string {
	return filepath.Join(v.root, DailyLogsDir, date+".md")
}

// LoadDailyLog reads the log for a date; ErrNotFound when the file is absent.
func (v *Vault) LoadDailyLog(date string) (*DailyLogDocument, error) {
	path := v.dailyLogPath(date)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.NotFound("daily log for " + date)
	}
	if err != nil {
		return nil, fmt.Errorf("read daily log: %w", err)
	}

	var fm DailyLogFrontmatter
	body, err := decodeDocument(raw, &fm)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %v: %w", path, err, errors.ErrMalformedDocument)
	}
	return &DailyLogDocument{Frontmatter: fm, Body: body, Path: path}, nil
}

// EnsureDailyLog returns the log for a date, creating it when absent.
func (v *Vault) EnsureDailyLog(date string) (*DailyLogDocument, error) {
	doc, err := v.LoadDailyLog(date)
	if err == nil {
		return doc, nil
	}
	if !errors.IsCategory(err, errors.ErrNotFound) {
		return nil, err
	}

	doc = &DailyLogDocument{
		Frontmatter: DailyLogFrontmatter{
			ID:        "log-" + ulid.Make().String(),
			Type:      "daily-log",
			Date:      date,
			CreatedAt: formatDocTime(v.now()),
		},
		Body: defaultDailyLogBody(date),
		Path: v.dailyLogPath(date),
	}
	if err := v.writeDocument(doc.Path, doc.Frontmatter, doc.Body); err != nil {
		return nil, err
	}
	return doc, nil
}

func defaultDailyLogBody(date string) string {
	return "# " + date + "\n\n" +
		"## Plan\n\n" +
		"## Schedule\n\n" +
		"## Notes\n\n" +
		"## Review\n"
}

// UpdateDailyLog loads (or creates) the log for a date, applies mutate and
// writes it back atomically.
func (v *Vault) UpdateDailyLog(date string, mutate func(*DailyLogFrontmatter)) (*DailyLogDocument, error) {
	doc, err := v.EnsureDailyLog(date)
	if err != nil {
		return nil, err
	}

	id := doc.Frontmatter.ID
	mutate(&doc.Frontmatter)
	doc.Frontmatter.ID = id
	doc.Frontmatter.Date = date

	if err := v.writeDocument(doc.Path, doc.Frontmatter, doc.Body); err != nil {
		return nil, err
	}
	return doc, nil
}
