package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// BuildReport collects the artifacts produced by one packaging run.
type BuildReport struct {
	RunID   string
	Title   string
	Started time.Time
	Items   []string
}

// NewBuildReport starts a report with a fresh run identifier.
func NewBuildReport(title string) *BuildReport {
	return &BuildReport{
		RunID:   uuid.NewString(),
		Title:   title,
		Started: time.Now().UTC(),
	}
}

// Add records one produced artifact.
func (r *BuildReport) Add(item string) {
	r.Items = append(r.Items, item)
}

// FileName is the report file name, e.g. build-<run id>.txt.
func (r *BuildReport) FileName() string {
	return fmt.Sprintf("build-%s.txt", r.RunID)
}

// WriteTo writes the report as a plain list into dir and returns its path.
func (r *BuildReport) WriteTo(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	title := r.Title
	if title == "" {
		title = "untitled"
	}

	reportPath := filepath.Join(dir, r.FileName())
	f, err := os.OpenFile(reportPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", fmt.Errorf("opening report file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "# %s\n# run %s started %s\n", title, r.RunID, r.Started.Format(time.RFC3339)); err != nil {
		return "", fmt.Errorf("writing report header: %w", err)
	}
	for _, item := range r.Items {
		if _, err := fmt.Fprintln(f, item); err != nil {
			return "", fmt.Errorf("writing to report: %w", err)
		}
	}
	return reportPath, nil
}
