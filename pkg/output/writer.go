// Package output writes finished digests to disk as markdown files,
// organized by year and month.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/umputun/digestscope/pkg/domain"
)

// Writer persists digests under a base directory, one file per run,
// in <dir>/<year>/<month>/digest-YYYY-MM-DD-HHMMSS.md
type Writer struct {
	dir string
	now func() time.Time
}

// NewWriter creates a digest writer rooted at dir
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// Write renders and stores a digest, returning the path of the written file.
// Prose is the synthesized body, it may be empty when synthesis is disabled,
// the item list is always appended.
func (w *Writer) Write(prose string, items []domain.ScoredItem) (string, error) {
	ts := w.now()

	dir := filepath.Join(w.dir, ts.Format("2006"), ts.Format("01"))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("digest-%s.md", ts.Format("2006-01-02-150405")))
	if err := os.WriteFile(path, []byte(w.render(ts, prose, items)), 0o600); err != nil {
		return "", fmt.Errorf("write digest: %w", err)
	}
	return path, nil
}

// render assembles the markdown document
func (w *Writer) render(ts time.Time, prose string, items []domain.ScoredItem) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Digest %s\n\n", ts.Format("2006-01-02")))

	if prose != "" {
		sb.WriteString(prose)
		sb.WriteString("\n\n---\n\n")
	}

	sb.WriteString("## Items\n\n")
	for i, it := range items {
		sb.WriteString(fmt.Sprintf("%d. [%s](%s)", i+1, it.Item.Title, it.Item.URL))
		sb.WriteString(fmt.Sprintf(" — %s, score %.2f\n", it.Item.Source, it.Score))
		if it.Item.Snippet != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", it.Item.Snippet))
		}
	}
	sb.WriteString("\n")

	return sb.String()
}
