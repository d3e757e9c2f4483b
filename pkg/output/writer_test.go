package output

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/digestscope/pkg/domain"
)

func testShortlist() []domain.ScoredItem {
	return []domain.ScoredItem{
		{Item: domain.Item{URL: "https://example.com/a", Title: "First Story", Source: "arxiv", Snippet: "short summary"}, Score: 0.91},
		{Item: domain.Item{URL: "https://example.com/b", Title: "Second Story", Source: "hackernews"}, Score: 0.77},
	}
}

func TestWriter_Write(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	w.now = func() time.Time { return time.Date(2025, 6, 2, 15, 4, 5, 0, time.UTC) }

	path, err := w.Write("## Highlights\n\nsome prose", testShortlist())
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "2025", "06", "digest-2025-06-02-150405.md"), path)

	data, err := os.ReadFile(path) //nolint:gosec // test file
	require.NoError(t, err)
	body := string(data)

	assert.Contains(t, body, "# Digest 2025-06-02")
	assert.Contains(t, body, "## Highlights")
	assert.Contains(t, body, "[First Story](https://example.com/a)")
	assert.Contains(t, body, "score 0.91")
	assert.Contains(t, body, "short summary")
	assert.Contains(t, body, "[Second Story](https://example.com/b)")
}

func TestWriter_Write_NoProse(t *testing.T) {
	w := NewWriter(t.TempDir())

	path, err := w.Write("", testShortlist())
	require.NoError(t, err)

	data, err := os.ReadFile(path) //nolint:gosec // test file
	require.NoError(t, err)

	// without prose the item list stands alone
	assert.NotContains(t, string(data), "---")
	assert.Contains(t, string(data), "## Items")
}

func TestWriter_Write_CreatesNestedDirs(t *testing.T) {
	base := filepath.Join(t.TempDir(), "not", "yet", "there")
	w := NewWriter(base)

	path, err := w.Write("", testShortlist())
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestWriter_Write_BadDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	// base path is an existing file, MkdirAll must fail
	w := NewWriter(file)
	_, err := w.Write("", testShortlist())
	require.Error(t, err)
}
