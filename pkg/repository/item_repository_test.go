package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/digestscope/pkg/domain"
)

func TestItemRepository_Upsert(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	item := &domain.Item{
		URL:       "https://example.com/post",
		Title:     "Attention Is All You Need",
		Snippet:   "a new architecture for sequence transduction",
		Content:   "the transformer architecture relies entirely on attention",
		Source:    "rss:arxiv",
		Category:  "paper",
		Author:    "someone",
		Published: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Metadata:  domain.Metadata{"citations": 100},
	}

	id, err := repos.Item.Upsert(ctx, item)
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, id, item.ID)

	t.Run("repeat sighting resolves to same row", func(t *testing.T) {
		again := &domain.Item{URL: "https://example.com/post", Title: "different title"}
		id2, err := repos.Item.Upsert(ctx, again)
		require.NoError(t, err)
		assert.Equal(t, id, id2)

		// first write wins on content, repeat bumps the counter
		stored, err := repos.Item.GetItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Attention Is All You Need", stored.Title)
		assert.Equal(t, 1, stored.TimesSurfaced)
	})

	t.Run("metadata round-trips", func(t *testing.T) {
		stored, err := repos.Item.GetItemByURL(ctx, "https://example.com/post")
		require.NoError(t, err)
		citations, ok := stored.Metadata.Float("citations")
		require.True(t, ok)
		assert.InDelta(t, 100.0, citations, 0.001)
	})

	t.Run("empty url rejected", func(t *testing.T) {
		_, err := repos.Item.Upsert(ctx, &domain.Item{Title: "no url"})
		require.Error(t, err)
	})
}

func TestItemRepository_ExistingKeys(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	stored := &domain.Item{
		URL:     "https://example.com/a",
		Title:   "stored item",
		Content: "stored content body",
	}
	id, err := repos.Item.Upsert(ctx, stored)
	require.NoError(t, err)

	t.Run("urls", func(t *testing.T) {
		known, err := repos.Item.ExistingURLs(ctx, []string{"https://example.com/a", "https://example.com/missing"})
		require.NoError(t, err)
		require.Len(t, known, 1)
		assert.Equal(t, id, known["https://example.com/a"])
	})

	t.Run("fingerprints", func(t *testing.T) {
		fp := domain.ContentFingerprint("stored content body")
		known, err := repos.Item.ExistingFingerprints(ctx, []string{fp, "nonexistent"})
		require.NoError(t, err)
		require.Len(t, known, 1)
		assert.Equal(t, id, known[fp])
	})

	t.Run("empty input", func(t *testing.T) {
		known, err := repos.Item.ExistingURLs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, known)
	})
}

func TestItemRepository_GetRecentItems(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := repos.Item.Upsert(ctx, &domain.Item{
			URL:   fmt.Sprintf("https://example.com/%d", i),
			Title: fmt.Sprintf("item %d", i),
		})
		require.NoError(t, err)
	}

	// age one item out of the window
	_, err := repos.DB.Exec("UPDATE items SET first_seen = datetime('now', '-30 days') WHERE url = ?",
		"https://example.com/0")
	require.NoError(t, err)

	recent, err := repos.Item.GetRecentItems(ctx, 7, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 4)
	for _, item := range recent {
		assert.NotEqual(t, "https://example.com/0", item.URL)
	}

	t.Run("limit respected", func(t *testing.T) {
		limited, err := repos.Item.GetRecentItems(ctx, 7, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})
}

func TestItemRepository_SearchHistory(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	_, err := repos.Item.Upsert(ctx, &domain.Item{
		URL:     "https://example.com/transformers",
		Title:   "transformers for language modeling",
		Content: "large language models built on attention",
	})
	require.NoError(t, err)
	_, err = repos.Item.Upsert(ctx, &domain.Item{
		URL:     "https://example.com/databases",
		Title:   "sqlite internals",
		Content: "how btree pages are laid out",
	})
	require.NoError(t, err)

	found, err := repos.Item.SearchHistory(ctx, "transformers", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "https://example.com/transformers", found[0].URL)

	t.Run("no match", func(t *testing.T) {
		found, err := repos.Item.SearchHistory(ctx, "kubernetes", 10)
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

func TestItemRepository_CountItems(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	count, err := repos.Item.CountItems(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = repos.Item.Upsert(ctx, &domain.Item{URL: "https://example.com/one", Title: "one"})
	require.NoError(t, err)

	count, err = repos.Item.CountItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
