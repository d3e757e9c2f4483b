package selection

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/digestscope/pkg/config"
	"github.com/umputun/digestscope/pkg/domain"
)

func scoredItem(url, source, category string, score float64) domain.ScoredItem {
	return domain.ScoredItem{
		Item:  domain.Item{URL: url, Source: source, Category: category},
		Score: score,
	}
}

func TestSelect_TopByScore(t *testing.T) {
	pool := []domain.ScoredItem{
		scoredItem("https://example.com/c", "s1", "", 0.3),
		scoredItem("https://example.com/a", "s2", "", 0.9),
		scoredItem("https://example.com/b", "s3", "", 0.6),
	}

	res := Select(pool, Constraints{TargetCount: 2})
	require.Len(t, res.Items, 2)
	assert.Equal(t, "https://example.com/a", res.Items[0].Item.URL)
	assert.Equal(t, "https://example.com/b", res.Items[1].Item.URL)
	assert.Empty(t, res.Violations)
}

func TestSelect_MaxPerSource(t *testing.T) {
	// five high-scored items from one source, cap keeps only the top three
	var pool []domain.ScoredItem
	for i := 0; i < 5; i++ {
		pool = append(pool, scoredItem(fmt.Sprintf("https://hn.example.com/%d", i), "hackernews", "news", 0.9-float64(i)*0.01))
	}
	pool = append(pool, scoredItem("https://example.com/other", "rss:blog", "news", 0.1))

	res := Select(pool, Constraints{TargetCount: 6, MaxPerSource: 3})
	require.Len(t, res.Items, 4)

	fromHN := 0
	for _, it := range res.Items {
		if it.Item.Source == "hackernews" {
			fromHN++
		}
	}
	assert.Equal(t, 3, fromHN)
	// the three kept are the highest scored of that source
	assert.Equal(t, "https://hn.example.com/0", res.Items[0].Item.URL)
	assert.Equal(t, "https://hn.example.com/1", res.Items[1].Item.URL)
	assert.Equal(t, "https://hn.example.com/2", res.Items[2].Item.URL)
}

func TestSelect_MaxPerSourceDisabled(t *testing.T) {
	var pool []domain.ScoredItem
	for i := 0; i < 5; i++ {
		pool = append(pool, scoredItem(fmt.Sprintf("https://hn.example.com/%d", i), "hackernews", "news", 0.5))
	}

	res := Select(pool, Constraints{TargetCount: 5, MaxPerSource: 0})
	assert.Len(t, res.Items, 5)
}

func TestSelect_CategoryMinimums(t *testing.T) {
	pool := []domain.ScoredItem{
		scoredItem("https://example.com/n1", "s1", "news", 0.9),
		scoredItem("https://example.com/n2", "s2", "news", 0.8),
		scoredItem("https://example.com/n3", "s3", "news", 0.7),
		scoredItem("https://example.com/p1", "s4", "paper", 0.2),
		scoredItem("https://example.com/t1", "s5", "tooling", 0.1),
	}

	res := Select(pool, Constraints{
		TargetCount: 4,
		CategoryMinimums: []config.CategoryMinimum{
			{Category: "paper", Min: 1},
			{Category: "tooling", Min: 1},
		},
	})
	require.Len(t, res.Items, 4)
	assert.Empty(t, res.Violations)

	categories := map[string]int{}
	for _, it := range res.Items {
		categories[it.Item.Category]++
	}
	// low scored paper and tooling items hold their reserved slots
	assert.Equal(t, 1, categories["paper"])
	assert.Equal(t, 1, categories["tooling"])
	assert.Equal(t, 2, categories["news"])

	// final order is by score regardless of which pass picked the item
	assert.Equal(t, "https://example.com/n1", res.Items[0].Item.URL)
	assert.Equal(t, "https://example.com/t1", res.Items[3].Item.URL)
}

func TestSelect_CategoryShortfallReported(t *testing.T) {
	pool := []domain.ScoredItem{
		scoredItem("https://example.com/n1", "s1", "news", 0.9),
		scoredItem("https://example.com/p1", "s2", "paper", 0.5),
	}

	res := Select(pool, Constraints{
		TargetCount: 3,
		CategoryMinimums: []config.CategoryMinimum{
			{Category: "paper", Min: 2},
		},
	})

	// shortfall degrades, it never drops the digest
	require.Len(t, res.Items, 2)
	require.Len(t, res.Violations, 1)
	assert.Contains(t, res.Violations[0], `category "paper"`)
	assert.Contains(t, res.Violations[0], "wanted 2, got 1")
}

func TestSelect_MinimumsPriorityOrder(t *testing.T) {
	// only two slots, three minimums: earlier entries win
	pool := []domain.ScoredItem{
		scoredItem("https://example.com/a", "s1", "alpha", 0.1),
		scoredItem("https://example.com/b", "s2", "beta", 0.2),
		scoredItem("https://example.com/c", "s3", "gamma", 0.9),
	}

	res := Select(pool, Constraints{
		TargetCount: 2,
		CategoryMinimums: []config.CategoryMinimum{
			{Category: "alpha", Min: 1},
			{Category: "beta", Min: 1},
			{Category: "gamma", Min: 1},
		},
	})
	require.Len(t, res.Items, 2)

	categories := map[string]bool{}
	for _, it := range res.Items {
		categories[it.Item.Category] = true
	}
	assert.True(t, categories["alpha"])
	assert.True(t, categories["beta"])
	assert.False(t, categories["gamma"])
	require.Len(t, res.Violations, 1)
	assert.Contains(t, res.Violations[0], "gamma")
}

func TestSelect_EdgeCases(t *testing.T) {
	t.Run("empty pool", func(t *testing.T) {
		res := Select(nil, Constraints{TargetCount: 5})
		assert.Empty(t, res.Items)
	})

	t.Run("zero target", func(t *testing.T) {
		res := Select([]domain.ScoredItem{scoredItem("https://example.com/a", "s", "", 1)}, Constraints{})
		assert.Empty(t, res.Items)
	})

	t.Run("pool smaller than target", func(t *testing.T) {
		res := Select([]domain.ScoredItem{scoredItem("https://example.com/a", "s", "", 0.5)}, Constraints{TargetCount: 10})
		assert.Len(t, res.Items, 1)
	})

	t.Run("duplicate urls picked once", func(t *testing.T) {
		pool := []domain.ScoredItem{
			scoredItem("https://example.com/a", "s1", "", 0.5),
			scoredItem("https://example.com/a", "s2", "", 0.4),
		}
		res := Select(pool, Constraints{TargetCount: 5})
		assert.Len(t, res.Items, 1)
	})
}
