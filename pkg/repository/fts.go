package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/umputun/digestscope/pkg/domain"
)

// ErrInvalidQuery marks a syntactically invalid full-text query, callers can
// map it to a client error instead of a server failure
var ErrInvalidQuery = errors.New("invalid search query")

// isFTSSyntaxError detects FTS5 query parse failures by message, the driver
// exposes no structured error for them
func isFTSSyntaxError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "fts5: syntax error") ||
		strings.Contains(msg, "unterminated string") ||
		strings.Contains(msg, "unknown special query")
}

// NormalizeBM25 maps a raw SQLite bm25() value onto a [0,1) similarity.
// Raw bm25 scores are corpus-dependent and negative, more negative means more
// relevant, so the mapping is |raw|/(1+|raw|): strong matches with large
// magnitude approach 1.0, marginal matches near 0 stay near 0. On realistic
// titles a near-duplicate lands around |raw|>=10 (similarity ~0.9) while a
// single-shared-word match stays around |raw|~2 (similarity ~0.67), so the
// 0.85 dedup and 0.7 novelty thresholds separate cleanly. The transform is
// strictly monotonic in relevance, thresholds stay meaningful regardless of
// corpus size.
func NormalizeBM25(raw float64) float64 {
	return math.Abs(raw) / (1.0 + math.Abs(raw))
}

// FindSimilarTitles searches the FTS index for titles similar to the given
// one and returns matches at or above threshold, best first. An empty result
// means no near-duplicates.
func (r *ItemRepository) FindSimilarTitles(ctx context.Context, title string, threshold float64, limit int) ([]domain.SimilarTitle, error) {
	match := buildMatchQuery(title)
	if match == "" {
		return nil, nil
	}

	query := `
		SELECT items.id, items.title, items.url, bm25(items_fts) AS score
		FROM items_fts
		JOIN items ON items_fts.rowid = items.id
		WHERE items_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`
	var rows []struct {
		ID    int64   `db:"id"`
		Title string  `db:"title"`
		URL   string  `db:"url"`
		Score float64 `db:"score"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, match, limit); err != nil {
		return nil, fmt.Errorf("find similar titles: %w", err)
	}

	var results []domain.SimilarTitle
	for _, row := range rows {
		similarity := NormalizeBM25(row.Score)
		if similarity < threshold {
			continue
		}
		results = append(results, domain.SimilarTitle{
			ItemID:     row.ID,
			Title:      row.Title,
			URL:        row.URL,
			Similarity: similarity,
		})
	}
	return results, nil
}

// buildMatchQuery turns a free-form title into an FTS5 MATCH expression:
// alphanumeric words longer than 3 chars, OR-ed together. Returns "" when
// nothing survives, which callers treat as no match.
func buildMatchQuery(title string) string {
	var terms []string
	for _, word := range strings.Fields(title) {
		if len(word) <= 3 || !isAlnum(word) {
			continue
		}
		// quoted to keep FTS5 from parsing terms as syntax
		terms = append(terms, `"`+word+`"`)
	}
	return strings.Join(terms, " OR ")
}

func isAlnum(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return s != ""
}
