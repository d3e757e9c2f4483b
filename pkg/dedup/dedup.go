package dedup

import (
	"context"
	"fmt"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/digestscope/pkg/domain"
)

// Store is the subset of the item store the classifier consults. Exact and
// fingerprint lookups are batched, the fuzzy title search is inherently
// per-candidate.
type Store interface {
	ExistingURLs(ctx context.Context, urls []string) (map[string]int64, error)
	ExistingFingerprints(ctx context.Context, fingerprints []string) (map[string]int64, error)
	FindSimilarTitles(ctx context.Context, title string, threshold float64, limit int) ([]domain.SimilarTitle, error)
}

// duplicate reasons, cheapest check first
const (
	ReasonExactURL     = "exact_url"
	ReasonContentHash  = "content_hash"
	ReasonSimilarTitle = "similar_title" // reported as similar_title:<matched id>
)

// Classifier decides whether an incoming item is new or a duplicate of a
// stored one. Checks run in a fixed order: exact URL, content fingerprint,
// fuzzy title. The first two are O(1) lookups and always go before the search.
type Classifier struct {
	store          Store
	titleThreshold float64
	searchLimit    int
}

// NewClassifier creates a duplicate classifier. Threshold is the normalized
// title similarity above which an item counts as a duplicate.
func NewClassifier(store Store, titleThreshold float64) *Classifier {
	if titleThreshold <= 0 {
		titleThreshold = 0.85
	}
	return &Classifier{store: store, titleThreshold: titleThreshold, searchLimit: 5}
}

// Classify labels a single item as new or a duplicate with a reason.
func (c *Classifier) Classify(ctx context.Context, url, title, content string) (isDup bool, reason string, err error) {
	existing, err := c.store.ExistingURLs(ctx, []string{url})
	if err != nil {
		return false, "", fmt.Errorf("check url: %w", err)
	}
	if _, ok := existing[url]; ok {
		return true, ReasonExactURL, nil
	}

	if content != "" {
		fingerprint := domain.ContentFingerprint(content)
		existing, err = c.store.ExistingFingerprints(ctx, []string{fingerprint})
		if err != nil {
			return false, "", fmt.Errorf("check fingerprint: %w", err)
		}
		if _, ok := existing[fingerprint]; ok {
			return true, ReasonContentHash, nil
		}
	}

	similar, err := c.store.FindSimilarTitles(ctx, title, c.titleThreshold, c.searchLimit)
	if err != nil {
		return false, "", fmt.Errorf("check similar titles: %w", err)
	}
	if len(similar) > 0 {
		return true, fmt.Sprintf("%s:%d", ReasonSimilarTitle, similar[0].ItemID), nil
	}

	return false, "", nil
}

// FilterNew returns the items not yet known to the store, preserving input
// order. The exact-URL and fingerprint tiers cost one batched query each
// regardless of input size, only surviving items pay for a title search.
func (c *Classifier) FilterNew(ctx context.Context, items []domain.Item) ([]domain.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}

	urls := make([]string, 0, len(items))
	fingerprints := make([]string, 0, len(items))
	for _, item := range items {
		urls = append(urls, item.URL)
		if item.Content != "" {
			fingerprints = append(fingerprints, domain.ContentFingerprint(item.Content))
		}
	}

	knownURLs, err := c.store.ExistingURLs(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("batch url check: %w", err)
	}
	knownFingerprints, err := c.store.ExistingFingerprints(ctx, fingerprints)
	if err != nil {
		return nil, fmt.Errorf("batch fingerprint check: %w", err)
	}

	var result []domain.Item
	for _, item := range items {
		if _, ok := knownURLs[item.URL]; ok {
			lgr.Printf("[DEBUG] duplicate (%s): %s", ReasonExactURL, item.URL)
			continue
		}
		if item.Content != "" {
			if _, ok := knownFingerprints[domain.ContentFingerprint(item.Content)]; ok {
				lgr.Printf("[DEBUG] duplicate (%s): %s", ReasonContentHash, item.URL)
				continue
			}
		}

		similar, err := c.store.FindSimilarTitles(ctx, item.Title, c.titleThreshold, c.searchLimit)
		if err != nil {
			return nil, fmt.Errorf("similar title check for %q: %w", item.URL, err)
		}
		if len(similar) > 0 {
			lgr.Printf("[DEBUG] duplicate (%s:%d): %s", ReasonSimilarTitle, similar[0].ItemID, item.URL)
			continue
		}

		result = append(result, item)
	}

	return result, nil
}
