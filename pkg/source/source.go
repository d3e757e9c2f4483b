// Package source implements content collectors. Each collector pulls raw
// items from one upstream (RSS/Atom feeds, the Hacker News API) and maps
// them into domain items with a content fingerprint and collector-specific
// engagement metadata.
package source

import (
	"context"

	"github.com/umputun/digestscope/pkg/domain"
)

// Collector pulls items from one upstream source
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]domain.Item, error)
}
