package selection

import (
	"fmt"
	"sort"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/digestscope/pkg/config"
	"github.com/umputun/digestscope/pkg/domain"
)

// Constraints bound the shortlist assembly. CategoryMinimums are honored in
// list order when the pool cannot satisfy all of them.
type Constraints struct {
	TargetCount      int
	MaxPerSource     int // 0 or negative disables the cap
	CategoryMinimums []config.CategoryMinimum
}

// Result is the assembled shortlist plus any constraints the pool could not
// satisfy. Violations are reported, never fatal, a thin digest beats no
// digest.
type Result struct {
	Items      []domain.ScoredItem
	Violations []string
}

// Select assembles the digest shortlist from a scored pool: first reserve
// slots for each category minimum in priority order, then fill the remaining
// slots with the highest-scored leftovers, always respecting the per-source
// cap. The final list is ordered by score descending with URL as tie-break.
func Select(pool []domain.ScoredItem, c Constraints) Result {
	if c.TargetCount <= 0 || len(pool) == 0 {
		return Result{}
	}

	sorted := make([]domain.ScoredItem, len(pool))
	copy(sorted, pool)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Item.URL < sorted[j].Item.URL
	})

	res := Result{}
	picked := make(map[string]bool, c.TargetCount) // by URL
	perSource := make(map[string]int)

	take := func(it domain.ScoredItem) bool {
		if picked[it.Item.URL] || len(res.Items) >= c.TargetCount {
			return false
		}
		if c.MaxPerSource > 0 && perSource[it.Item.Source] >= c.MaxPerSource {
			return false
		}
		picked[it.Item.URL] = true
		perSource[it.Item.Source]++
		res.Items = append(res.Items, it)
		return true
	}

	// pass 1: category floors, in priority order
	for _, m := range c.CategoryMinimums {
		got := 0
		for _, it := range sorted {
			if got >= m.Min || len(res.Items) >= c.TargetCount {
				break
			}
			if it.Item.Category != m.Category {
				continue
			}
			if take(it) {
				got++
			}
		}
		if got < m.Min {
			v := fmt.Sprintf("category %q: wanted %d, got %d", m.Category, m.Min, got)
			res.Violations = append(res.Violations, v)
			lgr.Printf("[WARN] selection constraint unmet, %s", v)
		}
	}

	// pass 2: fill remaining slots by score
	for _, it := range sorted {
		if len(res.Items) >= c.TargetCount {
			break
		}
		take(it)
	}

	// reserved picks from pass 1 may sit below pass 2 fills, restore score order
	sort.Slice(res.Items, func(i, j int) bool {
		if res.Items[i].Score != res.Items[j].Score {
			return res.Items[i].Score > res.Items[j].Score
		}
		return res.Items[i].Item.URL < res.Items[j].Item.URL
	})

	return res
}
