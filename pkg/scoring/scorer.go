package scoring

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/digestscope/pkg/config"
	"github.com/umputun/digestscope/pkg/domain"
)

// SimilarityIndex is the part of the item store the novelty signal consults
type SimilarityIndex interface {
	FindSimilarTitles(ctx context.Context, title string, threshold float64, limit int) ([]domain.SimilarTitle, error)
}

// Scorer computes a composite relevance score in [0,1] as a weighted sum of
// independently bounded signals: keyword match, source tier, engagement,
// recency and novelty. Weights and tiers come from configuration, the
// defaults make keyword match the dominant signal.
type Scorer struct {
	cfg      config.ScoringConfig
	index    SimilarityIndex
	keywords []string
	tiers    []tier
	now      func() time.Time
}

type tier struct {
	name   string
	weight float64
}

// NewScorer creates a scorer from the configured policy. The index may be
// nil, the novelty signal then scores neutral.
func NewScorer(cfg config.ScoringConfig, index SimilarityIndex) *Scorer {
	keywords := make([]string, len(cfg.Keywords))
	for i, k := range cfg.Keywords {
		keywords[i] = strings.ToLower(k)
	}

	// longest substring first so "arxiv-rss" hits "arxiv" before "rss",
	// and map order never leaks into scores
	tiers := make([]tier, 0, len(cfg.SourceTiers))
	for name, weight := range cfg.SourceTiers {
		tiers = append(tiers, tier{name: strings.ToLower(name), weight: weight})
	}
	sort.Slice(tiers, func(i, j int) bool {
		if len(tiers[i].name) != len(tiers[j].name) {
			return len(tiers[i].name) > len(tiers[j].name)
		}
		return tiers[i].name < tiers[j].name
	})

	return &Scorer{cfg: cfg, index: index, keywords: keywords, tiers: tiers, now: time.Now}
}

// Score computes the composite relevance score for an item
func (s *Scorer) Score(ctx context.Context, item domain.Item) float64 {
	w := s.cfg.Weights

	score := s.keywordScore(item)*w.Keyword +
		s.sourceScore(item)*w.Source +
		s.engagementScore(item)*w.Engagement +
		s.recencyScore(item)*w.Recency +
		s.noveltyScore(ctx, item)*w.Novelty

	return math.Min(math.Max(score, 0), 1)
}

// ScoreAll scores a batch and returns it ordered by score descending, ties
// broken by URL for determinism
func (s *Scorer) ScoreAll(ctx context.Context, items []domain.Item) []domain.ScoredItem {
	scored := make([]domain.ScoredItem, len(items))
	for i, item := range items {
		scored[i] = domain.ScoredItem{Item: item, Score: s.Score(ctx, item)}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Item.URL < scored[j].Item.URL
	})
	return scored
}

// keywordScore is the fraction of dictionary hits, saturating after a few
// matches so a keyword-stuffed title cannot run away with the score
func (s *Scorer) keywordScore(item domain.Item) float64 {
	text := strings.ToLower(item.Title + " " + item.Snippet + " " + item.Content)

	matches := 0
	for _, keyword := range s.keywords {
		if strings.Contains(text, keyword) {
			matches++
		}
	}

	saturation := s.cfg.KeywordSaturation
	if saturation <= 0 {
		saturation = 3
	}
	return math.Min(float64(matches)/float64(saturation), 1.0)
}

// sourceScore reflects curatorial trust in the source, independent of content
func (s *Scorer) sourceScore(item domain.Item) float64 {
	source := strings.ToLower(item.Source)
	for _, t := range s.tiers {
		if strings.Contains(source, t.name) {
			return t.weight
		}
	}
	return 0.5 // unknown source, neutral
}

// engagementScore log-scales whatever external signal the item carries.
// No signal scores neutral, absence is not negative evidence.
func (s *Scorer) engagementScore(item domain.Item) float64 {
	if citations, ok := item.Metadata.Float("citations"); ok {
		return math.Min(math.Log(citations+1)/math.Log(100), 1.0)
	}
	if points, ok := item.Metadata.Float("points"); ok {
		return math.Min(math.Log(points+1)/math.Log(500), 1.0)
	}
	if generic, ok := item.Metadata.Float("score"); ok {
		return math.Min(generic/100.0, 1.0)
	}
	return 0.5
}

// recencyScore decays exponentially with age. The halflife depends on the
// content class: papers stay valuable for a week, announcements for a day,
// otherwise old reference material is squeezed out no matter how it scores
// elsewhere.
func (s *Scorer) recencyScore(item domain.Item) float64 {
	if item.Published.IsZero() {
		return 0.5
	}

	halflife := s.cfg.DefaultHalflife
	if h, ok := s.cfg.RecencyHalflife[item.Category]; ok {
		halflife = h
	}
	if halflife <= 0 {
		halflife = 24 * time.Hour
	}

	ageHours := s.now().Sub(item.Published).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return math.Exp(-ageHours / halflife.Hours())
}

// noveltyScore penalizes items that look like recently seen content
func (s *Scorer) noveltyScore(ctx context.Context, item domain.Item) float64 {
	if s.index == nil {
		return 0.5
	}

	similar, err := s.index.FindSimilarTitles(ctx, item.Title, s.cfg.NoveltyThreshold, 5)
	if err != nil {
		lgr.Printf("[WARN] novelty lookup failed for %q: %v", item.URL, err)
		return 0.5
	}

	// items supplemented from history are already indexed and match their own
	// row at maximum similarity, only other items count as prior art
	maxSimilarity := 0.0
	for _, sim := range similar {
		if sim.URL == item.URL {
			continue
		}
		if sim.Similarity > maxSimilarity {
			maxSimilarity = sim.Similarity
		}
	}
	return 1.0 - maxSimilarity
}
