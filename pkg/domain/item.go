package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Item represents a single piece of content observed from some source.
// URL is the identity key: two items with the same URL are the same item,
// no matter which pipeline stage produced them.
type Item struct {
	ID          int64
	URL         string
	Title       string
	Snippet     string
	Content     string
	Source      string
	Category    string
	Author      string
	Published   time.Time
	Metadata    Metadata
	Fingerprint string

	FirstSeen        time.Time
	LastChecked      time.Time
	TimesSurfaced    int
	IncludedInDigest bool
}

// Metadata holds free-form source-specific attributes, e.g. tier, priority,
// citations for papers or points for aggregator posts.
type Metadata map[string]any

// Float returns a numeric metadata value, with ok=false when the key is
// missing or not a number. JSON round-trips turn numbers into float64,
// collectors may set plain ints.
func (m Metadata) Float(key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// ContentFingerprint returns the deterministic sha256 hash of normalized
// content. Empty or absent content hashes to the fixed hash of "", never to
// an undefined value.
func ContentFingerprint(content string) string {
	normalized := strings.ToLower(strings.TrimSpace(content))
	normalized = strings.Join(strings.Fields(normalized), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// ScoredItem pairs an item with its composite relevance score.
type ScoredItem struct {
	Item  Item
	Score float64
}

// SimilarTitle is a fuzzy title match from the similarity index, with the
// similarity already normalized to [0,1].
type SimilarTitle struct {
	ItemID     int64
	Title      string
	URL        string
	Similarity float64
}
