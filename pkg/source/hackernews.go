package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/digestscope/pkg/config"
	"github.com/umputun/digestscope/pkg/domain"
)

// hnAPIBase is the Firebase endpoint of the official Hacker News API
const hnAPIBase = "https://hacker-news.firebaseio.com/v0"

// HNCollector pulls stories from the Hacker News API and keeps the ones
// matching the configured keywords. Points travel in metadata so the scorer
// can use them as an engagement signal.
type HNCollector struct {
	cfg     config.HackerNewsConfig
	client  *http.Client
	apiBase string
}

// hnStory is the item payload of the Hacker News API
type hnStory struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
	By    string `json:"by"`
	Score int    `json:"score"`
	Time  int64  `json:"time"`
	Dead  bool   `json:"dead"`
}

// NewHNCollector creates a Hacker News collector
func NewHNCollector(cfg config.HackerNewsConfig, timeout time.Duration) *HNCollector {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = []string{"topstories"}
	}
	return &HNCollector{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		apiBase: hnAPIBase,
	}
}

// Name identifies the collector
func (c *HNCollector) Name() string { return "hackernews" }

// Collect pulls the configured story lists, fetches each story and converts
// the keyword matches to domain items
func (c *HNCollector) Collect(ctx context.Context) ([]domain.Item, error) {
	seen := make(map[int64]bool)
	var items []domain.Item

	for _, endpoint := range c.cfg.Endpoints {
		ids, err := c.storyIDs(ctx, endpoint)
		if err != nil {
			return items, fmt.Errorf("fetch %s: %w", endpoint, err)
		}

		for _, id := range ids {
			if len(items) >= c.cfg.MaxItems {
				return items, nil
			}
			if seen[id] {
				continue
			}
			seen[id] = true

			story, err := c.story(ctx, id)
			if err != nil {
				lgr.Printf("[WARN] skip hn story %d: %v", id, err)
				continue
			}
			if story.Dead || story.Type != "story" || story.URL == "" {
				continue
			}
			if !c.matchesKeywords(story.Title) {
				continue
			}

			items = append(items, domain.Item{
				URL:       story.URL,
				Title:     strings.TrimSpace(story.Title),
				Source:    c.Name(),
				Category:  c.cfg.Category,
				Author:    story.By,
				Published: time.Unix(story.Time, 0).UTC(),
				Metadata: domain.Metadata{
					"points": story.Score,
					"hn_id":  story.ID,
				},
				Fingerprint: domain.ContentFingerprint(""),
			})
		}
	}

	return items, nil
}

// storyIDs fetches one story list, e.g. topstories or beststories
func (c *HNCollector) storyIDs(ctx context.Context, endpoint string) ([]int64, error) {
	var ids []int64
	if err := c.getJSON(ctx, fmt.Sprintf("%s/%s.json", c.apiBase, endpoint), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// story fetches a single story by id
func (c *HNCollector) story(ctx context.Context, id int64) (hnStory, error) {
	var story hnStory
	if err := c.getJSON(ctx, fmt.Sprintf("%s/item/%d.json", c.apiBase, id), &story); err != nil {
		return hnStory{}, err
	}
	return story, nil
}

func (c *HNCollector) getJSON(ctx context.Context, url string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// matchesKeywords reports whether a title matches the configured filter.
// An empty filter keeps everything.
func (c *HNCollector) matchesKeywords(title string) bool {
	if len(c.cfg.FilterKeywords) == 0 {
		return true
	}
	lower := strings.ToLower(title)
	for _, keyword := range c.cfg.FilterKeywords {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}
