package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/umputun/digestscope/pkg/config"
	"github.com/umputun/digestscope/pkg/domain"
)

// RSSCollector fetches and parses a single RSS/Atom feed
type RSSCollector struct {
	cfg       config.FeedConfig
	client    *http.Client
	userAgent string
	sanitizer *bluemonday.Policy
}

// NewRSSCollector creates a collector for one configured feed
func NewRSSCollector(cfg config.FeedConfig, timeout time.Duration, userAgent string) *RSSCollector {
	return &RSSCollector{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: userAgent,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Name identifies the collector, "rss:<feed name>"
func (c *RSSCollector) Name() string {
	name := c.cfg.Name
	if name == "" {
		name = c.cfg.URL
	}
	return "rss:" + name
}

// Collect fetches the feed and converts entries to domain items
func (c *RSSCollector) Collect(ctx context.Context) ([]domain.Item, error) {
	body, err := c.fetch(ctx, c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer body.Close()

	feed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]domain.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if entry.Link == "" {
			continue // nothing to dedup or link without a URL
		}

		item := domain.Item{
			URL:      entry.Link,
			Title:    strings.TrimSpace(entry.Title),
			Snippet:  c.snippet(entry),
			Content:  strings.TrimSpace(c.sanitizer.Sanitize(entry.Content)),
			Source:   c.Name(),
			Category: c.cfg.Category,
			Metadata: domain.Metadata{"tier": c.cfg.Tier},
		}

		if entry.Author != nil {
			item.Author = entry.Author.Name
		}

		if entry.PublishedParsed != nil {
			item.Published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			item.Published = *entry.UpdatedParsed
		}

		item.Fingerprint = domain.ContentFingerprint(item.Content)
		items = append(items, item)
	}

	return items, nil
}

// snippet strips markup from the entry description and trims it to a
// digest-sized summary
func (c *RSSCollector) snippet(entry *gofeed.Item) string {
	text := strings.TrimSpace(c.sanitizer.Sanitize(entry.Description))
	const maxSnippet = 500
	if len(text) > maxSnippet {
		text = text[:maxSnippet]
		if idx := strings.LastIndex(text, " "); idx > 0 {
			text = text[:idx]
		}
		text += "..."
	}
	return text
}

// fetch retrieves content from a URL
func (c *RSSCollector) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	addBrowserHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch URL: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}
