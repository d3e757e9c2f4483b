package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/digestscope/pkg/config"
	"github.com/umputun/digestscope/pkg/domain"
)

const testFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Test Feed</title>
  <link>https://example.com</link>
  <item>
    <title>First Post</title>
    <link>https://example.com/first</link>
    <description>&lt;p&gt;Some &lt;b&gt;markup&lt;/b&gt; here&lt;/p&gt;</description>
    <author>alice@example.com (Alice)</author>
    <pubDate>Mon, 02 Jun 2025 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Second Post</title>
    <link>https://example.com/second</link>
    <description>plain text summary</description>
  </item>
  <item>
    <title>No Link Entry</title>
    <description>this one has no link</description>
  </item>
</channel>
</rss>`

func TestRSSCollector_Collect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testFeedXML)
	}))
	defer srv.Close()

	collector := NewRSSCollector(config.FeedConfig{
		URL:      srv.URL,
		Name:     "test-feed",
		Tier:     1,
		Category: "news",
	}, 5*time.Second, "Digestscope/1.0")

	items, err := collector.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2, "entry without link is dropped")

	first := items[0]
	assert.Equal(t, "https://example.com/first", first.URL)
	assert.Equal(t, "First Post", first.Title)
	assert.Equal(t, "Some markup here", first.Snippet, "markup stripped")
	assert.Equal(t, "rss:test-feed", first.Source)
	assert.Equal(t, "news", first.Category)
	assert.Equal(t, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC), first.Published.UTC())
	assert.NotEmpty(t, first.Fingerprint)

	tier, ok := first.Metadata.Float("tier")
	require.True(t, ok)
	assert.InDelta(t, 1.0, tier, 0.0001)

	second := items[1]
	assert.Equal(t, "plain text summary", second.Snippet)
	assert.True(t, second.Published.IsZero(), "missing date stays zero")
}

func TestRSSCollector_Name(t *testing.T) {
	c := NewRSSCollector(config.FeedConfig{URL: "https://example.com/feed", Name: "arxiv-cs"}, time.Second, "ua")
	assert.Equal(t, "rss:arxiv-cs", c.Name())

	noName := NewRSSCollector(config.FeedConfig{URL: "https://example.com/feed"}, time.Second, "ua")
	assert.Equal(t, "rss:https://example.com/feed", noName.Name())
}

func TestRSSCollector_Errors(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := NewRSSCollector(config.FeedConfig{URL: srv.URL}, time.Second, "ua")
		_, err := c.Collect(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status code")
	})

	t.Run("invalid feed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "not xml at all")
		}))
		defer srv.Close()

		c := NewRSSCollector(config.FeedConfig{URL: srv.URL}, time.Second, "ua")
		_, err := c.Collect(context.Background())
		require.Error(t, err)
	})

	t.Run("unreachable server", func(t *testing.T) {
		c := NewRSSCollector(config.FeedConfig{URL: "http://127.0.0.1:1"}, time.Second, "ua")
		_, err := c.Collect(context.Background())
		require.Error(t, err)
	})
}

func TestRSSCollector_SnippetTruncated(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "word "
	}
	feed := fmt.Sprintf(`<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>
<item><title>x</title><link>https://example.com/x</link><description>%s</description></item>
</channel></rss>`, long)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, feed)
	}))
	defer srv.Close()

	c := NewRSSCollector(config.FeedConfig{URL: srv.URL}, time.Second, "ua")
	items, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.LessOrEqual(t, len(items[0].Snippet), 504)
	assert.Contains(t, items[0].Snippet, "...")
}

func TestRSSCollector_FingerprintStable(t *testing.T) {
	// identical content from different feeds fingerprints identically
	a := domain.ContentFingerprint("The Quick   Brown Fox")
	b := domain.ContentFingerprint("the quick brown fox")
	assert.Equal(t, a, b)
}
