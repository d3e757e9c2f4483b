package source

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddBrowserHeaders(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "https://example.com/feed.xml", http.NoBody)
	require.NoError(t, err)

	addBrowserHeaders(req)

	assert.Contains(t, req.Header.Get("Accept"), "application/rss+xml")
	assert.Contains(t, feedAcceptLanguages, req.Header.Get("Accept-Language"))
	assert.Equal(t, "no-cache", req.Header.Get("Cache-Control"))
	assert.Empty(t, req.Header.Get("Accept-Encoding"), "transport handles compression")
}
