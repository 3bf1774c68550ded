package cache

import (
	"net/http"
	"time"
)

// CacheEntry is a stored response snapshot.
type CacheEntry struct {
	// URL is the absolute request URL the response was served for
	URL string `json:"url"`

	// StatusCode is the HTTP status code of the cached response
	StatusCode int `json:"status_code"`

	// Headers are the response headers
	Headers http.Header `json:"headers"`

	// Data is the response body
	Data []byte `json:"data"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// Age returns how long ago the entry was cached.
func (e *CacheEntry) Age() time.Duration {
	if e.CachedAt.IsZero() {
		return 0
	}
	return time.Since(e.CachedAt)
}

// OK reports whether the stored status is in the 2xx range.
func (e *CacheEntry) OK() bool {
	return e.StatusCode >= 200 && e.StatusCode < 300
}
