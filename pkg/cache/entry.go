package cache

import (
	"net/http"
	"time"
)

// Entry is one stored page or search response together with the validators
// needed to revalidate it.
type Entry struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Data       []byte      `json:"data"`

	// ETag and LastModified are sent back as If-None-Match and
	// If-Modified-Since.
	ETag         string    `json:"etag"`
	LastModified time.Time `json:"last_modified"`

	CachedAt time.Time `json:"cached_at"`
	Expires  time.Time `json:"expires"`
}

// HasValidator reports whether the server gave the entry an ETag or a
// Last-Modified time. Entries without one cannot be revalidated.
func (e *Entry) HasValidator() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}

// IsExpired reports whether the entry is past its Expires time.
func (e *Entry) IsExpired() bool {
	return !time.Now().Before(e.Expires)
}

// TTL is the time left until Expires, never negative.
func (e *Entry) TTL() time.Duration {
	return max(time.Until(e.Expires), 0)
}

// Age is how long ago the response was stored.
func (e *Entry) Age() time.Duration {
	if e.CachedAt.IsZero() {
		return 0
	}
	return time.Since(e.CachedAt)
}
