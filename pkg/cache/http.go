package cache

import (
	"net/http"
	"time"
)

const (
	// DefaultTTL is the fallback TTL when no expires header is present
	DefaultTTL = 5 * time.Minute
)

// NewEntry builds an entry from a response that has already been read.
func NewEntry(status int, header http.Header, body []byte) *Entry {
	entry := &Entry{
		Data:       append([]byte(nil), body...),
		ETag:       header.Get("ETag"),
		StatusCode: status,
		Headers:    header.Clone(),
		CachedAt:   time.Now(),
		Expires:    parseExpires(header),
	}

	if lastModStr := header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry
}

// parseExpires returns the Expires header time, now + DefaultTTL when it is
// absent or unparseable, and now when it lies in the past.
func parseExpires(headers http.Header) time.Time {
	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return time.Now().Add(DefaultTTL)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return time.Now().Add(DefaultTTL)
	}

	if expires.Before(time.Now()) {
		return time.Now()
	}

	return expires
}

// ShouldMakeConditionalRequest reports whether entry carries a validator.
func ShouldMakeConditionalRequest(entry *Entry) bool {
	return entry != nil && entry.HasValidator()
}

// AddConditionalHeaders adds If-None-Match (preferred) or If-Modified-Since.
func AddConditionalHeaders(req *http.Request, entry *Entry) {
	if entry == nil || req == nil {
		return
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}

	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.Format(http.TimeFormat))
	}
}
