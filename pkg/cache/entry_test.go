package cache

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func pageHeader(etag string, expiresIn time.Duration) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if etag != "" {
		h.Set("ETag", etag)
	}
	h.Set("Expires", time.Now().Add(expiresIn).UTC().Format(http.TimeFormat))
	return h
}

func TestEntry_FromPageResponse(t *testing.T) {
	body := []byte(`{"success": true, "data": [{"id": 1}], "has_more": true}`)
	entry := NewEntry(http.StatusOK, pageHeader(`"page-1"`, time.Hour), body)

	if !entry.HasValidator() {
		t.Error("entry with ETag should be revalidatable")
	}
	if entry.IsExpired() {
		t.Error("entry expiring in an hour reported expired")
	}
	if ttl := entry.TTL(); ttl < 59*time.Minute || ttl > time.Hour+time.Second {
		t.Errorf("TTL() = %v, want about 1h", ttl)
	}
	if age := entry.Age(); age < 0 || age > time.Second {
		t.Errorf("Age() = %v, want just stored", age)
	}
}

func TestEntry_PastExpiresIsExpiredImmediately(t *testing.T) {
	entry := NewEntry(http.StatusOK, pageHeader(`"page-1"`, -time.Hour), []byte(`{}`))

	if !entry.IsExpired() {
		t.Error("entry with past Expires should be expired")
	}
	if ttl := entry.TTL(); ttl != 0 {
		t.Errorf("TTL() = %v, want 0", ttl)
	}

	manager := NewManager(nil, time.Minute)
	key := Key{Endpoint: "/api/invoices", QueryParams: map[string][]string{"page": {"1"}}}
	if err := manager.Set(context.Background(), key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := manager.Get(context.Background(), key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss for an already stale page", err)
	}
}

func TestEntry_WithoutValidator(t *testing.T) {
	entry := NewEntry(http.StatusOK, pageHeader("", time.Hour), []byte(`{}`))
	if entry.HasValidator() {
		t.Error("entry without ETag or Last-Modified should not be revalidatable")
	}

	var zero Entry
	if zero.Age() != 0 {
		t.Errorf("Age() of unsaved entry = %v, want 0", zero.Age())
	}
}

// A 304 carrying a later Expires extends the stored page.
func TestEntry_TTLAfterRefresh(t *testing.T) {
	manager := NewManager(nil, time.Hour)
	ctx := context.Background()
	key := Key{Host: "app.test", Endpoint: "/api/invoices", QueryParams: map[string][]string{"page": {"2"}, "size": {"20"}}}

	if err := manager.Set(ctx, key, NewEntry(http.StatusOK, pageHeader(`"page-2"`, time.Minute), []byte(`{}`))); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	notModified := http.Header{}
	notModified.Set("Expires", time.Now().Add(30*time.Minute).UTC().Format(http.TimeFormat))
	if err := manager.Refresh(ctx, key, notModified); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	entry, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ttl := entry.TTL(); ttl < 29*time.Minute {
		t.Errorf("TTL() after refresh = %v, want about 30m", ttl)
	}
	if entry.ETag != `"page-2"` {
		t.Errorf("ETag = %q, want it kept across refresh", entry.ETag)
	}
}
