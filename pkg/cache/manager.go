package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager keeps entries in an in-process layer and, when a Redis client is
// given, in Redis so several processes share revalidation state.
type Manager struct {
	memory    *gocache.Cache
	memoryTTL time.Duration
	redis     *redis.Client
}

// NewManager creates a cache manager. memoryTTL caps how long an entry stays
// in the process-local layer; redisClient may be nil for a memory-only cache.
func NewManager(redisClient *redis.Client, memoryTTL time.Duration) *Manager {
	if memoryTTL <= 0 {
		memoryTTL = 60 * time.Second
	}
	return &Manager{
		memory:    gocache.New(memoryTTL, 2*memoryTTL),
		memoryTTL: memoryTTL,
		redis:     redisClient,
	}
}

// Get retrieves a cache entry by key, memory layer first.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	cacheKey := key.String()

	if v, ok := m.memory.Get(cacheKey); ok {
		entry := v.(*Entry)
		if !entry.IsExpired() {
			CacheHits.WithLabelValues("memory").Inc()
			return entry, nil
		}
		m.memory.Delete(cacheKey)
	}

	if m.redis == nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	m.memory.Set(cacheKey, &entry, m.memoryTTLFor(&entry))

	return &entry, nil
}

// Set stores an entry in every layer with a TTL derived from its Expires field.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	cacheKey := key.String()
	m.memory.Set(cacheKey, entry, m.memoryTTLFor(entry))
	CacheSize.WithLabelValues("memory").Add(float64(len(entry.Data)))

	if m.redis == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	CacheSize.WithLabelValues("redis").Add(float64(len(data)))

	return nil
}

// Delete removes an entry from every layer.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	cacheKey := key.String()
	m.memory.Delete(cacheKey)

	if m.redis == nil {
		return nil
	}
	if err := m.redis.Del(ctx, cacheKey).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// UpdateTTL moves the expiry of an existing entry.
func (m *Manager) UpdateTTL(ctx context.Context, key Key, newExpires time.Time) error {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	updated := *entry
	updated.Expires = newExpires
	return m.Set(ctx, key, &updated)
}

// Refresh applies the Expires header of a 304 answer to an existing entry.
// Without an Expires header the entry keeps its current expiry.
func (m *Manager) Refresh(ctx context.Context, key Key, header http.Header) error {
	if header.Get("Expires") == "" {
		return nil
	}
	return m.UpdateTTL(ctx, key, parseExpires(header))
}

func (m *Manager) memoryTTLFor(entry *Entry) time.Duration {
	if ttl := entry.TTL(); ttl < m.memoryTTL {
		return ttl
	}
	return m.memoryTTL
}
