// Package cache stores revalidatable GET responses for the executor.
//
// The manager keeps two layers:
//
// - an in-process go-cache layer, capped at the configured memory TTL
// - an optional Redis layer shared by every process using the same server
//
// Entries carry the ETag and Last-Modified validators of the original
// answer. The executor sends them back as If-None-Match / If-Modified-Since
// and serves a 304 from the stored body.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	// nil instead of redisClient gives a memory-only cache
//	manager := cache.NewManager(redisClient, time.Minute)
//
//	key := cache.Key{
//		Host:        "accounting.local:5000",
//		Endpoint:    "/api/invoices",
//		QueryParams: url.Values{"page": {"2"}, "size": {"20"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the server
//	}
//
// # Conditional Requests
//
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//	}
//
// # Metrics
//
//   - pagefeed_cache_hits_total{layer} - Cache hits per layer
//   - pagefeed_cache_misses_total - Cache misses
//   - pagefeed_cache_size_bytes{layer} - Bytes written per layer
//   - pagefeed_conditional_requests_total - Revalidations sent
//   - pagefeed_304_responses_total - Revalidations answered with 304
//   - pagefeed_cache_errors_total{operation} - Cache operation errors
//
// Responses without an Expires header live for DefaultTTL; an Expires time
// in the past means the response is not stored.
package cache
