// Package cache provides an optional Redis-backed response cache for
// Intercom GET requests.
//
// Intercom answers conditional requests (If-None-Match / If-Modified-Since)
// with 304 Not Modified when the resource is unchanged. The cache keeps the
// last full response per request key so that a 304 can be served from Redis
// instead of re-downloading the body. Only responses that carry an ETag or
// Last-Modified validator are stored; a cached body is never used without
// the server confirming it is current, so an export always reflects the
// live data.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, cache.Options{DefaultTTL: 24 * time.Hour})
//
//	key := cache.CacheKey{
//		Endpoint:    "/conversations/123",
//		QueryParams: url.Values{"display_as": []string{"plaintext"}},
//		Version:     "2.11",
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from Intercom
//	}
//	if cache.ShouldMakeConditionalRequest(entry) {
//		cache.AddConditionalHeaders(req, entry)
//	}
//
// # Metrics
//
//   - intercom_cache_hits_total - Cache hits
//   - intercom_cache_misses_total - Cache misses
//   - intercom_cache_stored_bytes - Bytes written to the cache
//   - intercom_conditional_requests_total - Conditional requests sent
//   - intercom_304_responses_total - 304 Not Modified responses served from cache
//   - intercom_cache_errors_total{operation} - Cache operation errors
package cache
