// Package cache provides a Redis-backed response cache for Business Central
// GET requests.
//
// Business Central does not send Expires headers, so entries live for a
// configured TTL. Every cached entry that carries an ETag is revalidated
// with If-None-Match; a 304 Not Modified answer is served from the cache.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient, 5*time.Minute)
//
//	key := cache.CacheKey{
//		Tenant:      "contoso.onmicrosoft.com",
//		Environment: "production",
//		Endpoint:    "/companies(123)/customers",
//		QueryParams: url.Values{"$top": []string{"100"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from Business Central
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
//   - bc_cache_hits_total{layer="redis"} - Cache hits
//   - bc_cache_misses_total - Cache misses
//   - bc_cache_size_bytes{layer="redis"} - Bytes written to the cache
//   - bc_304_responses_total - Conditional request successes
//   - bc_conditional_requests_total - Requests sent with If-None-Match
//   - bc_cache_errors_total{operation} - Cache operation errors
package cache
