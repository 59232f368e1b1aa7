// Package imgcache serves resized and re-encoded images from a size-bounded
// cache.
//
// A request names a source image by URL (or by a path under a local root) and
// the desired output Settings. The first request for a combination returns
// the untransformed source bytes immediately and queues production of the
// artifact; later requests are served from the cache.
//
// # Features
//
//   - Size-bounded artifact cache with popularity-based eviction
//   - Background refresh of stale artifacts, skipped when the source is unchanged
//   - Sharded in-memory or Redis blob storage
//   - Resilient upstream fetching: circuit breaker, retry with backoff, bulkhead
//   - Metrics tracking with logging and DataDog publishers
//
// # Quick Start
//
//	svc, err := imgcache.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	data, err := svc.Get(ctx, "https://cdn.example.com/hero.jpg", imgcache.Settings{
//	    Format:  imgcache.FormatJPEG,
//	    Quality: 80,
//	    Width:   800,
//	    Height:  600,
//	})
//
// # Eviction
//
// Every artifact starts with a popularity of 2000, gains 100 per hit and is
// multiplied by 0.85 on each maintenance tick. When an artifact does not fit,
// the least popular artifacts are evicted first. An artifact larger than the
// whole cache is never stored.
//
// # Configuration
//
// Load configuration from a JSON file with IMGCACHE_* environment overrides:
//
//	svc, err := imgcache.NewFromFile("config.json")
//
// Or start from the defaults:
//
//	cfg := imgcache.Config()
//	cfg.Cache.MaxSize = 512 << 20
//	svc, err := imgcache.NewFromConfig(cfg)
//
// For testing, use the test configuration:
//
//	cfg := imgcache.TestConfig()
//
// # Thread Safety
//
// All Service methods are safe for concurrent use.
package imgcache
