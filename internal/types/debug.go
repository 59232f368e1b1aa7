package types

import "time"

// QueueDebugInfo is the observable state of a task queue.
type QueueDebugInfo struct {
	Name       string   `json:"name"`
	MaxLength  int      `json:"maxLength"`
	Cooldown   string   `json:"cooldown"`
	Paused     bool     `json:"paused"`
	Closed     bool     `json:"closed"`
	WorkingOn  string   `json:"workingOn,omitempty"`
	WaitingOn  []string `json:"waitingOn"`
	Admitted   int64    `json:"admitted"`
	Rejected   int64    `json:"rejected"`
	Completed  int64    `json:"completed"`
	Failed     int64    `json:"failed"`
	LastFinish string   `json:"lastFinish,omitempty"`
}

// CachedItem describes one indexed artifact.
type CachedItem struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	Settings    Settings  `json:"settings"`
	Size        int64     `json:"size"`
	Popularity  float64   `json:"popularity"`
	SourceHash  string    `json:"sourceHash"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// FetcherStats is the state of a source provider's short-lived fetch cache.
type FetcherStats struct {
	Items   int   `json:"items"`
	Bytes   int64 `json:"bytes"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Fetches int64 `json:"fetches"`
}

// UpstreamStats is the state of the resilience policy guarding source fetches.
type UpstreamStats struct {
	CircuitState        string `json:"circuitState"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
	Retries             int64  `json:"retries"`
	Succeeded           int64  `json:"succeeded"`
	Failed              int64  `json:"failed"`
	BulkheadActive      int    `json:"bulkheadActive"`
	BulkheadQueued      int    `json:"bulkheadQueued"`
	BulkheadRejected    int64  `json:"bulkheadRejected"`
}

// DebugInfo is a consistent-enough snapshot of the orchestrator.
type DebugInfo struct {
	Config            map[string]any `json:"config"`
	CacheSize         int64          `json:"cacheSize"`
	ComputedCacheSize int64          `json:"computedCacheSize"`
	MaxCacheSize      int64          `json:"maxCacheSize"`
	SizeCacheCount    int            `json:"sizeCacheCount"`
	CachedItems       []CachedItem   `json:"cachedItems"`
	MainQueue         QueueDebugInfo `json:"mainQueue"`
	BackgroundQueue   QueueDebugInfo `json:"backgroundQueue"`
	Fetcher           *FetcherStats  `json:"fetcher,omitempty"`
	Upstream          *UpstreamStats `json:"upstream,omitempty"`
}
