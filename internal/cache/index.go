package cache

import (
	"sort"
	"time"

	"github.com/LavishGent/imgcache/internal/types"
)

const (
	popularitySeed  = 2000.0
	popularityBump  = 100.0
	popularityDecay = 0.85
)

// entry is the index record for one stored artifact.
type entry struct {
	key         string
	settings    types.Settings
	url         string
	sourceHash  string
	sourceSize  types.Dimensions
	size        int64
	lastUpdated time.Time
	popularity  float64
	// seq orders entries by first insertion.
	seq uint64
}

// less orders eviction candidates: lowest popularity first, then oldest
// lastUpdated, then earliest insertion.
func (e *entry) less(o *entry) bool {
	if e.popularity != o.popularity {
		return e.popularity < o.popularity
	}
	if !e.lastUpdated.Equal(o.lastUpdated) {
		return e.lastUpdated.Before(o.lastUpdated)
	}
	return e.seq < o.seq
}

func (e *entry) item() types.CachedItem {
	return types.CachedItem{
		Key:         e.key,
		URL:         e.url,
		Settings:    e.settings,
		Size:        e.size,
		Popularity:  e.popularity,
		SourceHash:  e.sourceHash,
		LastUpdated: e.lastUpdated,
	}
}

// index maps keys to entries and tracks their summed size.
// It is not safe for concurrent use; Manager guards it with its mutex.
type index struct {
	entries map[string]*entry
	size    int64
	seq     uint64
}

func newIndex() *index {
	return &index{entries: make(map[string]*entry)}
}

func (ix *index) get(key string) *entry {
	return ix.entries[key]
}

func (ix *index) insert(e *entry) {
	ix.seq++
	e.seq = ix.seq
	ix.entries[e.key] = e
	ix.size += e.size
}

// resize applies a size change to an existing entry.
func (ix *index) resize(e *entry, newSize int64) {
	ix.size += newSize - e.size
	e.size = newSize
}

// remove deletes key and returns the removed entry. The size counter going
// negative is reported as ErrNegativeCacheSize; the entry is still gone.
func (ix *index) remove(key string) (*entry, error) {
	e, ok := ix.entries[key]
	if !ok {
		return nil, nil
	}
	delete(ix.entries, key)
	ix.size -= e.size
	if ix.size < 0 {
		return e, types.ErrNegativeCacheSize
	}
	return e, nil
}

// victim returns the eviction candidate, ignoring keys in skip.
func (ix *index) victim(skip map[string]struct{}) *entry {
	var worst *entry
	for k, e := range ix.entries {
		if _, ok := skip[k]; ok {
			continue
		}
		if worst == nil || e.less(worst) {
			worst = e
		}
	}
	return worst
}

// stale returns keys whose lastUpdated is more than maxAge before now.
func (ix *index) stale(now time.Time, maxAge time.Duration) []string {
	var keys []string
	for k, e := range ix.entries {
		if now.Sub(e.lastUpdated) > maxAge {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (ix *index) decay(factor float64) {
	for _, e := range ix.entries {
		e.popularity *= factor
	}
}

// computedSize sums entry sizes, for cross-checking the counter.
func (ix *index) computedSize() int64 {
	var total int64
	for _, e := range ix.entries {
		total += e.size
	}
	return total
}

func (ix *index) items() []types.CachedItem {
	items := make([]types.CachedItem, 0, len(ix.entries))
	for _, e := range ix.entries {
		items = append(items, e.item())
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })
	return items
}

func (ix *index) len() int {
	return len(ix.entries)
}

func (ix *index) reset() {
	ix.entries = make(map[string]*entry)
	ix.size = 0
}
