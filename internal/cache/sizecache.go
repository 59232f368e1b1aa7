package cache

import (
	"sync"

	"github.com/LavishGent/imgcache/internal/types"
)

// sizeCache remembers source dimensions per URL. Once full, the oldest
// inserted URL is dropped.
type sizeCache struct {
	mu       sync.Mutex
	maxCount int
	sizes    map[string]types.Dimensions
	order    []string
}

func newSizeCache(maxCount int) *sizeCache {
	return &sizeCache{
		maxCount: maxCount,
		sizes:    make(map[string]types.Dimensions),
	}
}

func (c *sizeCache) get(url string) (types.Dimensions, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.sizes[url]
	return d, ok
}

func (c *sizeCache) put(url string, d types.Dimensions) {
	if c.maxCount <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sizes[url]; ok {
		c.sizes[url] = d
		return
	}
	for len(c.order) >= c.maxCount {
		delete(c.sizes, c.order[0])
		c.order[0] = ""
		c.order = c.order[1:]
	}
	c.sizes[url] = d
	c.order = append(c.order, url)
}

func (c *sizeCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sizes)
}

func (c *sizeCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sizes = make(map[string]types.Dimensions)
	c.order = nil
}
