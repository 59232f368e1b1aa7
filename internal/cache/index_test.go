package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavishGent/imgcache/internal/types"
)

func TestIndexVictimOrdering(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ix := newIndex()
	ix.insert(&entry{key: "popular", size: 1, popularity: 3000, lastUpdated: t0})
	ix.insert(&entry{key: "old", size: 1, popularity: 500, lastUpdated: t0})
	ix.insert(&entry{key: "new", size: 1, popularity: 500, lastUpdated: t0.Add(time.Second)})
	ix.insert(&entry{key: "old-twin", size: 1, popularity: 500, lastUpdated: t0})

	var order []string
	skip := map[string]struct{}{}
	for {
		v := ix.victim(skip)
		if v == nil {
			break
		}
		order = append(order, v.key)
		skip[v.key] = struct{}{}
	}
	assert.Equal(t, []string{"old", "old-twin", "new", "popular"}, order)
}

func TestIndexStaleIsStrict(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	maxAge := time.Minute

	ix := newIndex()
	ix.insert(&entry{key: "b", lastUpdated: t0})
	ix.insert(&entry{key: "a", lastUpdated: t0})
	ix.insert(&entry{key: "edge", lastUpdated: t0.Add(time.Millisecond)})

	assert.Empty(t, ix.stale(t0.Add(maxAge), maxAge), "exactly maxAge old is not stale")
	assert.Equal(t, []string{"a", "b"}, ix.stale(t0.Add(maxAge+time.Nanosecond), maxAge))
	assert.Equal(t, []string{"a", "b", "edge"}, ix.stale(t0.Add(maxAge+2*time.Millisecond), maxAge))
}

func TestIndexAccounting(t *testing.T) {
	ix := newIndex()
	ix.insert(&entry{key: "a", size: 10})
	ix.insert(&entry{key: "b", size: 30})
	assert.Equal(t, int64(40), ix.size)

	ix.resize(ix.get("a"), 25)
	assert.Equal(t, int64(55), ix.size)
	assert.Equal(t, ix.computedSize(), ix.size)

	e, err := ix.remove("b")
	require.NoError(t, err)
	assert.Equal(t, "b", e.key)
	assert.Equal(t, int64(25), ix.size)

	e, err = ix.remove("missing")
	assert.NoError(t, err)
	assert.Nil(t, e)

	ix.size = 0
	e, err = ix.remove("a")
	assert.ErrorIs(t, err, types.ErrNegativeCacheSize)
	assert.NotNil(t, e)
	assert.Nil(t, ix.get("a"))
}

func TestIndexDecayAndItems(t *testing.T) {
	ix := newIndex()
	ix.insert(&entry{key: "z", size: 1, popularity: popularitySeed})
	ix.insert(&entry{key: "a", size: 2, popularity: 100})

	ix.decay(popularityDecay)
	assert.InDelta(t, 1700.0, ix.get("z").popularity, 1e-9)
	assert.InDelta(t, 85.0, ix.get("a").popularity, 1e-9)

	items := ix.items()
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Key)
	assert.Equal(t, int64(2), items[0].Size)

	ix.reset()
	assert.Equal(t, 0, ix.len())
	assert.Equal(t, int64(0), ix.size)
}
