package store

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LavishGent/imgcache/internal/config"
	"github.com/LavishGent/imgcache/internal/types"
)

// redisTestAddress checks REDIS_TEST_ADDRESS first, then localhost:6379.
func redisTestAddress() string {
	if addr := os.Getenv("REDIS_TEST_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

func skipIfRedisUnavailable(t *testing.T) *RedisStore {
	t.Helper()

	cfg := config.ForTestingWithRedis(redisTestAddress()).Redis
	rs, err := NewRedisStore(cfg, nil)
	if err != nil {
		t.Skipf("Redis unavailable: %v", err)
	}
	if !rs.IsAvailable() {
		_ = rs.Close()
		t.Skip("Redis is not available")
	}

	require.NoError(t, rs.Clear(context.Background()))
	t.Cleanup(func() {
		_ = rs.Clear(context.Background())
		_ = rs.Close()
	})
	return rs
}

func TestRedisStoreSetGetRemove(t *testing.T) {
	rs := skipIfRedisUnavailable(t)
	ctx := context.Background()

	require.NoError(t, rs.Set(ctx, "k1", []byte("artifact")))

	got, err := rs.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("artifact"), got)

	require.NoError(t, rs.Remove(ctx, "k1"))
	_, err = rs.Get(ctx, "k1")
	assert.ErrorIs(t, err, types.ErrCacheMiss)
}

func TestRedisStoreKeyPrefix(t *testing.T) {
	rs := skipIfRedisUnavailable(t)
	ctx := context.Background()

	require.NoError(t, rs.Set(ctx, "prefixed", []byte("v")))

	raw, err := rs.client.Get(ctx, rs.config.KeyPrefix+"prefixed").Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), raw)

	ttl, err := rs.client.TTL(ctx, rs.config.KeyPrefix+"prefixed").Result()
	require.NoError(t, err)
	assert.Less(t, int64(ttl), int64(0), "artifacts are stored without expiry")
}

func TestRedisStoreClearOnlyTouchesPrefix(t *testing.T) {
	rs := skipIfRedisUnavailable(t)
	ctx := context.Background()

	foreign := "imgcache-foreign-key"
	require.NoError(t, rs.client.Set(ctx, foreign, "keep", 0).Err())
	t.Cleanup(func() { rs.client.Del(context.Background(), foreign) })

	for i := 0; i < 250; i++ {
		require.NoError(t, rs.Set(ctx, fmt.Sprintf("k%d", i), []byte("v")))
	}

	require.NoError(t, rs.Clear(ctx))

	_, err := rs.Get(ctx, "k0")
	assert.ErrorIs(t, err, types.ErrCacheMiss)

	kept, err := rs.client.Get(ctx, foreign).Result()
	require.NoError(t, err)
	assert.Equal(t, "keep", kept)
}

func TestRedisStoreUnavailable(t *testing.T) {
	cfg := config.ForTestingWithRedis("127.0.0.1:1").Redis
	rs, err := NewRedisStore(cfg, nil)
	require.NoError(t, err)
	defer rs.Close()

	assert.False(t, rs.IsAvailable())

	_, err = rs.Get(context.Background(), "k")
	assert.ErrorIs(t, err, types.ErrStoreUnavailable)
	assert.ErrorIs(t, rs.Set(context.Background(), "k", nil), types.ErrStoreUnavailable)

	lastErr, _ := rs.LastError()
	assert.Error(t, lastErr)
}
