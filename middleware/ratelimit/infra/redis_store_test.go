package infra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestRedisCounterStore_IncrementSetsTTLOncePerWindow(t *testing.T) {
	mr, rdb := newMiniredis(t)
	s := NewRedisCounterStore(rdb)
	ctx := context.Background()

	c, err := s.IncrementWithExpiry(ctx, "ratelimit:k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Count)
	assert.Equal(t, time.Minute, c.TTL)

	mr.FastForward(20 * time.Second)

	c, err = s.IncrementWithExpiry(ctx, "ratelimit:k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Count)
	assert.Equal(t, 40*time.Second, c.TTL, "a later increment must not extend the window")
}

func TestRedisCounterStore_ReadsDoNotExtendExpiry(t *testing.T) {
	mr, rdb := newMiniredis(t)
	s := NewRedisCounterStore(rdb)
	ctx := context.Background()

	_, err := s.IncrementWithExpiry(ctx, "ratelimit:k", 10*time.Second)
	require.NoError(t, err)

	mr.FastForward(4 * time.Second)

	ttl, err := s.TTL(ctx, "ratelimit:k")
	require.NoError(t, err)
	assert.Equal(t, 6*time.Second, ttl)

	c, err := s.Get(ctx, "ratelimit:k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Count)
	assert.Equal(t, 6*time.Second, c.TTL)

	assert.Equal(t, 6*time.Second, mr.TTL("ratelimit:k"))
}

func TestRedisCounterStore_WindowExpiryResetsCount(t *testing.T) {
	mr, rdb := newMiniredis(t)
	s := NewRedisCounterStore(rdb)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.IncrementWithExpiry(ctx, "ratelimit:k", time.Second)
		require.NoError(t, err)
	}

	mr.FastForward(time.Second)

	c, err := s.IncrementWithExpiry(ctx, "ratelimit:k", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Count)
}

func TestRedisCounterStore_RepairsKeyWithoutTTL(t *testing.T) {
	mr, rdb := newMiniredis(t)
	s := NewRedisCounterStore(rdb)
	require.NoError(t, mr.Set("ratelimit:orphan", "7"))

	c, err := s.IncrementWithExpiry(context.Background(), "ratelimit:orphan", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(8), c.Count)
	assert.Equal(t, 30*time.Second, mr.TTL("ratelimit:orphan"))
}

func TestRedisCounterStore_MissingKey(t *testing.T) {
	_, rdb := newMiniredis(t)
	s := NewRedisCounterStore(rdb)
	ctx := context.Background()

	c, err := s.Get(ctx, "ratelimit:none")
	require.NoError(t, err)
	assert.Equal(t, int64(0), c.Count)

	ttl, err := s.TTL(ctx, "ratelimit:none")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), ttl)
}

func TestRedisCounterStore_KeysAndDelete(t *testing.T) {
	mr, rdb := newMiniredis(t)
	s := NewRedisCounterStore(rdb)
	ctx := context.Background()

	for _, k := range []string{"ratelimit:a", "ratelimit:b", "other:c"} {
		_, err := s.IncrementWithExpiry(ctx, k, time.Minute)
		require.NoError(t, err)
	}

	keys, err := s.Keys(ctx, "ratelimit:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ratelimit:a", "ratelimit:b"}, keys)

	require.NoError(t, s.Delete(ctx, keys...))
	require.NoError(t, s.Delete(ctx))
	assert.False(t, mr.Exists("ratelimit:a"))
	assert.True(t, mr.Exists("other:c"))
}

func TestRedisCounterStore_UnreachableReturnsError(t *testing.T) {
	mr, rdb := newMiniredis(t)
	s := NewRedisCounterStore(rdb)
	mr.Close()

	_, err := s.IncrementWithExpiry(context.Background(), "ratelimit:k", time.Minute)
	require.Error(t, err)
	require.Error(t, s.Ping(context.Background()))
}
