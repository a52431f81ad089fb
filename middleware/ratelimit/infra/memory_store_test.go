package infra

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryCounterStore_FixedWindow(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	s := NewMemoryCounterStore(WithClock(clock.Now), WithCleanupEvery(0))
	ctx := context.Background()

	c, err := s.IncrementWithExpiry(ctx, "ratelimit:k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Count)
	assert.Equal(t, time.Minute, c.TTL)

	clock.Advance(15 * time.Second)
	c, err = s.IncrementWithExpiry(ctx, "ratelimit:k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Count)
	assert.Equal(t, 45*time.Second, c.TTL)

	ttl, err := s.TTL(ctx, "ratelimit:k")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, ttl)

	clock.Advance(45 * time.Second)
	c, err = s.IncrementWithExpiry(ctx, "ratelimit:k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Count)
}

func TestMemoryCounterStore_CleanupRemovesExpiredEntries(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	s := NewMemoryCounterStore(WithClock(clock.Now), WithCleanupEvery(0))
	ctx := context.Background()

	_, _ = s.IncrementWithExpiry(ctx, "ratelimit:short", time.Second)
	_, _ = s.IncrementWithExpiry(ctx, "ratelimit:long", time.Hour)
	clock.Advance(2 * time.Second)

	s.Cleanup()
	assert.Equal(t, 1, s.Len())

	keys, err := s.Keys(ctx, "ratelimit")
	require.NoError(t, err)
	assert.Equal(t, []string{"ratelimit:long"}, keys)

	require.NoError(t, s.Delete(ctx, "ratelimit:long"))
	c, err := s.Get(ctx, "ratelimit:long")
	require.NoError(t, err)
	assert.Zero(t, c.Count)
}

func TestMemoryCounterStore_JanitorStopsWithContext(t *testing.T) {
	s := NewMemoryCounterStore(WithCleanupEvery(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	_, _ = s.IncrementWithExpiry(ctx, "ratelimit:k", time.Millisecond)
	s.StartJanitor(ctx)

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
}
