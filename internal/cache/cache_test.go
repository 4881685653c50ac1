package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_ExpiresEntries(t *testing.T) {
	c := New(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "feed:1", []byte("a"), 0))

	got, ok, err := c.Get(ctx, "feed:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("a"), got)

	now = now.Add(2 * time.Minute)

	_, ok, err = c.Get(ctx, "feed:1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCache_DeletePrefix(t *testing.T) {
	c := New(time.Minute)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "feed:1:a", []byte("x"), 0))
	require.NoError(t, c.Set(ctx, "feed:2:a", []byte("y"), 0))
	require.NoError(t, c.Set(ctx, "profile:1", []byte("z"), 0))

	require.NoError(t, c.DeletePrefix(ctx, "feed:"))

	assert.Equal(t, 1, c.Len())
	_, ok, _ := c.Get(ctx, "profile:1")
	assert.True(t, ok)
}

func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set; skipping redis integration test")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx := context.Background()
	s := NewRedisStore(rdb, "forumhub-test")

	require.NoError(t, s.Set(ctx, "feed:1:x", []byte("hello"), time.Minute))

	got, ok, err := s.Get(ctx, "feed:1:x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, s.DeletePrefix(ctx, "feed:"))

	_, ok, err = s.Get(ctx, "feed:1:x")
	require.NoError(t, err)
	assert.False(t, ok)
}
