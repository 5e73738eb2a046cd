package qa

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/model"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, time.Minute), mr
}

func TestRedisCache_RoundTrip(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, 1, "q")
	require.NoError(t, err)
	assert.False(t, ok)

	want := &model.Answer{Response: "42", Sources: []string{"a.pdf", "b.txt"}}
	require.NoError(t, c.Set(ctx, 1, "q", want))

	got, ok, err := c.Get(ctx, 1, "q")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	key := c.key(1, "q")
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))
	assert.Contains(t, key, DefaultKeyPrefix)
}

func TestRedisCache_GenerationScopesKeys(t *testing.T) {
	c, _ := newRedisCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, 1, "q", &model.Answer{Response: "old"}))

	_, ok, err := c.Get(ctx, 2, "q")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_Expiry(t *testing.T) {
	c, mr := newRedisCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, 1, "q", &model.Answer{Response: "a"}))

	mr.FastForward(2 * time.Minute)

	_, ok, err := c.Get(ctx, 1, "q")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_CorruptEntryIsDropped(t *testing.T) {
	c, mr := newRedisCache(t)
	key := c.key(3, "q")
	require.NoError(t, mr.Set(key, "{not json"))

	_, ok, err := c.Get(context.Background(), 3, "q")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(key))
}

func TestRedisCache_ServerDown(t *testing.T) {
	c, mr := newRedisCache(t)
	mr.Close()

	_, ok, err := c.Get(context.Background(), 1, "q")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, c.Set(context.Background(), 1, "q", &model.Answer{}))
}
