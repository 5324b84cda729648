package worker

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestCache(t *testing.T) (*SeenCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSeenCache(client), mr
}

func TestSeenCacheMarkAndSeen(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	assert.False(t, cache.Seen(ctx, "msg-1"))
	cache.Mark(ctx, "msg-1")
	assert.True(t, cache.Seen(ctx, "msg-1"))
	assert.False(t, cache.Seen(ctx, "msg-2"))
}

func TestSeenCacheEntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.Mark(ctx, "msg-1")
	mr.FastForward(seenTTL + 1)
	assert.False(t, cache.Seen(ctx, "msg-1"))
}

// Redis going away mid-flight fails open: unseen, so the database check
// still guards against duplicates.
func TestSeenCacheFailsOpenOnRedisError(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.Mark(ctx, "msg-1")
	mr.Close()
	assert.False(t, cache.Seen(ctx, "msg-1"))
	cache.Mark(ctx, "msg-2") // must not panic
}

func TestSeenCacheNilClient(t *testing.T) {
	cache := NewSeenCache(nil)
	ctx := context.Background()

	assert.False(t, cache.Seen(ctx, "msg-1"))
	cache.Mark(ctx, "msg-1")
	assert.False(t, cache.Seen(ctx, "msg-1"))
}
