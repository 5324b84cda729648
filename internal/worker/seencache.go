package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voyagecover/claims-intake/internal/pkg/logger"
)

// seenTTL bounds the Redis footprint; the database unique index remains the
// durable idempotency guarantee after entries expire.
const seenTTL = 7 * 24 * time.Hour

// SeenCache is the fast already-processed check in front of the database.
// Every operation fails open: on Redis trouble the poller just falls
// through to the pipeline's own idempotency check.
type SeenCache struct {
	redis *redis.Client
}

// NewSeenCache wraps a Redis client. A nil client disables the cache.
func NewSeenCache(client *redis.Client) *SeenCache {
	return &SeenCache{redis: client}
}

func seenKey(providerID string) string { return "intake:seen:" + providerID }

// Seen reports whether a provider id was already handled, per the cache.
func (c *SeenCache) Seen(ctx context.Context, providerID string) bool {
	if c == nil || c.redis == nil {
		return false
	}
	n, err := c.redis.Exists(ctx, seenKey(providerID)).Result()
	if err != nil {
		logger.Debug("seen-cache lookup failed", "provider_id", providerID, "error", err.Error())
		return false
	}
	return n > 0
}

// Mark records a handled provider id. Failures are logged and ignored.
func (c *SeenCache) Mark(ctx context.Context, providerID string) {
	if c == nil || c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, seenKey(providerID), "1", seenTTL).Err(); err != nil {
		logger.Debug("seen-cache mark failed", "provider_id", providerID, "error", err.Error())
	}
}
