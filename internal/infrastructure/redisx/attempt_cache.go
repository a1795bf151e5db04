package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyAttemptOrder = "checkout:attempt:%s"

// TTLAttempt bounds how long a completed attempt token can be replayed via
// the fast path; the attempt repository remains authoritative after expiry.
var TTLAttempt = 24 * time.Hour

// AttemptCache is a best-effort token -> order id shortcut for idempotent
// checkout replays. Failures degrade to the repository lookup.
type AttemptCache struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewAttemptCache(rdb *redis.Client, logger *zap.Logger) *AttemptCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttemptCache{rdb: rdb, log: logger.With(zap.String("component", "attempt_cache"))}
}

func (c *AttemptCache) GetOrderID(ctx context.Context, token string) (string, bool) {
	v, err := c.rdb.Get(ctx, fmt.Sprintf(keyAttemptOrder, token)).Result()
	if err != nil {
		return "", false
	}
	return v, v != ""
}

func (c *AttemptCache) SetOrderID(ctx context.Context, token, orderID string) {
	if err := c.rdb.Set(ctx, fmt.Sprintf(keyAttemptOrder, token), orderID, TTLAttempt).Err(); err != nil {
		c.log.Warn("attempt_cache_set_failed", zap.Error(err))
	}
}
