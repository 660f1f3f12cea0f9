package dispatch

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// RedisDeduper remembers message ids with SETNX. Redis errors fail open so
// a Redis outage never swallows patient messages.
type RedisDeduper struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *logging.Logger
}

func NewRedisDeduper(client redis.UniversalClient, prefix string, ttl time.Duration, logger *logging.Logger) *RedisDeduper {
	if client == nil {
		panic("dispatch: redis client required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (r *RedisDeduper) FirstSeen(ctx context.Context, messageID string) bool {
	ok, err := r.client.SetNX(ctx, r.prefix+messageID, 1, r.ttl).Result()
	if err != nil {
		r.logger.Warn("dedupe check failed, processing anyway", "message_id", messageID, "error", err)
		return true
	}
	return ok
}
