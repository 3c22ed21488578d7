package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper claims (scope, id) pairs in Redis so that concurrent workers do
// the same piece of work once per TTL.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

func dedupKey(scope string, id int64) string {
	return fmt.Sprintf("dedup:%s:%d", scope, id)
}

// AcquireOnce returns true if the caller is the first to claim (scope, id).
// When Redis is unreachable it returns true and lets the work proceed.
func (d *Deduper) AcquireOnce(ctx context.Context, scope string, id int64) bool {
	key := dedupKey(scope, id)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		d.logger.Warn("Redis dedup check failed, allowing processing",
			zap.String("scope", scope),
			zap.Int64("id", id),
			zap.Error(err),
		)
		return true
	}

	if !ok {
		d.logger.Debug("Skipped duplicate work",
			zap.String("scope", scope),
			zap.Int64("id", id),
		)
	}
	return ok
}

// Release drops a claim early, e.g. when the claimed work failed and should
// be retried by the next batch.
func (d *Deduper) Release(ctx context.Context, scope string, id int64) {
	if err := d.rdb.Del(ctx, dedupKey(scope, id)).Err(); err != nil {
		d.logger.Warn("Failed to release dedup key", zap.String("scope", scope), zap.Int64("id", id), zap.Error(err))
	}
}
