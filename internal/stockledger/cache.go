package stockledger

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// StatsCache caches movement statistics in Redis. Invalidation is
// version-based: every ledger mutation bumps the tenant's version key, which
// changes every derived cache key and strands the stale entries until they
// expire. Cache failures degrade to loading from the database.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewStatsCache constructs StatsCache. A nil client disables caching.
func NewStatsCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *StatsCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsCache{client: client, ttl: ttl, logger: logger}
}

// Fetch returns cached statistics for the filter, loading and storing them on
// a miss. Concurrent misses for the same key share one loader call.
func (c *StatsCache) Fetch(ctx context.Context, tenantID int64, filter MovementFilter, loader func(context.Context) ([]MovementStat, error)) ([]MovementStat, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.statsKey(ctx, tenantID, filter)
	if err != nil {
		c.logger.Warn("stats cache key unavailable", slog.String("error", err.Error()))
		return loader(ctx)
	}

	if payload, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var stats []MovementStat
		if err := json.Unmarshal(payload, &stats); err == nil {
			return stats, nil
		}
	} else if err != redis.Nil {
		c.logger.Warn("stats cache read failed", slog.String("error", err.Error()))
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		stats, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if payload, err := json.Marshal(stats); err == nil {
			if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
				c.logger.Warn("stats cache write failed", slog.String("error", err.Error()))
			}
		}
		return stats, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]MovementStat), nil
}

// Bump invalidates every cached statistics entry for the tenant.
func (c *StatsCache) Bump(ctx context.Context, tenantID int64) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Incr(ctx, versionKey(tenantID)).Err(); err != nil {
		c.logger.Warn("stats cache bump failed", slog.String("error", err.Error()))
	}
}

func (c *StatsCache) statsKey(ctx context.Context, tenantID int64, filter MovementFilter) (string, error) {
	version, err := c.client.Get(ctx, versionKey(tenantID)).Int64()
	if err != nil && err != redis.Nil {
		return "", err
	}
	payload, err := json.Marshal(filter)
	if err != nil {
		return "", err
	}
	h := fnv.New64a()
	_, _ = h.Write(payload)
	return fmt.Sprintf("stockledger:stats:%d:v%d:%x", tenantID, version, h.Sum64()), nil
}

func versionKey(tenantID int64) string {
	return fmt.Sprintf("stockledger:stats:%d:version", tenantID)
}
