package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/rtemis/reimbursement/core"
	"github.com/rtemis/reimbursement/core/fee"
)

const (
	defaultTTL = 10 * time.Minute
	scanCount  = 100
)

// RedisCache stores the computed reports in redis, as JSON.
// Cache failures are logged and treated as misses.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger core.Logger
}

var _ fee.ReportCache = (*RedisCache)(nil)

// Connect opens a redis client and checks the connection.
func Connect(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Address,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration, logger core.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisCache{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (fee.Report, bool) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Error(fmt.Sprintf("redis GET %s: %v", key, err), err)
		}
		return fee.Report{}, false
	}

	var report fee.Report
	if err = json.Unmarshal(data, &report); err != nil {
		c.logger.Warn(fmt.Sprintf("unmarshalling cached report %s: %v", key, err), err)
		return fee.Report{}, false
	}
	return report, true
}

func (c *RedisCache) Set(ctx context.Context, key string, report fee.Report) {
	data, err := json.Marshal(report)
	if err != nil {
		c.logger.Error(fmt.Sprintf("marshalling report %s: %v", key, err), err)
		return
	}
	if err = c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Error(fmt.Sprintf("redis SET %s: %v", key, err), err)
	}
}

// InvalidateSchool deletes every cached report of a school.
func (c *RedisCache) InvalidateSchool(ctx context.Context, schoolID string) {
	pattern := fee.CacheKeyPrefix(schoolID) + "*"
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			c.logger.Error(fmt.Sprintf("redis SCAN %s: %v", pattern, err), err)
			return
		}
		if len(keys) > 0 {
			if err = c.rdb.Del(ctx, keys...).Err(); err != nil {
				c.logger.Error(fmt.Sprintf("redis DEL %s: %v", pattern, err), err)
				return
			}
		}
		if cursor = next; cursor == 0 {
			return
		}
	}
}
