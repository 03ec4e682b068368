package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RatingCache is the rating read model consumed by the directory/search
// service. It is a projection of the store, never the source of truth.
type RatingCache interface {
	Get(ctx context.Context, subject Subject) (RatingAggregate, bool, error)
	Put(ctx context.Context, subject Subject, agg RatingAggregate) error
}

// RedisRatingCache stores each aggregate as a hash. Writes carrying an older
// version than the cached one are dropped, so out-of-order publishes cannot
// regress the read model.
type RedisRatingCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisRatingCache(client *redis.Client, ttl time.Duration) *RedisRatingCache {
	return &RedisRatingCache{client: client, prefix: "rating:", ttl: ttl}
}

func (c *RedisRatingCache) key(subject Subject) string {
	return c.prefix + subject.String()
}

func (c *RedisRatingCache) Get(ctx context.Context, subject Subject) (RatingAggregate, bool, error) {
	vals, err := c.client.HGetAll(ctx, c.key(subject)).Result()
	if err != nil {
		return RatingAggregate{}, false, fmt.Errorf("rating cache get: %w", err)
	}
	if len(vals) == 0 {
		return RatingAggregate{}, false, nil
	}
	var agg RatingAggregate
	if agg.Sum, err = strconv.ParseFloat(vals["sum"], 64); err != nil {
		return RatingAggregate{}, false, nil
	}
	if agg.Count, err = strconv.Atoi(vals["count"]); err != nil {
		return RatingAggregate{}, false, nil
	}
	if agg.Version, err = strconv.ParseInt(vals["version"], 10, 64); err != nil {
		return RatingAggregate{}, false, nil
	}
	return agg, true, nil
}

const maxCacheWatchAttempts = 3

func (c *RedisRatingCache) Put(ctx context.Context, subject Subject, agg RatingAggregate) error {
	key := c.key(subject)
	put := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "version").Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil && current >= agg.Version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				"sum", strconv.FormatFloat(agg.Sum, 'f', -1, 64),
				"count", agg.Count,
				"version", agg.Version,
			)
			if c.ttl > 0 {
				pipe.Expire(ctx, key, c.ttl)
			}
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxCacheWatchAttempts; i++ {
		err = c.client.Watch(ctx, put, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("rating cache put: %w", err)
	}
	return nil
}
