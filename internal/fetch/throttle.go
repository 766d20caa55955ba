package fetch

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter answers whether another outbound request may go out right now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter keeps a decrementing per-minute request budget per judge
// so overlapping scrape runs on one host share a single outbound quota.
type RedisLimiter struct {
	db        *redis.Client
	perMinute int64
}

func NewRedisLimiter(client *redis.Client, perMinute int64) *RedisLimiter {
	return &RedisLimiter{
		db:        client,
		perMinute: perMinute,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	// A race between concurrent writers can let a few extra requests
	// through; the judges' own throttling is the backstop.

	redisKey := "cpaggregator-fetch-" + key

	reqsLeftStr, err := l.db.Get(ctx, redisKey).Result()

	if err == nil {
		reqsLeft, err := strconv.Atoi(reqsLeftStr)
		if err != nil {
			return true, err
		}

		if reqsLeft <= 0 {
			return false, nil
		}
	} else {
		if err != redis.Nil {
			return true, err
		}

		l.db.Set(ctx, redisKey, l.perMinute, 60*time.Second)
	}

	l.db.Decr(ctx, redisKey)

	return true, nil
}
