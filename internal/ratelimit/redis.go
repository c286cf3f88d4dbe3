package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements the same sliding window against Redis so
// multiple serving instances share one admission budget.
type RedisLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
}

// slidingWindow prunes the client's sorted set to the trailing window,
// then admits and records atomically. The key expires one window after
// the last request so idle clients cost nothing.
const slidingWindow = `
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

	local current = redis.call('ZCARD', key)

	if current < limit then
		redis.call('ZADD', key, now, now)
		redis.call('EXPIRE', key, ttl)
		return 1
	else
		return 0
	end
`

// NewRedisLimiter connects to redisURL and verifies the connection.
func NewRedisLimiter(redisURL string, max int, window time.Duration) (*RedisLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisLimiter{client: client, max: int64(max), window: window}, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, client string) (Decision, error) {
	now := time.Now().UnixNano()
	windowStart := now - l.window.Nanoseconds()

	result, err := l.client.Eval(ctx, slidingWindow,
		[]string{"admission:" + client}, now, windowStart, l.max, windowSeconds(l.window)).Int()
	if err != nil {
		return Decision{}, fmt.Errorf("admission check failed: %w", err)
	}

	if result != 1 {
		return Decision{Allowed: false, RetryAfter: l.window}, nil
	}
	return Decision{Allowed: true}, nil
}

// windowSeconds is the key TTL for a window, rounded up to whole seconds
// with a floor of one so EXPIRE never gets zero.
func windowSeconds(window time.Duration) int64 {
	secs := int64((window + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (l *RedisLimiter) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}
