// Package ratelimit caps how many messages one user may send per window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	URL    string        `envconfig:"URL"`
	Limit  int           `split_words:"true" default:"20"`
	Window time.Duration `split_words:"true" default:"1m"`
	Prefix string        `split_words:"true" default:"bakery:ratelimit:"`
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.URL) != "" && c.Limit > 0
}

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Noop allows everything. Used when no redis is configured.
type Noop struct{}

func (Noop) Allow(context.Context, string) (bool, error) { return true, nil }

type counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisLimiter is a fixed-window counter: INCR the key and start its expiry
// on the first hit of the window.
type RedisLimiter struct {
	rdb    counter
	limit  int64
	window time.Duration
	prefix string
}

func NewRedisLimiter(rdb counter, cfg Config) (*RedisLimiter, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &RedisLimiter{rdb: rdb, limit: int64(cfg.Limit), window: cfg.Window, prefix: cfg.Prefix}, nil
}

// Open connects to redis from cfg.URL and pings it.
func Open(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key
	count, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", k, err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, k, l.window).Err(); err != nil {
			return false, fmt.Errorf("expire %s: %w", k, err)
		}
	}
	return count <= l.limit, nil
}
