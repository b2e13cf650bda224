package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisClientName  = "homenest-api"
	defaultRedisPingTimeout = 3 * time.Second
)

// CacheOptions tunes the Redis client. Zero values keep go-redis defaults,
// except ClientName and PingTimeout which fall back to the service defaults.
type CacheOptions struct {
	ClientName  string
	PoolSize    int
	PingTimeout time.Duration
}

// NewRedisClient connects the cache behind rate limiting, refresh-token
// rotation and idempotent replay. The connection is checked with a bounded
// PING so startup fails fast on an unreachable server.
func NewRedisClient(ctx context.Context, url string, opts CacheOptions) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	cfg, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	cfg.ClientName = opts.ClientName
	if cfg.ClientName == "" {
		cfg.ClientName = defaultRedisClientName
	}
	if opts.PoolSize > 0 {
		cfg.PoolSize = opts.PoolSize
	}
	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = defaultRedisPingTimeout
	}
	cfg.DialTimeout = timeout

	client := redis.NewClient(cfg)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}

	return client, nil
}
