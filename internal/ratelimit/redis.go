package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one sorted set per key, scored by hit time in nanoseconds.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds a sliding-window store on client. prefix namespaces keys.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	return fmt.Sprintf("%s:%s", s.prefix, k)
}

// Hit trims expired hits, counts the window and records the hit if it fits.
func (s *RedisStore) Hit(ctx context.Context, key string, rule Rule, now time.Time) (bool, time.Duration, error) {
	k := s.key(key)
	floor := strconv.FormatInt(now.Add(-rule.Window).UnixNano(), 10)

	var (
		count  *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	if _, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRemRangeByScore(ctx, k, "-inf", "("+floor)
		count = p.ZCard(ctx, k)
		oldest = p.ZRangeWithScores(ctx, k, 0, 0)
		return nil
	}); err != nil {
		return false, 0, fmt.Errorf("redis sliding window: %w", err)
	}

	if int(count.Val()) >= rule.Limit {
		retry := rule.Window
		if z := oldest.Val(); len(z) > 0 {
			retry = time.Unix(0, int64(z[0].Score)).Add(rule.Window).Sub(now)
		}
		if retry < 0 {
			retry = 0
		}
		return false, retry, nil
	}

	member := redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()}
	if _, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, k, member)
		p.PExpire(ctx, k, rule.Window)
		return nil
	}); err != nil {
		return false, 0, fmt.Errorf("redis record hit: %w", err)
	}
	return true, 0, nil
}
