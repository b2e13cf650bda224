package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshLedger remembers spent refresh-token ids for single-use rotation.
type RefreshLedger interface {
	// Consume marks jti as spent for ttl. It reports false when jti was
	// already spent.
	Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// RedisRefreshLedger stores spent ids as expiring keys.
type RedisRefreshLedger struct {
	client *redis.Client
}

func NewRedisRefreshLedger(client *redis.Client) *RedisRefreshLedger {
	return &RedisRefreshLedger{client: client}
}

func (l *RedisRefreshLedger) Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	return l.client.SetNX(ctx, "refresh:spent:"+jti, 1, ttl).Result()
}

// MemoryRefreshLedger is the in-process ledger.
type MemoryRefreshLedger struct {
	mu    sync.Mutex
	spent map[string]time.Time
	now   func() time.Time
}

func NewMemoryRefreshLedger() *MemoryRefreshLedger {
	return &MemoryRefreshLedger{spent: make(map[string]time.Time), now: time.Now}
}

func (l *MemoryRefreshLedger) Consume(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id, exp := range l.spent {
		if !exp.After(now) {
			delete(l.spent, id)
		}
	}
	if _, ok := l.spent[jti]; ok {
		return false, nil
	}
	l.spent[jti] = now.Add(ttl)
	return true, nil
}
