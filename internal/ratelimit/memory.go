package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepInterval bounds how often Hit scans for idle buckets.
const sweepInterval = time.Minute

type bucket struct {
	hits   []time.Time
	window time.Duration
}

// MemoryStore is a process-local sliding window for development and tests.
// Buckets whose newest hit has left its window are dropped on the next sweep.
type MemoryStore struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*bucket)}
}

func (s *MemoryStore) Hit(_ context.Context, key string, rule Rule, now time.Time) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= sweepInterval {
		s.sweep(now)
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{}
		s.buckets[key] = b
	}
	b.window = rule.Window

	floor := now.Add(-rule.Window)
	kept := b.hits[:0]
	for _, at := range b.hits {
		if !at.Before(floor) {
			kept = append(kept, at)
		}
	}
	b.hits = kept

	if len(kept) >= rule.Limit {
		retry := kept[0].Add(rule.Window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return false, retry, nil
	}

	b.hits = append(kept, now)
	return true, 0, nil
}

func (s *MemoryStore) sweep(now time.Time) {
	s.lastSweep = now
	for key, b := range s.buckets {
		if len(b.hits) == 0 || now.Sub(b.hits[len(b.hits)-1]) > b.window {
			delete(s.buckets, key)
		}
	}
}
