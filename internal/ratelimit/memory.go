package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps attempt timestamps in process memory. It is only
// correct for a single instance.
type MemoryStore struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts: make(map[string][]time.Time),
		now:      time.Now,
	}
}

func (s *MemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	windowStart := now.Add(-window)

	kept := s.attempts[key][:0]
	for _, at := range s.attempts[key] {
		if at.After(windowStart) {
			kept = append(kept, at)
		}
	}

	if len(kept) >= limit {
		s.attempts[key] = kept
		var retryAfter time.Duration
		if len(kept) > 0 {
			retryAfter = kept[0].Add(window).Sub(now)
		}
		return &Result{RetryAfter: retryAfter}, nil
	}

	kept = append(kept, now)
	s.attempts[key] = kept
	return &Result{
		Allowed:   true,
		Remaining: limit - len(kept),
	}, nil
}

// Prune drops keys without attempts inside window.
func (s *MemoryStore) Prune(window time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	windowStart := s.now().Add(-window)
	for key, attempts := range s.attempts {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(s.attempts, key)
		}
	}
}
