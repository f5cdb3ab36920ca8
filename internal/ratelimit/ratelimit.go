// Package ratelimit limits sensitive operations with a sliding window.
package ratelimit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Store counts attempts per key inside a trailing window. Allow records the
// attempt only when it is allowed.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// Limiter applies one limit to every key. It fails open when the store is
// unavailable.
type Limiter struct {
	logger zerolog.Logger
	store  Store
	limit  int
	window time.Duration
}

func NewLimiter(logger zerolog.Logger, store Store, limit int, window time.Duration) *Limiter {
	return &Limiter{
		logger: logger,
		store:  store,
		limit:  limit,
		window: window,
	}
}

func (l *Limiter) Allow(ctx context.Context, key string) bool {
	res, err := l.store.Allow(ctx, key, l.limit, l.window)
	if err != nil {
		l.logger.Error().
			Err(err).
			Str("key", key).
			Msg("rate limit store failed, allowing attempt")
		return true
	}
	if !res.Allowed {
		l.logger.Warn().
			Str("key", key).
			Dur("retry_after", res.RetryAfter).
			Msg("rate limit exceeded")
	}
	return res.Allowed
}
