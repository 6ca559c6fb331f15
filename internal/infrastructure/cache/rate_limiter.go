package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DegradedFunc is invoked when the limiter takes a fail-open decision
// because the counter store was unreachable. Wired to the security event
// log by the server so outages are recorded, not silently swallowed.
type DegradedFunc func(ctx context.Context, key string, limit int, window time.Duration, err error)

// counterRateLimiter enforces a fixed window against an injected counter
// store: atomically increment the identifier's counter, set the window
// expiry on the first hit, allow while the count stays inside the limit.
type counterRateLimiter struct {
	counters   CounterStore
	logger     *zap.Logger
	onDegraded DegradedFunc
}

// NewRateLimiter creates a counter-store backed rate limiter
func NewRateLimiter(counters CounterStore, logger *zap.Logger, onDegraded DegradedFunc) RateLimiter {
	return &counterRateLimiter{
		counters:   counters,
		logger:     logger,
		onDegraded: onDegraded,
	}
}

// Allow checks and records one hit. The increment is atomic per key: two
// concurrent callers can never observe the same pre-increment value. The
// increment and the expiry set are not one transaction; a crash between
// them leaves a counter without TTL, which a later hit detects and
// re-arms.
func (l *counterRateLimiter) Allow(ctx context.Context, identifier string, limit int, window time.Duration) *RateLimitResult {
	key := RateLimitPrefix + identifier
	now := time.Now()

	hits, err := l.counters.Increment(ctx, key)
	if err != nil {
		return l.failOpen(ctx, identifier, limit, window, now, err)
	}

	resetAt := now.Add(window)
	if hits == 1 {
		if err := l.counters.Expire(ctx, key, window); err != nil {
			// The counter exists but carries no TTL; treat as degraded so
			// the window cannot silently become permanent
			return l.failOpen(ctx, identifier, limit, window, now, err)
		}
	} else {
		ttl, err := l.counters.TTL(ctx, key)
		switch {
		case err == nil && ttl > 0:
			resetAt = now.Add(ttl)
		case err == nil && ttl < 0:
			// The counter survived without an expiry (crash between the
			// increment and the expire). Re-arm it so the window resets
			// instead of counting forever.
			if err := l.counters.Expire(ctx, key, window); err != nil {
				return l.failOpen(ctx, identifier, limit, window, now, err)
			}
		}
	}

	remaining := limit - int(hits)
	if remaining < 0 {
		remaining = 0
	}

	result := &RateLimitResult{
		Allowed:   hits <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
		TotalHits: hits,
	}

	if !result.Allowed {
		result.RetryAfter = time.Until(resetAt)
		l.logger.Debug("rate limit exceeded",
			zap.String("identifier", identifier),
			zap.Int64("hits", hits),
			zap.Int("limit", limit),
			zap.Duration("window", window))
	}

	return result
}

// failOpen allows the request at full remaining budget. Availability of the
// protected endpoint takes priority over strict limiting during an
// infrastructure outage.
func (l *counterRateLimiter) failOpen(ctx context.Context, identifier string, limit int, window time.Duration, now time.Time, cause error) *RateLimitResult {
	l.logger.Error("rate limiter degraded, failing open",
		zap.String("identifier", identifier),
		zap.Int("limit", limit),
		zap.Duration("window", window),
		zap.Error(cause))

	if l.onDegraded != nil {
		l.onDegraded(ctx, identifier, limit, window, cause)
	}

	return &RateLimitResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit,
		ResetAt:   now.Add(window),
		TotalHits: 0,
		Degraded:  true,
	}
}
