package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache provides a generic caching interface with support for TTL and atomic
// operations
type Cache interface {
	// Get retrieves a value by key
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with optional TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key
	Delete(ctx context.Context, key string) error

	// Increment atomically increments a numeric value
	Increment(ctx context.Context, key string) (int64, error)

	// Expire sets TTL on an existing key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining lifetime of a key
	TTL(ctx context.Context, key string) (time.Duration, error)

	// GetJSON retrieves and unmarshals JSON data
	GetJSON(ctx context.Context, key string, dest interface{}) error

	// SetJSON marshals and stores JSON data
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Close closes the cache connection
	Close() error
}

// CounterStore is the injected increment-and-expire abstraction the rate
// limiter counts against. Increment must be atomic across concurrent
// callers sharing a key; process-local maps do not qualify.
type CounterStore interface {
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// RateLimitResult reports a rate limit decision
type RateLimitResult struct {
	Allowed    bool          `json:"allowed"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	TotalHits  int64         `json:"total_hits"`

	// Degraded marks a fail-open decision taken while the counter store was
	// unreachable
	Degraded bool `json:"degraded,omitempty"`
}

// RateLimiter enforces a fixed request budget per identifier per window
type RateLimiter interface {
	// Allow checks and records one hit for the identifier. It never returns
	// an error: counter store outages fail open at full remaining budget and
	// are reported through the result's Degraded field.
	Allow(ctx context.Context, identifier string, limit int, window time.Duration) *RateLimitResult
}

// RateLimitPrefix namespaces rate limit counter keys
const RateLimitPrefix = "ratelimit:"

// ErrCacheKeyNotFound indicates a missing key
type ErrCacheKeyNotFound struct {
	Key string
}

func (e ErrCacheKeyNotFound) Error() string {
	return fmt.Sprintf("cache key not found: %s", e.Key)
}
