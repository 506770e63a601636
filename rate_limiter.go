package iam

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// RateLimiter gates password reset initiation per email
type RateLimiter interface {
	// AllowRequest returns true and records now when no entry exists for
	// email or the cooldown has elapsed. Rejected calls leave the entry as is.
	AllowRequest(ctx context.Context, email string) (bool, error)
}

// MemoryRateLimiter keeps one entry per normalized email in a concurrent
// map. The check and the write run inside the map's per-key compute so two
// requests for the same email never both pass.
type MemoryRateLimiter struct {
	entries  *xsync.MapOf[string, RateLimitEntry]
	cooldown time.Duration
	now      func() time.Time
}

// RateLimiterOption customizes a MemoryRateLimiter
type RateLimiterOption func(*MemoryRateLimiter)

// WithRateLimiterClock injects a custom clock (useful for tests).
func WithRateLimiterClock(clock func() time.Time) RateLimiterOption {
	return func(rl *MemoryRateLimiter) {
		if clock != nil {
			rl.now = clock
		}
	}
}

// NewMemoryRateLimiter returns a limiter enforcing cooldown between allowed requests
func NewMemoryRateLimiter(cooldown time.Duration, opts ...RateLimiterOption) *MemoryRateLimiter {
	rl := &MemoryRateLimiter{
		entries:  xsync.NewMapOf[string, RateLimitEntry](),
		cooldown: cooldown,
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(rl)
		}
	}

	return rl
}

var _ RateLimiter = (*MemoryRateLimiter)(nil)

func (rl *MemoryRateLimiter) AllowRequest(_ context.Context, email string) (bool, error) {
	key := normalizeEmail(email)
	now := rl.now()
	allowed := false

	rl.entries.Compute(key, func(old RateLimitEntry, loaded bool) (RateLimitEntry, bool) {
		if loaded && now.Sub(old.LastRequestAt) < rl.cooldown {
			return old, false
		}
		allowed = true
		return RateLimitEntry{Email: key, LastRequestAt: now}, false
	})

	return allowed, nil
}

// Entry returns the recorded entry for email, if any
func (rl *MemoryRateLimiter) Entry(email string) (RateLimitEntry, bool) {
	return rl.entries.Load(normalizeEmail(email))
}

// Reset drops the entry for email so the next request is allowed
func (rl *MemoryRateLimiter) Reset(email string) {
	rl.entries.Delete(normalizeEmail(email))
}

// Prune removes entries whose cooldown has elapsed and returns how many
// were dropped. Pruned entries would have allowed the next request anyway.
func (rl *MemoryRateLimiter) Prune() int {
	now := rl.now()
	removed := 0

	rl.entries.Range(func(key string, _ RateLimitEntry) bool {
		rl.entries.Compute(key, func(old RateLimitEntry, loaded bool) (RateLimitEntry, bool) {
			if !loaded {
				return old, true
			}
			if now.Sub(old.LastRequestAt) >= rl.cooldown {
				removed++
				return old, true
			}
			return old, false
		})
		return true
	})

	return removed
}

// Len returns the number of tracked emails
func (rl *MemoryRateLimiter) Len() int {
	return rl.entries.Size()
}
