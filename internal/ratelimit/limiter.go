// Package ratelimit provides per-key token bucket rate limiting used to pace
// simulator launches.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter implements a per-key token bucket rate limiter.
// Each key gets its own bucket with the configured rate and burst.
// It is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64          // tokens per second
	burst   int              // max burst size (also initial token count)
	nowFunc func() time.Time // injectable clock for testing

	afterFunc func(time.Duration) <-chan time.Time // injectable timer for testing
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
// The burst size also serves as the initial number of tokens available.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,

		afterFunc: time.After,
	}
}

// Allow checks if a request for the given key should be allowed.
// Returns true if allowed, false if rate limited.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()

	b, ok := l.buckets[key]
	if !ok {
		// First request for this key: start with full burst
		b = &bucket{
			tokens:    float64(l.burst),
			lastCheck: now,
		}
		l.buckets[key] = b
	}

	// Refill tokens based on elapsed time
	elapsed := now.Sub(b.lastCheck).Seconds()
	if elapsed > 0 {
		b.tokens += l.rate * elapsed
		if b.tokens > float64(l.burst) {
			b.tokens = float64(l.burst)
		}
		b.lastCheck = now
	}

	// Check if we have at least 1 token
	if b.tokens < 1.0 {
		return false
	}

	b.tokens--
	return true
}

// NewLaunchLimiter returns a limiter pacing process starts at rate per
// second with the given burst. A non-positive rate disables pacing and
// returns nil, which Wait treats as unlimited.
func NewLaunchLimiter(rate float64, burst int) *Limiter {
	if rate <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return NewLimiter(rate, burst)
}

// Wait blocks until a token for key is available and consumes it, or until
// ctx is done. A nil Limiter never blocks.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.Allow(key) {
			return nil
		}

		d, ok := l.delay(key)
		if !ok {
			return fmt.Errorf("rate limit exhausted for %s with zero refill rate", key)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.afterFunc(d):
		}
	}
}

// delay reports how long until key accrues one token. It returns false when
// the bucket can never refill.
func (l *Limiter) delay(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rate <= 0 {
		return 0, false
	}
	b, ok := l.buckets[key]
	if !ok || b.tokens >= 1.0 {
		return 0, true
	}
	missing := 1.0 - b.tokens
	return time.Duration(missing / l.rate * float64(time.Second)), true
}
