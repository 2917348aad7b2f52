// Package ratelimit limits requests per key, typically the client address,
// with one token bucket per key.
package ratelimit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// DefaultIdleTimeout is how long an unused key keeps its bucket.
const DefaultIdleTimeout = 10 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter manages per-key rate limiting.
type KeyedRateLimiter struct {
	clock    clock.Clock
	entries  map[string]*entry
	limit    rate.Limit
	burst    int
	idle     time.Duration
	mu       sync.Mutex
	ticker   *clock.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a limiter allowing rps requests per second per key with the
// given burst. Buckets unused for DefaultIdleTimeout are evicted.
func New(rps float64, burst int) *KeyedRateLimiter {
	return NewWithClock(rps, burst, DefaultIdleTimeout, clock.New())
}

// NewWithClock is New with an explicit idle timeout and clock.
func NewWithClock(rps float64, burst int, idle time.Duration, clk clock.Clock) *KeyedRateLimiter {
	krl := &KeyedRateLimiter{
		clock:   clk,
		entries: make(map[string]*entry),
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    idle,
		ticker:  clk.Ticker(idle),
		done:    make(chan struct{}),
	}

	go krl.cleanup()

	return krl
}

// Allow reports whether a request for key may proceed now.
func (krl *KeyedRateLimiter) Allow(key string) bool {
	krl.mu.Lock()
	e, ok := krl.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(krl.limit, krl.burst)}
		krl.entries[key] = e
	}
	now := krl.clock.Now()
	e.lastSeen = now
	krl.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (krl *KeyedRateLimiter) Len() int {
	krl.mu.Lock()
	defer krl.mu.Unlock()
	return len(krl.entries)
}

// Stop shuts down the cleanup goroutine.
func (krl *KeyedRateLimiter) Stop() {
	krl.stopOnce.Do(func() {
		close(krl.done)
	})
}

func (krl *KeyedRateLimiter) cleanup() {
	defer krl.ticker.Stop()

	for {
		select {
		case <-krl.done:
			return
		case <-krl.ticker.C:
			krl.evict()
		}
	}
}

// evict drops buckets idle for at least the idle timeout.
func (krl *KeyedRateLimiter) evict() {
	cutoff := krl.clock.Now().Add(-krl.idle)

	krl.mu.Lock()
	defer krl.mu.Unlock()
	for key, e := range krl.entries {
		if !e.lastSeen.After(cutoff) {
			delete(krl.entries, key)
		}
	}
}
