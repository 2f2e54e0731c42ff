// Package security guards the worker's HTTP surface (/stats, /queues,
// /healthz) against abusive polling. The VRF protocol itself has no
// consumer-whitelisting concept — admission is already enforced
// on-chain by the fixed admin key gating ModifyOracle — so the only
// access-control surface left off-chain is a simple per-client rate
// limit on the ops endpoints.
package security

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter tracks request timestamps for a single key within a
// sliding time window.
type RateLimiter struct {
	mu          sync.Mutex
	requests    []time.Time
	windowSize  time.Duration
	maxRequests int
}

// NewRateLimiter creates a limiter allowing maxRequests per windowSize.
func NewRateLimiter(maxRequests int, windowSize time.Duration) *RateLimiter {
	return &RateLimiter{
		requests:    make([]time.Time, 0),
		windowSize:  windowSize,
		maxRequests: maxRequests,
	}
}

// Allow reports whether a request is permitted under the rate limit,
// recording it if so.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.windowSize)

	live := rl.requests[:0]
	for _, t := range rl.requests {
		if t.After(windowStart) {
			live = append(live, t)
		}
	}
	rl.requests = live

	if len(rl.requests) >= rl.maxRequests {
		return false
	}
	rl.requests = append(rl.requests, now)
	return true
}

// CurrentRate returns the number of requests recorded within the
// current window.
func (rl *RateLimiter) CurrentRate() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.windowSize)
	count := 0
	for _, t := range rl.requests {
		if t.After(windowStart) {
			count++
		}
	}
	return count
}

// RemainingQuota returns how many requests are left in the current
// window.
func (rl *RateLimiter) RemainingQuota() int {
	return rl.maxRequests - rl.CurrentRate()
}

// KeyedLimiter fans a per-client RateLimiter out by key (e.g. remote
// IP), creating limiters lazily on first use.
type KeyedLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*RateLimiter
	maxRequests int
	windowSize  time.Duration
}

// NewKeyedLimiter creates a KeyedLimiter applying the same
// maxRequests/windowSize policy to every distinct key.
func NewKeyedLimiter(maxRequests int, windowSize time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		limiters:    make(map[string]*RateLimiter),
		maxRequests: maxRequests,
		windowSize:  windowSize,
	}
}

// Allow reports whether a request from key is permitted.
func (kl *KeyedLimiter) Allow(key string) bool {
	kl.mu.Lock()
	rl, ok := kl.limiters[key]
	if !ok {
		rl = NewRateLimiter(kl.maxRequests, kl.windowSize)
		kl.limiters[key] = rl
	}
	kl.mu.Unlock()
	return rl.Allow()
}

// Middleware wraps an http.Handler, rejecting requests over the limit
// with 429 Too Many Requests, keyed by RemoteAddr.
func (kl *KeyedLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !kl.Allow(r.RemoteAddr) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
