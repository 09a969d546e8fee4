// Package ratelimiter throttles command traffic with token buckets.
//
// A Limiter enforces one bucket. A Keyed limiter keeps one bucket per client
// key (typically the remote host) so that a single noisy client cannot
// starve the others, and forgets keys that stay idle.
package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter provides request rate limiting using the token bucket algorithm.
//
// A zero rate means unlimited: Allow always succeeds and Wait never blocks.
//
// Thread safety:
// All methods are safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter with the given sustained rate and burst capacity.
//
// Parameters:
//   - requestsPerSecond: Maximum sustained rate; 0 disables limiting
//   - burst: Bucket capacity; values below 1 are raised to 1
func New(requestsPerSecond float64, burst int) *Limiter {
	if requestsPerSecond <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Unlimited reports whether the limiter lets everything through.
func (l *Limiter) Unlimited() bool {
	return l.limiter.Limit() == rate.Inf
}

// Allow consumes a token if one is available, without waiting.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Tokens returns the current number of available tokens.
func (l *Limiter) Tokens() float64 {
	return l.limiter.Tokens()
}

type keyedEntry struct {
	limiter  *Limiter
	lastSeen time.Time
}

// Keyed hands out an independent Limiter per key.
//
// Keys not used for longer than idleTTL are dropped by Prune, which Allow
// and Wait call opportunistically.
type Keyed struct {
	mu        sync.Mutex
	rps       float64
	burst     int
	idleTTL   time.Duration
	entries   map[string]*keyedEntry
	lastPrune time.Time
	now       func() time.Time
}

// DefaultIdleTTL is how long an unused per-key bucket is kept.
const DefaultIdleTTL = 10 * time.Minute

// NewKeyed creates a per-key limiter. idleTTL <= 0 selects DefaultIdleTTL.
func NewKeyed(requestsPerSecond float64, burst int, idleTTL time.Duration) *Keyed {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Keyed{
		rps:     requestsPerSecond,
		burst:   burst,
		idleTTL: idleTTL,
		entries: make(map[string]*keyedEntry),
		now:     time.Now,
	}
}

// Unlimited reports whether per-key buckets let everything through.
func (k *Keyed) Unlimited() bool {
	return k.rps <= 0
}

func (k *Keyed) get(key string) *Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if now.Sub(k.lastPrune) >= k.idleTTL {
		k.pruneLocked(now)
	}

	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{limiter: New(k.rps, k.burst)}
		k.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Allow consumes a token from key's bucket if one is available.
func (k *Keyed) Allow(key string) bool {
	if k.Unlimited() {
		return true
	}
	return k.get(key).Allow()
}

// Wait blocks until key's bucket has a token or ctx is done.
func (k *Keyed) Wait(ctx context.Context, key string) error {
	if k.Unlimited() {
		return nil
	}
	return k.get(key).Wait(ctx)
}

// Prune drops buckets idle for longer than the TTL and returns how many
// were removed.
func (k *Keyed) Prune() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pruneLocked(k.now())
}

func (k *Keyed) pruneLocked(now time.Time) int {
	removed := 0
	for key, e := range k.entries {
		if now.Sub(e.lastSeen) > k.idleTTL {
			delete(k.entries, key)
			removed++
		}
	}
	k.lastPrune = now
	return removed
}

// Tokens returns the tokens left in key's bucket. A key without a bucket
// reports a full burst.
func (k *Keyed) Tokens(key string) float64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	if e, ok := k.entries[key]; ok {
		return e.limiter.Tokens()
	}
	return float64(max(k.burst, 1))
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
