// Package ratelimit implements the dual IP/resource token-bucket limiter
// with LRU-bounded bucket maps and x402 payment top-offs. Each bucket
// holds a {tokens, x402Tokens} float64 pair rather than a single integer
// count, and eviction uses github.com/hashicorp/golang-lru/v2 for an
// accurate bound on the number of live buckets, which a periodic cleanup
// sweep cannot guarantee.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Bucket is a single token bucket: a regular refilling pool and a paid
// x402 pool that never refills and is drained first.
type Bucket struct {
	mu sync.Mutex

	Tokens     float64
	X402Tokens float64
	Capacity   float64
	RefillRate float64 // tokens per second
	LastRefill time.Time
}

// NewBucket constructs a bucket starting at full capacity.
func NewBucket(capacity, refillRate float64, now time.Time) *Bucket {
	return &Bucket{
		Tokens:     capacity,
		Capacity:   capacity,
		RefillRate: refillRate,
		LastRefill: now,
	}
}

// refillLocked applies linear refill to the regular pool up to capacity.
// x402Tokens are never refilled. Caller holds b.mu.
func (b *Bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.LastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.Tokens = math.Min(b.Capacity, b.Tokens+elapsed*b.RefillRate)
	b.LastRefill = now
}

// Consumption records how a single consume/refund operation was broken
// down across the two pools, needed by the adjust step to refund correctly
// (only the regular pool is ever refunded).
type Consumption struct {
	FromX402    float64
	FromRegular float64
}

// TryConsume attempts to remove amount tokens, preferring the x402 pool
// first. Returns ok=false (bucket
// untouched) if the combined pools can't cover amount.
func (b *Bucket) TryConsume(amount float64, now time.Time) (Consumption, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(now)

	if amount > b.X402Tokens+b.Tokens {
		return Consumption{}, false
	}

	fromX402 := math.Min(amount, b.X402Tokens)
	remaining := amount - fromX402
	b.X402Tokens -= fromX402
	b.Tokens -= remaining

	return Consumption{FromX402: fromX402, FromRegular: remaining}, true
}

// Refund returns amount tokens to the regular pool, capped at capacity.
func (b *Bucket) Refund(amount float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Tokens = math.Min(b.Capacity, b.Tokens+amount)
}

// Release reverses a prior TryConsume exactly (used when a reservation
// must be rolled back because a sibling bucket denied).
func (b *Bucket) Release(c Consumption) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.X402Tokens += c.FromX402
	b.Tokens = math.Min(b.Capacity, b.Tokens+c.FromRegular)
}

// TopOff adds x402Tokens for a verified payment.
func (b *Bucket) TopOff(x402Tokens float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.X402Tokens += x402Tokens
}

// State is a point-in-time snapshot for the rate-limit admin surface.
type State struct {
	Tokens     float64
	X402Tokens float64
	Capacity   float64
	RefillRate float64
	LastRefill time.Time
}

// Snapshot returns the bucket's current state after applying refill.
func (b *Bucket) Snapshot(now time.Time) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(now)
	return State{
		Tokens:     b.Tokens,
		X402Tokens: b.X402Tokens,
		Capacity:   b.Capacity,
		RefillRate: b.RefillRate,
		LastRefill: b.LastRefill,
	}
}

// TokensForBytes computes the predicted/actual token cost of n bytes: 1
// token per KiB, rounded up, minimum 1.
func TokensForBytes(n uint64) float64 {
	if n == 0 {
		return 1
	}
	return math.Ceil(float64(n) / 1024)
}
