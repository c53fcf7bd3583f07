package ratelimit

import (
	"net"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LimitType identifies which bucket denied a reservation.
type LimitType string

const (
	LimitResource LimitType = "resource"
	LimitIP       LimitType = "ip"
)

// Config parameterizes bucket capacity/refill and eviction behavior.
type Config struct {
	Capacity           float64
	RefillRate         float64 // tokens/sec
	CapacityMultiplier float64 // x402 top-off multiplier
	MaxBuckets         int
	Allowlist          []string // exact IPs or CIDRs
}

// Reservation is what Check returns on success: the two buckets that were
// debited and how much, so Adjust can true the charge up or down
// afterward.
type Reservation struct {
	ip         *Bucket
	resource   *Bucket
	predicted  float64
	ipConsume  Consumption
	resConsume Consumption
	at         time.Time // time passed to the Check that made the reservation
}

// Limiter holds the dual IP/resource bucket maps.
type Limiter struct {
	cfg Config

	mu         sync.Mutex
	ipBuckets  *lru.Cache[string, *Bucket]
	resBuckets *lru.Cache[string, *Bucket]

	allowExact map[string]struct{}
	allowNets  []*net.IPNet
}

// New constructs a Limiter. A non-positive cfg.MaxBuckets falls back to
// 100 000, the same value as constants.DefaultMaxBuckets; this package takes
// no direct dependency on the constants package so it stays usable
// standalone in tests.
func New(cfg Config) (*Limiter, error) {
	if cfg.MaxBuckets <= 0 {
		cfg.MaxBuckets = 100_000
	}
	ipCache, err := lru.New[string, *Bucket](cfg.MaxBuckets)
	if err != nil {
		return nil, err
	}
	resCache, err := lru.New[string, *Bucket](cfg.MaxBuckets)
	if err != nil {
		return nil, err
	}

	l := &Limiter{
		cfg:        cfg,
		ipBuckets:  ipCache,
		resBuckets: resCache,
		allowExact: make(map[string]struct{}),
	}
	for _, entry := range cfg.Allowlist {
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				continue
			}
			l.allowNets = append(l.allowNets, network)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			l.allowExact[normalizeIP(ip).String()] = struct{}{}
		}
	}
	return l, nil
}

// normalizeIP collapses an IPv4-mapped IPv6 address to its IPv4 form.
func normalizeIP(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip
}

// Allowed reports whether ip bypasses all rate-limit checks.
func (l *Limiter) Allowed(ip net.IP) bool {
	ip = normalizeIP(ip)
	if _, ok := l.allowExact[ip.String()]; ok {
		return true
	}
	for _, n := range l.allowNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// getOrCreate fetches a bucket by key from cache, creating one at full
// capacity if absent.
func getOrCreate(cache *lru.Cache[string, *Bucket], key string, capacity, refillRate float64, now time.Time) *Bucket {
	if b, ok := cache.Get(key); ok {
		return b
	}
	b := NewBucket(capacity, refillRate, now)
	cache.Add(key, b)
	return b
}

// ResourceKey builds the canonical resource-bucket key.
func ResourceKey(method, host, path string) string {
	return method + "|" + host + "|" + path
}

// Check performs the check-and-reserve step for predicted content size in
// bytes against the IP and resource buckets. Returns the reservation on success, or the
// LimitType of whichever bucket denied.
func (l *Limiter) Check(ip net.IP, resourceKey string, predictedBytes uint64, now time.Time) (*Reservation, LimitType, bool) {
	predicted := TokensForBytes(predictedBytes)

	l.mu.Lock()
	resBucket := getOrCreate(l.resBuckets, resourceKey, l.cfg.Capacity, l.cfg.RefillRate, now)
	ipBucket := getOrCreate(l.ipBuckets, normalizeIP(ip).String(), l.cfg.Capacity, l.cfg.RefillRate, now)
	l.mu.Unlock()

	resConsume, ok := resBucket.TryConsume(predicted, now)
	if !ok {
		return nil, LimitResource, false
	}

	ipConsume, ok := ipBucket.TryConsume(predicted, now)
	if !ok {
		resBucket.Release(resConsume)
		return nil, LimitIP, false
	}

	return &Reservation{
		ip:         ipBucket,
		resource:   resBucket,
		predicted:  predicted,
		ipConsume:  ipConsume,
		resConsume: resConsume,
		at:         now,
	}, "", true
}

// Adjust trues up a reservation once the actual response size is known.
// An extra charge is taken as of the reservation's Check time.
func (l *Limiter) Adjust(r *Reservation, actualBytes uint64) {
	if r == nil {
		return
	}
	actual := TokensForBytes(actualBytes)

	if actual > r.predicted {
		delta := actual - r.predicted
		now := r.at
		r.resource.TryConsume(delta, now)
		r.ip.TryConsume(delta, now)
		return
	}

	if actual < r.predicted {
		delta := r.predicted - actual
		r.resource.Refund(delta)
		r.ip.Refund(delta)
	}
}

// TopOff credits x402Tokens to both buckets of a verified payment of
// declared content length L.
func (l *Limiter) TopOff(ip net.IP, resourceKey string, declaredLength uint64, now time.Time) {
	tokens := TokensForBytes(declaredLength) * l.cfg.CapacityMultiplier

	l.mu.Lock()
	resBucket := getOrCreate(l.resBuckets, resourceKey, l.cfg.Capacity, l.cfg.RefillRate, now)
	ipBucket := getOrCreate(l.ipBuckets, normalizeIP(ip).String(), l.cfg.Capacity, l.cfg.RefillRate, now)
	l.mu.Unlock()

	resBucket.TopOff(tokens)
	ipBucket.TopOff(tokens)
}

// CreditIP adds amount tokens directly to the named IP bucket, used by the
// rate-limit admin surface's top-off routes. paid routes the credit into the x402 pool; otherwise it goes
// to the regular pool, capped at capacity.
func (l *Limiter) CreditIP(ip net.IP, amount float64, paid bool, now time.Time) {
	l.mu.Lock()
	b := getOrCreate(l.ipBuckets, normalizeIP(ip).String(), l.cfg.Capacity, l.cfg.RefillRate, now)
	l.mu.Unlock()
	if paid {
		b.TopOff(amount)
		return
	}
	b.Refund(amount)
}

// CreditResource is CreditIP's resource-bucket counterpart.
func (l *Limiter) CreditResource(resourceKey string, amount float64, paid bool, now time.Time) {
	l.mu.Lock()
	b := getOrCreate(l.resBuckets, resourceKey, l.cfg.Capacity, l.cfg.RefillRate, now)
	l.mu.Unlock()
	if paid {
		b.TopOff(amount)
		return
	}
	b.Refund(amount)
}

// IPBucketState implements getIpBucketState. Returns ok=false if the bucket has never been created.
func (l *Limiter) IPBucketState(ip net.IP, now time.Time) (State, bool) {
	l.mu.Lock()
	b, ok := l.ipBuckets.Peek(normalizeIP(ip).String())
	l.mu.Unlock()
	if !ok {
		return State{}, false
	}
	return b.Snapshot(now), true
}

// ResourceBucketState implements getResourceBucketState.
func (l *Limiter) ResourceBucketState(method, host, path string, now time.Time) (State, bool) {
	l.mu.Lock()
	b, ok := l.resBuckets.Peek(ResourceKey(method, host, path))
	l.mu.Unlock()
	if !ok {
		return State{}, false
	}
	return b.Snapshot(now), true
}
