package peer

import (
	"math/rand"
	"sync"

	"github.com/weavegate/gateway/pkg/constants"
)

// WeightedPool is a category's peer table: a map of ID to *Peer guarded by
// a single RWMutex, with weighted-random sampling-without-replacement for
// selection. Mutation (Replace from refresh, AdjustWeight from feedback,
// setSyncBuckets from the sync-bucket round) takes the write lock; readers
// take the read lock and copy out what they need.
type WeightedPool struct {
	mu    sync.RWMutex
	peers map[string]*Peer
	rng   *rand.Rand
}

// NewWeightedPool constructs an empty pool.
func NewWeightedPool() *WeightedPool {
	return &WeightedPool{
		peers: make(map[string]*Peer),
		rng:   rand.New(rand.NewSource(rand.Int63())),
	}
}

// Replace atomically swaps the pool's contents.
func (p *WeightedPool) Replace(peers map[string]*Peer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peers = peers
}

// Get returns a value copy of the peer by ID, or nil.
func (p *WeightedPool) Get(id string) *Peer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	peer, ok := p.peers[id]
	if !ok {
		return nil
	}
	return peer.clone()
}

// All returns value copies of every peer in the pool.
func (p *WeightedPool) All() []*Peer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Peer, 0, len(p.peers))
	for _, peer := range p.peers {
		out = append(out, peer.clone())
	}
	return out
}

// AdjustWeight applies delta to a peer's weight, clamped to
// [constants.WeightMin, constants.WeightMax], and updates its derived
// State.
func (p *WeightedPool) AdjustWeight(id string, delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	peer, ok := p.peers[id]
	if !ok {
		return
	}
	peer.Weight += delta
	if peer.Weight < constants.WeightMin {
		peer.Weight = constants.WeightMin
	}
	if peer.Weight > constants.WeightMax {
		peer.Weight = constants.WeightMax
	}

	if peer.Weight <= constants.WeightDegradedThreshold {
		peer.State = StateDegraded
	} else {
		peer.State = StateAlive
	}
}

// setSyncBuckets installs the decoded sync-bucket set for a tracked peer.
// No-op if the peer is no longer present (it may have been dropped by a
// concurrent refresh).
func (p *WeightedPool) setSyncBuckets(id string, buckets map[uint64]struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if peer, ok := p.peers[id]; ok {
		peer.SyncBuckets = buckets
	}
}

// SelectWeighted performs weighted random sampling without replacement,
// returning up to n peers. Preferred peers are prioritized: every
// preferred peer is included before sampling fills the remainder from the
// rest of the pool.
func (p *WeightedPool) SelectWeighted(n int) []*Peer {
	p.mu.RLock()
	candidates := make([]*Peer, 0, len(p.peers))
	for _, peer := range p.peers {
		candidates = append(candidates, peer.clone())
	}
	p.mu.RUnlock()

	return weightedSampleWithoutReplacement(candidates, n, p.rng)
}

// weightedSampleWithoutReplacement draws up to n distinct peers from
// candidates, weighted by Peer.Weight, with every Preferred peer drawn
// first.
func weightedSampleWithoutReplacement(candidates []*Peer, n int, rng *rand.Rand) []*Peer {
	if n <= 0 || len(candidates) == 0 {
		return nil
	}

	var preferred, rest []*Peer
	for _, c := range candidates {
		if c.Preferred {
			preferred = append(preferred, c)
		} else {
			rest = append(rest, c)
		}
	}

	out := make([]*Peer, 0, n)
	out = append(out, preferred...)
	if len(out) >= n {
		return out[:n]
	}

	remaining := make([]*Peer, len(rest))
	copy(remaining, rest)

	for len(out) < n && len(remaining) > 0 {
		total := 0
		for _, c := range remaining {
			total += c.Weight
		}
		if total <= 0 {
			break
		}

		target := rng.Intn(total)
		idx := 0
		running := 0
		for i, c := range remaining {
			running += c.Weight
			if target < running {
				idx = i
				break
			}
		}

		out = append(out, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}

	return out
}
