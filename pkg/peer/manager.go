package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/weavegate/gateway/pkg/codec/etf"
	"github.com/weavegate/gateway/pkg/constants"
)

// Config configures a Manager.
type Config struct {
	TrustedNodeURL string
	IgnoreHosts    []string // hosts dropped from the fetched peer list

	// Preferred maps a category to URLs that are always injected at
	// maximum weight.
	Preferred map[Category][]string

	HTTPClient *http.Client
	Resolver   *Resolver // held for DNS pre-resolution; Manager never calls it, so peers are contacted by hostname
	Log        *logrus.Entry
}

// Manager owns the three categorized pools and runs the periodic refresh
// protocol.
type Manager struct {
	cfg    Config
	client *http.Client
	log    *logrus.Entry

	pools map[Category]*WeightedPool

	mu             sync.RWMutex
	lastBucketSize uint64
}

// New constructs a Manager with empty pools.
func New(cfg Config) *Manager {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: constants.PeerInfoTimeout}
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	m := &Manager{
		cfg:    cfg,
		client: cfg.HTTPClient,
		log:    cfg.Log,
		pools: map[Category]*WeightedPool{
			CategoryChain:     NewWeightedPool(),
			CategoryGetChunk:  NewWeightedPool(),
			CategoryPostChunk: NewWeightedPool(),
		},
	}
	return m
}

// Pool returns the pool for a category.
func (m *Manager) Pool(category Category) *WeightedPool {
	return m.pools[category]
}

// Refresh runs one full refresh cycle: fetch /peers, drop ignored hosts,
// probe /info in bounded parallel, replace the pool atomically, then
// immediately schedule a sync-bucket refresh.
func (m *Manager) Refresh(ctx context.Context) error {
	hosts, err := m.fetchPeerList(ctx)
	if err != nil {
		return fmt.Errorf("peer: fetch peer list: %w", err)
	}

	hosts = m.dropIgnored(hosts)

	probed := m.probeAll(ctx, hosts)

	for category, pool := range m.pools {
		pool.Replace(m.buildPoolEntries(category, probed))
	}

	m.log.WithField("peers", len(probed)).Debug("peer refresh complete")

	m.RefreshSyncBuckets(ctx)
	return nil
}

func (m *Manager) fetchPeerList(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.TrustedNodeURL+"/peers", nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer: /peers returned status %d", resp.StatusCode)
	}

	var hosts []string
	if err := json.NewDecoder(resp.Body).Decode(&hosts); err != nil {
		return nil, fmt.Errorf("peer: decode /peers response: %w", err)
	}
	return hosts, nil
}

func (m *Manager) dropIgnored(hosts []string) []string {
	if len(m.cfg.IgnoreHosts) == 0 {
		return hosts
	}
	ignore := make(map[string]struct{}, len(m.cfg.IgnoreHosts))
	for _, h := range m.cfg.IgnoreHosts {
		ignore[h] = struct{}{}
	}
	out := hosts[:0]
	for _, h := range hosts {
		host := h
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		if _, dropped := ignore[host]; !dropped {
			out = append(out, h)
		}
	}
	return out
}

// probeAll fetches /info from each host with bounded concurrency,
// preserving any previously known weight/state/sync-bucket data for hosts
// that were already tracked.
func (m *Manager) probeAll(ctx context.Context, hosts []string) map[string]*Peer {
	sem := semaphore.NewWeighted(constants.RefreshConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	result := make(map[string]*Peer, len(hosts))

	existing := m.snapshotAllByID()

	for _, host := range hosts {
		host := host
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			info, err := m.fetchInfo(ctx, host)

			mu.Lock()
			defer mu.Unlock()

			peer := existing[host]
			if peer == nil {
				peer = &Peer{ID: host, Weight: constants.WeightInitial, State: StateUnknown}
			}
			if err != nil {
				peer.State = StateDegraded
			} else {
				peer.State = StateAlive
				peer.Blocks = info.Blocks
				peer.Height = info.Height
				peer.LastSeen = nowFunc()
			}
			result[host] = peer
		}()
	}
	wg.Wait()
	return result
}

func (m *Manager) fetchInfo(ctx context.Context, host string) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.PeerInfoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+host+"/info", nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer: /info returned status %d", resp.StatusCode)
	}

	var info Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (m *Manager) snapshotAllByID() map[string]*Peer {
	out := make(map[string]*Peer)
	for _, pool := range m.pools {
		for _, p := range pool.All() {
			out[p.ID] = p
		}
	}
	return out
}

// buildPoolEntries merges probed peers with this category's preferred
// URLs, injected at maximum weight.
func (m *Manager) buildPoolEntries(category Category, probed map[string]*Peer) map[string]*Peer {
	out := make(map[string]*Peer, len(probed))
	for id, p := range probed {
		cp := *p
		out[id] = &cp
	}

	for _, url := range m.cfg.Preferred[category] {
		if existing, ok := out[url]; ok {
			existing.Preferred = true
			existing.Weight = constants.WeightMax
			continue
		}
		out[url] = &Peer{
			ID:        url,
			Weight:    constants.WeightMax,
			State:     StateAlive,
			Preferred: true,
		}
	}
	return out
}

// ReportSuccess bumps a peer's weight by +1 (clamped).
func (m *Manager) ReportSuccess(category Category, peerID string, _ time.Duration) {
	m.pools[category].AdjustWeight(peerID, 1)
}

// ReportFailure drops a peer's weight by -1 (clamped).
func (m *Manager) ReportFailure(category Category, peerID string) {
	m.pools[category].AdjustWeight(peerID, -1)
}

// SelectPeers performs weighted sampling within a category.
func (m *Manager) SelectPeers(category Category, n int) []*Peer {
	return m.pools[category].SelectWeighted(n)
}

// SelectPeersForOffset filters the getChunk pool to peers whose
// SyncBuckets cover absoluteOffset, falling back to unfiltered selection
// when none match.
func (m *Manager) SelectPeersForOffset(absoluteOffset uint64, n int) []*Peer {
	bucketSize := m.bucketSize()
	bucket := absoluteOffset / bucketSize

	all := m.pools[CategoryGetChunk].All()
	var filtered []*Peer
	for _, p := range all {
		if p.SyncBuckets == nil {
			continue
		}
		if _, ok := p.SyncBuckets[bucket]; ok {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		return m.SelectPeers(CategoryGetChunk, n)
	}
	return weightedSampleWithoutReplacement(filtered, n, m.pools[CategoryGetChunk].rng)
}

func (m *Manager) bucketSize() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastBucketSize == 0 {
		return constants.SyncBucketSize
	}
	return m.lastBucketSize
}

// RefreshSyncBuckets fetches /sync_buckets from every known getChunk peer
// and updates each peer's SyncBuckets set.
func (m *Manager) RefreshSyncBuckets(ctx context.Context) {
	pool := m.pools[CategoryGetChunk]
	peers := pool.All()

	sem := semaphore.NewWeighted(constants.RefreshConcurrency)
	var wg sync.WaitGroup

	for _, p := range peers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)

			buckets, err := m.fetchSyncBuckets(ctx, p.ID)
			if err != nil {
				m.log.WithError(err).WithField("peer", p.ID).Debug("sync bucket refresh failed")
				return
			}

			m.mu.Lock()
			m.lastBucketSize = buckets.BucketSize
			m.mu.Unlock()

			pool.setSyncBuckets(p.ID, buckets.Indices)
		}()
	}
	wg.Wait()
}

func (m *Manager) fetchSyncBuckets(ctx context.Context, host string) (*etf.SyncBuckets, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+host+"/sync_buckets", nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer: /sync_buckets returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("peer: read /sync_buckets body: %w", err)
	}
	return etf.Decode(body)
}

var nowFunc = time.Now
