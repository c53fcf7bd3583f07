package peer

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, trusted string) *Manager {
	t.Helper()
	return New(Config{
		TrustedNodeURL: trusted,
		HTTPClient:     &http.Client{},
	})
}

func TestRefreshPopulatesPools(t *testing.T) {
	infoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/info":
			w.Write([]byte(`{"blocks": 10, "height": 20}`))
		case "/sync_buckets":
			w.WriteHeader(http.StatusOK)
			w.Write(buildEmptySyncBuckets())
		}
	}))
	defer infoServer.Close()

	host := infoServer.Listener.Addr().String()

	trustedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/peers" {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`["` + host + `"]`))
		}
	}))
	defer trustedServer.Close()

	m := newTestManager(t, trustedServer.URL)
	err := m.Refresh(t.Context())
	require.NoError(t, err)

	peers := m.Pool(CategoryChain).All()
	require.Len(t, peers, 1)
	assert.Equal(t, host, peers[0].ID)
	assert.Equal(t, StateAlive, peers[0].State)
	assert.Equal(t, int64(10), peers[0].Blocks)
}

func TestDropIgnoredHosts(t *testing.T) {
	m := newTestManager(t, "http://trusted.example")
	m.cfg.IgnoreHosts = []string{"bad.example"}

	got := m.dropIgnored([]string{"bad.example:1984", "good.example:1984"})
	assert.Equal(t, []string{"good.example:1984"}, got)
}

func TestReportSuccessAndFailureClampWeight(t *testing.T) {
	pool := NewWeightedPool()
	pool.Replace(map[string]*Peer{
		"p1": {ID: "p1", Weight: 1},
	})

	pool.AdjustWeight("p1", -5)
	assert.Equal(t, 1, pool.Get("p1").Weight)

	pool.Replace(map[string]*Peer{"p1": {ID: "p1", Weight: 99}})
	pool.AdjustWeight("p1", 5)
	assert.Equal(t, 100, pool.Get("p1").Weight)
}

func TestSelectPeersForOffsetFallsBackWhenNoMatch(t *testing.T) {
	m := newTestManager(t, "http://trusted.example")
	m.pools[CategoryGetChunk].Replace(map[string]*Peer{
		"p1": {ID: "p1", Weight: 50},
	})

	got := m.SelectPeersForOffset(123456789, 1)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)
}

func TestSelectPeersForOffsetFiltersBySyncBucket(t *testing.T) {
	m := newTestManager(t, "http://trusted.example")
	m.pools[CategoryGetChunk].Replace(map[string]*Peer{
		"has-bucket": {ID: "has-bucket", Weight: 50, SyncBuckets: map[uint64]struct{}{0: {}}},
		"no-bucket":  {ID: "no-bucket", Weight: 50, SyncBuckets: map[uint64]struct{}{99: {}}},
	})

	got := m.SelectPeersForOffset(0, 2)
	require.Len(t, got, 1)
	assert.Equal(t, "has-bucket", got[0].ID)
}

func buildEmptySyncBuckets() []byte {
	return []byte{131, 104, 2, 97, 100, 116, 0, 0, 0, 0}
}
