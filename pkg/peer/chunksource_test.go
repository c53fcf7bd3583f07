package peer

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weavegate/gateway/pkg/chunk"
)

func TestChunkSourceFetchRawSucceeds(t *testing.T) {
	chunkBytes := []byte("hello chunk")
	dataPathBytes := []byte("fake-data-path")
	txPathBytes := []byte("fake-tx-path")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chunk/1024", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"chunk":"` + base64.RawURLEncoding.EncodeToString(chunkBytes) + `",` +
			`"data_path":"` + base64.RawURLEncoding.EncodeToString(dataPathBytes) + `",` +
			`"tx_path":"` + base64.RawURLEncoding.EncodeToString(txPathBytes) + `"}`))
	}))
	defer srv.Close()

	host := srv.Listener.Addr().String()

	manager := newTestManager(t, "http://unused")
	manager.pools[CategoryGetChunk].Replace(map[string]*Peer{
		host: {ID: host, Weight: 100, State: StateAlive},
	})

	src := NewChunkSource(manager, &http.Client{})

	data, dataPath, txPath, declaredHash, err := src.FetchRaw(context.Background(), chunk.Locator{AbsoluteOffset: 1024})
	require.NoError(t, err)
	assert.Equal(t, chunkBytes, data)
	assert.Equal(t, dataPathBytes, dataPath)
	assert.Equal(t, txPathBytes, txPath)
	assert.NotEqual(t, [32]byte{}, declaredHash)
}

func TestChunkSourceFetchRawFallsBackToNextCandidate(t *testing.T) {
	chunkBytes := []byte("second peer wins")

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"chunk":"` + base64.RawURLEncoding.EncodeToString(chunkBytes) + `",` +
			`"data_path":"` + base64.RawURLEncoding.EncodeToString([]byte("path")) + `","tx_path":""}`))
	}))
	defer good.Close()

	manager := newTestManager(t, "http://unused")
	manager.pools[CategoryGetChunk].Replace(map[string]*Peer{
		bad.Listener.Addr().String():  {ID: bad.Listener.Addr().String(), Weight: 100, State: StateAlive},
		good.Listener.Addr().String(): {ID: good.Listener.Addr().String(), Weight: 100, State: StateAlive},
	})

	src := NewChunkSource(manager, &http.Client{})
	src.Candidates = 2

	data, _, _, _, err := src.FetchRaw(context.Background(), chunk.Locator{AbsoluteOffset: 2048})
	require.NoError(t, err)
	assert.Equal(t, chunkBytes, data)
}

func TestChunkSourceFetchRawNoCandidates(t *testing.T) {
	manager := newTestManager(t, "http://unused")
	src := NewChunkSource(manager, &http.Client{})

	_, _, _, _, err := src.FetchRaw(context.Background(), chunk.Locator{AbsoluteOffset: 1})
	require.Error(t, err)
}

func TestChunkSourceSelectsBySyncBucket(t *testing.T) {
	chunkBytes := []byte("bucket-aware")

	covering := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"chunk":"` + base64.RawURLEncoding.EncodeToString(chunkBytes) + `",` +
			`"data_path":"` + base64.RawURLEncoding.EncodeToString([]byte("p")) + `","tx_path":""}`))
	}))
	defer covering.Close()

	notCovering := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer notCovering.Close()

	manager := newTestManager(t, "http://unused")
	coveringID := covering.Listener.Addr().String()
	notCoveringID := notCovering.Listener.Addr().String()

	manager.pools[CategoryGetChunk].Replace(map[string]*Peer{
		coveringID:    {ID: coveringID, Weight: 100, State: StateAlive, SyncBuckets: map[uint64]struct{}{0: {}}},
		notCoveringID: {ID: notCoveringID, Weight: 100, State: StateAlive, SyncBuckets: map[uint64]struct{}{99: {}}},
	})

	src := NewChunkSource(manager, &http.Client{})
	src.Candidates = 1

	data, _, _, _, err := src.FetchRaw(context.Background(), chunk.Locator{AbsoluteOffset: 1})
	require.NoError(t, err)
	assert.Equal(t, chunkBytes, data)
}
