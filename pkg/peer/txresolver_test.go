package peer

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxResolverResolveTx(t *testing.T) {
	var dataRoot [32]byte
	for i := range dataRoot {
		dataRoot[i] = byte(i)
	}
	encodedRoot := base64.RawURLEncoding.EncodeToString(dataRoot[:])

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tx/abc123/offset":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"offset":"1023","size":"1024"}`))
		case "/tx/abc123":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data_root":"` + encodedRoot + `"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	resolver := NewTxResolver(srv.URL, &http.Client{})
	root, start, size, err := resolver.ResolveTx(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, dataRoot, root)
	assert.Equal(t, uint64(0), start)
	assert.Equal(t, uint64(1024), size)
}

func TestTxResolverResolveTxRejectsInconsistentSize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"offset":"10","size":"1024"}`))
	}))
	defer srv.Close()

	resolver := NewTxResolver(srv.URL, &http.Client{})
	_, _, _, err := resolver.ResolveTx(context.Background(), "abc123")
	require.Error(t, err)
}

func TestTxResolverResolveTxPropagatesUpstreamStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	resolver := NewTxResolver(srv.URL, &http.Client{})
	_, _, _, err := resolver.ResolveTx(context.Background(), "missing")
	require.Error(t, err)
}
