package httpapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weavegate/gateway/pkg/admission"
	"github.com/weavegate/gateway/pkg/datasource"
	"github.com/weavegate/gateway/pkg/ratelimit"
)

const testID = "0123456789012345678901234567890123456789012"

type fakeTier struct {
	body        []byte
	contentType string
}

func (f *fakeTier) Name() string { return "fake" }

func (f *fakeTier) Fetch(_ context.Context, req datasource.Request) (*datasource.ContiguousData, error) {
	body := f.body
	if req.Region != nil {
		end := req.Region.Offset + req.Region.Size
		if end > uint64(len(body)) {
			end = uint64(len(body))
		}
		body = body[req.Region.Offset:end]
	}
	return &datasource.ContiguousData{
		Stream:            io.NopCloser(bytes.NewReader(body)),
		Size:              uint64(len(body)),
		SourceContentType: f.contentType,
		Verified:          true,
	}, nil
}

func newTestServer(t *testing.T, body []byte) *Server {
	t.Helper()
	tier := &fakeTier{body: body, contentType: "application/octet-stream"}
	composite := datasource.NewComposite([]datasource.Tier{tier}, nil)
	return New(Config{Content: composite})
}

func TestRawFetchReturnsFullBodyAndSecurityHeaders(t *testing.T) {
	srv := newTestServer(t, []byte("hello world"))

	req := httptest.NewRequest(http.MethodGet, "/raw/"+testID, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello world", rec.Body.String())
	assert.Equal(t, "default-src 'self'", rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "same-origin", rec.Header().Get("Cross-Origin-Opener-Policy"))
}

func TestRangeRequestReturns206WithContentRange(t *testing.T) {
	srv := newTestServer(t, []byte("0123456789"))

	req := httptest.NewRequest(http.MethodGet, "/raw/"+testID, nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "234", rec.Body.String())
	assert.Equal(t, "bytes 2-4/10", rec.Header().Get("Content-Range"))
}

func TestSuffixRangeResolvesAgainstTotalSize(t *testing.T) {
	srv := newTestServer(t, []byte("0123456789"))

	req := httptest.NewRequest(http.MethodGet, "/raw/"+testID, nil)
	req.Header.Set("Range", "bytes=-3")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "789", rec.Body.String())
}

func TestRangeBeyondSizeReturns416WithContentRange(t *testing.T) {
	srv := newTestServer(t, []byte("0123456789"))

	req := httptest.NewRequest(http.MethodGet, "/raw/"+testID, nil)
	req.Header.Set("Range", "bytes=20-30")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */10", rec.Header().Get("Content-Range"))
}

func TestIfNoneMatchReturns304(t *testing.T) {
	srv := newTestServer(t, []byte("hello world"))

	first := httptest.NewRequest(http.MethodGet, "/raw/"+testID, nil)
	firstRec := httptest.NewRecorder()
	srv.ServeHTTP(firstRec, first)
	etag := firstRec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	second := httptest.NewRequest(http.MethodGet, "/raw/"+testID, nil)
	second.Header.Set("If-None-Match", etag)
	secondRec := httptest.NewRecorder()
	srv.ServeHTTP(secondRec, second)

	assert.Equal(t, http.StatusNotModified, secondRec.Code)
	assert.Empty(t, secondRec.Header().Get("Content-Length"))
}

func TestInvalidIdentifierReturns400(t *testing.T) {
	srv := newTestServer(t, []byte("x"))

	req := httptest.NewRequest(http.MethodGet, "/raw/not-a-valid-id", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitDenialReturns429(t *testing.T) {
	tier := &fakeTier{body: []byte("0123456789"), contentType: "application/octet-stream"}
	composite := datasource.NewComposite([]datasource.Tier{tier}, nil)

	limiter, err := ratelimit.New(ratelimit.Config{Capacity: 1, RefillRate: 0, MaxBuckets: 16})
	require.NoError(t, err)
	gate := admission.New(admission.Config{Limiter: limiter})

	srv := New(Config{Content: composite, Gate: gate, Limiter: limiter})

	first := httptest.NewRequest(http.MethodGet, "/raw/"+testID, nil)
	first.RemoteAddr = "9.9.9.9:1"
	firstRec := httptest.NewRecorder()
	srv.ServeHTTP(firstRec, first)
	require.Equal(t, http.StatusOK, firstRec.Code)

	second := httptest.NewRequest(http.MethodGet, "/raw/"+testID, nil)
	second.RemoteAddr = "9.9.9.9:1"
	secondRec := httptest.NewRecorder()
	srv.ServeHTTP(secondRec, second)
	assert.Equal(t, http.StatusTooManyRequests, secondRec.Code)
}

func TestRateLimitAdminRoutesReportBucketState(t *testing.T) {
	limiter, err := ratelimit.New(ratelimit.Config{Capacity: 10, RefillRate: 1, MaxBuckets: 16})
	require.NoError(t, err)
	gate := admission.New(admission.Config{Limiter: limiter})
	srv := New(Config{
		Content: datasource.NewComposite([]datasource.Tier{&fakeTier{body: []byte("x")}}, nil),
		Gate:    gate,
		Limiter: limiter,
	})

	warm := httptest.NewRequest(http.MethodGet, "/raw/"+testID, nil)
	warm.RemoteAddr = "1.1.1.1:1"
	srv.ServeHTTP(httptest.NewRecorder(), warm)

	req := httptest.NewRequest(http.MethodGet, "/weave/rate-limit/ip/1.1.1.1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	missing := httptest.NewRequest(http.MethodGet, "/weave/rate-limit/ip/2.2.2.2", nil)
	missingRec := httptest.NewRecorder()
	srv.ServeHTTP(missingRec, missing)
	assert.Equal(t, http.StatusNotFound, missingRec.Code)
}

func TestRateLimitAdminTopOffRequiresAuth(t *testing.T) {
	limiter, err := ratelimit.New(ratelimit.Config{Capacity: 10, RefillRate: 1, MaxBuckets: 16})
	require.NoError(t, err)
	srv := New(Config{
		Content: datasource.NewComposite([]datasource.Tier{&fakeTier{body: []byte("x")}}, nil),
		Limiter: limiter,
	})

	req := httptest.NewRequest(http.MethodPost, "/weave/rate-limit/ip/1.1.1.1", bytes.NewReader([]byte(`{"tokens":5,"tokenType":"regular"}`)))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimitAdminTopOffWithBearerKey(t *testing.T) {
	limiter, err := ratelimit.New(ratelimit.Config{Capacity: 10, RefillRate: 1, MaxBuckets: 16})
	require.NoError(t, err)
	srv := New(Config{
		Content:  datasource.NewComposite([]datasource.Tier{&fakeTier{body: []byte("x")}}, nil),
		Limiter:  limiter,
		AdminKey: "s3cr3t",
	})

	req := httptest.NewRequest(http.MethodPost, "/weave/rate-limit/ip/1.1.1.1", bytes.NewReader([]byte(`{"tokens":5,"tokenType":"regular"}`)))
	req.Header.Set("Authorization", "Bearer s3cr3t")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
