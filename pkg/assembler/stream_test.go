package assembler

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weavegate/gateway/pkg/chunk"
	"github.com/weavegate/gateway/pkg/gatewayerr"
)

// sequentialSource splits a fixed buffer into equal-size chunks (the last
// one possibly shorter) and serves them by relative offset, regardless of
// the order requests arrive in.
type sequentialSource struct {
	data      []byte
	chunkSize int
	failAt    int // relative offset at which to fail once, -1 disables
}

func (s *sequentialSource) Name() string { return "sequential" }

func (s *sequentialSource) GetChunk(_ context.Context, loc chunk.Locator) (*chunk.Chunk, error) {
	if s.failAt >= 0 && int(loc.RelativeOffset) == s.failAt {
		return nil, gatewayerr.New(gatewayerr.KindUpstreamTransient, "simulated failure")
	}

	start := (int(loc.RelativeOffset) / s.chunkSize) * s.chunkSize
	end := start + s.chunkSize
	if end > len(s.data) {
		end = len(s.data)
	}
	return &chunk.Chunk{
		Data:   s.data[start:end],
		Offset: uint64(end),
	}, nil
}

func TestStreamFullRead(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 1000) // 8000 bytes
	src := &sequentialSource{data: data, chunkSize: 777, failAt: -1}

	s := New(context.Background(), src, [32]byte{}, 0, uint64(len(data)), Full(uint64(len(data))))
	defer s.Close()

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestStreamRangedWindow(t *testing.T) {
	data := bytes.Repeat([]byte("0123456789"), 100) // 1000 bytes
	src := &sequentialSource{data: data, chunkSize: 64, failAt: -1}

	window := Window{Start: 100, End: 250}
	s := New(context.Background(), src, [32]byte{}, 0, uint64(len(data)), window)
	defer s.Close()

	got, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, data[100:250], got)
}

func TestStreamMidStreamError(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 2000)
	src := &sequentialSource{data: data, chunkSize: 256, failAt: 256}

	s := New(context.Background(), src, [32]byte{}, 0, uint64(len(data)), Full(uint64(len(data))))
	defer s.Close()

	_, err := io.ReadAll(s)
	require.Error(t, err)
	assert.True(t, gatewayerr.Is(err, gatewayerr.KindUpstreamTransient))
}

func TestStreamCancelStopsFurtherFetches(t *testing.T) {
	data := bytes.Repeat([]byte("y"), 4096)
	src := &sequentialSource{data: data, chunkSize: 128, failAt: -1}

	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, src, [32]byte{}, 0, uint64(len(data)), Full(uint64(len(data))))

	buf := make([]byte, 64)
	_, err := s.Read(buf)
	require.NoError(t, err)

	cancel()
	_ = s.Close()

	// After cancellation, further reads must not hang; they should
	// eventually surface the context's cancellation or a clean EOF, not
	// produce new chunk fetches.
	_, err = io.ReadAll(s)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
