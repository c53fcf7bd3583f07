package chunk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name    string
	delay   time.Duration
	chunk   *Chunk
	err     error
	calls   int
	mu      sync.Mutex
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) GetChunk(ctx context.Context, loc Locator) (*Chunk, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.chunk, f.err
}

type fakeFeedback struct {
	mu       sync.Mutex
	success  []string
	failure  []string
}

func (f *fakeFeedback) ReportSuccess(name string, _ FetchTelemetry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.success = append(f.success, name)
}

func (f *fakeFeedback) ReportFailure(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failure = append(f.failure, name)
}

func TestSequentialTriesNextOnFailure(t *testing.T) {
	want := &Chunk{Data: []byte("ok")}
	s1 := &fakeSource{name: "s1", err: assertErr("boom")}
	s2 := &fakeSource{name: "s2", chunk: want}

	fb := &fakeFeedback{}
	comp := NewComposite([]Source{s1, s2}, 1, fb, nil)

	got, err := comp.GetChunk(context.Background(), Locator{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, []string{"s2"}, fb.success)
	assert.Equal(t, []string{"s1"}, fb.failure)
}

func TestSequentialAllFail(t *testing.T) {
	s1 := &fakeSource{name: "s1", err: assertErr("one")}
	s2 := &fakeSource{name: "s2", err: assertErr("two")}

	comp := NewComposite([]Source{s1, s2}, 1, nil, nil)
	_, err := comp.GetChunk(context.Background(), Locator{})
	require.Error(t, err)
}

func TestBoundedParallelFirstSuccessWins(t *testing.T) {
	want := &Chunk{Data: []byte("fast")}
	slow := &fakeSource{name: "slow", delay: 50 * time.Millisecond, chunk: &Chunk{Data: []byte("slow")}}
	fast := &fakeSource{name: "fast", delay: 1 * time.Millisecond, chunk: want}

	comp := NewComposite([]Source{slow, fast}, 2, nil, nil)
	got, err := comp.GetChunk(context.Background(), Locator{})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
