// Package assembler turns a (txStartOffset, txSize, dataRoot) triple into an
// ordered byte stream by requesting chunks from a chunk.Source in sequence,
// restructured from whole-file batch assembly into a consumer-paced
// io.Reader.
package assembler

import (
	"context"
	"io"
	"sync"

	"github.com/weavegate/gateway/pkg/chunk"
	"github.com/weavegate/gateway/pkg/gatewayerr"
)

// Window narrows assembly to [Start, End) relative offsets within the
// transaction. Use Full for the entire transaction; a zero-value Window
// (Start==0, End==0) is an empty window and delivers no bytes.
type Window struct {
	Start uint64
	End   uint64
}

// Full returns the window covering the entire transaction.
func Full(txSize uint64) Window {
	return Window{Start: 0, End: txSize}
}

type fetchResult struct {
	data  []byte
	start uint64 // relative offset of data[0]
	end   uint64 // relative offset just past data[len-1]
	err   error
}

// Stream delivers the bytes of a transaction's [Window.Start, Window.End)
// range in ascending order. It implements io.ReadCloser. Chunks are
// requested whole from the underlying chunk.Source and trimmed to the
// window at the edges.
//
// The producer goroutine prefetches at most one chunk ahead of what the
// consumer is reading: it only requests the next chunk once the consumer
// has drained at least half of the chunk currently being read, bounding
// resident memory to roughly two chunks.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	source chunk.Source

	dataRoot      [32]byte
	txStartOffset uint64
	txSize        uint64
	window        Window

	results chan fetchResult
	permit  chan struct{}

	mu        sync.Mutex
	pending   []byte // trimmed bytes from the chunk currently being drained
	pendingSz int    // original (untrimmed-relevant) size used for the half-drain signal
	consumed  int    // bytes consumed so far from pending's original chunk
	signaled  bool   // whether the half-drain permit has been sent for the current chunk
	closed    bool
	err       error
	eof       bool
}

// New starts assembling the transaction's byte stream over ctx. The
// returned Stream must be closed by the caller once done (or abandoned)
// to release the producer goroutine.
func New(ctx context.Context, source chunk.Source, dataRoot [32]byte, txStartOffset, txSize uint64, window Window) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream{
		ctx:           ctx,
		cancel:        cancel,
		source:        source,
		dataRoot:      dataRoot,
		txStartOffset: txStartOffset,
		txSize:        txSize,
		window:        window,
		results:       make(chan fetchResult, 1),
		permit:        make(chan struct{}, 1),
	}
	s.permit <- struct{}{} // first fetch proceeds immediately
	go s.run()
	return s
}

func (s *Stream) run() {
	defer close(s.results)

	relative := s.window.Start
	for relative < s.window.End {
		select {
		case <-s.permit:
		case <-s.ctx.Done():
			return
		}

		loc := chunk.Locator{
			DataRoot:       s.dataRoot,
			AbsoluteOffset: s.txStartOffset + relative,
			RelativeOffset: relative,
			TxSize:         s.txSize,
		}

		c, err := s.source.GetChunk(s.ctx, loc)
		if err != nil {
			select {
			case s.results <- fetchResult{err: err}:
			case <-s.ctx.Done():
			}
			return
		}

		chunkEnd := c.Offset
		chunkStart := chunkEnd - uint64(len(c.Data))

		data := c.Data
		if chunkStart < s.window.Start {
			data = data[s.window.Start-chunkStart:]
			chunkStart = s.window.Start
		}
		if chunkEnd > s.window.End {
			data = data[:len(data)-int(chunkEnd-s.window.End)]
			chunkEnd = s.window.End
		}

		select {
		case s.results <- fetchResult{data: data, start: chunkStart, end: chunkEnd}:
		case <-s.ctx.Done():
			return
		}

		if chunkEnd <= relative {
			// malformed upstream: chunk did not advance the cursor. Abort
			// rather than spin.
			select {
			case s.results <- fetchResult{err: gatewayerr.New(gatewayerr.KindUpstreamTerminal, "chunk source returned a non-advancing chunk")}:
			case <-s.ctx.Done():
			}
			return
		}
		relative = c.Offset
	}
}

// Read implements io.Reader.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return 0, s.err
	}
	if len(s.pending) == 0 {
		if s.eof {
			return 0, io.EOF
		}
		if err := s.fetchNextLocked(); err != nil {
			s.err = err
			return 0, err
		}
		if s.eof {
			return 0, io.EOF
		}
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	s.consumed += n

	if !s.signaled && s.pendingSz > 0 && s.consumed*2 >= s.pendingSz {
		s.signaled = true
		select {
		case s.permit <- struct{}{}:
		default:
		}
	}

	return n, nil
}

// fetchNextLocked blocks for the next chunk result. Caller holds s.mu.
func (s *Stream) fetchNextLocked() error {
	s.mu.Unlock()
	res, ok := <-s.results
	s.mu.Lock()

	if !ok {
		s.eof = true
		return nil
	}
	if res.err != nil {
		return res.err
	}

	s.pending = res.data
	s.pendingSz = len(res.data)
	s.consumed = 0
	s.signaled = false

	// A chunk trimmed down to zero bytes at the trailing edge of the window
	// still needs its "next chunk" permit granted immediately, since no
	// Read will ever drain half of an empty chunk.
	if s.pendingSz == 0 {
		s.signaled = true
		select {
		case s.permit <- struct{}{}:
		default:
		}
	}
	return nil
}

// Close aborts any in-flight or future chunk fetches.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	return nil
}
