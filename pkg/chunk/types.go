// Package chunk implements the Chunk/ChunkMetadata types and the composite
// chunk source that fetches a validated chunk from the first successful
// underlying source.
package chunk

import (
	"context"
	"time"
)

// Chunk is a validated slice of a transaction payload.
type Chunk struct {
	DataRoot [32]byte
	DataSize uint64
	DataPath []byte // Merkle proof path from DataRoot to this chunk's leaf
	TxPath   []byte // optional proof from the weave root to the tx
	Offset   uint64 // end-offset within the transaction
	Hash     [32]byte
	Data     []byte // raw chunk bytes, <= constants.MaxChunkSize
}

// Metadata is the persisted form of a Chunk: enough to re-request the bytes
// and re-validate them later.
type Metadata struct {
	DataRoot []byte
	DataSize uint64
	Offset   uint64
	DataPath []byte
	Hash     []byte
}

// Locator identifies a single chunk to fetch from any underlying source.
type Locator struct {
	DataRoot       [32]byte
	AbsoluteOffset uint64
	RelativeOffset uint64
	TxSize         uint64
}

// Source is the polymorphic interface every underlying chunk source
// implements — local store, network peer, etc.
type Source interface {
	// Name identifies this source for telemetry and error aggregation.
	Name() string
	// GetChunk fetches and Merkle-validates the chunk at loc. Implementations
	// must validate before returning; see Validate in the merkle package.
	GetChunk(ctx context.Context, loc Locator) (*Chunk, error)
}

// FetchTelemetry records per-source success/failure counts, consumed by the
// peer manager's feedback loop.
type FetchTelemetry struct {
	Source       string
	Success      bool
	Duration     time.Duration
	ResponseTime time.Duration
}
