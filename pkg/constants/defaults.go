// Package constants defines cross-cutting defaults for the retrieval,
// peer-management and rate-limit subsystems.
package constants

import "time"

// Chunk and Merkle proof geometry.
const (
	// MaxChunkSize is the maximum size of a single chunk.
	MaxChunkSize = 256 * 1024 // 256 KiB

	// MaxChunkPostSize bounds an inbound chunk POST body.
	MaxChunkPostSize = int64(MaxChunkSize * 14 / 10)

	// MerkleBranchRecordSize is the byte size of a branch record (left|right|offset).
	MerkleBranchRecordSize = 96

	// MerkleLeafRecordSize is the byte size of a leaf record (data_root|end_offset).
	MerkleLeafRecordSize = 64

	// HashSize is the SHA-256 digest size used throughout the Merkle proof format.
	HashSize = 32
)

// Identifier geometry.
const (
	// IdentifierLength is the fixed length of a content identifier.
	IdentifierLength = 43
)

// Peer manager defaults.
const (
	// PeerRefreshInterval is how often the trusted-node peer list is re-fetched.
	PeerRefreshInterval = 60 * time.Second

	// PeerInfoTimeout bounds a single peer /info request during refresh.
	PeerInfoTimeout = 1 * time.Second

	// ChunkFetchTimeout bounds a single peer GET /chunk/{absoluteOffset} request.
	ChunkFetchTimeout = 5 * time.Second

	// ChunkFetchCandidates is the default number of peers tried, in order, per chunk fetch.
	ChunkFetchCandidates = 3

	// SyncBucketSize is the width of one sync bucket in the global address space.
	SyncBucketSize = 10 * 1024 * 1024 * 1024 // 10 GiB

	// WeightMin and WeightMax bound a weighted peer's weight.
	WeightMin = 1
	WeightMax = 100

	// WeightInitial is the weight assigned to a newly observed peer.
	WeightInitial = 50

	// WeightDegradedThreshold marks a peer as degraded once its weight falls
	// to or below this value.
	WeightDegradedThreshold = 10

	// RefreshConcurrency bounds the number of concurrent /info fetches during refresh.
	RefreshConcurrency = 16
)

// Rate limiter defaults.
const (
	// TokenBytes is the number of bytes one rate-limit token represents.
	TokenBytes = 1024

	// DefaultMaxBuckets bounds the LRU-evicted bucket map.
	DefaultMaxBuckets = 100_000
)

// Request attribute defaults.
const (
	// DefaultMaxHops is the default ceiling on RequestAttributes.Hops before
	// a request must not be forwarded upstream.
	DefaultMaxHops = 10
)

// HTTP surface defaults.
const (
	// StableCacheControl is applied to content known to be immutable.
	StableCacheControl = "public, max-age=2592000, immutable"

	// UnstableCacheControl is applied to content whose finality is unknown.
	UnstableCacheControl = "public, max-age=7200"

	// NotFoundCacheControl is applied to 404 responses.
	NotFoundCacheControl = "public, max-age=60, immutable"

	// MultipartBoundaryLength is the length of a generated multipart/byteranges boundary.
	MultipartBoundaryLength = 50

	// MultipartBoundaryDashes is the minimum number of leading dashes in a boundary.
	MultipartBoundaryDashes = 26
)
