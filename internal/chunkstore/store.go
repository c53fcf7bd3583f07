// Package chunkstore persists chunk.Metadata records so a previously
// fetched and validated chunk can be re-served without re-fetching it from
// an upstream.
//
// Records are keyed primarily by (data_root, relative_offset). A secondary,
// best-effort index keyed by absolute weave offset lets a caller holding
// only an absolute offset locate the owning record without a data_root in
// hand. Writes are idempotent: writing the same key twice with the same
// value is safe under concurrent writers, and secondary-index maintenance
// may race without corrupting the primary record.
package chunkstore

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"

	"github.com/weavegate/gateway/pkg/chunk"
	"github.com/weavegate/gateway/pkg/codec/cborcanon"
	"github.com/weavegate/gateway/pkg/gatewayerr"
)

const (
	primaryPrefix   byte = 0x01
	secondaryPrefix byte = 0x02
)

// Store is a pebble-backed chunk.Metadata store.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if absent) a chunk metadata store rooted at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamTerminal, "failed to open chunk store", "chunkstore", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes meta under its primary key and best-effort updates the
// secondary absolute-offset index.
func (s *Store) Put(meta chunk.Metadata, absoluteOffset uint64) error {
	key := primaryKey(meta.DataRoot, meta.Offset)

	encoded, err := cborcanon.Marshal(meta)
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindUpstreamTerminal, "failed to encode chunk metadata", "chunkstore", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(key, encoded, nil); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindUpstreamTerminal, "failed to stage chunk metadata write", "chunkstore", err)
	}
	if err := batch.Set(secondaryKey(absoluteOffset), key, nil); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindUpstreamTerminal, "failed to stage secondary index write", "chunkstore", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindUpstreamTerminal, "failed to commit chunk metadata write", "chunkstore", err)
	}
	return nil
}

// Get looks up a chunk's metadata by its primary key.
func (s *Store) Get(dataRoot [32]byte, relativeOffset uint64) (*chunk.Metadata, error) {
	return s.getByKey(primaryKey(dataRoot[:], relativeOffset))
}

// GetByAbsoluteOffset resolves the record owning absoluteOffset via the
// secondary index. Returns (nil, nil) if no record covers that offset —
// the caller should fall back to the network path, the index is advisory.
func (s *Store) GetByAbsoluteOffset(absoluteOffset uint64) (*chunk.Metadata, error) {
	value, closer, err := s.db.Get(secondaryKey(absoluteOffset))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamTerminal, "failed to read secondary index", "chunkstore", err)
	}
	primary := append([]byte(nil), value...)
	closer.Close()

	return s.getByKey(primary)
}

func (s *Store) getByKey(key []byte) (*chunk.Metadata, error) {
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamTerminal, "failed to read chunk metadata", "chunkstore", err)
	}
	defer closer.Close()

	var meta chunk.Metadata
	if err := cborcanon.Unmarshal(value, &meta); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindUpstreamTerminal, "failed to decode chunk metadata", "chunkstore", err)
	}
	return &meta, nil
}

func primaryKey(dataRoot []byte, relativeOffset uint64) []byte {
	key := make([]byte, 0, 1+len(dataRoot)+8)
	key = append(key, primaryPrefix)
	key = append(key, dataRoot...)
	key = binary.BigEndian.AppendUint64(key, relativeOffset)
	return key
}

func secondaryKey(absoluteOffset uint64) []byte {
	key := make([]byte, 0, 9)
	key = append(key, secondaryPrefix)
	key = binary.BigEndian.AppendUint64(key, absoluteOffset)
	return key
}
