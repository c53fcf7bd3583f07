package chunk

import (
	"bytes"
	"context"
	"crypto/sha256"

	"github.com/weavegate/gateway/pkg/constants"
	"github.com/weavegate/gateway/pkg/gatewayerr"
	"github.com/weavegate/gateway/pkg/merkle"
)

// RawFetcher fetches the unvalidated bytes and proof path for a chunk
// locator from a single upstream (a peer, the local store, ...). Composite
// chunk sources are built by wrapping a RawFetcher in ValidatingSource so
// that every Source, regardless of upstream, enforces the same Merkle and
// hash checks.
type RawFetcher interface {
	Name() string
	FetchRaw(ctx context.Context, loc Locator) (data, dataPath, txPath []byte, declaredHash [32]byte, err error)
}

// ValidatingSource adapts a RawFetcher into a Source, validating every
// chunk before returning it.
type ValidatingSource struct {
	Fetcher RawFetcher
}

func NewValidatingSource(f RawFetcher) *ValidatingSource {
	return &ValidatingSource{Fetcher: f}
}

func (v *ValidatingSource) Name() string { return v.Fetcher.Name() }

func (v *ValidatingSource) GetChunk(ctx context.Context, loc Locator) (*Chunk, error) {
	data, dataPath, txPath, declaredHash, err := v.Fetcher.FetchRaw(ctx, loc)
	if err != nil {
		return nil, err
	}

	if err := merkle.ValidateChunkLeaf(dataPath, loc.DataRoot, loc.RelativeOffset, len(data)); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindChunkValidation, "chunk failed merkle validation", v.Name(), err)
	}

	actualHash := sha256.Sum256(data)
	if actualHash != declaredHash {
		return nil, gatewayerr.New(gatewayerr.KindChunkValidation, "chunk hash does not match declared leaf hash")
	}

	// The validated data_path ends in the leaf record, whose first HashSize
	// bytes are the hash of the chunk the leaf commits to.
	leaf := dataPath[len(dataPath)-constants.MerkleLeafRecordSize:]
	if !bytes.Equal(actualHash[:], leaf[:constants.HashSize]) {
		return nil, gatewayerr.New(gatewayerr.KindChunkValidation, "chunk hash does not match the data_path leaf hash")
	}

	return &Chunk{
		DataRoot: loc.DataRoot,
		DataSize: loc.TxSize,
		DataPath: dataPath,
		TxPath:   txPath,
		Offset:   loc.RelativeOffset + uint64(len(data)),
		Hash:     actualHash,
		Data:     data,
	}, nil
}
