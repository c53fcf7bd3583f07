// Package merkle parses and validates the Merkle proof paths that anchor a
// chunk to a transaction's data root.
//
// A proof is a byte string whose final 64 bytes are the leaf record
// (data_root || end_offset, both big-endian-relevant only for the offset),
// preceded by zero or more 96-byte branch records
// (left_hash || right_hash || branch_offset). Validation walks the proof
// from root to leaf, descending left or right at each branch depending on
// whether the target offset falls before the branch's offset.
package merkle

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/weavegate/gateway/pkg/constants"
	"github.com/weavegate/gateway/pkg/gatewayerr"
)

// Proof is a parsed, validated Merkle path result.
type Proof struct {
	DataRoot     [32]byte
	TxEndOffset  uint64
	TxStartOffset uint64
	TxSize       uint64
	TxIndex      int
	Validated    bool
}

func sha256Of(parts ...[]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func be32(offset uint64) []byte {
	b := make([]byte, 32)
	binary.BigEndian.PutUint64(b[24:], offset)
	return b
}

// Validate walks path from the given expected root hash down to the leaf
// at targetOffset, returning the resolved (data_root, end_offset) on
// success. It returns nil, nil (not an error) when the proof fails to
// validate: a validation mismatch tells the caller to fall back to an
// index lookup rather than surfacing a fatal error.
func Validate(path []byte, expectedRoot [32]byte, targetOffset uint64) (*Proof, error) {
	if len(path) < constants.MerkleLeafRecordSize {
		return nil, nil
	}

	branchBytes := path[:len(path)-constants.MerkleLeafRecordSize]
	leafBytes := path[len(path)-constants.MerkleLeafRecordSize:]

	if len(branchBytes)%constants.MerkleBranchRecordSize != 0 {
		return nil, nil
	}

	expected := expectedRoot
	offset := targetOffset
	depth := 0

	for len(branchBytes) > 0 {
		record := branchBytes[:constants.MerkleBranchRecordSize]
		branchBytes = branchBytes[constants.MerkleBranchRecordSize:]

		var left, right [32]byte
		copy(left[:], record[0:32])
		copy(right[:], record[32:64])
		branchOffset := binary.BigEndian.Uint64(record[64+24 : 96])

		leftHash := sha256Of(left[:])
		rightHash := sha256Of(right[:])
		offsetHash := sha256Of(be32(branchOffset))
		computed := sha256Of(leftHash[:], rightHash[:], offsetHash[:])

		if computed != expected {
			return nil, nil
		}

		if offset < branchOffset {
			expected = left
		} else {
			expected = right
		}
		depth++
	}

	var leafDataRoot [32]byte
	copy(leafDataRoot[:], leafBytes[0:32])
	leafEndOffset := binary.BigEndian.Uint64(leafBytes[32+24 : 64])

	dataRootHash := sha256Of(leafDataRoot[:])
	offsetHash := sha256Of(be32(leafEndOffset))
	computedLeaf := sha256Of(dataRootHash[:], offsetHash[:])

	if computedLeaf != expected {
		return nil, nil
	}

	return &Proof{
		DataRoot:    leafDataRoot,
		TxEndOffset: leafEndOffset,
		TxIndex:     depth,
		Validated:   true,
	}, nil
}

// ValidateChunkLeaf validates a chunk's data_path against dataRoot and
// checks the leaf's declared end-offset matches relativeOffset+len(chunk).
func ValidateChunkLeaf(dataPath []byte, dataRoot [32]byte, relativeOffset uint64, chunkLen int) error {
	proof, err := Validate(dataPath, dataRoot, relativeOffset)
	if err != nil {
		return err
	}
	if proof == nil || !proof.Validated {
		return gatewayerr.New(gatewayerr.KindChunkValidation, "merkle path did not validate to the expected data root")
	}
	if proof.TxEndOffset != relativeOffset+uint64(chunkLen) {
		return gatewayerr.New(gatewayerr.KindChunkValidation, "leaf end-offset does not match relative_offset+len(chunk)")
	}
	return nil
}
