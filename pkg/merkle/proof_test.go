package merkle

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildLeafOnlyProof constructs the minimal single-leaf Merkle path (no
// branch records) whose root hash is returned alongside the encoded path,
// for exercising the no-branches base case of Validate.
func buildLeafOnlyProof(dataRoot [32]byte, endOffset uint64) (path []byte, root [32]byte) {
	offsetField := make([]byte, 32)
	binary.BigEndian.PutUint64(offsetField[24:], endOffset)

	dataRootHash := sha256.Sum256(dataRoot[:])
	offsetHash := sha256.Sum256(offsetField)

	h := sha256.New()
	h.Write(dataRootHash[:])
	h.Write(offsetHash[:])
	var leafHash [32]byte
	copy(leafHash[:], h.Sum(nil))

	path = append(path, dataRoot[:]...)
	path = append(path, offsetField...)
	return path, leafHash
}

func TestValidateLeafOnly(t *testing.T) {
	var dataRoot [32]byte
	copy(dataRoot[:], []byte("0123456789abcdef0123456789abcde"))

	path, root := buildLeafOnlyProof(dataRoot, 262144)

	proof, err := Validate(path, root, 100)
	require.NoError(t, err)
	require.NotNil(t, proof)
	assert.True(t, proof.Validated)
	assert.Equal(t, dataRoot, proof.DataRoot)
	assert.Equal(t, uint64(262144), proof.TxEndOffset)
}

func TestValidateRejectsWrongRoot(t *testing.T) {
	var dataRoot [32]byte
	copy(dataRoot[:], []byte("0123456789abcdef0123456789abcde"))

	path, _ := buildLeafOnlyProof(dataRoot, 262144)

	var wrongRoot [32]byte
	copy(wrongRoot[:], []byte("ffffffffffffffffffffffffffffff"))

	proof, err := Validate(path, wrongRoot, 100)
	require.NoError(t, err)
	assert.Nil(t, proof)
}

func TestValidateChunkLeafOffsetMismatch(t *testing.T) {
	var dataRoot [32]byte
	copy(dataRoot[:], []byte("0123456789abcdef0123456789abcde"))

	path, root := buildLeafOnlyProof(dataRoot, 100)

	err := ValidateChunkLeaf(path, root, 0, 50) // leaf says end=100, chunk claims len 50
	require.Error(t, err)
}

func TestValidateChunkLeafSuccess(t *testing.T) {
	var dataRoot [32]byte
	copy(dataRoot[:], []byte("0123456789abcdef0123456789abcde"))

	path, root := buildLeafOnlyProof(dataRoot, 100)

	err := ValidateChunkLeaf(path, root, 0, 100)
	require.NoError(t, err)
}

func TestValidateShortPathIsNilNotError(t *testing.T) {
	proof, err := Validate([]byte{1, 2, 3}, [32]byte{}, 0)
	require.NoError(t, err)
	assert.Nil(t, proof)
}
