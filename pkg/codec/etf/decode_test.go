package etf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildSyncBucketsPayload hand-assembles an ETF {BucketSize, Map} 2-tuple
// using SMALL_INTEGER_EXT for the bucket size and small keys, matching the
// wire format produced by a real Erlang node.
func buildSyncBucketsPayload(t *testing.T, bucketSize byte, entries map[byte]byte) []byte {
	t.Helper()

	var buf []byte
	buf = append(buf, tagVersion)
	buf = append(buf, tagSmallTuple, 2)

	buf = append(buf, tagSmallInteger, bucketSize)

	buf = append(buf, tagMap)
	arity := make([]byte, 4)
	binary.BigEndian.PutUint32(arity, uint32(len(entries)))
	buf = append(buf, arity...)

	for k, v := range entries {
		buf = append(buf, tagSmallInteger, k)
		buf = append(buf, tagSmallInteger, v)
	}
	return buf
}

func TestDecodeSyncBuckets(t *testing.T) {
	payload := buildSyncBucketsPayload(t, 100, map[byte]byte{5: 1, 6: 0, 7: 50})

	got, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), got.BucketSize)

	_, hasFive := got.Indices[5]
	_, hasSix := got.Indices[6]
	_, hasSeven := got.Indices[7]
	assert.True(t, hasFive)
	assert.False(t, hasSix, "zero-value entries must be dropped")
	assert.True(t, hasSeven)
}

func TestDecodeRejectsMissingVersionByte(t *testing.T) {
	_, err := Decode([]byte{tagSmallTuple, 2})
	require.Error(t, err)
}

func TestDecodeRejectsNonTupleTop(t *testing.T) {
	_, err := Decode([]byte{tagVersion, tagSmallInteger, 5})
	require.Error(t, err)
}

func TestDecodeRejectsZeroBucketSize(t *testing.T) {
	payload := buildSyncBucketsPayload(t, 0, map[byte]byte{})
	_, err := Decode(payload)
	require.Error(t, err)
}

func TestDecodeSmallBigAsBucketSize(t *testing.T) {
	var buf []byte
	buf = append(buf, tagVersion)
	buf = append(buf, tagSmallTuple, 2)

	// SMALL_BIG_EXT encoding of 300 (0x012C): little-endian digits [0x2C, 0x01]
	buf = append(buf, tagSmallBig, 2, 0, 0x2C, 0x01)

	buf = append(buf, tagMap)
	buf = append(buf, 0, 0, 0, 0) // empty map

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), got.BucketSize)
}
