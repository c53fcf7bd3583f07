package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSingleByte(t *testing.T) {
	ranges, ok := ParseRangeHeader("bytes=0-0")
	require.True(t, ok)
	require.Len(t, ranges, 1)

	r, err := ranges[0].Resolve(100)
	require.NoError(t, err)
	assert.Equal(t, Region{Offset: 0, Size: 1}, r)
}

func TestResolveSuffix(t *testing.T) {
	ranges, ok := ParseRangeHeader("bytes=-500")
	require.True(t, ok)

	r, err := ranges[0].Resolve(1000)
	require.NoError(t, err)
	assert.Equal(t, Region{Offset: 500, Size: 500}, r)
}

func TestResolveBeyondSizeIsUnsatisfiable(t *testing.T) {
	ranges, ok := ParseRangeHeader("bytes=5000-6000")
	require.True(t, ok)

	_, err := ranges[0].Resolve(100)
	require.Error(t, err)
}

func TestResolveMidRange(t *testing.T) {
	ranges, ok := ParseRangeHeader("bytes=10-39")
	require.True(t, ok)

	r, err := ranges[0].Resolve(100)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), r.Offset)
	assert.Equal(t, uint64(30), r.Size)
	assert.Equal(t, "bytes 10-39/100", r.ContentRangeHeader(100))
}

func TestParseMultiRange(t *testing.T) {
	ranges, ok := ParseRangeHeader("bytes=0-9,20-29")
	require.True(t, ok)
	require.Len(t, ranges, 2)
}

func TestParseMalformedReturnsNotOK(t *testing.T) {
	_, ok := ParseRangeHeader("bytes=abc-def")
	assert.False(t, ok)

	_, ok = ParseRangeHeader("not-a-range-header")
	assert.False(t, ok)
}

func TestNewBoundaryShape(t *testing.T) {
	b, err := NewBoundary()
	require.NoError(t, err)
	assert.Len(t, b, 50)
	assert.Regexp(t, `^-{26,}[0-9a-f]+$`, b)
}
