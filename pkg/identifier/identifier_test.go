package identifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValid(t *testing.T) {
	valid := strings.Repeat("a", 43)
	assert.True(t, Valid(valid))

	assert.False(t, Valid(strings.Repeat("a", 42)))
	assert.False(t, Valid(strings.Repeat("a", 44)))
	assert.False(t, Valid(strings.Repeat("a", 42)+"/"))
	assert.False(t, Valid(""))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	id := Encode(raw)
	require.Len(t, id, 43)
	assert.NotContains(t, id, "=")

	decoded, err := Decode(id)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
}

func TestValidateRejectsBadInput(t *testing.T) {
	err := Validate("not-a-valid-id")
	require.Error(t, err)
}
