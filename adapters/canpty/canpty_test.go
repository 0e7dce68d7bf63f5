package canpty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/plumcore/plumcore/ports"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	msg := ports.CANMessage{ExtID: true, ID: 0x1FFFFFFF, Buf: []byte{0xC0, 0xDB, 1, 2, 3}}

	framed := encode(msg)
	got, ok, rest := tryDecode(framed)

	require.True(t, ok)
	assert.Empty(t, rest)
	assert.Equal(t, msg.ExtID, got.ExtID)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, msg.Buf, got.Buf)
}

func TestTryDecodeIncompleteFrameReturnsFalse(t *testing.T) {
	_, ok, rest := tryDecode([]byte{fend, 1, 2, 3})
	assert.False(t, ok)
	assert.Equal(t, []byte{fend, 1, 2, 3}, rest)
}

func TestEncodeDecodeRoundTripArbitrary(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msg := ports.CANMessage{
			ExtID: rapid.Bool().Draw(t, "ext"),
			ID:    rapid.Uint32Range(0, 0x1FFFFFFF).Draw(t, "id"),
			Buf:   rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "buf"),
		}

		framed := encode(msg)
		got, ok, rest := tryDecode(framed)

		require.True(t, ok)
		assert.Empty(t, rest)
		assert.Equal(t, msg.ExtID, got.ExtID)
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, msg.Buf, got.Buf)
	})
}
