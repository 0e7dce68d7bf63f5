package socketcan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/plumcore/plumcore/ports"
)

func TestEncodeDecodeFrameRoundTrip(t *testing.T) {
	msg := ports.CANMessage{ExtID: true, ID: 0x0ABCDEF, Buf: []byte("hello")}

	got, err := decodeFrame(encodeFrame(msg))
	require.NoError(t, err)

	assert.Equal(t, msg.ExtID, got.ExtID)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, msg.Buf, got.Buf)
}

func TestDecodeFrameRejectsShortBuffer(t *testing.T) {
	_, err := decodeFrame([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestEncodeDecodeFrameRoundTripArbitrary(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		msg := ports.CANMessage{
			ExtID: rapid.Bool().Draw(t, "ext"),
			ID:    rapid.Uint32Range(0, effMask).Draw(t, "id"),
			Buf:   rapid.SliceOfN(rapid.Byte(), 0, maxData).Draw(t, "buf"),
		}

		got, err := decodeFrame(encodeFrame(msg))
		require.NoError(t, err)

		assert.Equal(t, msg.ExtID, got.ExtID)
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, msg.Buf, got.Buf)
	})
}
