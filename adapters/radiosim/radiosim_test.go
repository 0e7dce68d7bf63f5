package radiosim_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumcore/plumcore/adapters/radiosim"
	"github.com/plumcore/plumcore/ports"
)

func TestSendDeliversToOtherPeersNotSelf(t *testing.T) {
	medium := radiosim.NewMedium()
	a := medium.Attach()
	b := medium.Attach()

	require.NoError(t, a.Send([]byte("hello"), ports.RadioParams{RSSIDeciDBm: -400}))

	buf, params, err := b.Receive(64, 50_000)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), buf)
	assert.Equal(t, int32(-400), params.RSSIDeciDBm)

	selfBuf, _, err := a.Receive(64, 1_000)
	require.NoError(t, err)
	assert.Nil(t, selfBuf, "sender must not receive its own frame")
}

func TestReceiveTimesOutWithNoTraffic(t *testing.T) {
	medium := radiosim.NewMedium()
	r := medium.Attach()

	start := time.Now()
	buf, _, err := r.Receive(64, 1_000)
	require.NoError(t, err)
	assert.Nil(t, buf)
	assert.GreaterOrEqual(t, time.Since(start), time.Millisecond)
}

func TestReceiveTruncatesToCap(t *testing.T) {
	medium := radiosim.NewMedium()
	a := medium.Attach()
	b := medium.Attach()

	require.NoError(t, a.Send([]byte("abcdefgh"), ports.RadioParams{}))

	buf, _, err := b.Receive(4, 50_000)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcd"), buf)
}
