package canloop_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumcore/plumcore/adapters/canloop"
	"github.com/plumcore/plumcore/ports"
)

func TestSendDeliversToOtherEndpointsNotSelf(t *testing.T) {
	bus := canloop.NewBus()
	a := bus.Attach()
	b := bus.Attach()

	msg := ports.CANMessage{ExtID: true, ID: 0x1234, Buf: []byte("hi")}
	require.NoError(t, a.Send(msg, time.Second))

	got, err := b.Receive(50 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	_, err = a.Receive(time.Millisecond)
	assert.Error(t, err)
}

func TestReceiveTimesOutWithNoTraffic(t *testing.T) {
	bus := canloop.NewBus()
	r := bus.Attach()

	_, err := r.Receive(time.Millisecond)
	assert.Error(t, err)
}
