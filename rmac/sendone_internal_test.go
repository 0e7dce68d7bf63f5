package rmac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumcore/plumcore/logx"
	"github.com/plumcore/plumcore/ports"
	"github.com/plumcore/plumcore/rmac/sched"
	"github.com/plumcore/plumcore/slotqueue"
)

type discardRadio struct{}

func (discardRadio) SetFrequency(uint64) error            { return nil }
func (discardRadio) SetBitRate(uint32) error               { return nil }
func (discardRadio) SetSync([]byte) error                  { return nil }
func (discardRadio) SetTXPower(int) error                  { return nil }
func (discardRadio) Send([]byte, ports.RadioParams) error { return nil }

func (discardRadio) Receive(int, uint32) ([]byte, ports.RadioParams, error) {
	return nil, ports.RadioParams{}, nil
}

type zeroClock struct{}

func (zeroClock) Get() (int64, int64) { return 0, 0 }

// TestSendOneRecordsTXAgainstUnicastNeighbor exercises sendOne
// directly against a manually inserted TXUnicast slot, since neither
// shipped TDMA algorithm's slot filler ever schedules one (spec.md
// §4.8: "TX-broadcast for immediate-RX, RX-unmanaged for CSMA") —
// unicast slot scheduling is hash-TDMA's job, which this repository
// does not implement.
func TestSendOneRecordsTXAgainstUnicastNeighbor(t *testing.T) {
	cfg := Config{
		NodeID:           7,
		UniverseKey:      []byte("test-universe-key-0123456789"),
		Algorithm:        sched.ImmediateRX,
		PoolSize:         4,
		PoolCapacity:     256,
		RXQueueDepth:     4,
		NeighborCapacity: 8,
		NeighborMaxAge:   10,
	}

	mac, err := New(cfg, discardRadio{}, zeroClock{}, nil, logx.Discard())
	require.NoError(t, err)

	mac.queue.Insert(&slotqueue.Slot{
		StartUS:  1,
		LengthUS: 100_000,
		Kind:     slotqueue.TXUnicast,
	})

	mac.sendOne(42, []byte("unicast payload"))

	neighbors := mac.Neighbors()
	require.Len(t, neighbors, 1)
	assert.Equal(t, uint32(42), neighbors[0].ID)
	assert.Equal(t, uint32(1), neighbors[0].TXPackets)
	assert.Positive(t, neighbors[0].TXBytes)
}

func TestSendOneDoesNotRecordBroadcastSends(t *testing.T) {
	cfg := Config{
		NodeID:           7,
		UniverseKey:      []byte("test-universe-key-0123456789"),
		Algorithm:        sched.ImmediateRX,
		PoolSize:         4,
		PoolCapacity:     256,
		RXQueueDepth:     4,
		NeighborCapacity: 8,
		NeighborMaxAge:   10,
	}

	mac, err := New(cfg, discardRadio{}, zeroClock{}, nil, logx.Discard())
	require.NoError(t, err)

	mac.queue.Insert(&slotqueue.Slot{
		StartUS:  1,
		LengthUS: 100_000,
		Kind:     slotqueue.TXBroadcast,
	})

	mac.sendOne(0, []byte("broadcast payload"))

	assert.Empty(t, mac.Neighbors())
}
