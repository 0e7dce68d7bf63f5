package slotqueue_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/plumcore/plumcore/slotqueue"
)

func TestHeapInvariantAfterRandomOps(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := slotqueue.New()

		var inserted []uint64

		ops := rapid.IntRange(1, 50).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			if len(inserted) == 0 || rapid.Bool().Draw(t, "insert") {
				start := rapid.Uint64Range(0, 1_000_000).Draw(t, "start")
				q.Insert(&slotqueue.Slot{StartUS: start, Kind: slotqueue.RXUnmanaged})
				inserted = append(inserted, start)
			} else {
				top := q.Peek()
				require.NotNil(t, top)

				sort.Slice(inserted, func(i, j int) bool { return inserted[i] < inserted[j] })
				assert.Equal(t, inserted[0], top.StartUS, "Peek must return the minimum start time")

				removed := q.Remove()
				require.NotNil(t, removed)
				assert.Equal(t, inserted[0], removed.StartUS)

				inserted = inserted[1:]
			}
		}
	})
}

func TestRemoveEmpty(t *testing.T) {
	q := slotqueue.New()
	assert.Nil(t, q.Remove())
	assert.Nil(t, q.Peek())
}

func TestAttachPacketNoMatchingSlot(t *testing.T) {
	q := slotqueue.New()
	q.Insert(&slotqueue.Slot{StartUS: 10, Kind: slotqueue.RXUnmanaged})

	_, ok := q.AttachPacket(slotqueue.TXBroadcast, nil)
	assert.False(t, ok)
}

func TestAttachPacketFindsEarliestMatching(t *testing.T) {
	q := slotqueue.New()
	q.Insert(&slotqueue.Slot{StartUS: 50, Kind: slotqueue.TXBroadcast})
	q.Insert(&slotqueue.Slot{StartUS: 10, Kind: slotqueue.TXBroadcast})

	s, ok := q.AttachPacket(slotqueue.TXBroadcast, nil)
	require.True(t, ok)
	assert.Equal(t, uint64(10), s.StartUS, "AttachPacket takes the earliest-starting match, not the first inserted")
}

func TestTXAvailableSignaledOnlyByTXSlots(t *testing.T) {
	q := slotqueue.New()

	q.Insert(&slotqueue.Slot{StartUS: 1, Kind: slotqueue.RXUnmanaged})
	assert.False(t, q.TryTXAvailable(), "non-TX slot must not signal tx_available")

	q.Insert(&slotqueue.Slot{StartUS: 1, Kind: slotqueue.TXUnicast})
	assert.True(t, q.TryTXAvailable())
}
