package rmac_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumcore/plumcore/logx"
	"github.com/plumcore/plumcore/pbuf"
	"github.com/plumcore/plumcore/ports"
	"github.com/plumcore/plumcore/rmac"
	"github.com/plumcore/plumcore/rmac/sched"
)

type loopbackRadio struct {
	mu  sync.Mutex
	buf []byte
}

func (r *loopbackRadio) SetFrequency(uint64) error { return nil }
func (r *loopbackRadio) SetBitRate(uint32) error   { return nil }
func (r *loopbackRadio) SetSync([]byte) error      { return nil }
func (r *loopbackRadio) SetTXPower(int) error      { return nil }

func (r *loopbackRadio) Send(buf []byte, _ ports.RadioParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf = append([]byte(nil), buf...)

	return nil
}

func (r *loopbackRadio) Receive(_ int, _ uint32) ([]byte, ports.RadioParams, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buf == nil {
		return nil, ports.RadioParams{}, nil
	}

	buf := r.buf
	r.buf = nil

	return buf, ports.RadioParams{RSSIDeciDBm: -550}, nil
}

type wallClock struct{}

func (wallClock) Get() (int64, int64) { return time.Now().Unix(), int64(time.Now().Nanosecond()) }

// fakeHost is a MACHost with one pending outgoing packet and a
// channel recording every delivered incoming one.
type fakeHost struct {
	mu      sync.Mutex
	pending []pendingTX
	in      chan inPkt
}

type pendingTX struct {
	dest uint32
	data []byte
}

type inPkt struct {
	source uint32
	ctx    ports.Context
	data   []byte
}

func newFakeHost() *fakeHost {
	return &fakeHost{in: make(chan inPkt, 8)}
}

func (h *fakeHost) queueTX(dest uint32, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.pending = append(h.pending, pendingTX{dest: dest, data: data})
}

func (h *fakeHost) GetPacketToSend(_ ports.Context) (uint32, []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.pending) == 0 {
		return 0, nil, false
	}

	p := h.pending[0]
	h.pending = h.pending[1:]

	return p.dest, p.data, true
}

func (h *fakeHost) PutReceivedPacket(source uint32, ctx ports.Context, data []byte) {
	h.in <- inPkt{source: source, ctx: ctx, data: data}
}

func TestTXThenRXRoundTripDeliversToHost(t *testing.T) {
	radio := &loopbackRadio{}
	host := newFakeHost()

	cfg := rmac.Config{
		NodeID:           7,
		UniverseKey:      []byte("test-universe-key-0123456789"),
		Algorithm:        sched.ImmediateRX,
		PoolSize:         4,
		PoolCapacity:     256,
		RXQueueDepth:     4,
		NeighborCapacity: 8,
		NeighborMaxAge:   10,
	}

	mac, err := rmac.New(cfg, radio, wallClock{}, host, logx.Discard())
	require.NoError(t, err)

	host.queueTX(0, []byte("hello radio"))

	mac.Start()
	defer mac.Stop()

	require.Eventually(t, func() bool {
		select {
		case pkt := <-host.in:
			assert.Equal(t, uint32(7), pkt.source)
			assert.Equal(t, []byte("hello radio"), pkt.data)
			return true
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func TestHandleReceivedSkipsOtherDestination(t *testing.T) {
	host := newFakeHost()

	cfg := rmac.Config{
		NodeID:           1,
		UniverseKey:      []byte("another-test-universe-key-01"),
		Algorithm:        sched.CSMA,
		PoolSize:         2,
		PoolCapacity:     64,
		RXQueueDepth:     2,
		NeighborCapacity: 2,
		NeighborMaxAge:   5,
	}

	keys, err := pbuf.DeriveKeys(cfg.UniverseKey)
	require.NoError(t, err)

	rec := rmac.Record{Source: 99, Destination: 2, Data: []byte("not for me")}
	sealed := pbuf.Seal(keys, rmac.EncodeRecord(rec), pbuf.SIVSize)

	radio := &loopbackRadio{buf: sealed}

	mac, err := rmac.New(cfg, radio, wallClock{}, host, nil)
	require.NoError(t, err)

	mac.Start()
	defer mac.Stop()

	select {
	case <-host.in:
		t.Fatal("packet addressed to another node must not reach the host")
	case <-time.After(200 * time.Millisecond):
	}

	require.Eventually(t, func() bool {
		for _, n := range mac.Neighbors() {
			if n.ID == 99 {
				return true
			}
		}

		return false
	}, time.Second, 10*time.Millisecond, "neighbor table must still learn the sender even when the packet isn't for this node")
}
