package sched_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumcore/plumcore/packetpool"
	"github.com/plumcore/plumcore/ports"
	"github.com/plumcore/plumcore/rmac/sched"
	"github.com/plumcore/plumcore/slotqueue"
)

// manualClock is a Clock whose value is advanced explicitly by tests.
type manualClock struct {
	us atomic.Int64
}

func (c *manualClock) Get() (int64, int64) {
	us := c.us.Load()
	return us / 1_000_000, (us % 1_000_000) * 1_000
}

func (c *manualClock) set(us int64) { c.us.Store(us) }

// fakeRadio counts calls so tests can assert the radio was (or was
// not) touched.
type fakeRadio struct {
	mu         sync.Mutex
	sendCalls  int
	recvCalls  int
	recvErr    error
}

func (r *fakeRadio) SetFrequency(uint64) error  { return nil }
func (r *fakeRadio) SetBitRate(uint32) error     { return nil }
func (r *fakeRadio) SetSync([]byte) error        { return nil }
func (r *fakeRadio) SetTXPower(int) error        { return nil }

func (r *fakeRadio) Send(_ []byte, _ ports.RadioParams) error {
	r.mu.Lock()
	r.sendCalls++
	r.mu.Unlock()

	return nil
}

func (r *fakeRadio) Receive(_ int, _ uint32) ([]byte, ports.RadioParams, error) {
	r.mu.Lock()
	r.recvCalls++
	err := r.recvErr
	r.mu.Unlock()

	if err != nil {
		return nil, ports.RadioParams{}, err
	}

	return []byte{0xAA}, ports.RadioParams{}, nil
}

func (r *fakeRadio) calls() (send, recv int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sendCalls, r.recvCalls
}

// TestSlotMiss is spec.md §8 scenario 6: a slot inserted at
// start=1_000_000 length=100_000 with the clock advanced to
// 1_100_001 must be discarded, its packet released, without ever
// invoking the radio.
func TestSlotMiss(t *testing.T) {
	queue := slotqueue.New()
	pool := packetpool.New(4, 64)
	clock := &manualClock{}
	clock.set(1_100_001)

	radio := &fakeRadio{}

	s, err := sched.New(queue, pool, radio, clock, sched.CSMA, []byte{0xAA, 0x55}, 4)
	require.NoError(t, err)

	pkt := pool.Get()
	require.NotNil(t, pkt)

	queue.Insert(&slotqueue.Slot{StartUS: 1_000_000, LengthUS: 100_000, Kind: slotqueue.TXUnicast, Packet: pkt})

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return queue.Len() == 0
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return pool.InUse() == 0
	}, time.Second, 5*time.Millisecond)

	sendCalls, _ := radio.calls()
	assert.Zero(t, sendCalls, "a missed slot must never reach the radio")

	snap := s.Stats.Snapshot()
	assert.Equal(t, uint64(1), snap.Missed)
}

// TestExecutedTXSlotSendsAndReleases exercises a TX slot whose start
// time has already arrived, verifying exec_slot sends it through the
// radio and its packet is released back to the pool.
func TestExecutedTXSlotSendsAndReleases(t *testing.T) {
	queue := slotqueue.New()
	pool := packetpool.New(4, 64)
	clock := &manualClock{}
	clock.set(1_000_000)

	radio := &fakeRadio{}
	s, err := sched.New(queue, pool, radio, clock, sched.ImmediateRX, nil, 4)
	require.NoError(t, err)

	pkt := pool.Get()
	require.NotNil(t, pkt)
	pkt.Len = 1

	queue.Insert(&slotqueue.Slot{StartUS: 999_000, LengthUS: 50_000, Kind: slotqueue.TXBroadcast, Packet: pkt})

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		sendCalls, _ := radio.calls()
		return sendCalls >= 1
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return pool.InUse() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestFillOnceImmediateRXProducesBroadcastSlots(t *testing.T) {
	queue := slotqueue.New()
	pool := packetpool.New(4, 64)
	clock := &manualClock{}
	clock.set(0)

	s, err := sched.New(queue, pool, &fakeRadio{}, clock, sched.ImmediateRX, nil, 4)
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return queue.Len() >= 5
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewRejectsHashAlgorithm(t *testing.T) {
	_, err := sched.New(slotqueue.New(), packetpool.New(1, 64), &fakeRadio{}, &manualClock{}, sched.Hash, nil, 1)
	require.Error(t, err)
}
