package nbusswitch_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumcore/plumcore/nbus/frame"
	"github.com/plumcore/plumcore/nbusswitch"
	"github.com/plumcore/plumcore/ports"
)

// fakeCAN is a point-to-point CAN double: Send appends to an outbox,
// Receive drains an inbox fed by the test.
type fakeCAN struct {
	mu     sync.Mutex
	outbox []ports.CANMessage
	inbox  chan ports.CANMessage
}

func newFakeCAN() *fakeCAN {
	return &fakeCAN{inbox: make(chan ports.CANMessage, 16)}
}

func (f *fakeCAN) Send(msg ports.CANMessage, _ time.Duration) error {
	f.mu.Lock()
	f.outbox = append(f.outbox, msg)
	f.mu.Unlock()

	return nil
}

func (f *fakeCAN) Receive(timeout time.Duration) (ports.CANMessage, error) {
	select {
	case msg := <-f.inbox:
		return msg, nil
	case <-time.After(timeout):
		return ports.CANMessage{}, errTimeout{}
	}
}

func (f *fakeCAN) sent() []ports.CANMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]ports.CANMessage(nil), f.outbox...)
}

type errTimeout struct{}

func (errTimeout) Error() string { return "timeout" }

func frameID(channel uint16, dir frame.Direction, opcode byte) uint32 {
	return frame.Encode(frame.ID{Channel: channel, Direction: dir, Opcode: opcode})
}

func TestFloodsWithNoOppositeRecord(t *testing.T) {
	canA, canB, canC := newFakeCAN(), newFakeCAN(), newFakeCAN()
	portA := &nbusswitch.Port{Name: "a", CAN: canA}
	portB := &nbusswitch.Port{Name: "b", CAN: canB}
	portC := &nbusswitch.Port{Name: "c", CAN: canC}

	sw := nbusswitch.New(nil, portA, portB, portC)
	sw.Start()
	defer sw.Stop()

	canA.inbox <- ports.CANMessage{ExtID: true, ID: frameID(10, frame.Request, 0x00), Buf: []byte{1}}

	require.Eventually(t, func() bool {
		return len(canB.sent()) == 1 && len(canC.sent()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Empty(t, canA.sent(), "frame must not be reflected back to its ingress port")
}

func TestForwardsOnlyToLearnedOppositePort(t *testing.T) {
	canA, canB, canC := newFakeCAN(), newFakeCAN(), newFakeCAN()
	portA := &nbusswitch.Port{Name: "a", CAN: canA}
	portB := &nbusswitch.Port{Name: "b", CAN: canB}
	portC := &nbusswitch.Port{Name: "c", CAN: canC}

	sw := nbusswitch.New(nil, portA, portB, portC)
	sw.Start()
	defer sw.Stop()

	// Learn that responses for channel 10 live behind port B.
	canB.inbox <- ports.CANMessage{ExtID: true, ID: frameID(10, frame.Response, 0x00), Buf: []byte{1}}
	require.Eventually(t, func() bool { return len(canA.sent())+len(canC.sent()) == 2 }, time.Second, 5*time.Millisecond)

	// A subsequent request for the same channel should go only to B.
	canA.inbox <- ports.CANMessage{ExtID: true, ID: frameID(10, frame.Request, 0x00), Buf: []byte{2}}

	require.Eventually(t, func() bool { return len(canB.sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, canC.sent(), 1, "C only saw the earlier flood, not the learned-forward frame")
}

func TestBackpressureFillsQueueWithoutBlockingReceive(t *testing.T) {
	canA := newFakeCAN()
	portA := &nbusswitch.Port{Name: "a", CAN: canA}

	sw := nbusswitch.New(nil, portA)
	sw.Start()
	defer sw.Stop()

	// Push more frames than IQSize in one burst; none of these sends
	// should block even though the process task can't possibly keep
	// up instantaneously, demonstrating the non-blocking receive path.
	done := make(chan struct{})

	go func() {
		for i := 0; i < nbusswitch.IQSize*2; i++ {
			canA.inbox <- ports.CANMessage{ExtID: true, ID: frameID(uint16(i), frame.Request, 0x00), Buf: []byte{byte(i)}}
		}

		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receive path blocked under queue backpressure")
	}
}
