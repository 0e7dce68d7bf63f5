// Package canloop is an in-process CAN fabric: every Endpoint attached
// to the same Bus sees every other Endpoint's Send, standing in for a
// shared physical bus without any real hardware. cmd/plumcored uses it
// to let a node's own nbus.Core participate as one more port on an
// nbusswitch.Switch alongside real socketcan/canpty ports, the same
// pattern nbus_test.go's busCAN helper exercises for unit tests.
package canloop

import (
	"sync"
	"time"

	"github.com/plumcore/plumcore/ports"
)

// Bus fans every Endpoint's Send out to every other attached Endpoint.
type Bus struct {
	mu   sync.Mutex
	subs []chan ports.CANMessage
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Attach creates a new Endpoint on b.
func (b *Bus) Attach() *Endpoint {
	ch := make(chan ports.CANMessage, 64)

	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	return &Endpoint{bus: b, self: ch}
}

// Endpoint is one node's attachment to a Bus; it implements ports.CAN.
type Endpoint struct {
	bus  *Bus
	self chan ports.CANMessage
}

// Send fans msg out to every other Endpoint on the same Bus.
func (e *Endpoint) Send(msg ports.CANMessage, _ time.Duration) error {
	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()

	for _, sub := range e.bus.subs {
		if sub == e.self {
			continue
		}

		select {
		case sub <- msg:
		default:
		}
	}

	return nil
}

// Receive blocks for up to timeout for one frame from any other
// Endpoint on the bus.
func (e *Endpoint) Receive(timeout time.Duration) (ports.CANMessage, error) {
	select {
	case msg := <-e.self:
		return msg, nil
	case <-time.After(timeout):
		return ports.CANMessage{}, errTimeout{}
	}
}

type errTimeout struct{}

func (errTimeout) Error() string { return "canloop: receive timeout" }
