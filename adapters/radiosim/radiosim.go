// Package radiosim is an in-memory ports.Radio used as the
// development/bench stand-in for a vendor transceiver driver, which
// is out of scope for this repository (spec.md §1: "vendor-specific
// ... peripheral code" is exercised only through the §6 interface
// contracts, never implemented here). It models a shared broadcast
// medium, the nearest analogue to the teacher's own loopback/atest
// testing paths for its audio DSP chain, minus any sound card.
package radiosim

import (
	"sync"
	"time"

	"github.com/plumcore/plumcore/ports"
)

// Medium is a shared in-memory broadcast bus; every Radio attached to
// the same Medium can exchange packets with every other.
type Medium struct {
	mu    sync.Mutex
	peers []*Radio
}

// NewMedium returns an empty medium.
func NewMedium() *Medium {
	return &Medium{}
}

type frame struct {
	buf    []byte
	params ports.RadioParams
}

// Radio is one node's attachment to a Medium.
type Radio struct {
	medium *Medium
	rx     chan frame

	mu   sync.Mutex
	sync []byte
}

// Attach creates a new Radio on m.
func (m *Medium) Attach() *Radio {
	r := &Radio{medium: m, rx: make(chan frame, 32)}

	m.mu.Lock()
	m.peers = append(m.peers, r)
	m.mu.Unlock()

	return r
}

func (r *Radio) SetFrequency(uint64) error { return nil }
func (r *Radio) SetBitRate(uint32) error   { return nil }
func (r *Radio) SetTXPower(int) error      { return nil }

// SetSync records the sync-word bytes exec_slot configures ahead of
// every TX/RX; radiosim has no real preamble detector, so this only
// stores them: Send and Receive do not use them.
func (r *Radio) SetSync(b []byte) error {
	r.mu.Lock()
	r.sync = append([]byte(nil), b...)
	r.mu.Unlock()

	return nil
}

// Send fans buf out to every other Radio sharing this medium.
func (r *Radio) Send(buf []byte, params ports.RadioParams) error {
	r.medium.mu.Lock()
	defer r.medium.mu.Unlock()

	cp := append([]byte(nil), buf...)

	for _, peer := range r.medium.peers {
		if peer == r {
			continue
		}

		select {
		case peer.rx <- frame{buf: cp, params: params}:
		default:
		}
	}

	return nil
}

// Receive blocks for up to timeoutUS microseconds for one frame.
func (r *Radio) Receive(cap int, timeoutUS uint32) ([]byte, ports.RadioParams, error) {
	select {
	case f := <-r.rx:
		buf := f.buf
		if len(buf) > cap {
			buf = buf[:cap]
		}

		return buf, f.params, nil
	case <-time.After(time.Duration(timeoutUS) * time.Microsecond):
		return nil, ports.RadioParams{}, nil
	}
}
