// Package rxp implements the per-channel, per-endpoint reassembly
// state machine for fragmented NBUS packets, per spec.md §4.2.
package rxp

import (
	"github.com/plumcore/plumcore/perr"
)

// MaxPayload is the channel MTU: a reassembled packet whose declared
// length exceeds this is aborted without allocating, per spec.md §4.2.
const MaxPayload = 512

// State is one of the receive FSM states of spec.md §4.2.
type State int

const (
	Ready State = iota
	Data
	Trailing
	Done
	Invalid
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Data:
		return "data"
	case Trailing:
		return "trailing"
	case Done:
		return "done"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// FSM reassembles one endpoint's fragments into a complete payload.
// It is not safe for concurrent use; each channel serializes receive
// processing through its own FSM.
type FSM struct {
	state State

	endpoint int
	counter  uint32
	length   uint16
	flags    uint16

	payload []byte
	nextSeq int

	warnf func(format string, args ...any)
}

// New constructs an FSM in the ready state. warnf, if non-nil, is
// called once whenever a leading fragment resets reassembly that was
// already in progress; it may be nil to discard these notices.
func New(warnf func(format string, args ...any)) *FSM {
	return &FSM{state: Ready, warnf: warnf}
}

// State reports the FSM's current state.
func (f *FSM) State() State { return f.state }

// Endpoint reports the endpoint addressed by the in-progress or just
// completed reassembly.
func (f *FSM) Endpoint() int { return f.endpoint }

// Counter reports the leading fragment's counter value for the
// in-progress or just completed reassembly.
func (f *FSM) Counter() uint32 { return f.counter }

// Payload returns the bytes reassembled so far, readable once the FSM
// has reached the trailing state so a caller can authenticate them
// before calling Trailing.
func (f *FSM) Payload() []byte { return f.payload }

// Reset returns the FSM to ready, discarding any in-progress payload.
func (f *FSM) Reset() {
	f.state = Ready
	f.payload = nil
	f.nextSeq = 0
}

// Leading feeds a leading-fragment opcode into the FSM. A leading
// fragment arriving while reassembly is already in progress resets
// the FSM (one warning, no error) and starts fresh, per spec.md §4.2.
func (f *FSM) Leading(endpoint int, counter uint32, length uint16, flags uint16) error {
	if f.state != Ready {
		if f.warnf != nil {
			f.warnf("nbus/rxp: leading fragment on endpoint %d resets in-progress reassembly (was %s)",
				endpoint, f.state)
		}
	}

	if int(length) > MaxPayload {
		f.state = Invalid
		return perr.TooBig
	}

	f.endpoint = endpoint
	f.counter = counter
	f.length = length
	f.flags = flags
	f.payload = make([]byte, 0, length)
	f.nextSeq = 0

	if length == 0 {
		f.state = Trailing
	} else {
		f.state = Data
	}

	return nil
}

// Data feeds a data-fragment opcode and its payload chunk into the
// FSM. A fragment arriving out of sequence invalidates reassembly.
func (f *FSM) Data(seq int, chunk []byte) error {
	if f.state != Data {
		f.state = Invalid
		return perr.BadState
	}

	if seq != f.nextSeq {
		f.state = Invalid
		return perr.Decode
	}

	if len(f.payload)+len(chunk) > int(f.length) || len(f.payload)+len(chunk) > MaxPayload {
		f.state = Invalid
		return perr.TooBig
	}

	f.payload = append(f.payload, chunk...)
	f.nextSeq++

	if len(f.payload) >= int(f.length) {
		f.state = Trailing
	}

	return nil
}

// Trailing feeds the trailing (SIV-authenticated) fragment. sivOK
// reports whether the caller already verified the SIV trailer against
// the reassembled payload. On success the FSM transitions to done and
// the reassembled payload is returned.
func (f *FSM) Trailing(sivOK bool) ([]byte, error) {
	if f.state != Trailing {
		f.state = Invalid
		return nil, perr.BadState
	}

	if !sivOK {
		f.state = Invalid
		return nil, perr.Mac
	}

	f.state = Done

	return f.payload, nil
}

// Advertise handles an advertisement opcode observed for the same
// channel-ID while reassembly is in progress elsewhere on this
// channel; it always aborts the in-progress packet with invalid-id.
func (f *FSM) Advertise() error {
	if f.state == Ready || f.state == Done {
		return nil
	}

	f.state = Invalid

	return perr.InvalidID
}

// Consumed returns a done or invalid FSM to ready so it can reassemble
// the next packet. Calling it in any other state is a no-op.
func (f *FSM) Consumed() {
	if f.state == Done || f.state == Invalid {
		f.Reset()
	}
}
