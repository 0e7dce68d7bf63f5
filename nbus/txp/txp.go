// Package txp implements the per-channel fragmentation state machine
// used to transmit a packet over NBUS, per spec.md §4.2.
//
// Counter semantics: a request initiator increments its outgoing
// counter before each new request; a responder copies the request's
// counter into its response rather than maintaining its own sequence.
// Callers apply that rule before calling Begin; the FSM itself just
// carries whatever counter it is given.
package txp

import (
	"sync"

	"github.com/plumcore/plumcore/nbus/frame"
	"github.com/plumcore/plumcore/perr"
)

// DataChunkSize is the number of payload bytes carried by one data
// fragment (one CAN/CAN-FD data frame), per spec.md §4.2.
const DataChunkSize = 8

// State is one of the transmit FSM states of spec.md §4.2.
type State int

const (
	Idle State = iota
	Leading
	DataState
	TrailingState
	Done
)

// Fragment is one CAN frame's worth of outgoing bytes, tagged with
// the opcode it must be sent under.
type Fragment struct {
	Opcode byte
	Buf    []byte
}

// FSM fragments one outgoing packet into a sequence of Fragments.
// It is not safe for concurrent use; callers serialize access through
// the channel's Lock.
type FSM struct {
	state State

	endpoint int
	counter  uint32
	flags    uint16
	payload  []byte
	siv      []byte
	offset   int
	seq      int
}

// New constructs an FSM in the idle state.
func New() *FSM { return &FSM{state: Idle} }

// State reports the FSM's current state.
func (f *FSM) State() State { return f.state }

// Begin starts fragmentation of payload for the given endpoint, with
// siv the trailing authentication tag to send after the last data
// fragment. counter and flags populate the leading fragment's header.
func (f *FSM) Begin(endpoint int, payload, siv []byte, counter uint32, flags uint16) error {
	if f.state != Idle && f.state != Done {
		return perr.BadState
	}

	f.endpoint = endpoint
	f.counter = counter
	f.flags = flags
	f.payload = payload
	f.siv = siv
	f.offset = 0
	f.seq = 0
	f.state = Leading

	return nil
}

// Next returns the next fragment to transmit, or ok == false once
// fragmentation is complete (state has reached Done).
func (f *FSM) Next() (Fragment, bool) {
	switch f.state {
	case Leading:
		hdr := frame.LeadingPayload(f.counter, uint16(len(f.payload)), f.flags)
		f.state = DataState

		return Fragment{Opcode: byte(f.endpoint), Buf: hdr}, true

	case DataState:
		if f.offset >= len(f.payload) {
			f.state = TrailingState
			return f.Next()
		}

		end := f.offset + DataChunkSize
		if end > len(f.payload) {
			end = len(f.payload)
		}

		chunk := f.payload[f.offset:end]
		opcode := frame.OpDataMin + byte(f.seq)

		f.offset = end
		f.seq++

		if f.offset >= len(f.payload) {
			f.state = TrailingState
		}

		return Fragment{Opcode: opcode, Buf: chunk}, true

	case TrailingState:
		f.state = Done
		return Fragment{Opcode: frame.OpTrailing, Buf: f.siv}, true

	default:
		return Fragment{}, false
	}
}

// Reset returns the FSM to idle, abandoning any in-progress send.
func (f *FSM) Reset() {
	f.state = Idle
	f.payload = nil
	f.siv = nil
	f.offset = 0
	f.seq = 0
}

// Lock serializes transmission attempts on one channel: only one
// packet may be mid-fragmentation on a channel at a time, per
// spec.md §4.2's per-channel TX lock.
type Lock struct {
	mu sync.Mutex
}

// Acquire blocks until the channel's TX lock is held.
func (l *Lock) Acquire() { l.mu.Lock() }

// Release releases the channel's TX lock.
func (l *Lock) Release() { l.mu.Unlock() }
