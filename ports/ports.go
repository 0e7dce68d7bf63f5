// Package ports declares the capability interfaces plumCore's core
// packages are built against: Radio, Clock, CAN, and MACHost (spec.md
// §6). Per SPEC_FULL.md's Design Notes, these are injected at
// construction time; no runtime registration or service-locator
// lookup happens inside the core packages themselves.
package ports

import "time"

// CANMessage mirrors spec.md §6's injected CAN message shape.
type CANMessage struct {
	ExtID bool
	ID    uint32
	Buf   []byte // up to 64 bytes
}

// CAN is the injected bus transport. Only ExtID == true frames are
// processed by NBUS and the switch.
type CAN interface {
	Send(msg CANMessage, timeout time.Duration) error
	Receive(timeout time.Duration) (CANMessage, error)
}

// RadioParams mirrors the out-of-band parameters exchanged with a
// Send/Receive call; RSSI is reported in deci-dBm (×10) per spec.md §6.
type RadioParams struct {
	RSSIDeciDBm int32
}

// Radio is rMAC's injected half-duplex transceiver contract.
type Radio interface {
	SetFrequency(hz uint64) error
	SetBitRate(bps uint32) error
	SetSync(bytes []byte) error
	SetTXPower(dbm int) error
	Send(buf []byte, params RadioParams) error
	Receive(cap int, timeoutUS uint32) (buf []byte, params RadioParams, err error)
}

// Clock is the injected monotonic time source. Get returns a
// wall-clock sample; the core converts it to monotonic microseconds
// as sec*1e6 + nsec/1000 (spec.md §6).
type Clock interface {
	Get() (sec int64, nsec int64)
}

// NowUS converts a Clock sample to the monotonic-microsecond domain
// every slot/housekeeping computation in this repository uses.
func NowUS(c Clock) uint64 {
	sec, nsec := c.Get()

	return uint64(sec)*1_000_000 + uint64(nsec)/1_000 //nolint:gosec
}

// MACHost is the upward-facing application contract rMAC calls into:
// GetPacketToSend blocks until the application wants to transmit,
// PutReceivedPacket delivers a received payload tagged with
// (source, context).
type MACHost interface {
	GetPacketToSend(ctx Context) (dest uint32, data []byte, ok bool)
	PutReceivedPacket(source uint32, context Context, data []byte)
}

// Context identifies an upper-layer application channel within rMAC,
// analogous to NBUS's endpoint but scoped to the radio MAC host
// boundary.
type Context uint8
