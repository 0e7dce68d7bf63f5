// Package nbus implements the NBUS channel and core, per spec.md
// §4.1–§4.3 and §4.5.
package nbus

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/plumcore/plumcore/ccrpc"
	"github.com/plumcore/plumcore/crypto"
	"github.com/plumcore/plumcore/nbus/frame"
	"github.com/plumcore/plumcore/nbus/rxp"
	"github.com/plumcore/plumcore/nbus/txp"
	"github.com/plumcore/plumcore/pbuf"
	"github.com/plumcore/plumcore/perr"
	"github.com/plumcore/plumcore/ports"
)

// MTU is the channel MTU: the largest reassembled NBUS packet, per
// spec.md §4.1/§6 (NBUS_CHANNEL_MTU).
const MTU = 512

// AdvTime is the number of housekeeping ticks between channel-ID
// advertisements, per spec.md §6 (NBUS_ADV_TIME).
const AdvTime = 2

// ShortID is a channel's stable 32-bit identity, derived from its name
// by Init and rederived from parent and name by SetParent.
type ShortID uint32

// Channel owns one NBUS logical channel: its identity, its running
// channel-ID (subject to rederivation on collision), its packet
// counter, its reassembly/fragmentation state, and its RPC
// dispatcher on endpoint 0.
type Channel struct {
	Name string

	shortID    ShortID
	hasParent  bool
	parentID   ShortID

	mu        sync.Mutex
	channelID uint16
	valid     bool
	advTicks  int

	counter uint32
	key     pbuf.Keys

	rx *rxp.FSM
	tx *txp.FSM
	tl txp.Lock

	rpc *ccrpc.Dispatcher

	recvReady chan struct{}
	recvMu    sync.Mutex
	recvDone  bool
	recvBuf   []byte
	recvEP    int
}

// Init constructs a channel named name, with the two built-in
// read-only RPC accessors "name" and "parent" already registered,
// per spec.md §4.3's channel_init.
func Init(name string, universeKey []byte) (*Channel, error) {
	keys, err := pbuf.DeriveKeys(universeKey)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		Name:      name,
		shortID:   ShortID(shortIDFromName(name)),
		key:       keys,
		rx:        rxp.New(nil),
		tx:        txp.New(),
		rpc:       ccrpc.New(),
		recvReady: make(chan struct{}, 1),
	}

	c.rpc.Register(&ccrpc.Accessor{
		Name:       "name",
		Kind:       ccrpc.KindString,
		ReadString: func() (string, error) { return c.Name, nil },
	})
	c.rpc.Register(&ccrpc.Accessor{
		Name: "parent",
		Kind: ccrpc.KindString,
		ReadString: func() (string, error) {
			if !c.hasParent {
				return "", nil
			}

			var buf [4]byte
			put32(buf[:], uint32(c.parentID))

			return hex.EncodeToString(buf[:]), nil
		},
	})

	return c, nil
}

func shortIDFromName(name string) uint32 {
	digest := crypto.Hash([]byte(name), 4)
	return get32(digest)
}

// SetParent records parent's short-ID as a weak reference and
// recomputes this channel's short-ID as Blake2s(parent.short_id ||
// name, 4), per spec.md §4.3's set_parent.
func (c *Channel) SetParent(parent *Channel) {
	c.hasParent = true
	c.parentID = parent.shortID

	var buf [4]byte
	put32(buf[:], uint32(parent.shortID))

	digest := crypto.Hash(append(buf[:], []byte(c.Name)...), 4)
	c.shortID = ShortID(get32(digest))
}

// ShortID reports the channel's short-ID.
func (c *Channel) ShortID() ShortID { return c.shortID }

// ChannelID reports the channel's current runtime channel-ID and
// whether it is presently valid.
func (c *Channel) ChannelID() (id uint16, valid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.channelID, c.valid
}

// Invalidate clears the channel-ID's validity, forcing rederivation
// on the next housekeeping tick; called on receipt of a conflicting
// advertisement.
func (c *Channel) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
}

// houseKeep advances the channel-ID lifecycle by one 1 Hz tick and
// reports whether an advertisement must be emitted this tick, per
// spec.md §4.3/§4.5.
func (c *Channel) houseKeep() (advertise bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.valid {
		digest := crypto.Hash(append(id32(uint32(c.shortID)), id16(c.channelID)...), 2)
		c.channelID = get16(digest)
		c.valid = true
		c.advTicks = 0

		return true
	}

	c.advTicks++
	if c.advTicks >= AdvTime {
		c.advTicks = 0
		return true
	}

	return false
}

func id32(v uint32) []byte {
	buf := make([]byte, 4)
	put32(buf, v)

	return buf
}

func id16(v uint16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}

func get16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func put32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

func get32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// Send fragments buf and emits it over can under endpoint ep and
// direction dir, per spec.md §4.3's channel_send. It refuses oversized
// payloads and invalid channel-IDs, and serializes concurrent senders
// through the channel's TX lock.
func (c *Channel) Send(can ports.CAN, ep int, dir frame.Direction, buf []byte, isRequest bool) error {
	if len(buf) > MTU {
		return perr.TooBig
	}

	id, valid := c.ChannelID()
	if !valid {
		return perr.BadState
	}

	c.tl.Acquire()
	defer c.tl.Release()

	counter := c.nextCounter(isRequest)
	sivTrailer := pbuf.Tag(c.key, buf, pbuf.SIVSize)

	if err := c.tx.Begin(ep, buf, sivTrailer, counter, 0); err != nil {
		return err
	}

	for {
		frag, ok := c.tx.Next()
		if !ok {
			break
		}

		canID := frame.Encode(frame.ID{Channel: id, Direction: dir, Opcode: frag.Opcode})
		if err := can.Send(ports.CANMessage{ExtID: true, ID: canID, Buf: frag.Buf}, 100*time.Millisecond); err != nil {
			return err
		}
	}

	return nil
}

func (c *Channel) nextCounter(isRequest bool) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if isRequest {
		c.counter++
	}

	return c.counter
}

// SetResponseCounter copies a received request's counter into this
// channel's outgoing counter, per the responder counter semantics of
// spec.md §4.2.
func (c *Channel) SetResponseCounter(counter uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter = counter
}

// Deliver feeds one received frame's opcode/payload into the
// channel's RX FSM, per spec.md §4.2/§4.5. can is used only to emit
// the RPC response frame when the completed endpoint is 0; it is
// never touched otherwise. Deliver returns the FSM's error (e.g.
// invalid-id) for the caller to act on (e.g. marking the channel-ID
// invalid).
func (c *Channel) Deliver(can ports.CAN, opcode byte, payload []byte) error {
	if ep, ok := frame.IsLeading(opcode); ok {
		counter, length, flags, ok := frame.DecodeLeadingPayload(payload)
		if !ok {
			return perr.Decode
		}

		return c.rx.Leading(ep, counter, length, flags)
	}

	if seq, ok := frame.IsData(opcode); ok {
		return c.rx.Data(seq, payload)
	}

	if frame.IsTrailing(opcode) {
		return c.deliverTrailing(can, payload)
	}

	if frame.IsAdvertise(opcode) {
		return c.rx.Advertise()
	}

	return perr.Decode
}

func (c *Channel) deliverTrailing(can ports.CAN, siv []byte) error {
	ep := c.rx.Endpoint()
	counter := c.rx.Counter()

	reassembled, err := c.rx.Trailing(pbuf.VerifyTag(c.key, c.rx.Payload(), siv))
	if err != nil {
		c.rx.Consumed()
		return err
	}

	plain := reassembled

	if ep == 0 {
		resp, rerr := c.rpc.Dispatch(plain)
		c.rx.Consumed()

		if rerr != nil {
			return rerr
		}

		c.SetResponseCounter(counter)

		if can != nil {
			if serr := c.Send(can, 0, frame.Response, resp, false); serr != nil {
				return serr
			}
		}

		return perr.Void
	}

	c.publishReceived(ep, plain)
	c.rx.Consumed()

	return nil
}

func (c *Channel) publishReceived(ep int, payload []byte) {
	c.recvMu.Lock()
	c.recvBuf = payload
	c.recvEP = ep
	c.recvDone = true
	c.recvMu.Unlock()

	select {
	case c.recvReady <- struct{}{}:
	default:
	}
}

// Receive blocks for up to timeout for a completed packet, per
// spec.md §4.3's channel_receive. If the completed endpoint is 0 the
// RPC dispatcher has already run and its response already published;
// Receive returns void in that case.
func (c *Channel) Receive(cap int, timeout time.Duration) ([]byte, error) {
	select {
	case <-c.recvReady:
	case <-time.After(timeout):
		return nil, perr.Void
	}

	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	if !c.recvDone {
		return nil, perr.Void
	}

	c.recvDone = false

	if c.recvEP == 0 {
		return nil, perr.Void
	}

	if len(c.recvBuf) > cap {
		return nil, perr.TooBig
	}

	return c.recvBuf, nil
}
