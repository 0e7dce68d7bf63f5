package nbus

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/plumcore/plumcore/logx"
	"github.com/plumcore/plumcore/nbus/frame"
	"github.com/plumcore/plumcore/perr"
	"github.com/plumcore/plumcore/ports"
)

// Core owns the CAN interface, the channel list, the receive task,
// and the 1 Hz housekeeping task, per spec.md §4.5.
type Core struct {
	can ports.CAN
	log *logx.Root

	mu       sync.RWMutex
	channels map[uint16]*Channel
	byName   map[string]*Channel

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewCore constructs a Core bound to can. The channel list is
// populated at startup via AddChannel and never mutated at runtime,
// per spec.md §5's "channel list ... mutated only at startup/teardown".
func NewCore(can ports.CAN, log *logx.Root) *Core {
	return &Core{
		can:      can,
		log:      log,
		channels: make(map[uint16]*Channel),
		byName:   make(map[string]*Channel),
		stop:     make(chan struct{}),
	}
}

// AddChannel registers a channel with the core. Must be called before
// Start; the channel list is not safe to mutate once tasks are
// running.
func (c *Core) AddChannel(ch *Channel) {
	c.byName[ch.Name] = ch
}

// Channel looks up a registered channel by name.
func (c *Core) Channel(name string) *Channel {
	return c.byName[name]
}

// Start launches the receive and housekeeping tasks.
func (c *Core) Start() {
	c.wg.Add(2)

	go c.receiveTask()
	go c.housekeepingTask()
}

// Stop signals both tasks to exit and waits for them.
func (c *Core) Stop() {
	close(c.stop)
	c.wg.Wait()
}

func (c *Core) receiveLogger() func(string, ...any) {
	if c.log == nil {
		return nil
	}

	logger := c.log.Component("nbus-core")

	return func(format string, args ...any) { logger.Warnf(format, args...) }
}

// receiveTask reads CAN frames (blocking with a long timeout), drops
// non-extended frames, dispatches completed frames by channel-ID, and
// marks a channel's ID invalid on an invalid-id FSM result, per
// spec.md §4.5.
func (c *Core) receiveTask() {
	defer c.wg.Done()

	logger := c.receiveLogger()

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		msg, err := c.can.Receive(1 * time.Second)
		if err != nil {
			continue
		}

		if !msg.ExtID {
			continue
		}

		id := frame.Decode(msg.ID)

		c.mu.RLock()
		ch, ok := c.channels[id.Channel]
		c.mu.RUnlock()

		if !ok {
			continue
		}

		// An advertisement for a channel-ID we already own that carries
		// a different short-ID signals a collision with another channel
		// on the bus; clear validity so housekeeping rederives it next
		// tick, per spec.md §4.3.
		if frame.IsAdvertise(id.Opcode) && len(msg.Buf) >= 4 &&
			binary.BigEndian.Uint32(msg.Buf[:4]) != uint32(ch.ShortID()) {
			ch.Invalidate()
		}

		if err := ch.Deliver(c.can, id.Opcode, msg.Buf); err != nil {
			if errors.Is(err, perr.InvalidID) {
				ch.Invalidate()
			}

			if logger != nil {
				logger("nbus-core: channel %q deliver error: %v", ch.Name, err)
			}
		}
	}
}

// housekeepingTask ticks at 1 Hz: every channel lacking a valid
// channel-ID gets one derived and an immediate advertisement; every
// valid channel advertises every AdvTime-th tick, per spec.md §4.3/§4.5.
func (c *Core) housekeepingTask() {
	defer c.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.houseKeepOnce()
		}
	}
}

func (c *Core) houseKeepOnce() {
	c.mu.Lock()

	snapshot := make([]*Channel, 0, len(c.byName))
	for _, ch := range c.byName {
		snapshot = append(snapshot, ch)
	}

	c.mu.Unlock()

	for _, ch := range snapshot {
		prevID, prevValid := ch.ChannelID()

		advertise := ch.houseKeep()

		id, valid := ch.ChannelID()
		if valid {
			c.mu.Lock()
			if prevValid && prevID != id {
				delete(c.channels, prevID)
			}

			c.channels[id] = ch
			c.mu.Unlock()
		}

		if advertise && valid {
			c.advertise(ch, id)
		}
	}
}

// advertise emits an NBUS_OP_ADVERTISEMENT frame carrying the
// channel's 4-byte big-endian short-ID, per spec.md §6's
// advertisement frame payload.
func (c *Core) advertise(ch *Channel, id uint16) {
	canID := frame.Encode(frame.ID{Channel: id, Direction: frame.Publish, Opcode: frame.OpAdvertise})

	var shortID [4]byte
	binary.BigEndian.PutUint32(shortID[:], uint32(ch.ShortID()))

	_ = c.can.Send(ports.CANMessage{ExtID: true, ID: canID, Buf: shortID[:]}, 100*time.Millisecond)
}
