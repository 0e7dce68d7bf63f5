// Package nbusswitch implements the multi-port NBUS forwarding
// engine, per spec.md §4.6.
package nbusswitch

import (
	"sync"
	"time"

	"github.com/plumcore/plumcore/logx"
	"github.com/plumcore/plumcore/nbus/frame"
	"github.com/plumcore/plumcore/ports"
)

// IQSize bounds the shared input queue, NBUS_SWITCH_IQ_SIZE in
// spec.md §6.
const IQSize = 128

// MaxLifetime is the number of housekeeping ticks a learned record
// survives without activity, NBUS_SWITCH_MAX_LIFETIME in spec.md §6.
const MaxLifetime = 10

// Port is one CAN interface the switch forwards across.
type Port struct {
	Name      string
	CAN       ports.CAN
	RXDropped uint32

	mu sync.Mutex
}

func (p *Port) incDropped() {
	p.mu.Lock()
	p.RXDropped++
	p.mu.Unlock()
}

type frameWithPort struct {
	port *Port
	id   frame.ID
	raw  uint32
	buf  []byte
}

type recordKey struct {
	channelID uint16
	direction frame.Direction
}

type record struct {
	port       *Port
	frames     uint32
	lastAccess uint32
}

// Switch forwards NBUS CAN frames between N ports, learning
// (channel-ID, direction) -> port associations and flooding when no
// opposing-direction record exists, per spec.md §4.6.
type Switch struct {
	log *logx.Root

	ports []*Port
	iq    chan frameWithPort

	mu      sync.Mutex
	records map[recordKey]*record
	ticks   uint32

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Switch over the given ports.
func New(log *logx.Root, switchPorts ...*Port) *Switch {
	return &Switch{
		log:     log,
		ports:   switchPorts,
		iq:      make(chan frameWithPort, IQSize),
		records: make(map[recordKey]*record),
		stop:    make(chan struct{}),
	}
}

// Start launches one receive task per port, the process task, and the
// 1 Hz housekeeping task.
func (s *Switch) Start() {
	s.wg.Add(len(s.ports) + 2)

	for _, p := range s.ports {
		go s.receiveTask(p)
	}

	go s.processTask()
	go s.housekeepingTask()
}

// Stop signals all tasks to exit and waits for them.
func (s *Switch) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// receiveTask reads frames from one port and pushes them (tagged with
// their ingress port) onto the shared input queue. If the queue is
// full the frame is dropped and the port's rx_dropped counter
// incremented; the receive path never blocks, per spec.md §4.6.
func (s *Switch) receiveTask(p *Port) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		msg, err := p.CAN.Receive(1 * time.Second)
		if err != nil {
			continue
		}

		if !msg.ExtID {
			continue
		}

		item := frameWithPort{port: p, id: frame.Decode(msg.ID), raw: msg.ID, buf: msg.Buf}

		select {
		case s.iq <- item:
		default:
			p.incDropped()
		}
	}
}

// processTask consumes the shared input queue and applies the
// forwarding decision to each frame.
func (s *Switch) processTask() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stop:
			return
		case item := <-s.iq:
			s.forward(item)
		}
	}
}

func (s *Switch) forward(item frameWithPort) {
	key := recordKey{channelID: item.id.Channel, direction: item.id.Direction}

	s.mu.Lock()
	s.learn(key, item.port)

	oppositeKey := recordKey{channelID: item.id.Channel, direction: opposite(item.id.Direction)}
	oppositeRecord, hasOpposite := s.records[oppositeKey]

	var target *Port
	if hasOpposite {
		target = oppositeRecord.port
	}

	s.mu.Unlock()

	if hasOpposite {
		s.sendTo(target, item)
		return
	}

	s.flood(item)
}

// learn records or refreshes a (channel-ID, direction) -> port
// association; the caller must hold s.mu.
func (s *Switch) learn(key recordKey, port *Port) {
	rec, ok := s.records[key]
	if !ok {
		rec = &record{}
		s.records[key] = rec
	}

	rec.port = port
	rec.frames++
	rec.lastAccess = s.ticks
}

func opposite(d frame.Direction) frame.Direction {
	switch d {
	case frame.Request:
		return frame.Response
	case frame.Response:
		return frame.Request
	case frame.Publish:
		return frame.Subscribe
	case frame.Subscribe:
		return frame.Publish
	default:
		return d
	}
}

func (s *Switch) sendTo(target *Port, item frameWithPort) {
	if target == item.port {
		return
	}

	_ = target.CAN.Send(ports.CANMessage{ExtID: true, ID: item.raw, Buf: item.buf}, 100*time.Millisecond)
}

func (s *Switch) flood(item frameWithPort) {
	for _, p := range s.ports {
		if p == item.port {
			continue
		}

		_ = p.CAN.Send(ports.CANMessage{ExtID: true, ID: item.raw, Buf: item.buf}, 100*time.Millisecond)
	}
}

// housekeepingTask ticks at 1 Hz, aging and evicting learned records
// whose lastAccess has fallen more than MaxLifetime ticks behind.
func (s *Switch) housekeepingTask() {
	defer s.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.ageOnce()
		}
	}
}

func (s *Switch) ageOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks++

	for key, rec := range s.records {
		if s.ticks-rec.lastAccess > MaxLifetime {
			delete(s.records, key)
		}
	}
}
