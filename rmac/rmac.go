// Package rmac orchestrates the half-duplex radio MAC: scheduler,
// neighbor table, and the RX-process/TX-process tasks that bridge
// them to an upper-layer MAC host, per spec.md §4.8.
package rmac

import (
	"time"

	"github.com/plumcore/plumcore/logx"
	"github.com/plumcore/plumcore/nbtable"
	"github.com/plumcore/plumcore/packetpool"
	"github.com/plumcore/plumcore/pbuf"
	"github.com/plumcore/plumcore/ports"
	"github.com/plumcore/plumcore/rmac/sched"
	"github.com/plumcore/plumcore/slotqueue"
)

// poolGetRetry is the caller-side sleep between packetpool.Get
// retries, per spec.md §5 ("Packet-pool get does not block; retries
// with a 2 ms sleep are performed at the caller").
const poolGetRetry = 2 * time.Millisecond

// Config configures one rMAC instance.
type Config struct {
	NodeID           uint32
	UniverseKey      []byte
	Algorithm        sched.Algorithm
	SyncBytes        []byte
	PoolSize         int
	PoolCapacity     int
	RXQueueDepth     int
	NeighborCapacity int
	NeighborMaxAge   uint8
}

// MAC is one rMAC subsystem instance: a scheduler driving an injected
// Radio/Clock, a neighbor table, and the RX/TX process tasks bridging
// to the upper-layer MACHost.
type MAC struct {
	cfg Config

	keys  pbuf.Keys
	queue *slotqueue.Queue
	pool  *packetpool.Pool
	sched *sched.Scheduler

	neighbors *nbtable.Table

	host  ports.MACHost
	clock ports.Clock
	log   *logx.Root

	counter uint8

	stop chan struct{}
	done chan struct{}
}

// New constructs a MAC. radio and clock are rMAC's injected
// transceiver and time source; host is the upper-layer application
// contract packets are delivered to and pulled from.
func New(cfg Config, radio ports.Radio, clock ports.Clock, host ports.MACHost, log *logx.Root) (*MAC, error) {
	keys, err := pbuf.DeriveKeys(cfg.UniverseKey)
	if err != nil {
		return nil, err
	}

	queue := slotqueue.New()
	pool := packetpool.New(cfg.PoolSize, cfg.PoolCapacity)

	scheduler, err := sched.New(queue, pool, radio, clock, cfg.Algorithm, cfg.SyncBytes, cfg.RXQueueDepth)
	if err != nil {
		return nil, err
	}

	return &MAC{
		cfg:       cfg,
		keys:      keys,
		queue:     queue,
		pool:      pool,
		sched:     scheduler,
		neighbors: nbtable.New(cfg.NeighborCapacity, cfg.NeighborMaxAge),
		host:      host,
		clock:     clock,
		log:       log,
		stop:      make(chan struct{}),
		done:      make(chan struct{}, 2),
	}, nil
}

// Start launches the scheduler and the RX-process/TX-process tasks.
func (m *MAC) Start() {
	m.sched.Start()

	go m.rxProcessTask()
	go m.txProcessTask()
}

// Stop signals all tasks to exit and waits for the process tasks
// (the scheduler's own Stop already waits for its own tasks).
func (m *MAC) Stop() {
	close(m.stop)
	m.sched.Stop()

	<-m.done
	<-m.done
}

func (m *MAC) logger() func(string, ...any) {
	if m.log == nil {
		return nil
	}

	logger := m.log.Component("rmac")

	return func(format string, args ...any) { logger.Warnf(format, args...) }
}

// rxProcessTask consumes received packets from the scheduler, opens
// them with the universe key, updates the neighbor table, and hands
// matching packets to the upper-layer host, per spec.md §4.8.
func (m *MAC) rxProcessTask() {
	defer func() { m.done <- struct{}{} }()

	warn := m.logger()

	for {
		select {
		case <-m.stop:
			return
		case pkt, ok := <-m.sched.RXProcessQueue:
			if !ok {
				return
			}

			m.handleReceived(pkt, warn)
		}
	}
}

func (m *MAC) handleReceived(pkt sched.ReceivedPacket, warn func(string, ...any)) {
	plain, err := pbuf.Open(m.keys, pkt.Buf, pbuf.SIVSize)
	if err != nil {
		if warn != nil {
			warn("rmac: rx packet failed authentication: %v", err)
		}

		return
	}

	rec, err := DecodeRecord(plain)
	if err != nil {
		if warn != nil {
			warn("rmac: rx packet failed to decode: %v", err)
		}

		return
	}

	if entry, ok := m.neighbors.FindOrAdd(rec.Source); ok {
		m.neighbors.UpdateRXCounter(entry, rec.Counter, len(pkt.Buf))
		m.neighbors.UpdateRSSI(entry, float32(pkt.Params.RSSIDeciDBm)/10)
	}

	if rec.Destination == 0 || rec.Destination == m.cfg.NodeID {
		m.host.PutReceivedPacket(rec.Source, ports.Context(rec.Context), rec.Data)
	}
}

// txProcessTask blocks on the upper-layer host for outgoing packets,
// obtains a pool slot, attaches it to the earliest matching TX slot
// (waiting on tx_available if none exists yet), and serializes the
// record, per spec.md §4.8.
func (m *MAC) txProcessTask() {
	defer func() { m.done <- struct{}{} }()

	for {
		select {
		case <-m.stop:
			return
		default:
		}

		dest, data, ok := m.host.GetPacketToSend(0)
		if !ok {
			continue
		}

		m.sendOne(dest, data)
	}
}

func (m *MAC) sendOne(dest uint32, data []byte) {
	pkt := m.pool.Get()
	for pkt == nil {
		select {
		case <-m.stop:
			return
		case <-time.After(poolGetRetry):
		}

		pkt = m.pool.Get()
	}

	kind := slotqueue.TXUnicast
	if dest == 0 {
		kind = slotqueue.TXBroadcast
	}

	slot, ok := m.queue.AttachPacket(kind, pkt)
	if !ok {
		if !m.queue.WaitTXAvailable(m.stop) {
			m.pool.Release(pkt)
			return
		}

		slot, ok = m.queue.AttachPacket(kind, pkt)
		if !ok {
			m.pool.Release(pkt)
			return
		}
	}

	rec := Record{
		Source:      m.cfg.NodeID,
		Destination: dest,
		Counter:     m.nextCounter(),
		TimeUS:      ports.NowUS(m.clock),
		Data:        data,
	}

	sealed := pbuf.Seal(m.keys, EncodeRecord(rec), pbuf.SIVSize)

	n := copy(pkt.Buf, sealed)
	pkt.Len = n
	slot.PeerID = dest

	if dest != 0 {
		if entry, ok := m.neighbors.FindOrAdd(dest); ok {
			m.neighbors.RecordTX(entry, n)
		}
	}
}

// nextCounter advances the per-node outgoing packet counter, an
// 8-bit value that wraps, per spec.md §4.8.
func (m *MAC) nextCounter() uint8 {
	m.counter++
	return m.counter
}

// Stats surfaces the scheduler's running diagnostics — a
// supplemented feature, SPEC_FULL.md §D.2.
func (m *MAC) Stats() sched.Stats {
	return m.sched.Stats.Snapshot()
}

// Neighbors returns a snapshot of the current neighbor table.
func (m *MAC) Neighbors() []nbtable.Entry {
	return m.neighbors.Snapshot()
}
