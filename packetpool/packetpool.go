// Package packetpool is rMAC's bounded, preallocated object pool for
// radio packets: a fixed-size array of {used, payload} slots under a
// mutex, never growing and never allocating once initialized. See
// spec.md §4.7.
package packetpool

import "sync"

// Packet is the pool's element type: a reusable byte buffer plus the
// bookkeeping rMAC needs to route it through a slot. idx holds the
// pool index so Release can be handed only the Packet, not the index.
type Packet struct {
	Buf  []byte
	Len  int
	used bool
	idx  int
}

// Pool is a fixed-capacity preallocated array of Packet, each
// pre-sized to capacity bytes so steady-state operation never allocates.
type Pool struct {
	mu    sync.Mutex
	slots []Packet
}

// New preallocates n packet slots of the given byte capacity.
func New(n, capacity int) *Pool {
	p := &Pool{slots: make([]Packet, n)}

	for i := range p.slots {
		p.slots[i].Buf = make([]byte, capacity)
		p.slots[i].idx = i
	}

	return p
}

// Get returns the first free slot and marks it used, or nil if the
// pool is exhausted. Per spec.md §5, Get never blocks; a caller that
// wants to retry sleeps itself (conventionally 2 ms) between calls.
func (p *Pool) Get() *Packet {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.slots {
		if !p.slots[i].used {
			p.slots[i].used = true
			p.slots[i].Len = 0

			return &p.slots[i]
		}
	}

	return nil
}

// Release marks pkt free. It is idempotent: releasing an
// already-free packet is a silent no-op on all paths (spec.md §3
// invariant — "release is idempotent and must be attempted exactly
// once per allocation on all paths", which this makes safe to
// honor even if a caller's error-handling paths both call Release).
func (p *Pool) Release(pkt *Packet) {
	if pkt == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.slots[pkt.idx].used = false
}

// InUse reports how many slots are currently allocated, for
// diagnostics.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0

	for i := range p.slots {
		if p.slots[i].used {
			n++
		}
	}

	return n
}

// Capacity returns the total number of slots in the pool.
func (p *Pool) Capacity() int {
	return len(p.slots)
}
