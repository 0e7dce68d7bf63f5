// Package slotqueue is rMAC's priority queue of scheduled RX/TX
// slots, a binary min-heap on start time protected by a mutex, with a
// tx_available semaphore signaled whenever a TX-typed slot is
// inserted. See spec.md §4.7 and §3 "Slot".
package slotqueue

import (
	"container/heap"
	"sync"

	"github.com/plumcore/plumcore/packetpool"
)

// Type enumerates the slot kinds of spec.md §3.
type Type int

const (
	RXSearch Type = iota
	RXUnmanaged
	RXUnicast
	TXBroadcast
	TXControl
	TXUnicast
)

// IsTX reports whether t is one of the TX-typed slots, i.e. the kinds
// that signal tx_available on insertion.
func (t Type) IsTX() bool {
	return t == TXBroadcast || t == TXControl || t == TXUnicast
}

// Slot is one scheduled RX or TX window, per spec.md §3.
type Slot struct {
	StartUS  uint64
	LengthUS uint32
	Kind     Type
	PeerID   uint32
	Packet   *packetpool.Packet

	index int // heap.Interface bookkeeping
}

// heapSlice is the container/heap backing store, ordered by StartUS —
// the idiomatic Go way to get a priority queue (spec.md's own leaf
// data structures, like packetpool and nbtable, are likewise built on
// plain stdlib containers rather than a third-party queue package).
type heapSlice []*Slot

func (h heapSlice) Len() int            { return len(h) }
func (h heapSlice) Less(i, j int) bool  { return h[i].StartUS < h[j].StartUS }
func (h heapSlice) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *heapSlice) Push(x interface{}) {
	s := x.(*Slot) //nolint:forcetypeassert
	s.index = len(*h)
	*h = append(*h, s)
}

func (h *heapSlice) Pop() interface{} {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return s
}

// Queue is the mutex-guarded min-heap of Slot plus the tx_available
// semaphore.
type Queue struct {
	mu          sync.Mutex
	h           heapSlice
	txAvailable chan struct{}
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{
		h:           heapSlice{},
		txAvailable: make(chan struct{}, 1),
	}
}

// Insert adds a slot to the queue, signaling tx_available if it is a
// TX-typed slot.
func (q *Queue) Insert(s *Slot) {
	q.mu.Lock()
	heap.Push(&q.h, s)
	q.mu.Unlock()

	if s.Kind.IsTX() {
		select {
		case q.txAvailable <- struct{}{}:
		default:
		}
	}
}

// Peek returns the earliest-starting slot without removing it, or nil
// if the queue is empty.
func (q *Queue) Peek() *Slot {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.h) == 0 {
		return nil
	}

	return q.h[0]
}

// Remove pops and returns the earliest-starting slot, or nil if the
// queue is empty.
func (q *Queue) Remove() *Slot {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.h) == 0 {
		return nil
	}

	s, _ := heap.Pop(&q.h).(*Slot)

	return s
}

// AttachPacket finds the earliest-starting queued slot of kind that
// has no packet yet and attaches pkt to it, re-establishing the heap
// invariant (attaching a packet does not change StartUS, so the heap
// order is actually untouched, but we go through heap.Fix for the
// general case where future slot mutation might). It returns false if
// no such slot is queued.
func (q *Queue) AttachPacket(kind Type, pkt *packetpool.Packet) (*Slot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var best *Slot

	for _, s := range q.h {
		if s.Kind == kind && s.Packet == nil && (best == nil || s.StartUS < best.StartUS) {
			best = s
		}
	}

	if best == nil {
		return nil, false
	}

	best.Packet = pkt
	heap.Fix(&q.h, best.index)

	return best, true
}

// Len returns the number of queued slots.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.h)
}

// WaitTXAvailable blocks until a TX-typed slot has been inserted
// since the last time this (or any) waiter consumed the signal, or
// until done is closed.
func (q *Queue) WaitTXAvailable(done <-chan struct{}) bool {
	select {
	case <-q.txAvailable:
		return true
	case <-done:
		return false
	}
}

// TryTXAvailable reports, without blocking, whether a TX-typed slot
// has been inserted since the last consume, consuming the signal if
// so.
func (q *Queue) TryTXAvailable() bool {
	select {
	case <-q.txAvailable:
		return true
	default:
		return false
	}
}
