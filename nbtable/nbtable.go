// Package nbtable is rMAC's neighbor directory: a fixed-capacity,
// linearly-scanned table of recently observed peers with EMA'd RSSI
// and loss counters. See spec.md §4.9.
package nbtable

import "sync"

// Entry is one neighbor table row, per spec.md §3 "Neighbor entry".
type Entry struct {
	ID        uint32
	RSSIEMA   float32
	Counter   uint8
	RXPackets uint32
	RXBytes   uint32
	RXMissed  uint32
	TXPackets uint32
	TXBytes   uint32
	Age       uint8

	used bool
}

// Table is a fixed-capacity open-address array of Entry, guarded by a
// mutex since rMAC's TX-process, RX-process and housekeeping tasks
// all touch it concurrently (spec.md §5).
type Table struct {
	mu      sync.Mutex
	entries []Entry
	maxAge  uint8
}

// New allocates a table with the given capacity and eviction age
// bound.
func New(capacity int, maxAge uint8) *Table {
	return &Table{
		entries: make([]Entry, capacity),
		maxAge:  maxAge,
	}
}

// FindOrAdd returns the existing entry for id, or claims the first
// free slot and initializes it. It returns ok=false if the table is
// full and id is not already present.
func (t *Table) FindOrAdd(id uint32) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e := t.find(id); e != nil {
		return e, true
	}

	for i := range t.entries {
		if !t.entries[i].used {
			t.entries[i] = Entry{ID: id, used: true}

			return &t.entries[i], true
		}
	}

	return nil, false
}

// Find returns the entry for id, or nil if not present.
func (t *Table) Find(id uint32) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.find(id)
}

func (t *Table) find(id uint32) *Entry {
	for i := range t.entries {
		if t.entries[i].used && t.entries[i].ID == id {
			return &t.entries[i]
		}
	}

	return nil
}

// UpdateRXCounter applies the per-packet rx counter and byte-count
// bookkeeping of spec.md §4.9: missed += max(0, counter -
// item.counter - 1); item.counter = counter; rxpackets++; rxbytes +=
// len; age resets to zero.
func (t *Table) UpdateRXCounter(e *Entry, counter uint8, length int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delta := int(counter) - int(e.Counter) - 1
	if delta > 0 {
		e.RXMissed += uint32(delta)
	}

	e.Counter = counter
	e.RXPackets++
	e.RXBytes += uint32(length) //nolint:gosec
	e.Age = 0
}

// UpdateRSSI applies the EMA update of spec.md §4.9:
// item.rssi = (15*item.rssi + rssi) / 16.
func (t *Table) UpdateRSSI(e *Entry, rssi float32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e.RSSIEMA = (15*e.RSSIEMA + rssi) / 16
}

// RecordTX accounts for a transmitted frame to this neighbor.
func (t *Table) RecordTX(e *Entry, length int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e.TXPackets++
	e.TXBytes += uint32(length) //nolint:gosec
}

// Tick ages every occupied entry by one and evicts entries whose age
// exceeds the table's bound, called once per housekeeping period.
func (t *Table) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if !t.entries[i].used {
			continue
		}

		t.entries[i].Age++

		if t.entries[i].Age > t.maxAge {
			t.entries[i] = Entry{}
		}
	}
}

// Snapshot returns a copy of every occupied entry, for diagnostics
// (rmac.Stats / cmd/plumcore-mon).
func (t *Table) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.entries))

	for _, e := range t.entries {
		if e.used {
			out = append(out, e)
		}
	}

	return out
}
