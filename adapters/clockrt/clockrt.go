// Package clockrt implements ports.Clock over the operating system's
// wall clock. There is no ecosystem library for "read the system
// clock"; stdlib time.Now is the only reasonable source, and this
// adapter is the one justifiably stdlib-only leaf of the domain stack
// (recorded in DESIGN.md).
package clockrt

import "time"

// Clock is the production ports.Clock binding.
type Clock struct{}

// Get returns the current wall-clock sample as (sec, nsec), the shape
// spec.md §6 specifies for the injected Clock interface.
func (Clock) Get() (sec int64, nsec int64) {
	now := time.Now()
	return now.Unix(), int64(now.Nanosecond())
}
