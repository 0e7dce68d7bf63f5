// Package gpioptt drives a single GPIO line used as the radio's
// transmit-enable (PTT) or a CAN transceiver's STBY pin, the portable
// counterpart of the teacher's PTT GPIO control. It uses
// warthog618/go-gpiocdev, the pure-Go gpiod/linehandle ABI binding,
// since this repository carries no cgo (Design Note: "no cgo, no
// vendor crypto").
package gpioptt

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Line is one requested output line.
type Line struct {
	line *gpiocdev.Line
}

// Open requests offset on chip (e.g. "gpiochip0") as an output,
// initially deasserted. activeLow inverts the logical sense, for
// lines wired to an active-low enable input.
func Open(chip string, offset int, activeLow bool) (*Line, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	l, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("gpioptt: request %s:%d: %w", chip, offset, err)
	}

	return &Line{line: l}, nil
}

// Assert drives the line to its active state — keys the transmitter,
// or brings a transceiver out of standby.
func (l *Line) Assert() error {
	if err := l.line.SetValue(1); err != nil {
		return fmt.Errorf("gpioptt: assert: %w", err)
	}

	return nil
}

// Deassert drives the line to its inactive state.
func (l *Line) Deassert() error {
	if err := l.line.SetValue(0); err != nil {
		return fmt.Errorf("gpioptt: deassert: %w", err)
	}

	return nil
}

// Close releases the line request.
func (l *Line) Close() error {
	return l.line.Close()
}
