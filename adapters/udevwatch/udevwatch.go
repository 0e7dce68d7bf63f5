// Package udevwatch streams hotplug events for USB-CAN and USB-serial
// adapters as they are plugged in or removed, the way the teacher's
// multi-soundcard CM108/HID pairing logic auto-discovers devices. It
// only reports events; it does not add ports to nbus-core.
package udevwatch

import (
	"context"
	"fmt"

	"github.com/jochenvg/go-udev"
)

// Event is one hotplug notification for a candidate bus device.
type Event struct {
	Action    string // "add" | "remove"
	DevNode   string
	Subsystem string
}

// Watch streams udev events for the "tty" (USB-serial adapters) and
// "net" (USB-CAN gateways registering a netdev) subsystems until ctx
// is canceled.
func Watch(ctx context.Context) (<-chan Event, error) {
	u := udev.Udev{}
	m := u.NewMonitorFromNetlink("udev")

	if err := m.FilterAddMatchSubsystem("tty"); err != nil {
		return nil, fmt.Errorf("udevwatch: filter tty: %w", err)
	}

	if err := m.FilterAddMatchSubsystem("net"); err != nil {
		return nil, fmt.Errorf("udevwatch: filter net: %w", err)
	}

	deviceCh, errCh, err := m.DeviceChan(ctx)
	if err != nil {
		return nil, fmt.Errorf("udevwatch: device channel: %w", err)
	}

	out := make(chan Event, 8)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deviceCh:
				if !ok {
					return
				}

				select {
				case out <- Event{Action: d.Action(), DevNode: d.Devnode(), Subsystem: d.Subsystem()}:
				case <-ctx.Done():
					return
				}
			case err, ok := <-errCh:
				if ok && err != nil {
					return
				}
			}
		}
	}()

	return out, nil
}
