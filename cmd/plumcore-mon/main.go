// Command plumcore-mon is a read-only console monitor: it opens one
// configured CAN port passively and prints every NBUS frame's decoded
// channel/direction/opcode header as it goes by, the plumCore
// counterpart of the teacher's kissutil monitor mode — minus any
// ability to inject frames back onto the bus.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/plumcore/plumcore/adapters/canpty"
	"github.com/plumcore/plumcore/adapters/socketcan"
	"github.com/plumcore/plumcore/nbus/frame"
	"github.com/plumcore/plumcore/ports"
)

func main() {
	var (
		kind   = pflag.StringP("kind", "k", "socketcan", "Port kind: socketcan or canpty.")
		device = pflag.StringP("device", "d", "can0", "Device name for --kind=socketcan (ignored for canpty).")
		help   = pflag.BoolP("help", "h", false, "Display help text.")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	can, err := openPort(*kind, *device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "plumcore-mon: %v\n", err)
		os.Exit(1)
	}

	monitor(can, os.Stdout)
}

func openPort(kind, device string) (ports.CAN, error) {
	switch kind {
	case "socketcan":
		return socketcan.Open(device)
	case "canpty":
		p, err := canpty.Open()
		if err != nil {
			return nil, err
		}

		fmt.Fprintf(os.Stderr, "plumcore-mon: listening on %s\n", p.TTYName())

		return p, nil
	default:
		return nil, fmt.Errorf("unknown port kind %q", kind)
	}
}

// monitor loops decoding frames from can and printing a one-line
// summary of each extended-ID frame. It never returns: read errors
// and timeouts are skipped and the loop retries.
func monitor(can ports.CAN, out *os.File) {
	for {
		msg, err := can.Receive(5 * time.Second)
		if err != nil {
			continue
		}

		if !msg.ExtID {
			continue
		}

		id := frame.Decode(msg.ID)

		fmt.Fprintf(out, "%s channel=0x%04x dir=%s opcode=0x%02x len=%d\n",
			time.Now().Format("15:04:05.000"), id.Channel, directionName(id.Direction), id.Opcode, len(msg.Buf))
	}
}

func directionName(d frame.Direction) string {
	switch d {
	case frame.Request:
		return "request"
	case frame.Response:
		return "response"
	case frame.Publish:
		return "publish"
	case frame.Subscribe:
		return "subscribe"
	default:
		return "unknown"
	}
}
