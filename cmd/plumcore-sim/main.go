// Command plumcore-sim drives two in-process NBUS nodes over a
// canloop virtual bus, replaying the single-frame "Hello" worked
// example from spec.md §8 as a smoke test that needs no real CAN
// hardware. It does not exercise rMAC. It plays the
// same role the teacher's cmd/tnctest plays for AX.25 connected mode:
// two peers, one sends, the other verifies what arrived.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/plumcore/plumcore/adapters/canloop"
	"github.com/plumcore/plumcore/logx"
	"github.com/plumcore/plumcore/nbus"
	"github.com/plumcore/plumcore/nbus/frame"
)

const universeKey = "plumcore-sim shared universe key"

func main() {
	log := logx.NewRoot(os.Stdout, logx.LevelInfo)

	if err := runNBUSRoundTrip(log); err != nil {
		fmt.Fprintf(os.Stderr, "plumcore-sim: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("nbus round trip: OK")
}

// runNBUSRoundTrip wires node A and node B on a shared canloop bus,
// each with a channel of the same name, "telemetry" (so both land on
// the same channel-ID), and the same universe key (so B can verify
// A's trailer), sends the spec's literal
// scenario-2 payload from A, and verifies B reassembles it.
func runNBUSRoundTrip(log *logx.Root) error {
	bus := canloop.NewBus()

	endA := bus.Attach()
	endB := bus.Attach()

	coreA := nbus.NewCore(endA, log)
	coreB := nbus.NewCore(endB, log)

	chanA, err := nbus.Init("telemetry", []byte(universeKey))
	if err != nil {
		return fmt.Errorf("node A channel: %w", err)
	}

	chanB, err := nbus.Init("telemetry", []byte(universeKey))
	if err != nil {
		return fmt.Errorf("node B channel: %w", err)
	}

	coreA.AddChannel(chanA)
	coreB.AddChannel(chanB)

	coreA.Start()
	defer coreA.Stop()

	coreB.Start()
	defer coreB.Stop()

	// Let housekeeping assign and advertise a channel-ID before
	// sending; a freshly initialized channel has none yet.
	time.Sleep(1200 * time.Millisecond)

	const endpoint = 3

	if err := chanA.Send(endA, endpoint, frame.Response, []byte("Hello"), false); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	payload, err := chanB.Receive(nbus.MTU, time.Second)
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}

	if string(payload) != "Hello" {
		return fmt.Errorf("got %q, want %q", payload, "Hello")
	}

	return nil
}
