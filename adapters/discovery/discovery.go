// Package discovery announces a named service on a given port over
// mDNS/DNS-SD, the same library and pattern the teacher uses in
// dns_sd.go to announce its KISS TCP service — here repurposed to
// advertise a diagnostics/console endpoint for a running plumCore
// node rather than a TNC port.
package discovery

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
)

const serviceType = "_plumcore._tcp"

// Announce publishes name/port under the plumCore service type and
// runs the mDNS responder in the background until ctx is canceled.
func Announce(ctx context.Context, name string, port int) error {
	cfg := dnssd.Config{ //nolint:exhaustruct
		Name: name,
		Type: serviceType,
		Port: port,
	}

	svc, err := dnssd.NewService(cfg)
	if err != nil {
		return fmt.Errorf("discovery: new service: %w", err)
	}

	responder, err := dnssd.NewResponder()
	if err != nil {
		return fmt.Errorf("discovery: new responder: %w", err)
	}

	if _, err := responder.Add(svc); err != nil {
		return fmt.Errorf("discovery: add service: %w", err)
	}

	go func() {
		_ = responder.Respond(ctx)
	}()

	return nil
}
