// Package adapter defines the contract between network front ends and the
// server orchestrator.
package adapter

import (
	"context"

	"github.com/marmos91/atlasfs/pkg/registry"
)

// Adapter is one listener served by the orchestrator: the binary command
// port or the WebSocket event feed.
//
// The orchestrator calls SetRegistry once, then Serve in its own goroutine.
// Stop may arrive at any time, including before Serve has bound its
// listener, and must then make Serve return without serving.
type Adapter interface {
	// Serve binds the listener and blocks until ctx is cancelled or Stop is
	// called, then drains clients for at most the adapter's shutdown timeout.
	//
	// A bind failure is returned immediately. Any return before ctx is
	// cancelled is treated as fatal by the orchestrator, which then stops
	// every other adapter. A nil return means every client finished in time.
	Serve(ctx context.Context) error

	// SetRegistry hands the adapter the shared process context.
	SetRegistry(reg *registry.Registry)

	// Stop starts shutdown and waits for clients until ctx ends, then
	// force-closes them. Idempotent and safe to call concurrently with Serve.
	Stop(ctx context.Context) error

	// Protocol names the adapter in logs and metrics ("command", "websocket").
	Protocol() string

	// Port is the configured port, or the bound port once Serve is listening
	// on an ephemeral one.
	Port() int
}
