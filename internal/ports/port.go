// Package ports defines the lifecycle interface and channel-backed FIFO
// implementation used for the fragmenter's four logical ports (input,
// output, south, north). The interface shape — Name/Init/Start/Stop —
// follows the two competing plugin interfaces the teacher shipped
// (pkg/plugin/plugin.go's Metadata/Init/Start/Stop/Health and
// internal/plugin's context-aware Start(ctx)/Stop(ctx)); this repo
// needs neither Health nor the full dependency-ordered multi-plugin
// manager, just one selectable Ethernet I/O adapter per port, so it
// keeps the smaller, context-aware half of that shape.
package ports

import (
	"context"

	"github.com/otusnet/fragmentd/internal/core"
)

// Port is the lifecycle and packet I/O boundary for one of the
// fragmenter's four logical ports. Concrete adapters (afpacket, an
// in-memory Link, a pcap-file replay source) implement it.
type Port interface {
	Name() string
	Init(cfg map[string]any) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Send transfers ownership of pkt to this port.
	Send(pkt core.Packet) error
	// Recv returns the next available packet, or (zero, false) if none
	// is currently available. It never blocks — the fragmenter stage
	// is cooperatively scheduled and polls each port once per tick.
	Recv() (core.Packet, bool)
}

// Factory constructs a Port instance by name.
type Factory func() Port
