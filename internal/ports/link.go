package ports

import (
	"context"

	"github.com/otusnet/fragmentd/internal/core"
)

// Link is an in-process, channel-backed FIFO Port. It is the adapter
// used for input/output/south/north in tests and in the default
// in-memory wiring; the afpacket adapter replaces it when a real
// interface is configured.
type Link struct {
	name string
	ch   chan core.Packet
}

// NewLink creates a Link with the given buffer depth.
func NewLink(name string, depth int) *Link {
	if depth <= 0 {
		depth = 1024
	}
	return &Link{name: name, ch: make(chan core.Packet, depth)}
}

func (l *Link) Name() string { return l.name }

func (l *Link) Init(map[string]any) error { return nil }

func (l *Link) Start(context.Context) error { return nil }

func (l *Link) Stop(context.Context) error { return nil }

// Send enqueues pkt without blocking; it reports core.ErrPortClosed if
// the link's buffer is full (backpressure is the caller's problem to
// handle, matching §5's no-suspension-points rule).
func (l *Link) Send(pkt core.Packet) error {
	select {
	case l.ch <- pkt:
		return nil
	default:
		return core.ErrPortClosed
	}
}

// Recv returns the next queued packet without blocking.
func (l *Link) Recv() (core.Packet, bool) {
	select {
	case pkt := <-l.ch:
		return pkt, true
	default:
		return core.Packet{}, false
	}
}

// Len reports the number of packets currently queued.
func (l *Link) Len() int { return len(l.ch) }
