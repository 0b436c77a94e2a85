// Package afpacket is a concrete realization of the "host Ethernet I/O
// port" collaborator the core spec treats as external, using
// gopacket/afpacket the same way internal/source/afpacket/source.go
// captured raw frames for the teacher's pipeline. It is on the port
// registry, not on the fragmenter core's import graph: the core only
// ever sees the ports.Port interface.
package afpacket

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"

	"github.com/otusnet/fragmentd/internal/core"
	"github.com/otusnet/fragmentd/internal/ports"
)

const Name = "afpacket"

func init() {
	ports.Register(Name, func() ports.Port { return &Port{} })
}

// Port reads and writes raw Ethernet frames on a Linux AF_PACKET socket.
type Port struct {
	handle *afpacket.TPacket

	device       string
	frameSize    int
	blockSize    int
	numBlocks    int
	timeoutMs    int
	fanoutID     uint16
	bpfFilter    string
}

func (p *Port) Name() string { return Name }

// Init reads the afpacket-specific subset of config from the generic
// map the port registry hands every adapter (device, snap_len,
// buffer_size_mb, timeout_ms, fanout_id, bpf_filter), deriving the
// frame/block/numBlocks triple with the same alignment arithmetic
// internal/source/afpacket/util.go used.
func (p *Port) Init(cfg map[string]any) error {
	p.device, _ = cfg["device"].(string)
	if p.device == "" {
		return fmt.Errorf("afpacket: device is required")
	}
	snapLen := intOr(cfg["snap_len"], 262144)
	bufMB := intOr(cfg["buffer_size_mb"], 16)
	p.timeoutMs = intOr(cfg["timeout_ms"], 100)
	p.fanoutID = uint16(intOr(cfg["fanout_id"], 0))
	p.bpfFilter, _ = cfg["bpf_filter"].(string)

	frameSize, blockSize, numBlocks, err := recomputeSize(bufMB, snapLen, os.Getpagesize())
	if err != nil {
		return fmt.Errorf("afpacket: %w", err)
	}
	p.frameSize, p.blockSize, p.numBlocks = frameSize, blockSize, numBlocks
	return nil
}

func intOr(v any, def int) int {
	if n, ok := v.(int); ok {
		return n
	}
	return def
}

func (p *Port) Start(ctx context.Context) error {
	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(p.device),
		afpacket.OptFrameSize(p.frameSize),
		afpacket.OptBlockSize(p.blockSize),
		afpacket.OptNumBlocks(p.numBlocks),
		afpacket.OptPollTimeout(time.Duration(p.timeoutMs)*time.Millisecond),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return fmt.Errorf("afpacket: open %s: %w", p.device, err)
	}

	if p.fanoutID > 0 {
		if err := tp.SetFanout(afpacket.FanoutHashWithDefrag, p.fanoutID); err != nil {
			return err
		}
	}

	if p.bpfFilter != "" {
		pcapBPF, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, p.frameSize, p.bpfFilter)
		if err != nil {
			return err
		}
		raw := make([]bpf.RawInstruction, len(pcapBPF))
		for i, inst := range pcapBPF {
			raw[i] = bpf.RawInstruction{Op: inst.Code, Jt: inst.Jt, Jf: inst.Jf, K: inst.K}
		}
		if err := tp.SetBPF(raw); err != nil {
			return err
		}
	}

	p.handle = tp
	return nil
}

func (p *Port) Stop(context.Context) error {
	if p.handle != nil {
		p.handle.Close()
		p.handle = nil
	}
	return nil
}

// Recv reads one frame off the socket. Unlike ports.Link, this is a
// blocking-underneath call surfaced as non-blocking by the poll
// timeout configured in Start; on timeout it returns (zero, false).
func (p *Port) Recv() (core.Packet, bool) {
	if p.handle == nil {
		return core.Packet{}, false
	}
	data, ci, err := p.handle.ReadPacketData()
	if err != nil {
		return core.Packet{}, false
	}
	return core.NewPacket(data, ci.Timestamp), true
}

// Send writes pkt's raw bytes to the interface.
func (p *Port) Send(pkt core.Packet) error {
	if p.handle == nil {
		return core.ErrPortClosed
	}
	return p.handle.WritePacketData(pkt.Data)
}
