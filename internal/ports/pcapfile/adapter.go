// Package pcapfile is a pcap-file replay port, adapted from
// internal/source/file/source.go's FileSource: same gopacket/pcap
// OpenOffline/ReadPacketData calls, restructured as a ports.Port so a
// captured trace can be pushed through the fragmenter stage without a
// live interface. Useful for input/south replay in tests and demos;
// Send is unsupported since a read-only file has nowhere to write to.
package pcapfile

import (
	"context"
	"fmt"

	"github.com/google/gopacket/pcap"

	"github.com/otusnet/fragmentd/internal/core"
	"github.com/otusnet/fragmentd/internal/ports"
)

const Name = "pcapfile"

func init() {
	ports.Register(Name, func() ports.Port { return &Port{} })
}

// Port replays frames from a pcap capture file.
type Port struct {
	path   string
	handle *pcap.Handle
}

func (p *Port) Name() string { return Name }

// Init reads the "path" field from cfg.
func (p *Port) Init(cfg map[string]any) error {
	path, _ := cfg["path"].(string)
	if path == "" {
		return fmt.Errorf("pcapfile: path is required")
	}
	p.path = path
	return nil
}

func (p *Port) Start(context.Context) error {
	handle, err := pcap.OpenOffline(p.path)
	if err != nil {
		return fmt.Errorf("pcapfile: open %s: %w", p.path, err)
	}
	p.handle = handle
	return nil
}

func (p *Port) Stop(context.Context) error {
	if p.handle != nil {
		p.handle.Close()
		p.handle = nil
	}
	return nil
}

// Recv returns the next packet in the file, or (zero, false) once the
// file is exhausted or hasn't been started.
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

// Send always fails: a pcap file replay port has nothing to write to.
func (p *Port) Send(core.Packet) error {
	return fmt.Errorf("pcapfile: port is read-only")
}
