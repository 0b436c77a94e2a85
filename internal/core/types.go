// Package core defines core types with zero external dependencies.
package core

import "net/netip"

// EthernetHeader is the decoded convenience view of an Ethernet frame
// header, used by the classifier and PMTUD ingest phases. The fragment
// engine works directly on bytes instead (internal/headers) since it
// needs to copy the header verbatim rather than reinterpret it.
type EthernetHeader struct {
	DstMAC    [6]byte
	SrcMAC    [6]byte
	EtherType uint16
	VLANs     []uint16 // one VLAN ID per stacked tag, outermost first; QinQ carries 2
}

// IPv4Header is the decoded convenience view of an IPv4 header.
type IPv4Header struct {
	IHL            uint8 // in 32-bit words
	TotalLen       uint16
	ID             uint16
	DontFragment   bool
	MoreFragments  bool
	FragmentOffset uint16 // in 8-byte units
	TTL            uint8
	Protocol       uint8
	Checksum       uint16
	SrcIP          netip.Addr
	DstIP          netip.Addr
}

// HeaderLen returns the IPv4 header length in bytes.
func (h IPv4Header) HeaderLen() int {
	return int(h.IHL) * 4
}
