// Package headers implements Ethernet and IPv4 header parsing and the
// byte-level IPv4 view the fragment engine slices directly. It has no
// ARP/IPv6 path: the fragmenter only ever forwards non-IPv4 frames
// untouched (see internal/fragmenter's classifier).
package headers

import (
	"encoding/binary"

	"github.com/otusnet/fragmentd/internal/core"
)

const (
	EthernetHeaderLen = 14
	vlanHeaderLen     = 4

	EtherTypeIPv4 = 0x0800
	etherTypeVLAN = 0x8100
	etherTypeQinQ = 0x88A8
)

// ParseEthernet decodes the Ethernet header (including nested VLAN tags)
// and returns the decoded view plus the byte offset where the payload
// (the IPv4 datagram, if EtherType is 0x0800) starts.
func ParseEthernet(data []byte) (core.EthernetHeader, int, error) {
	if len(data) < EthernetHeaderLen {
		return core.EthernetHeader{}, 0, core.ErrPacketTooShort
	}

	eth := core.EthernetHeader{}
	copy(eth.DstMAC[:], data[0:6])
	copy(eth.SrcMAC[:], data[6:12])

	etherType := binary.BigEndian.Uint16(data[12:14])
	offset := EthernetHeaderLen

	var vlans []uint16
	for etherType == etherTypeVLAN || etherType == etherTypeQinQ {
		if len(data) < offset+vlanHeaderLen {
			return eth, 0, core.ErrPacketTooShort
		}
		tci := binary.BigEndian.Uint16(data[offset : offset+2])
		vlans = append(vlans, tci&0x0FFF)
		etherType = binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += vlanHeaderLen
	}

	eth.EtherType = etherType
	eth.VLANs = vlans
	return eth, offset, nil
}
