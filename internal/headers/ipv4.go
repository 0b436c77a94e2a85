// IPv4 byte-level view: the fragment engine and PMTUD ingest operate
// directly on the wire bytes instead of a decoded struct, since the
// fragment engine must copy the header verbatim and patch three fields
// (id, flags/offset, checksum) in place.
package headers

import (
	"encoding/binary"
	"net/netip"

	"github.com/otusnet/fragmentd/internal/core"
)

const (
	IPv4MinHeaderLen = 20

	flagMoreFragments = 0x1
	flagDontFragment  = 0x2
	flagsShift        = 13
	offsetMask        = 0x1FFF
)

// IPv4View overlays an IPv4 header directly on a byte slice. Callers are
// responsible for ensuring the slice is at least IPv4MinHeaderLen long
// before calling any accessor; ParseIPv4View checks that much up front.
type IPv4View []byte

// ParseIPv4View validates the minimum header length and returns a view
// over data (no copy).
func ParseIPv4View(data []byte) (IPv4View, error) {
	if len(data) < IPv4MinHeaderLen {
		return nil, core.ErrPacketTooShort
	}
	v := IPv4View(data)
	if len(data) < v.HeaderLen() {
		return nil, core.ErrPacketTooShort
	}
	return v, nil
}

func (v IPv4View) IHL() uint8       { return v[0] & 0x0F }
func (v IPv4View) HeaderLen() int   { return int(v.IHL()) * 4 }
func (v IPv4View) TotalLen() uint16 { return binary.BigEndian.Uint16(v[2:4]) }
func (v IPv4View) ID() uint16       { return binary.BigEndian.Uint16(v[4:6]) }

func (v IPv4View) flagsAndOffset() uint16 { return binary.BigEndian.Uint16(v[6:8]) }
func (v IPv4View) Flags() uint8           { return uint8(v.flagsAndOffset() >> 13) }
func (v IPv4View) DontFragment() bool     { return v.Flags()&flagDontFragment != 0 }
func (v IPv4View) MoreFragments() bool    { return v.Flags()&flagMoreFragments != 0 }
func (v IPv4View) FragmentOffset() uint16 { return v.flagsAndOffset() & offsetMask }

func (v IPv4View) TTL() uint8      { return v[8] }
func (v IPv4View) Protocol() uint8 { return v[9] }
func (v IPv4View) Checksum() uint16 { return binary.BigEndian.Uint16(v[10:12]) }

func (v IPv4View) SrcIP() netip.Addr {
	addr, _ := netip.AddrFromSlice(v[12:16])
	return addr
}

func (v IPv4View) DstIP() netip.Addr {
	addr, _ := netip.AddrFromSlice(v[16:20])
	return addr
}

// SetID writes the 16-bit identification field.
func (v IPv4View) SetID(id uint16) { binary.BigEndian.PutUint16(v[4:6], id) }

// SetTotalLen writes the total length field.
func (v IPv4View) SetTotalLen(n uint16) { binary.BigEndian.PutUint16(v[2:4], n) }

// SetFlagsAndOffset packs the 3-bit flags and 13-bit fragment-offset
// (in 8-byte units) into the combined field.
func (v IPv4View) SetFlagsAndOffset(flags uint8, offsetUnits uint16) {
	packed := (uint16(flags&0x7) << flagsShift) | (offsetUnits & offsetMask)
	binary.BigEndian.PutUint16(v[6:8], packed)
}

// SetChecksum writes the checksum field directly (no recompute).
func (v IPv4View) SetChecksum(c uint16) { binary.BigEndian.PutUint16(v[10:12], c) }

// ZeroChecksum clears the checksum field prior to ComputeChecksum.
func (v IPv4View) ZeroChecksum() { v.SetChecksum(0) }

// ComputeChecksum computes the Internet checksum (RFC 791 §3.1) over
// exactly the first HeaderLen() bytes of v. The checksum field must be
// zeroed first (ZeroChecksum).
func (v IPv4View) ComputeChecksum() uint16 {
	return InternetChecksum(v[:v.HeaderLen()])
}

// FixChecksum zeroes the checksum field, recomputes it over the header,
// and writes the result back. This is the call sites use after patching
// any of id/flags/offset/total-length.
func (v IPv4View) FixChecksum() {
	v.ZeroChecksum()
	v.SetChecksum(v.ComputeChecksum())
}

// VerifyChecksum reports whether the header's stored checksum is
// correct: recomputing the Internet checksum over the header as stored
// (including the checksum field itself) must fold to zero.
func (v IPv4View) VerifyChecksum() bool {
	return InternetChecksum(v[:v.HeaderLen()]) == 0
}

// HasValidLength implements ipv4_packet_has_valid_length (§4.1): the
// frame must be at least l2HeaderLen+20 bytes, the IPv4 header at
// least 20 bytes, and the IPv4 total_length must equal
// frameLen-l2HeaderLen. l2HeaderLen is the caller's actual Ethernet
// header length (ParseEthernet's returned offset), which varies with
// VLAN tagging.
func HasValidLength(frameLen, l2HeaderLen int, v IPv4View) bool {
	return frameLen >= l2HeaderLen+IPv4MinHeaderLen &&
		v.HeaderLen() >= IPv4MinHeaderLen &&
		int(v.TotalLen()) == frameLen-l2HeaderLen
}

// InternetChecksum computes the RFC 1071 ones-complement checksum over
// data. When data (including any existing checksum field) is summed,
// a correct checksum folds the result to 0.
func InternetChecksum(data []byte) uint16 {
	var sum uint32
	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
	}
	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}
