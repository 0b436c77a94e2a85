// ICMP Type 3 Code 4 ("Fragmentation Needed", RFC 1191) parsing for the
// PMTUD ingest phase.
package headers

import (
	"encoding/binary"
	"net/netip"

	"github.com/otusnet/fragmentd/internal/core"
)

const (
	ICMPDestUnreachable = 3
	ICMPCodeFragNeeded  = 4

	icmpHeaderLen = 8 // type,code,checksum,unused(2),next-hop-mtu(2)
)

// PacketTooBig is the parsed contents of an ICMP Type 3 Code 4 message:
// the advertised next-hop MTU and the IPv4 header it quotes (the
// datagram that triggered the message).
type PacketTooBig struct {
	NextHopMTU uint16
	QuotedSrc  netip.Addr
	QuotedDst  netip.Addr
}

// VerifyICMPChecksum verifies the Internet checksum over the full ICMP
// message (header + body), per the ICMP checksum semantics called out
// in the core spec's design notes: payload here means the ICMP
// message itself, not the inner quoted IP datagram.
func VerifyICMPChecksum(icmp []byte) bool {
	if len(icmp) < icmpHeaderLen {
		return false
	}
	return InternetChecksum(icmp) == 0
}

// ParsePacketTooBig parses an ICMP Type 3 Code 4 message body (icmp is
// the ICMP header+body, starting at the type byte) into its next-hop
// MTU and the quoted original IPv4 header's source/destination. It
// returns core.ErrPacketTooShort if the quoted header is truncated
// below the minimum IPv4 header length.
func ParsePacketTooBig(icmp []byte) (PacketTooBig, error) {
	if len(icmp) < icmpHeaderLen {
		return PacketTooBig{}, core.ErrPacketTooShort
	}
	if icmp[0] != ICMPDestUnreachable || icmp[1] != ICMPCodeFragNeeded {
		return PacketTooBig{}, core.ErrNotIPv4
	}

	ptb := PacketTooBig{
		NextHopMTU: binary.BigEndian.Uint16(icmp[6:8]),
	}

	quoted := icmp[icmpHeaderLen:]
	qv, err := ParseIPv4View(quoted)
	if err != nil {
		return ptb, err
	}
	ptb.QuotedSrc = qv.SrcIP()
	ptb.QuotedDst = qv.DstIP()
	return ptb, nil
}
