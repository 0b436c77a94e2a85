// Fragment engine (§4.3): splits an over-MTU IPv4 datagram into
// correctly framed fragments.
package fragmenter

import (
	"time"

	"github.com/otusnet/fragmentd/internal/core"
	"github.com/otusnet/fragmentd/internal/headers"
)

// fragment implements the §4.3 algorithm. headerOff is the byte offset
// of the IPv4 header within pkt.Data (14, absent VLAN tags); ipv4 is a
// view already anchored there; effectiveMTU is the chosen egress MTU
// (L3, excludes the 14-byte Ethernet header). now feeds the
// outgoing-fragments-per-second alarm (§6).
func (s *Stage) fragment(pkt core.Packet, headerOff int, ipv4 headers.IPv4View, effectiveMTU uint16, now time.Time) {
	flags := ipv4.Flags()
	df := ipv4.DontFragment()

	if df && !s.cfg.PMTUDEnabled {
		// §4.3 step 2: DF set, no PMTUD: drop silently. ICMP
		// origination back to the source remains a documented gap
		// (§7.2, §9).
		return
	}
	// step 3: PMTUD on + DF set: fragment anyway, the premise being
	// that the learned PMTU already authorizes it.

	headerSize := headerOff + ipv4.HeaderLen()
	totalPayload := len(pkt.Data) - headerSize
	if totalPayload <= 0 {
		return
	}

	newID := s.nextFragID
	s.nextFragID = (s.nextFragID + 1) & 0xFFFF

	maxPayload := int(effectiveMTU) + headerOff - headerSize

	offset := 0
	for offset < totalPayload {
		payloadSize := maxPayload
		var fragFlags uint8
		if offset+payloadSize < totalPayload {
			payloadSize &= 0xFFF8 // round down to a multiple of 8
			fragFlags = flags | 0x1 // more_fragments
		} else {
			payloadSize = totalPayload - offset
			fragFlags = flags &^ 0x1
		}

		out := make([]byte, headerSize+payloadSize)
		copy(out, pkt.Data[:headerSize])
		copy(out[headerSize:], pkt.Data[headerOff+ipv4.HeaderLen()+offset:headerOff+ipv4.HeaderLen()+offset+payloadSize])

		outView, _ := headers.ParseIPv4View(out[headerOff:])
		outView.SetID(newID)
		outView.SetTotalLen(uint16(len(out) - headerOff))
		outView.SetFlagsAndOffset(fragFlags, uint16(offset/8))
		outView.FixChecksum()

		fragPkt := core.NewPacket(out, pkt.Timestamp)
		_ = s.output.Send(fragPkt)
		s.counters.IncFrag(1)
		s.alarms.Record("outgoing-ipv4-fragments", 1, now)

		offset += payloadSize
	}
}
