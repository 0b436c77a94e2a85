// PMTUD ingest (§4.4): matches inbound packets against the ptb_filter,
// validates, and updates the per-destination MTU cache.
package fragmenter

import (
	"time"

	"github.com/otusnet/fragmentd/internal/core"
	"github.com/otusnet/fragmentd/internal/headers"
)

func (s *Stage) processPTB(pkt core.Packet, now time.Time) {
	eth, payloadOff, err := headers.ParseEthernet(pkt.Data)
	if err != nil || eth.EtherType != headers.EtherTypeIPv4 {
		_ = s.north.Send(pkt)
		return
	}

	outerIPv4, err := headers.ParseIPv4View(pkt.Data[payloadOff:])
	if err != nil {
		_ = s.north.Send(pkt)
		return
	}

	icmpOff := payloadOff + outerIPv4.HeaderLen()
	if icmpOff >= len(pkt.Data) || !s.filter.Match(pkt.Data[payloadOff:]) {
		_ = s.north.Send(pkt)
		return
	}

	s.counters.IncPTBReceived(1)
	s.processValidatedPTB(pkt, outerIPv4, pkt.Data[icmpOff:], now)
}

// processValidatedPTB implements process_ptb once the ptb_filter has
// matched. icmp is the ICMP header+body slice.
func (s *Stage) processValidatedPTB(pkt core.Packet, outerIPv4 headers.IPv4View, icmp []byte, now time.Time) {
	if len(s.localAddrs) > 0 {
		if _, ours := s.localAddrs[outerIPv4.DstIP()]; !ours {
			// Not for us: forward upstream, do not free (§4.4).
			_ = s.north.Send(pkt)
			return
		}
	}

	if !headers.VerifyICMPChecksum(icmp) {
		s.counters.IncPTBInvalidChecksum(1)
		return // consumed
	}

	ptb, err := headers.ParsePacketTooBig(icmp)
	if err != nil {
		s.counters.IncPTBInvalid(1)
		return
	}

	accept := len(s.localAddrs) == 0
	if !accept {
		_, accept = s.localAddrs[ptb.QuotedSrc]
	}
	if !accept {
		s.counters.IncPTBInvalid(1)
		return
	}

	s.counters.IncPTBValid(1)
	s.dcache.Set(ptb.QuotedDst, ptb.NextHopMTU, now)
	s.counters.SetDCacheOccupancy(s.dcache.Len())
}
