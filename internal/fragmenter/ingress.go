// Ingress classifier (§4.1) and MTU resolver (§4.2).
package fragmenter

import (
	"net/netip"
	"time"

	"github.com/otusnet/fragmentd/internal/core"
	"github.com/otusnet/fragmentd/internal/headers"
)

// processIngress runs phases 1-3 for one packet read from input.
func (s *Stage) processIngress(pkt core.Packet, now time.Time) {
	eth, payloadOff, err := headers.ParseEthernet(pkt.Data)
	if err != nil {
		// Too short even for an Ethernet header: nothing sane to do
		// with it; drop silently per §7.1.
		return
	}

	if eth.EtherType != headers.EtherTypeIPv4 {
		s.counters.IncFragNot(1)
		_ = s.output.Send(pkt)
		return
	}

	ipv4, err := headers.ParseIPv4View(pkt.Data[payloadOff:])
	if err != nil || !headers.HasValidLength(len(pkt.Data), payloadOff, ipv4) {
		// Malformed input (§7.1): silently free.
		return
	}

	effectiveMTU := s.resolveMTU(ipv4.DstIP())

	// §4.2: length <= effective_mtu + L2 header length means it already fits.
	if len(pkt.Data) <= int(effectiveMTU)+payloadOff {
		s.counters.IncFragNot(1)
		_ = s.output.Send(pkt)
		return
	}

	s.fragment(pkt, payloadOff, ipv4, effectiveMTU, now)
}

// resolveMTU implements §4.2's effective-MTU lookup: the learned PMTU
// cache entry when PMTUD is enabled and present, else the configured
// MTU.
func (s *Stage) resolveMTU(dst netip.Addr) uint16 {
	if s.cfg.PMTUDEnabled {
		if mtu, ok := s.dcache.Get(dst); ok {
			return mtu
		}
	}
	return s.cfg.MTU
}
