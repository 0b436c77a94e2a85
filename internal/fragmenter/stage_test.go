package fragmenter

import (
	"net/netip"
	"testing"
	"time"

	"github.com/otusnet/fragmentd/internal/core"
	"github.com/otusnet/fragmentd/internal/headers"
	"github.com/otusnet/fragmentd/internal/ports"
)

// buildFrame returns a complete Ethernet+IPv4 frame (no VLAN) with the
// given flags/DF and a payload of payloadLen zero bytes, header
// checksum already fixed up.
func buildFrame(t *testing.T, id uint16, df bool, src, dst netip.Addr, payloadLen int) []byte {
	t.Helper()
	const ihl = 5
	headerLen := ihl * 4
	frame := make([]byte, headers.EthernetHeaderLen+headerLen+payloadLen)
	// arbitrary MACs
	copy(frame[0:6], []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	copy(frame[6:12], []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66})
	frame[12] = 0x08
	frame[13] = 0x00

	ipv4 := frame[headers.EthernetHeaderLen:]
	ipv4[0] = 0x40 | ihl
	var flags uint8
	if df {
		flags = 0x2
	}
	v := headers.IPv4View(ipv4)
	v.SetFlagsAndOffset(flags, 0)
	v.SetID(id)
	v.SetTotalLen(uint16(headerLen + payloadLen))
	ipv4[8] = 64 // ttl
	ipv4[9] = 17 // udp
	srcBytes := src.As4()
	dstBytes := dst.As4()
	copy(ipv4[12:16], srcBytes[:])
	copy(ipv4[16:20], dstBytes[:])
	v.FixChecksum()

	for i := 0; i < payloadLen; i++ {
		ipv4[headerLen+i] = byte(i)
	}
	return frame
}

func newTestStage(t *testing.T, cfg Config) (*Stage, *ports.Link, *ports.Link, *ports.Link, *ports.Link, *MemCounters) {
	t.Helper()
	in := ports.NewLink("input", 256)
	out := ports.NewLink("output", 256)
	var south, north *ports.Link
	var southPort, northPort ports.Port
	if cfg.PMTUDEnabled {
		south = ports.NewLink("south", 256)
		north = ports.NewLink("north", 256)
		southPort, northPort = south, north
	}
	counters := &MemCounters{}
	s, err := New(cfg, in, out, southPort, northPort, counters, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, in, out, south, north, counters
}

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	a, err := netip.ParseAddr(s)
	if err != nil {
		t.Fatalf("ParseAddr(%q): %v", s, err)
	}
	return a
}

// TestSimpleSplit covers §8 scenario 1: MTU=500, payload 1400, expect
// fragments 480/480/440 at offsets 0/60/120 with MF 1/1/0.
func TestSimpleSplit(t *testing.T) {
	s, in, out, _, _, counters := newTestStage(t, Config{MTU: 500, DeterministicSeed: true})

	src := mustAddr(t, "10.0.0.1")
	dst := mustAddr(t, "10.0.0.2")
	frame := buildFrame(t, 0, false, src, dst, 1400)
	if err := in.Send(core.NewPacket(frame, time.Time{})); err != nil {
		t.Fatalf("Send: %v", err)
	}

	s.Tick(time.Unix(0, 0))

	wantSizes := []int{480, 480, 440}
	wantOffsets := []uint16{0, 60, 120}
	wantMF := []bool{true, true, false}

	var id uint16
	for i, wantSize := range wantSizes {
		pkt, ok := out.Recv()
		if !ok {
			t.Fatalf("fragment %d: missing", i)
		}
		v, err := headers.ParseIPv4View(pkt.Data[headers.EthernetHeaderLen:])
		if err != nil {
			t.Fatalf("fragment %d: ParseIPv4View: %v", i, err)
		}
		payload := len(pkt.Data) - headers.EthernetHeaderLen - v.HeaderLen()
		if payload != wantSize {
			t.Errorf("fragment %d: payload = %d, want %d", i, payload, wantSize)
		}
		if v.FragmentOffset() != wantOffsets[i] {
			t.Errorf("fragment %d: offset = %d, want %d", i, v.FragmentOffset(), wantOffsets[i])
		}
		if v.MoreFragments() != wantMF[i] {
			t.Errorf("fragment %d: MF = %v, want %v", i, v.MoreFragments(), wantMF[i])
		}
		if !v.VerifyChecksum() {
			t.Errorf("fragment %d: checksum invalid", i)
		}
		if i == 0 {
			id = v.ID()
		} else if v.ID() != id {
			t.Errorf("fragment %d: ID = %#x, want %#x (shared)", i, v.ID(), id)
		}
	}
	if _, ok := out.Recv(); ok {
		t.Error("unexpected extra fragment")
	}
	if counters.Frag.Load() != 3 {
		t.Errorf("Frag counter = %d, want 3", counters.Frag.Load())
	}
}

// TestMinimumMTU covers §8 scenario 2: MTU=68, payload 200.
func TestMinimumMTU(t *testing.T) {
	s, in, out, _, _, _ := newTestStage(t, Config{MTU: 68, DeterministicSeed: true})

	src := mustAddr(t, "10.0.0.1")
	dst := mustAddr(t, "10.0.0.2")
	frame := buildFrame(t, 0, false, src, dst, 200)
	in.Send(core.NewPacket(frame, time.Time{}))

	s.Tick(time.Unix(0, 0))

	wantOffsets := []uint16{0, 6, 12, 18, 24}
	total := 0
	for i, wantOff := range wantOffsets {
		pkt, ok := out.Recv()
		if !ok {
			t.Fatalf("fragment %d: missing", i)
		}
		v, _ := headers.ParseIPv4View(pkt.Data[headers.EthernetHeaderLen:])
		payload := len(pkt.Data) - headers.EthernetHeaderLen - v.HeaderLen()
		if payload > 48 {
			t.Errorf("fragment %d: payload %d exceeds 48", i, payload)
		}
		if i < len(wantOffsets)-1 && payload%8 != 0 {
			t.Errorf("fragment %d: payload %d not a multiple of 8", i, payload)
		}
		if v.FragmentOffset() != wantOff {
			t.Errorf("fragment %d: offset = %d, want %d", i, v.FragmentOffset(), wantOff)
		}
		total += payload
	}
	if total != 200 {
		t.Errorf("total payload = %d, want 200", total)
	}
	if _, ok := out.Recv(); ok {
		t.Error("unexpected extra fragment")
	}
}

// TestNoFragmentNeeded covers §8 scenario 3.
func TestNoFragmentNeeded(t *testing.T) {
	s, in, out, _, _, counters := newTestStage(t, Config{MTU: 1500})

	src := mustAddr(t, "10.0.0.1")
	dst := mustAddr(t, "10.0.0.2")
	frame := buildFrame(t, 0, false, src, dst, 966) // full frame length 1000

	in.Send(core.NewPacket(frame, time.Time{}))
	s.Tick(time.Unix(0, 0))

	pkt, ok := out.Recv()
	if !ok {
		t.Fatal("expected passthrough packet")
	}
	if len(pkt.Data) != len(frame) {
		t.Errorf("passthrough length = %d, want %d", len(pkt.Data), len(frame))
	}
	if _, ok := out.Recv(); ok {
		t.Error("unexpected second output")
	}
	if counters.FragNot.Load() != 1 {
		t.Errorf("FragNot = %d, want 1", counters.FragNot.Load())
	}
	if counters.Frag.Load() != 0 {
		t.Errorf("Frag = %d, want 0", counters.Frag.Load())
	}
}

// TestDFDrop covers §8 scenario 4: PMTUD off, DF set, oversize.
func TestDFDrop(t *testing.T) {
	s, in, out, _, _, counters := newTestStage(t, Config{MTU: 500})

	src := mustAddr(t, "10.0.0.1")
	dst := mustAddr(t, "10.0.0.2")
	frame := buildFrame(t, 0, true, src, dst, 1000)

	in.Send(core.NewPacket(frame, time.Time{}))
	s.Tick(time.Unix(0, 0))

	if _, ok := out.Recv(); ok {
		t.Error("expected no output for dropped DF packet")
	}
	if counters.Frag.Load() != 0 || counters.FragNot.Load() != 0 {
		t.Errorf("counters changed: frag=%d fragNot=%d, want 0,0",
			counters.Frag.Load(), counters.FragNot.Load())
	}
}

// TestDFNotNeeded: DF set but packet already fits -> single passthrough.
func TestDFNotNeeded(t *testing.T) {
	s, in, out, _, _, _ := newTestStage(t, Config{MTU: 1500})

	src := mustAddr(t, "10.0.0.1")
	dst := mustAddr(t, "10.0.0.2")
	frame := buildFrame(t, 0, true, src, dst, 100)

	in.Send(core.NewPacket(frame, time.Time{}))
	s.Tick(time.Unix(0, 0))

	pkt, ok := out.Recv()
	if !ok {
		t.Fatal("expected passthrough")
	}
	if len(pkt.Data) != len(frame) {
		t.Errorf("length = %d, want %d", len(pkt.Data), len(frame))
	}
}

// buildPTBFrame builds an Ethernet+IPv4(ICMP)+ICMP-PTB frame quoting an
// inner IPv4 header from quotedSrc to quotedDst, advertising mtu.
func buildPTBFrame(t *testing.T, outerSrc, outerDst, quotedSrc, quotedDst netip.Addr, mtu uint16) []byte {
	t.Helper()
	const outerIHL = 5
	outerHeaderLen := outerIHL * 4
	const icmpHeaderLen = 8
	const quotedHeaderLen = 20
	icmpLen := icmpHeaderLen + quotedHeaderLen

	frame := make([]byte, headers.EthernetHeaderLen+outerHeaderLen+icmpLen)
	frame[12] = 0x08
	frame[13] = 0x00

	outer := frame[headers.EthernetHeaderLen:]
	outer[0] = 0x40 | outerIHL
	outerV := headers.IPv4View(outer)
	outerV.SetTotalLen(uint16(outerHeaderLen + icmpLen))
	outer[8] = 64
	outer[9] = 1 // ICMP
	outerSrcBytes := outerSrc.As4()
	outerDstBytes := outerDst.As4()
	copy(outer[12:16], outerSrcBytes[:])
	copy(outer[16:20], outerDstBytes[:])
	outerV.FixChecksum()

	icmp := outer[outerHeaderLen:]
	icmp[0] = headers.ICMPDestUnreachable
	icmp[1] = headers.ICMPCodeFragNeeded
	icmp[6] = byte(mtu >> 8)
	icmp[7] = byte(mtu)

	quoted := icmp[icmpHeaderLen:]
	quoted[0] = 0x40 | 5
	quotedV := headers.IPv4View(quoted)
	quotedV.SetTotalLen(40)
	quotedSrcBytes := quotedSrc.As4()
	quotedDstBytes := quotedDst.As4()
	copy(quoted[12:16], quotedSrcBytes[:])
	copy(quoted[16:20], quotedDstBytes[:])
	quotedV.FixChecksum()

	// ICMP checksum is over the whole ICMP message (header + quoted
	// IP), per §9's checksum-ambiguity note.
	binary16put(icmp, 2, 0)
	cs := headers.InternetChecksum(icmp)
	binary16put(icmp, 2, cs)

	return frame
}

func binary16put(b []byte, off int, v uint16) {
	b[off] = byte(v >> 8)
	b[off+1] = byte(v)
}

// TestPTBLearnAndApply covers §8 scenario 5.
func TestPTBLearnAndApply(t *testing.T) {
	local := mustAddr(t, "10.0.0.1")
	cfg := Config{MTU: 1500, PMTUDEnabled: true, PMTUTimeout: 600 * time.Second,
		PMTULocalAddresses: []netip.Addr{local}, DeterministicSeed: true}
	s, in, out, south, _, counters := newTestStage(t, cfg)

	quotedDst := mustAddr(t, "203.0.113.7")
	ptbFrame := buildPTBFrame(t, local, local, local, quotedDst, 1400)
	if err := south.Send(core.NewPacket(ptbFrame, time.Time{})); err != nil {
		t.Fatalf("Send PTB: %v", err)
	}

	now := time.Unix(1000, 0)
	s.Tick(now)

	if counters.PTBValid.Load() != 1 {
		t.Errorf("PTBValid = %d, want 1", counters.PTBValid.Load())
	}
	if mtu, ok := s.dcache.Get(quotedDst); !ok || mtu != 1400 {
		t.Errorf("dcache[%v] = (%d, %v), want (1400, true)", quotedDst, mtu, ok)
	}

	// A 1506-byte (IPv4 total length) packet to 203.0.113.7 should fragment at MTU=1400,
	// not the configured 1500.
	frame := buildFrame(t, 0, false, local, quotedDst, 1486) // IHL(20)+1486=1506 total len
	if err := in.Send(core.NewPacket(frame, time.Time{})); err != nil {
		t.Fatalf("Send data: %v", err)
	}
	s.Tick(now)

	pkt, ok := out.Recv()
	if !ok {
		t.Fatal("expected a fragment")
	}
	v, _ := headers.ParseIPv4View(pkt.Data[headers.EthernetHeaderLen:])
	payload := len(pkt.Data) - headers.EthernetHeaderLen - v.HeaderLen()
	// effective MTU 1400 -> max payload = 1400-20 = 1380, rounded to 1376
	if payload != 1376 {
		t.Errorf("first fragment payload = %d, want 1376 (MTU 1400 applied)", payload)
	}
}

// TestPTBExpiry covers §8 scenario 6.
func TestPTBExpiry(t *testing.T) {
	local := mustAddr(t, "10.0.0.1")
	cfg := Config{MTU: 1500, PMTUDEnabled: true, PMTUTimeout: 600 * time.Second,
		PMTULocalAddresses: []netip.Addr{local}, DeterministicSeed: true}
	s, in, out, south, _, _ := newTestStage(t, cfg)

	quotedDst := mustAddr(t, "203.0.113.7")
	ptbFrame := buildPTBFrame(t, local, local, local, quotedDst, 1400)
	south.Send(core.NewPacket(ptbFrame, time.Time{}))

	start := time.Unix(1000, 0)
	s.Tick(start)

	if _, ok := s.dcache.Get(quotedDst); !ok {
		t.Fatal("expected dcache entry before expiry")
	}

	later := start.Add(601 * time.Second)
	s.Tick(later) // throttle due, sweep runs

	if _, ok := s.dcache.Get(quotedDst); ok {
		t.Error("expected dcache entry to be expired")
	}

	frame := buildFrame(t, 0, false, local, quotedDst, 1486)
	in.Send(core.NewPacket(frame, time.Time{}))
	s.Tick(later)

	pkt, ok := out.Recv()
	if !ok {
		t.Fatal("expected a fragment")
	}
	v, _ := headers.ParseIPv4View(pkt.Data[headers.EthernetHeaderLen:])
	payload := len(pkt.Data) - headers.EthernetHeaderLen - v.HeaderLen()
	// back to configured MTU 1500 -> max payload 1480, rounded to 1480
	if payload != 1480 {
		t.Errorf("first fragment payload = %d, want 1480 (configured MTU applied)", payload)
	}
}

// TestPTBFilterNotForUs covers the "PTB acceptance filter" property:
// an outer destination not in a non-empty local_addr_table is
// forwarded unchanged on north and never touches the cache.
func TestPTBFilterNotForUs(t *testing.T) {
	local := mustAddr(t, "10.0.0.1")
	other := mustAddr(t, "10.0.0.9")
	cfg := Config{MTU: 1500, PMTUDEnabled: true, PMTUTimeout: 600 * time.Second,
		PMTULocalAddresses: []netip.Addr{local}, DeterministicSeed: true}
	s, _, _, south, north, counters := newTestStage(t, cfg)

	quotedDst := mustAddr(t, "203.0.113.7")
	ptbFrame := buildPTBFrame(t, local, other, local, quotedDst, 1400)
	south.Send(core.NewPacket(ptbFrame, time.Time{}))

	s.Tick(time.Unix(0, 0))

	if _, ok := north.Recv(); !ok {
		t.Error("expected PTB not for us to be forwarded on north")
	}
	if counters.PTBValid.Load() != 0 {
		t.Error("cache must not be updated for a not-for-us PTB")
	}
	if _, ok := s.dcache.Get(quotedDst); ok {
		t.Error("dcache must not gain an entry for a not-for-us PTB")
	}
}

// TestNonIPv4Passthrough: non-IPv4 EtherType forwards unchanged.
func TestNonIPv4Passthrough(t *testing.T) {
	s, in, out, _, _, counters := newTestStage(t, Config{MTU: 1500})
	frame := make([]byte, 60)
	frame[12] = 0x08
	frame[13] = 0x06 // ARP
	in.Send(core.NewPacket(frame, time.Time{}))
	s.Tick(time.Unix(0, 0))

	pkt, ok := out.Recv()
	if !ok || len(pkt.Data) != len(frame) {
		t.Fatal("expected ARP frame forwarded unchanged")
	}
	if counters.FragNot.Load() != 1 {
		t.Errorf("FragNot = %d, want 1", counters.FragNot.Load())
	}
}

// TestMalformedLengthDropped: total_length mismatch is silently dropped.
func TestMalformedLengthDropped(t *testing.T) {
	s, in, out, _, _, counters := newTestStage(t, Config{MTU: 1500})
	src := mustAddr(t, "10.0.0.1")
	dst := mustAddr(t, "10.0.0.2")
	frame := buildFrame(t, 0, false, src, dst, 100)
	// corrupt total_length so it no longer matches frame length.
	v, _ := headers.ParseIPv4View(frame[headers.EthernetHeaderLen:])
	v.SetTotalLen(9999)

	in.Send(core.NewPacket(frame, time.Time{}))
	s.Tick(time.Unix(0, 0))

	if _, ok := out.Recv(); ok {
		t.Error("expected malformed packet to be silently dropped")
	}
	if counters.Frag.Load() != 0 || counters.FragNot.Load() != 0 {
		t.Error("counters should not change for a dropped malformed packet")
	}
}

// TestConsecutiveFragmentIDs: consecutive inputs get consecutive IDs
// mod 2^16, starting at the deterministic seed.
func TestConsecutiveFragmentIDs(t *testing.T) {
	s, in, out, _, _, _ := newTestStage(t, Config{MTU: 500, DeterministicSeed: true})
	src := mustAddr(t, "10.0.0.1")
	dst := mustAddr(t, "10.0.0.2")

	for i := 0; i < 2; i++ {
		in.Send(core.NewPacket(buildFrame(t, 0, false, src, dst, 1000), time.Time{}))
	}
	s.Tick(time.Unix(0, 0))

	var ids []uint16
	for {
		pkt, ok := out.Recv()
		if !ok {
			break
		}
		v, _ := headers.ParseIPv4View(pkt.Data[headers.EthernetHeaderLen:])
		if len(ids) == 0 || ids[len(ids)-1] != v.ID() {
			ids = append(ids, v.ID())
		}
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 distinct fragment IDs, got %v", ids)
	}
	if ids[0] != 0x4242 || ids[1] != 0x4243 {
		t.Errorf("ids = %#x, want [0x4242 0x4243]", ids)
	}
}
