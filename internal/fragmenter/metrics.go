package fragmenter

import "sync/atomic"

// Counters is the counter-publication boundary (§6). The core spec
// treats the shared-memory counter block as an external collaborator;
// this repo's Prometheus-backed implementation lives in
// internal/metrics and satisfies this interface.
type Counters interface {
	IncFrag(n uint64)
	IncFragNot(n uint64)
	IncPTBReceived(n uint64)
	IncPTBValid(n uint64)
	IncPTBInvalidChecksum(n uint64)
	IncPTBInvalid(n uint64)
	SetDCacheOccupancy(n int)
}

// NopCounters discards every increment.
type NopCounters struct{}

func (NopCounters) IncFrag(uint64)               {}
func (NopCounters) IncFragNot(uint64)            {}
func (NopCounters) IncPTBReceived(uint64)        {}
func (NopCounters) IncPTBValid(uint64)           {}
func (NopCounters) IncPTBInvalidChecksum(uint64) {}
func (NopCounters) IncPTBInvalid(uint64)         {}
func (NopCounters) SetDCacheOccupancy(int)       {}

// MemCounters is a plain atomic-counter Counters implementation, in
// the style of internal/pipeline/metrics.go's atomic.Uint64 fields,
// used by tests and by the stats CLI against an in-process stage.
type MemCounters struct {
	Frag               atomic.Uint64
	FragNot            atomic.Uint64
	PTBReceived        atomic.Uint64
	PTBValid           atomic.Uint64
	PTBInvalidChecksum atomic.Uint64
	PTBInvalid         atomic.Uint64
	DCacheOccupancy    atomic.Int64
}

func (m *MemCounters) IncFrag(n uint64)               { m.Frag.Add(n) }
func (m *MemCounters) IncFragNot(n uint64)            { m.FragNot.Add(n) }
func (m *MemCounters) IncPTBReceived(n uint64)        { m.PTBReceived.Add(n) }
func (m *MemCounters) IncPTBValid(n uint64)           { m.PTBValid.Add(n) }
func (m *MemCounters) IncPTBInvalidChecksum(n uint64) { m.PTBInvalidChecksum.Add(n) }
func (m *MemCounters) IncPTBInvalid(n uint64)         { m.PTBInvalid.Add(n) }
func (m *MemCounters) SetDCacheOccupancy(n int)       { m.DCacheOccupancy.Store(int64(n)) }

// Snapshot returns the current counter values as a plain map, used by
// the daemon's stats control handler.
func (m *MemCounters) Snapshot() map[string]int64 {
	return map[string]int64{
		"out_ipv4_frag_total":             int64(m.Frag.Load()),
		"out_ipv4_frag_not_total":         int64(m.FragNot.Load()),
		"ipv4_pmtud_ptb_received_total":   int64(m.PTBReceived.Load()),
		"ipv4_pmtud_ptb_valid_total":      int64(m.PTBValid.Load()),
		"ipv4_pmtud_ptb_invalid_csum_total": int64(m.PTBInvalidChecksum.Load()),
		"ipv4_pmtud_ptb_invalid_total":    int64(m.PTBInvalid.Load()),
		"pmtu_dcache_entries":             m.DCacheOccupancy.Load(),
	}
}

// MultiCounters fans every increment out to each element, letting the
// daemon keep an in-process MemCounters readable by the stats control
// handler while also publishing to Prometheus via PromCounters.
type MultiCounters []Counters

func (m MultiCounters) IncFrag(n uint64) {
	for _, c := range m {
		c.IncFrag(n)
	}
}

func (m MultiCounters) IncFragNot(n uint64) {
	for _, c := range m {
		c.IncFragNot(n)
	}
}

func (m MultiCounters) IncPTBReceived(n uint64) {
	for _, c := range m {
		c.IncPTBReceived(n)
	}
}

func (m MultiCounters) IncPTBValid(n uint64) {
	for _, c := range m {
		c.IncPTBValid(n)
	}
}

func (m MultiCounters) IncPTBInvalidChecksum(n uint64) {
	for _, c := range m {
		c.IncPTBInvalidChecksum(n)
	}
}

func (m MultiCounters) IncPTBInvalid(n uint64) {
	for _, c := range m {
		c.IncPTBInvalid(n)
	}
}

func (m MultiCounters) SetDCacheOccupancy(n int) {
	for _, c := range m {
		c.SetDCacheOccupancy(n)
	}
}
