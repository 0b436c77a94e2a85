// Package metrics implements the §6 counters and the dcache occupancy
// gauge over Prometheus, replacing the core spec's shared-memory
// counter publication (out of scope) with an HTTP-scrapeable analog,
// in the same promauto style internal/metrics/metrics.go used for the
// capture agent's pipeline counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/otusnet/fragmentd/internal/fragmenter"
)

var (
	outFragTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fragmentd_out_ipv4_frag_total",
		Help: "Total number of emitted IPv4 fragments",
	})

	outFragNotTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fragmentd_out_ipv4_frag_not_total",
		Help: "Total number of packets forwarded without fragmentation",
	})

	ptbReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fragmentd_ipv4_pmtud_ptb_received_total",
		Help: "Total number of packets matching the PTB filter",
	})

	ptbValidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fragmentd_ipv4_pmtud_ptb_valid_total",
		Help: "Total number of PTB messages that updated the PMTU cache",
	})

	ptbInvalidChecksumTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fragmentd_ipv4_pmtud_ptb_invalid_csum_total",
		Help: "Total number of PTB messages rejected for bad ICMP checksum",
	})

	ptbInvalidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fragmentd_ipv4_pmtud_ptb_invalid_total",
		Help: "Total number of PTB messages rejected for any other reason",
	})

	dcacheOccupancy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fragmentd_pmtu_dcache_entries",
		Help: "Current number of live entries in the PMTU cache",
	})
)

// PromCounters implements fragmenter.Counters over the package-level
// Prometheus collectors above.
type PromCounters struct{}

func (PromCounters) IncFrag(n uint64)               { outFragTotal.Add(float64(n)) }
func (PromCounters) IncFragNot(n uint64)            { outFragNotTotal.Add(float64(n)) }
func (PromCounters) IncPTBReceived(n uint64)        { ptbReceivedTotal.Add(float64(n)) }
func (PromCounters) IncPTBValid(n uint64)           { ptbValidTotal.Add(float64(n)) }
func (PromCounters) IncPTBInvalidChecksum(n uint64) { ptbInvalidChecksumTotal.Add(float64(n)) }
func (PromCounters) IncPTBInvalid(n uint64)         { ptbInvalidTotal.Add(float64(n)) }
func (PromCounters) SetDCacheOccupancy(n int)       { dcacheOccupancy.Set(float64(n)) }

var _ fragmenter.Counters = PromCounters{}
