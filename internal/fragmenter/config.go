// Package fragmenter implements the single cooperatively-scheduled
// stage described by the core spec: the ingress classifier, MTU
// resolver, fragment engine, and PMTUD ingest phases, wired together
// around a per-destination MTU cache. Its Tick-driven, lock-free shape
// is adapted from internal/pipeline/pipeline.go's synchronous
// processPacket pipeline, collapsed from two goroutines (capture +
// process) into a single tick call since §5 forbids internal threads
// and locks.
package fragmenter

import (
	"net/netip"
	"time"

	"github.com/otusnet/fragmentd/internal/core"
)

// Config is the construction-time validated configuration from §6.
type Config struct {
	MTU                uint16
	PMTUDEnabled       bool
	PMTUTimeout        time.Duration
	PMTULocalAddresses []netip.Addr
	UseAlarms          bool
	// DeterministicSeed, when true, seeds next_fragment_id at 0x4242
	// instead of drawing a uniform random start value (§9, the
	// fragment-ID predictability note's preserved test hook).
	DeterministicSeed bool
}

const minMTU = 68

// Validate checks the construction-time invariants from §6/§7:
// mtu >= 68 and no duplicate local addresses.
func (c Config) Validate() error {
	if c.MTU < minMTU {
		return core.ErrMTUTooSmall
	}
	seen := make(map[netip.Addr]struct{}, len(c.PMTULocalAddresses))
	for _, a := range c.PMTULocalAddresses {
		if _, dup := seen[a]; dup {
			return core.ErrDuplicateLocalAddress
		}
		seen[a] = struct{}{}
	}
	return nil
}
