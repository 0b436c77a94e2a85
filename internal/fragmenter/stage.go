package fragmenter

import (
	"math/rand"
	"net/netip"
	"time"

	"github.com/otusnet/fragmentd/internal/alarm"
	"github.com/otusnet/fragmentd/internal/core"
	"github.com/otusnet/fragmentd/internal/mtucache"
	"github.com/otusnet/fragmentd/internal/ports"
	"github.com/otusnet/fragmentd/internal/ptbfilter"
)

// Stage is the fragmenter: four phases, four ports, one tick call, no
// internal goroutines or locks (§5).
type Stage struct {
	cfg Config

	input, output, south, north ports.Port

	dcache        *mtucache.Cache
	localAddrs    map[netip.Addr]struct{}
	filter        *ptbfilter.Filter
	nextFragID    uint16
	counters      Counters
	alarms        alarm.Registry
}

// New constructs a Stage. Construction errors fail fast per §7.
func New(cfg Config, input, output, south, north ports.Port, counters Counters, alarms alarm.Registry) (*Stage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if counters == nil {
		counters = NopCounters{}
	}
	if alarms == nil {
		alarms = alarm.NoopRegistry{}
	}

	localAddrs := make(map[netip.Addr]struct{}, len(cfg.PMTULocalAddresses))
	for _, a := range cfg.PMTULocalAddresses {
		localAddrs[a] = struct{}{}
	}

	var filter *ptbfilter.Filter
	if cfg.PMTUDEnabled {
		f, err := ptbfilter.Compile()
		if err != nil {
			return nil, err
		}
		filter = f
	}

	var startID uint16
	if cfg.DeterministicSeed {
		startID = 0x4242
	} else {
		startID = uint16(rand.Intn(0x10000))
	}

	return &Stage{
		cfg:        cfg,
		input:      input,
		output:     output,
		south:      south,
		north:      north,
		dcache:     mtucache.New(cfg.PMTUTimeout),
		localAddrs: localAddrs,
		filter:     filter,
		nextFragID: startID,
		counters:   counters,
		alarms:     alarms,
	}, nil
}

// Tick runs one scheduling pass: drains everything currently readable
// on input (classify → resolve → fragment/forward), drains everything
// currently readable on south when PMTUD is enabled (PTB ingest), and
// runs the cache expiry sweep if its throttle is due.
func (s *Stage) Tick(now time.Time) {
	for {
		pkt, ok := s.input.Recv()
		if !ok {
			break
		}
		s.processIngress(pkt, now)
	}

	if s.cfg.PMTUDEnabled && s.south != nil {
		for {
			pkt, ok := s.south.Recv()
			if !ok {
				break
			}
			s.processPTB(pkt, now)
		}
	}

	if s.cfg.PMTUDEnabled && s.dcache.Due(now) {
		s.dcache.Sweep(now)
		s.counters.SetDCacheOccupancy(s.dcache.Len())
	}
}

// ReloadLocalAddresses replaces the local-address set used by PTB
// ingest without restarting the stage. mtu, pmtud, and pmtu_timeout
// are not reloadable since the running dcache is sized and keyed on
// them; those changes require a restart.
func (s *Stage) ReloadLocalAddresses(addrs []netip.Addr) {
	localAddrs := make(map[netip.Addr]struct{}, len(addrs))
	for _, a := range addrs {
		localAddrs[a] = struct{}{}
	}
	s.localAddrs = localAddrs
}
