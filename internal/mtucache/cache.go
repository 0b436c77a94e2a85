// Package mtucache implements the per-destination PMTU cache (dcache in
// the core spec): a hash map from IPv4 destination to a learned MTU and
// the tick it was last refreshed, with age-based expiry run by a
// throttled periodic sweep. Its single-writer, no-lock shape mirrors
// internal/core/decoder/rate_limiter.go's sliding-window counter map,
// adapted from a per-source rate limiter to a per-destination value
// cache with sweep-based (not rotate-the-whole-map) expiry.
package mtucache

import (
	"net/netip"
	"time"
)

const (
	initialCapacity = 128
	maxLoadFactor   = 0.40
)

type entry struct {
	mtu   uint16
	tstamp time.Time
}

// Cache is the fragmenter's per-destination MTU cache. It is not safe
// for concurrent use: the fragmenter stage is single-threaded per §5
// and is the cache's only owner.
type Cache struct {
	entries map[netip.Addr]entry
	timeout time.Duration

	// sweep throttle: the last time Sweep actually ran a full scan.
	lastSweep    time.Time
	sweepPeriod  time.Duration
}

// New creates a cache with the given entry lifetime. The sweep period
// is pmtu_timeout/10 per §3/§4.5.
func New(timeout time.Duration) *Cache {
	period := timeout / 10
	if period <= 0 {
		period = time.Second
	}
	return &Cache{
		entries:     make(map[netip.Addr]entry, initialCapacity),
		timeout:     timeout,
		sweepPeriod: period,
	}
}

// Get returns the learned MTU for dst, if present.
func (c *Cache) Get(dst netip.Addr) (uint16, bool) {
	e, ok := c.entries[dst]
	if !ok {
		return 0, false
	}
	return e.mtu, true
}

// Set inserts or updates the learned MTU for dst.
func (c *Cache) Set(dst netip.Addr, mtu uint16, now time.Time) {
	c.entries[dst] = entry{mtu: mtu, tstamp: now}
	if float64(len(c.entries)) > float64(cap0(c.entries))*maxLoadFactor {
		c.grow()
	}
}

// grow rehashes into a larger map when occupancy exceeds the configured
// load factor. The source flushes a JIT code cache on resize; this is a
// statically compiled target, so that hook is simply omitted (§9).
func (c *Cache) grow() {
	bigger := make(map[netip.Addr]entry, len(c.entries)*2)
	for k, v := range c.entries {
		bigger[k] = v
	}
	c.entries = bigger
}

// cap0 approximates the "capacity" driving the load-factor check: Go
// maps don't expose their bucket capacity, so this uses the initial
// capacity as the baseline, matching the spec's "initial capacity 128,
// max load factor 0.40" rule literally rather than tracking Go's
// internal bucket count.
func cap0(m map[netip.Addr]entry) int {
	if len(m) < initialCapacity {
		return initialCapacity
	}
	return len(m)
}

// Len reports the current entry count.
func (c *Cache) Len() int { return len(c.entries) }

// Due reports whether the sweep throttle has elapsed as of now.
func (c *Cache) Due(now time.Time) bool {
	return now.Sub(c.lastSweep) >= c.sweepPeriod
}

// Sweep removes every entry older than the configured timeout. It is
// always a full scan (§4.5: the cache is expected to stay small), safe
// to call even off the throttle schedule, but call sites should gate
// on Due to match the tick-based throttle behavior.
func (c *Cache) Sweep(now time.Time) (removed int) {
	for k, e := range c.entries {
		if now.Sub(e.tstamp) > c.timeout {
			delete(c.entries, k)
			removed++
		}
	}
	c.lastSweep = now
	return removed
}
