// Package core defines the packet buffer type and sentinel errors shared
// across the fragmenter packages.
package core

import "errors"

// Sentinel errors, in the same "fragmentd: ..." style the decoder layer
// used for "capture-agent: ...".
var (
	// Construction-time errors.
	ErrMTUTooSmall           = errors.New("fragmentd: mtu must be >= 68")
	ErrDuplicateLocalAddress = errors.New("fragmentd: duplicate pmtu_local_addresses entry")
	ErrUnknownConfigKey      = errors.New("fragmentd: unknown configuration key")

	// Per-packet errors. Never returned to a caller that would log or
	// retry per packet; callers fold these into counters only (§7).
	ErrPacketTooShort     = errors.New("fragmentd: packet too short")
	ErrInvalidIPv4Length  = errors.New("fragmentd: ipv4 total length does not match frame length")
	ErrNotIPv4            = errors.New("fragmentd: ethertype is not ipv4")

	// Port errors.
	ErrPortClosed = errors.New("fragmentd: port closed")
)
