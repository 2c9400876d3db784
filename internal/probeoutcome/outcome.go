// Package probeoutcome defines the two-variant probe result shared by
// the root facade and the multiplexer, in a location both can depend on
// without an import cycle (mirrors internal/perrors).
package probeoutcome

import "time"

// Outcome is the two-variant result of a single probe (§9: "Dynamic
// dispatch → tagged variants"). Exactly one of the two states holds:
// either the probe resolved to a round-trip time, or it was Lost (no
// reply arrived before the deadline, or the OS reported no route).
type Outcome struct {
	rtt  time.Duration
	lost bool
}

// RTT returns the round-trip time and true, or (0, false) if the probe
// was lost.
func (o Outcome) RTT() (time.Duration, bool) {
	if o.lost {
		return 0, false
	}
	return o.rtt, true
}

// Lost reports whether the probe timed out or had no route.
func (o Outcome) Lost() bool { return o.lost }

// NewRTT builds a resolved Outcome carrying a round-trip time.
func NewRTT(d time.Duration) Outcome { return Outcome{rtt: d} }

// NewLost builds a Lost Outcome.
func NewLost() Outcome { return Outcome{lost: true} }
