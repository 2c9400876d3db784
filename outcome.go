package stormping

import "github.com/ravvdevv/stormping/internal/probeoutcome"

// Outcome is the two-variant result of a single probe (§9: "Dynamic
// dispatch → tagged variants"). Defined in internal/probeoutcome so the
// multiplexer can construct it without importing this root package;
// aliased here so it carries the same RTT()/Lost() methods.
type Outcome = probeoutcome.Outcome
