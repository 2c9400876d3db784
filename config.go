package stormping

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ravvdevv/stormping/internal/clock"
	"github.com/ravvdevv/stormping/internal/metrics"
	"github.com/ravvdevv/stormping/internal/perrors"
	"github.com/ravvdevv/stormping/internal/transport"
)

// SelectionPolicy is the ordered preference of raw vs. datagram ICMP
// socket kinds (§3, §4.5).
type SelectionPolicy int

const (
	PolicyRaw SelectionPolicy = iota
	PolicyDatagram
	PolicyRawThenDatagram
	PolicyDatagramThenRaw
)

func (p SelectionPolicy) transport() transport.Policy {
	switch p {
	case PolicyDatagram:
		return transport.PolicyDatagram
	case PolicyRawThenDatagram:
		return transport.PolicyRawThenDatagram
	case PolicyDatagramThenRaw:
		return transport.PolicyDatagramThenRaw
	default:
		return transport.PolicyRaw
	}
}

// ClockMode selects the fine or coarse monotonic clock (§4.2).
type ClockMode int

const (
	ClockFine ClockMode = iota
	ClockCoarse
)

func (m ClockMode) internal() clock.Mode {
	if m == ClockCoarse {
		return clock.Coarse
	}
	return clock.Fine
}

// DefaultRecvBufferBytes is the generous receive-buffer default of §5
// ("The receive buffer must be generously sized... default 256 KiB,
// tunable").
const DefaultRecvBufferBytes = 256 * 1024

// Config is the immutable-after-construction configuration of a Client
// (§3 "Configuration"). The zero value is not valid; build one with
// reasonable defaults and override only what you need.
type Config struct {
	// Size is the total on-wire packet size in bytes, including the IP
	// header (§4.1, §6: must be >= 64).
	Size int
	// TTL is the IPv4 TTL / IPv6 hop limit (§6: must be in [1,255]).
	TTL int
	// TOS is the IPv4 TOS / IPv6 traffic class (§6: must be in [0,255]).
	TOS int
	// Timeout is the per-probe deadline (§3: deadline_ns = send + timeout).
	Timeout time.Duration
	// RecvBufferBytes, SendBufferBytes tune the kernel socket buffers
	// (§5); 0 leaves the kernel default. DefaultConfig sets
	// RecvBufferBytes to DefaultRecvBufferBytes.
	RecvBufferBytes int
	SendBufferBytes int
	// SourceAddress optionally binds the outgoing socket (§4.3, §6).
	SourceAddress string
	// ClockMode selects fine or coarse timestamps (§4.2).
	ClockMode ClockMode
	// Policy selects the raw/datagram socket preference (§3, §4.5).
	Policy SelectionPolicy
	// Clock overrides the time source; nil uses the real clock. Tests
	// inject a clockwork.FakeClock here.
	Clock clockwork.Clock
	// Logger receives structured diagnostics; nil disables logging
	// entirely (the library never logs on the hot path by default).
	Logger *slog.Logger
	// Metrics, if set, receives the probe outcome stream of every
	// multiplexer this client creates.
	Metrics *metrics.Collector
}

// DefaultConfig returns a Config with the spec's floor values (§6): a
// 64-byte packet, TTL 64, TOS 0, a one-second timeout, the default
// receive buffer, a raw-then-datagram policy, and fine clock mode.
func DefaultConfig() Config {
	return Config{
		Size:            64,
		TTL:             64,
		TOS:             0,
		Timeout:         time.Second,
		RecvBufferBytes: DefaultRecvBufferBytes,
		ClockMode:       ClockFine,
		Policy:          PolicyRawThenDatagram,
	}
}

// Validate checks the field-level rules of §6/§8 invariant 7, raising
// ConfigError immediately rather than lazily at first probe, per
// SPEC_FULL's AMBIENT STACK configuration pattern.
func (c Config) Validate() error {
	if c.Size < 64 {
		return &perrors.ConfigError{Field: "size", Reason: "must be >= 64"}
	}
	if c.TTL < 1 || c.TTL > 255 {
		return &perrors.ConfigError{Field: "ttl", Reason: "must be in [1,255]"}
	}
	if c.TOS < 0 || c.TOS > 255 {
		return &perrors.ConfigError{Field: "tos", Reason: "must be in [0,255]"}
	}
	if c.Timeout <= 0 {
		return &perrors.ConfigError{Field: "timeout", Reason: "must be positive"}
	}
	return nil
}

func (c Config) transportOptions() transport.Options {
	return transport.Options{
		TTL:             c.TTL,
		TOS:             c.TOS,
		RecvBufferBytes: c.RecvBufferBytes,
		SendBufferBytes: c.SendBufferBytes,
		SourceAddress:   c.SourceAddress,
	}
}
