// Package transport opens, configures, and owns a single kernel socket
// per (address family, socket kind), per §4.3. It sends and
// non-blockingly drain-receives echo frames and exposes the selection
// policy of §4.5.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/ravvdevv/stormping/internal/addr"
)

// Kind is the socket kind a multiplexer's transport is opened with.
type Kind int

const (
	Raw Kind = iota
	Datagram
)

func (k Kind) String() string {
	if k == Datagram {
		return "dgram"
	}
	return "raw"
}

// Policy is the selection policy of §4.5: the ordered preference of raw
// vs. datagram ICMP socket kinds.
type Policy int

const (
	PolicyRaw Policy = iota
	PolicyDatagram
	PolicyRawThenDatagram
	PolicyDatagramThenRaw
)

// ParsePolicy maps the CLI/config spelling (§6: "raw", "dgram",
// "raw,dgram", "dgram,raw") to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "raw":
		return PolicyRaw, nil
	case "dgram":
		return PolicyDatagram, nil
	case "raw,dgram":
		return PolicyRawThenDatagram, nil
	case "dgram,raw":
		return PolicyDatagramThenRaw, nil
	default:
		return 0, fmt.Errorf("transport: unknown selection policy %q", s)
	}
}

func (p Policy) order() []Kind {
	switch p {
	case PolicyDatagram:
		return []Kind{Datagram}
	case PolicyRawThenDatagram:
		return []Kind{Raw, Datagram}
	case PolicyDatagramThenRaw:
		return []Kind{Datagram, Raw}
	default:
		return []Kind{Raw}
	}
}

func (p Policy) String() string {
	kinds := p.order()
	s := kinds[0].String()
	for _, k := range kinds[1:] {
		s += "," + k.String()
	}
	return s
}

// Options configures a socket before its first send (§4.3 "Configuration
// operations"). All fields are optional and applied idempotently.
type Options struct {
	TTL             int    // 0 means leave the kernel default
	TOS             int    // 0 means leave the kernel default
	RecvBufferBytes int    // 0 means leave the kernel default
	SendBufferBytes int    // 0 means leave the kernel default
	SourceAddress   string // "" means let the kernel pick
}

// AppliedBufferSizes reports what the kernel actually applied for
// SO_RCVBUF/SO_SNDBUF after the best-effort setsockopt calls below,
// since the kernel is free to clamp the requested size (§5 "the kernel
// may clamp"; §4.3 "kernel may clamp"). Zero means the read-back itself
// failed or was never attempted (SourceAddress-only sockets leave both
// at zero).
type AppliedBufferSizes struct {
	Recv int
	Send int
}

// applyBufferControl returns a net.ListenConfig.Control hook that sets
// SO_RCVBUF/SO_SNDBUF on the raw fd before bind, in the idiom of
// malbeclabs-doublezero/tools/uping's unix.SetsockoptInt calls: best
// effort, since the kernel is free to clamp the requested size. It
// records whatever the kernel reports back into applied for diagnostics.
func applyBufferControl(opts Options, applied *AppliedBufferSizes) func(network, address string, c syscall.RawConn) error {
	return func(_, _ string, c syscall.RawConn) error {
		return c.Control(func(fd uintptr) {
			if opts.RecvBufferBytes > 0 {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, opts.RecvBufferBytes)
				if v, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF); err == nil {
					applied.Recv = v
				}
			}
			if opts.SendBufferBytes > 0 {
				_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, opts.SendBufferBytes)
				if v, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF); err == nil {
					applied.Send = v
				}
			}
		})
	}
}

// network returns the dial network string for (family, kind), per
// §4.3/§6: privileged raw sockets use "ip4:icmp"/"ip6:ipv6-icmp",
// unprivileged datagram ICMP uses "udp4"/"udp6" (Linux
// net.ipv4.ping_group_range).
func network(family addr.Family, kind Kind) string {
	switch {
	case family == addr.V4 && kind == Raw:
		return "ip4:icmp"
	case family == addr.V4 && kind == Datagram:
		return "udp4"
	case family == addr.V6 && kind == Raw:
		return "ip6:ipv6-icmp"
	default:
		return "udp6"
	}
}

// listen opens the raw net.PacketConn for (family, kind), applying
// buffer-size options at bind time via ListenConfig.Control so SO_RCVBUF/
// SO_SNDBUF take effect before any datagram can queue.
func listen(ctx context.Context, family addr.Family, kind Kind, opts Options) (net.PacketConn, AppliedBufferSizes, error) {
	var applied AppliedBufferSizes
	lc := net.ListenConfig{Control: applyBufferControl(opts, &applied)}
	pc, err := lc.ListenPacket(ctx, network(family, kind), opts.SourceAddress)
	return pc, applied, err
}

// classifySendErr maps a WriteTo error to the probe-outcome-vs-error
// split of §4.3/§7: a kernel "no route" report becomes
// ErrUnreachableHost (surfaced by the caller as a Lost outcome, not an
// error); anything else is returned verbatim for the caller to wrap as
// TransportError.
func classifySendErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.ENETUNREACH) || errors.Is(err, unix.EHOSTUNREACH) ||
		errors.Is(err, unix.ECONNREFUSED) || errors.Is(err, unix.ENOPROTOOPT) {
		return ErrUnreachableHost
	}
	return err
}

// ErrUnreachableHost is returned by Socket.WriteTo when the OS reports no route to
// the destination (§7 "UnreachableHost").
var ErrUnreachableHost = errors.New("transport: no route to host")

// isWouldBlock reports whether err is the normal non-blocking-read
// terminator (§4.3 "Drain-receive... until the socket returns would-
// block"), not a real error.
func isWouldBlock(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
