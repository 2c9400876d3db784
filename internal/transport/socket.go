package transport

import (
	"context"
	"log/slog"
	"net"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/ravvdevv/stormping/internal/addr"
	"github.com/ravvdevv/stormping/internal/clock"
)

// icmpv6ChecksumOffset is the byte offset of the checksum field within an
// ICMPv6 message, passed to SetChecksum so the kernel computes the
// pseudo-header checksum at send time (§4.1 ChecksumKernelOffload).
const icmpv6ChecksumOffset = 2

// Received is one drained datagram: its arrival timestamp (taken as early
// as possible, per §4.2) and raw ICMP bytes for the codec to parse.
type Received struct {
	ArrivalNS uint64
	Bytes     []byte
}

// Socket owns a single kernel socket for one (address family, socket
// kind), per §3 "Ownership" and §4.3.
type Socket struct {
	family addr.Family
	kind   Kind
	conn   net.PacketConn
	p4     *ipv4.PacketConn
	p6     *ipv6.PacketConn
	log    *slog.Logger
	clk    clock.Source

	applied AppliedBufferSizes
	recvBuf []byte
}

// Open tries socket kinds in policy order (§4.5), returning the first
// that opens and configures successfully. Errors from earlier kinds are
// suppressed unless all fail, in which case the last is returned for the
// caller to wrap as PermissionDenied. clk stamps arrival times (§4.2) and
// must be the same clock.Source the caller uses for send timestamps, so
// RTTs are computed from one consistent epoch.
func Open(ctx context.Context, family addr.Family, policy Policy, opts Options, clk clock.Source, log *slog.Logger) (*Socket, Kind, error) {
	var lastErr error
	for _, kind := range policy.order() {
		sock, err := open(ctx, family, kind, opts, clk, log)
		if err == nil {
			return sock, kind, nil
		}
		lastErr = err
		if log != nil {
			log.Debug("transport: candidate socket kind refused", "family", family, "kind", kind, "err", err)
		}
	}
	return nil, 0, lastErr
}

func open(ctx context.Context, family addr.Family, kind Kind, opts Options, clk clock.Source, log *slog.Logger) (*Socket, error) {
	pc, applied, err := listen(ctx, family, kind, opts)
	if err != nil {
		return nil, err
	}

	s := &Socket{
		family:  family,
		kind:    kind,
		conn:    pc,
		log:     log,
		clk:     clk,
		applied: applied,
		recvBuf: make([]byte, 65535),
	}

	if family == addr.V4 {
		s.p4 = ipv4.NewPacketConn(pc)
	} else {
		s.p6 = ipv6.NewPacketConn(pc)
	}

	if err := s.configure(opts); err != nil {
		_ = pc.Close()
		return nil, err
	}
	return s, nil
}

// configure applies TTL/hop-limit and TOS/traffic-class best-effort: some
// kernels reject these on raw sockets after creation, and per §9 "Open
// questions" the spec treats that as non-fatal rather than failing
// construction.
func (s *Socket) configure(opts Options) error {
	if s.family == addr.V4 {
		if opts.TTL > 0 {
			_ = s.p4.SetTTL(opts.TTL)
		}
		if opts.TOS > 0 {
			_ = s.p4.SetTOS(opts.TOS)
		}
		return nil
	}

	if opts.TTL > 0 {
		_ = s.p6.SetHopLimit(opts.TTL)
	}
	if opts.TOS > 0 {
		_ = s.p6.SetTrafficClass(opts.TOS)
	}
	// ICMPv6 requires the kernel to fill in the checksum (§4.1
	// ChecksumKernelOffload); best effort, matching the TTL/TOS pattern
	// above.
	_ = s.p6.SetChecksum(true, icmpv6ChecksumOffset)
	return nil
}

// WriteTo sends b to dest, returning ErrUnreachableHost (a probe outcome,
// not an error) when the OS reports no route, per §4.3/§7.
func (s *Socket) WriteTo(b []byte, dest net.Addr) (int, error) {
	n, err := s.conn.WriteTo(b, dest)
	if err != nil {
		return n, classifySendErr(err)
	}
	return n, nil
}

// ResolveAddr builds the net.Addr WriteTo expects for destination,
// which differs by socket kind: raw ICMP wants *net.IPAddr, datagram
// ICMP wants *net.UDPAddr (§4.1 "network" selection mirrors this split
// in mikaelmello-pingo's GetNetwork/requestEcho).
func (s *Socket) ResolveAddr(canonical string) net.Addr {
	ip := net.ParseIP(canonical)
	if s.kind == Datagram {
		return &net.UDPAddr{IP: ip}
	}
	return &net.IPAddr{IP: ip}
}

// AwaitReadable blocks until a datagram is available, ctx's deadline (if
// any) passes, or the socket is closed, and returns that datagram.
// Cancelling a ctx that has no deadline does not interrupt the read. This is the reactor's wakeup point (§2 "the
// reactor wakes the multiplexer when the socket is readable"): Go's
// runtime netpoller is the ambient scheduler this registers with, so a
// blocking ReadFrom on a goroutine is the idiomatic mapping, not a
// manually managed epoll set.
func (s *Socket) AwaitReadable(ctx context.Context) (Received, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(dl)
	} else {
		_ = s.conn.SetReadDeadline(time.Time{})
	}
	return s.read()
}

// DrainReceive reads datagrams non-blockingly until the socket returns
// would-block, per §4.3 "Drain-receive": critical so each readability
// wakeup fully drains and no backlog accumulates.
func (s *Socket) DrainReceive() ([]Received, error) {
	var batch []Received
	for {
		_ = s.conn.SetReadDeadline(time.Now())
		r, err := s.read()
		if err != nil {
			if isWouldBlock(err) {
				return batch, nil
			}
			return batch, err
		}
		batch = append(batch, r)
	}
}

// read stamps the arrival timestamp immediately after ReadFrom returns,
// before any parsing, per §4.2's "taken as early as possible" requirement.
// It uses the same clock.Source the owning multiplexer stamps sendNS
// with, so arrival and send timestamps share one epoch and RTTs are not
// inflated by channel or scheduling latency downstream.
func (s *Socket) read() (Received, error) {
	n, _, err := s.conn.ReadFrom(s.recvBuf)
	arrival := s.clk.NowNS()
	if err != nil {
		return Received{}, err
	}
	out := make([]byte, n)
	copy(out, s.recvBuf[:n])
	return Received{ArrivalNS: arrival, Bytes: out}, nil
}

// Close tears the socket down (§5 "File-descriptor lifecycle").
func (s *Socket) Close() error { return s.conn.Close() }

// Kind reports which socket kind this transport opened with (§4.5
// "immutable for the life of the multiplexer").
func (s *Socket) Kind() Kind { return s.kind }

// AppliedBufferSizes reports the SO_RCVBUF/SO_SNDBUF sizes the kernel
// actually applied, for diagnostics when it clamps a requested size
// (§5 "tunable... the kernel may clamp").
func (s *Socket) AppliedBufferSizes() AppliedBufferSizes { return s.applied }
