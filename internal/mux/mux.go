// Package mux implements the probe multiplexer (§4.4): a single actor
// goroutine owns one transport.Socket per address family, matches
// incoming replies to pending probes by session id, and sweeps expired
// probes with a single re-armed timer rather than one timer per probe.
package mux

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ravvdevv/stormping/internal/addr"
	"github.com/ravvdevv/stormping/internal/clock"
	"github.com/ravvdevv/stormping/internal/perrors"
	"github.com/ravvdevv/stormping/internal/probeoutcome"
	"github.com/ravvdevv/stormping/internal/transport"
	"github.com/ravvdevv/stormping/internal/wire"
)

// Config carries the per-multiplexer settings fixed at construction
// (§4.4, §4.5).
type Config struct {
	Family       addr.Family
	Policy       transport.Policy
	Options      transport.Options
	ClockMode    clock.Mode
	Clock        clockwork.Clock
	Logger       *slog.Logger
	SweepHorizon time.Duration // defaults to 50ms; the expiration sweep does not consult it
	Metrics      Recorder      // optional; nil disables metrics entirely
}

// Recorder receives the outcome stream of a multiplexer (SPEC_FULL
// DOMAIN STACK metrics collector). Defined here, not in internal/metrics,
// so this package doesn't need to import the prometheus client.
type Recorder interface {
	RecordSent(family string)
	RecordReply(family string, rtt time.Duration)
	RecordLost(family string)
}

// submitReq is one probe request handed from a caller goroutine to the
// owning actor goroutine (§4.4 "single-threaded cooperative scheduler").
type submitReq struct {
	ctx       context.Context
	dest      string // canonical address, normalized by the caller
	id        int
	totalSize int
	timeout   time.Duration
	reply     chan submitResult
}

type submitResult struct {
	outcome probeoutcome.Outcome
	err     error
}

// pendingEntry is one in-flight probe awaiting a reply or expiration.
type pendingEntry struct {
	sessionID uint32
	request   wire.Request
	deadline  time.Time
	reply     chan submitResult
	index     int // position in the expiration heap
}

// Multiplexer owns one socket for one address family and demultiplexes
// its replies across concurrently outstanding probes (§3 "Ownership").
type Multiplexer struct {
	family  addr.Family
	sock    *transport.Socket
	kind    transport.Kind
	clock   clock.Source
	magic   wire.Magic
	log     *slog.Logger
	metrics Recorder

	sweepHorizon time.Duration

	submitCh   chan submitReq
	readableCh chan transport.Received
	stopCh     chan struct{}
	stoppedCh  chan struct{}

	nextSession atomic.Uint32
	nextSeq     atomic.Int32

	pending map[uint32]*pendingEntry
	heap    deadlineHeap
}

// New opens a socket for cfg.Family per cfg.Policy and starts the owning
// actor and reader goroutines. The returned Multiplexer must be closed
// with Close.
func New(ctx context.Context, cfg Config) (*Multiplexer, error) {
	clk := cfg.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	log := cfg.Logger

	clockSource := clock.New(cfg.ClockMode, clk)

	sock, kind, err := transport.Open(ctx, cfg.Family, cfg.Policy, cfg.Options, clockSource, log)
	if err != nil {
		clockSource.Stop()
		return nil, &perrors.PermissionDenied{Policy: cfg.Policy.String(), Last: err}
	}

	horizon := cfg.SweepHorizon
	if horizon <= 0 {
		horizon = 50 * time.Millisecond
	}

	m := &Multiplexer{
		family:       cfg.Family,
		sock:         sock,
		kind:         kind,
		clock:        clockSource,
		magic:        wire.NewMagic(),
		log:          log,
		metrics:      cfg.Metrics,
		sweepHorizon: horizon,
		submitCh:     make(chan submitReq),
		readableCh:   make(chan transport.Received, 64),
		stopCh:       make(chan struct{}),
		stoppedCh:    make(chan struct{}),
		pending:      make(map[uint32]*pendingEntry),
	}
	heap.Init(&m.heap)

	readerCtx, cancelReader := context.WithCancel(context.Background())
	go m.readerLoop(readerCtx)
	go func() {
		m.run()
		cancelReader()
	}()

	return m, nil
}

// Kind reports which socket kind this multiplexer's transport opened
// with (§4.5).
func (m *Multiplexer) Kind() transport.Kind { return m.kind }

// Close stops the actor and reader goroutines and releases the socket
// (§5 "File-descriptor lifecycle").
func (m *Multiplexer) Close() error {
	close(m.stopCh)
	<-m.stoppedCh
	m.clock.Stop()
	return m.sock.Close()
}

// Probe sends one echo request to dest and blocks until a matching reply
// arrives, the per-probe timeout elapses, or ctx is cancelled (§4.4
// "submit").
func (m *Multiplexer) Probe(ctx context.Context, dest string, id, totalSize int, timeout time.Duration) (probeoutcome.Outcome, error) {
	reply := make(chan submitResult, 1)
	req := submitReq{ctx: ctx, dest: dest, id: id, totalSize: totalSize, timeout: timeout, reply: reply}

	select {
	case m.submitCh <- req:
	case <-ctx.Done():
		return probeoutcome.Outcome{}, ctx.Err()
	case <-m.stopCh:
		return probeoutcome.Outcome{}, fmt.Errorf("mux: multiplexer closed")
	}

	select {
	case res := <-reply:
		return res.outcome, res.err
	case <-ctx.Done():
		return probeoutcome.Outcome{}, ctx.Err()
	}
}

// run is the owning actor goroutine: the only goroutine that touches
// m.pending and m.heap, so neither needs a lock (§4.4 "single-threaded
// cooperative scheduler" mapped to a dedicated owning goroutine).
func (m *Multiplexer) run() {
	defer close(m.stoppedCh)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	armed := false

	for {
		m.rearm(timer, &armed)

		select {
		case req := <-m.submitCh:
			m.handleSubmit(req)
		case r := <-m.readableCh:
			m.handleReply(r)
		case <-timer.C:
			armed = false
			m.sweepExpired()
		case <-m.stopCh:
			m.drainPending()
			return
		}
	}
}

// rearm arms the single expiration timer for the nearest pending
// deadline when it is not already armed (§4.4: one re-armed timer rather
// than one per probe). An armed timer is left as it is, even if a later
// submission has an earlier deadline; the next sweep re-arms it.
func (m *Multiplexer) rearm(timer *time.Timer, armed *bool) {
	if m.heap.Len() == 0 {
		return
	}
	if *armed {
		return
	}
	next := m.heap[0].deadline
	d := time.Until(next)
	if d < 0 {
		d = 0
	}
	timer.Reset(d)
	*armed = true
}

func (m *Multiplexer) handleSubmit(req submitReq) {
	sessionID := m.nextSession.Add(1)
	seq := int(m.nextSeq.Add(1))

	sendNS := m.clock.NowNS()
	built, err := wire.BuildEchoRequest(m.family, req.id, seq, sessionID, m.magic, sendNS, req.totalSize)
	if err != nil {
		req.reply <- submitResult{err: &perrors.ConfigError{Field: "total_size", Reason: err.Error()}}
		return
	}

	entry := &pendingEntry{
		sessionID: sessionID,
		request:   built,
		deadline:  time.Now().Add(req.timeout),
		reply:     req.reply,
	}

	destAddr := m.sock.ResolveAddr(req.dest)
	if _, err := m.sock.WriteTo(built.Bytes, destAddr); err != nil {
		if err == transport.ErrUnreachableHost {
			m.recordLost()
			req.reply <- submitResult{outcome: probeoutcome.NewLost()}
			return
		}
		req.reply <- submitResult{err: &perrors.TransportError{Op: "send", Err: err}}
		return
	}

	m.recordSent()
	m.pending[sessionID] = entry
	heap.Push(&m.heap, entry)
}

// handleReply matches one drained datagram against the pending table
// (§4.4 "on_readable"). Unmatched or foreign-magic replies are silently
// dropped (§4.1/§7), including replies for sessions this multiplexer
// already resolved (duplicate or late replies). r.ArrivalNS was stamped
// by transport.Socket immediately after ReadFrom returned (§4.2), not
// re-read here, so a backlog queued on readableCh during a bulk drain
// doesn't inflate the computed RTT.
func (m *Multiplexer) handleReply(r transport.Received) {
	arrivalNS := r.ArrivalNS

	reply, ok := wire.ParseEchoReply(m.family, r.Bytes)
	if !ok || reply.Marker.Magic != m.magic {
		return
	}

	entry, ok := m.pending[reply.Marker.SessionID]
	if !ok {
		return
	}
	delete(m.pending, reply.Marker.SessionID)
	heap.Remove(&m.heap, entry.index)

	rtt := time.Duration(arrivalNS-reply.Marker.SendNS) * time.Nanosecond
	m.recordReply(rtt)
	entry.reply <- submitResult{outcome: probeoutcome.NewRTT(rtt)}
}

// sweepExpired removes every pending entry whose deadline has passed and
// resolves it Lost (§4.4 "on_expiration_tick").
func (m *Multiplexer) sweepExpired() {
	now := time.Now()
	for m.heap.Len() > 0 && !m.heap[0].deadline.After(now) {
		entry := heap.Pop(&m.heap).(*pendingEntry)
		delete(m.pending, entry.sessionID)
		m.recordLost()
		entry.reply <- submitResult{outcome: probeoutcome.NewLost()}
	}
}

func (m *Multiplexer) recordSent() {
	if m.metrics != nil {
		m.metrics.RecordSent(m.family.String())
	}
}

func (m *Multiplexer) recordReply(rtt time.Duration) {
	if m.metrics != nil {
		m.metrics.RecordReply(m.family.String(), rtt)
	}
}

func (m *Multiplexer) recordLost() {
	if m.metrics != nil {
		m.metrics.RecordLost(m.family.String())
	}
}

// drainPending resolves every still-outstanding probe Lost when the
// multiplexer is closed out from under them (§5 "shutdown").
func (m *Multiplexer) drainPending() {
	for _, entry := range m.pending {
		entry.reply <- submitResult{outcome: probeoutcome.NewLost()}
	}
	m.pending = nil
	m.heap = nil
}

// readerLoop blocks on the socket and forwards drained datagrams to the
// actor goroutine (§2: the Go runtime netpoller is the ambient reactor;
// this goroutine is its glue into the actor's single select loop).
func (m *Multiplexer) readerLoop(ctx context.Context) {
	for {
		r, err := m.sock.AwaitReadable(ctx)
		if err != nil {
			select {
			case <-m.stopCh:
				return
			default:
			}
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if !m.forward(r) {
			return
		}

		batch, _ := m.sock.DrainReceive()
		for _, b := range batch {
			if !m.forward(b) {
				return
			}
		}
	}
}

func (m *Multiplexer) forward(r transport.Received) bool {
	select {
	case m.readableCh <- r:
		return true
	case <-m.stopCh:
		return false
	}
}

// Dest resolves canonical to the net.Addr this multiplexer's socket kind
// expects, exposed for callers that need to pre-validate a destination.
func (m *Multiplexer) Dest(canonical string) net.Addr { return m.sock.ResolveAddr(canonical) }
