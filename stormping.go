// Package stormping is an asynchronous ICMPv4/ICMPv6 echo (ping) client
// library: one socket per address family multiplexes many concurrent
// probes, correlating replies by a payload marker and reporting
// round-trip times or timeouts with minimal per-probe overhead.
package stormping

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ravvdevv/stormping/internal/addr"
	"github.com/ravvdevv/stormping/internal/mux"
	"github.com/ravvdevv/stormping/internal/perrors"
)

// Client routes probes to the correct per-address-family multiplexer,
// creating it lazily on first use (§4.6 "Client Facade").
type Client struct {
	cfg Config

	mu    sync.Mutex
	muxes [2]*mux.Multiplexer // indexed by addr.Family
	errs  [2]error
}

// New validates cfg and returns a Client. No sockets are opened until
// the first probe of a given address family (§4.6 "creates the
// multiplexer lazily on first use").
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{cfg: cfg}, nil
}

// Probe sends a single echo request to address and waits for its
// outcome (§6 "probe"). size, if non-zero, overrides the client's
// configured packet size for this probe only.
func (c *Client) Probe(ctx context.Context, address string, size int) (Outcome, error) {
	family, canonical, ok := addr.Normalize(address)
	if !ok {
		return Outcome{}, &perrors.InvalidAddress{Address: address}
	}

	m, err := c.multiplexerFor(ctx, family)
	if err != nil {
		return Outcome{}, err
	}

	if size == 0 {
		size = c.cfg.Size
	}
	id := rand.Intn(1 << 16)
	return m.Probe(ctx, canonical, id, size, c.cfg.Timeout)
}

// SeriesOptions configures a Series run (§4.6 "series").
type SeriesOptions struct {
	// Size overrides the client's configured packet size; 0 uses it.
	Size int
	// Interval paces probes: after each resolves, the sequence sleeps
	// max(0, interval-elapsed) before the next. Zero means flood mode:
	// emit as fast as probes resolve.
	Interval time.Duration
	// Count bounds the sequence to N probes; 0 means infinite.
	Count int
}

// Series returns a lazy, restartable sequence of probe outcomes against
// address (§4.6 "series"). Each call to Series starts a fresh iterator
// with its own ICMP identifier, chosen once at the start. Sequence
// numbers are not per series: every probe takes the next value of the
// multiplexer's shared counter, so a series' sequence numbers are
// consecutive only when no other probe uses that multiplexer meanwhile.
func (c *Client) Series(ctx context.Context, address string, opts SeriesOptions) (*SeriesIter, error) {
	family, canonical, ok := addr.Normalize(address)
	if !ok {
		return nil, &perrors.InvalidAddress{Address: address}
	}
	m, err := c.multiplexerFor(ctx, family)
	if err != nil {
		return nil, err
	}

	size := opts.Size
	if size == 0 {
		size = c.cfg.Size
	}

	return newSeriesIter(ctx, m, canonical, size, opts.Interval, opts.Count, c.cfg.Timeout), nil
}

// multiplexerFor returns the multiplexer owning family's socket,
// creating it on first use. A failed creation is cached so repeated
// probes against an unreachable family don't retry a doomed Open every
// time (§4.5 "the chosen kind is immutable for the life of the
// multiplexer" — likewise, a construction failure is terminal for it).
func (c *Client) multiplexerFor(ctx context.Context, family addr.Family) (*mux.Multiplexer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := familyIndex(family)
	if c.muxes[idx] != nil {
		return c.muxes[idx], nil
	}
	if c.errs[idx] != nil {
		return nil, c.errs[idx]
	}

	var recorder mux.Recorder
	if c.cfg.Metrics != nil {
		recorder = c.cfg.Metrics
	}

	m, err := mux.New(ctx, mux.Config{
		Family:    family,
		Policy:    c.cfg.Policy.transport(),
		Options:   c.cfg.transportOptions(),
		ClockMode: c.cfg.ClockMode.internal(),
		Clock:     c.cfg.Clock,
		Logger:    c.cfg.Logger,
		Metrics:   recorder,
	})
	if err != nil {
		c.errs[idx] = err
		return nil, err
	}
	c.muxes[idx] = m
	return m, nil
}

func familyIndex(f addr.Family) int {
	if f == addr.V6 {
		return 1
	}
	return 0
}

// Close tears down every multiplexer this client has created (§5
// "File-descriptor lifecycle").
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for _, m := range c.muxes {
		if m == nil {
			continue
		}
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stormping: close: %w", err)
		}
	}
	return firstErr
}
