package stormping

import (
	"context"
	"math/rand"
	"time"

	"github.com/ravvdevv/stormping/internal/mux"
)

// SeriesIter is the lazy, restartable sequence returned by
// Client.Series (§4.6, §9 "Coroutine control flow": an explicit
// iterator whose Next() blocks for one outcome, so cancellation
// releases timers without leaking).
type SeriesIter struct {
	ctx     context.Context
	m       *mux.Multiplexer
	dest    string
	size    int
	timeout time.Duration

	interval time.Duration
	count    int // 0 means infinite

	id       int
	emitted  int
	lastStop time.Time
}

func newSeriesIter(ctx context.Context, m *mux.Multiplexer, dest string, size int, interval time.Duration, count int, timeout time.Duration) *SeriesIter {
	return &SeriesIter{
		ctx:      ctx,
		m:        m,
		dest:     dest,
		size:     size,
		timeout:  timeout,
		interval: interval,
		count:    count,
		id:       rand.Intn(1 << 16),
	}
}

// Next blocks for the next probe in the series and returns its outcome.
// It reports done=true (and a zero Outcome) once Count probes have been
// emitted; with Count == 0 it never reports done on its own and must be
// stopped by cancelling ctx (§4.6: "finite when count is set, otherwise
// infinite").
func (s *SeriesIter) Next() (outcome Outcome, done bool, err error) {
	if s.count > 0 && s.emitted >= s.count {
		return Outcome{}, true, nil
	}

	if !s.lastStop.IsZero() && s.interval > 0 {
		elapsed := time.Since(s.lastStop)
		if wait := s.interval - elapsed; wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-s.ctx.Done():
				t.Stop()
				return Outcome{}, false, s.ctx.Err()
			}
		}
	}

	start := time.Now()
	outcome, err = s.m.Probe(s.ctx, s.dest, s.id, s.size, s.timeout)
	s.lastStop = start
	s.emitted++
	return outcome, false, err
}
