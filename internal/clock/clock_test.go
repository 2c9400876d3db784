package clock_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/ravvdevv/stormping/internal/clock"
)

func TestFineSource_NonDecreasing(t *testing.T) {
	fake := clockwork.NewFakeClock()
	src := clock.New(clock.Fine, fake)
	defer src.Stop()

	a := src.NowNS()
	fake.Advance(time.Millisecond)
	b := src.NowNS()

	require.GreaterOrEqual(t, b, a)
	require.Equal(t, uint64(time.Millisecond), b-a)
}

func TestCoarseSource_RefreshesOnTick(t *testing.T) {
	fake := clockwork.NewFakeClock()
	src := clock.New(clock.Coarse, fake)
	defer src.Stop()

	require.Equal(t, uint64(0), src.NowNS())

	fake.BlockUntil(1)
	fake.Advance(clock.DefaultCoarseInterval)
	require.Eventually(t, func() bool {
		return src.NowNS() == uint64(clock.DefaultCoarseInterval)
	}, time.Second, time.Millisecond)
}
