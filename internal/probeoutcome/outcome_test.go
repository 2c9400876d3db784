package probeoutcome_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ravvdevv/stormping/internal/probeoutcome"
)

func TestOutcome_RTTVariantIsNotLost(t *testing.T) {
	o := probeoutcome.NewRTT(5 * time.Millisecond)
	rtt, ok := o.RTT()
	require.True(t, ok)
	require.Equal(t, 5*time.Millisecond, rtt)
	require.False(t, o.Lost())
}

func TestOutcome_LostVariantHasNoRTT(t *testing.T) {
	o := probeoutcome.NewLost()
	_, ok := o.RTT()
	require.False(t, ok)
	require.True(t, o.Lost())
}
