package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/ravvdevv/stormping/internal/metrics"
)

func TestCollector_RecordsSentRepliesLost(t *testing.T) {
	c := metrics.New()
	c.RecordSent("v4")
	c.RecordSent("v4")
	c.RecordReply("v4", 5*time.Millisecond)
	c.RecordLost("v4")

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	require.True(t, found["stormping_probes_sent_total"])
	require.True(t, found["stormping_probes_replied_total"])
	require.True(t, found["stormping_probes_lost_total"])
	require.True(t, found["stormping_rtt_seconds"])
}

func TestCollector_HistogramAccumulatesRTTs(t *testing.T) {
	c := metrics.New()
	c.RecordReply("v4", time.Millisecond)
	c.RecordReply("v4", 2*time.Millisecond)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)

	var hist *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "stormping_rtt_seconds" {
			hist = mf.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, hist)
	require.Equal(t, uint64(2), hist.GetSampleCount())
}
