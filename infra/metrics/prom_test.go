package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/peakguard/core/metrics"
)

func TestPromSinkRecordTick(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	res := coremetrics.TickResult{
		Tick:             1,
		Source:           "fallback",
		BaseLoadKw:       430,
		EVLoadKw:         70,
		TotalLoadKw:      500,
		BudgetKw:         70,
		PenaltyLimitKw:   500,
		AvoidedPenaltyKw: 112,
		Duration:         20 * time.Millisecond,
		Chargers: []coremetrics.ChargerSample{
			{ChargerID: "CH01", AllocatedKw: 70, Status: "ThrottledByAI"},
			{ChargerID: "CH05", AllocatedKw: 0, Status: "Ready"},
		},
	}
	require.NoError(t, sink.RecordTick(res))
	require.NoError(t, sink.RecordSkippedTick())

	assert.Equal(t, 500.0, testutil.ToFloat64(sink.load.WithLabelValues("total")))
	assert.Equal(t, 112.0, testutil.ToFloat64(sink.avoided))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.ticks.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.skipped))
	assert.Equal(t, 70.0, testutil.ToFloat64(sink.allocated.WithLabelValues("CH01")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.status.WithLabelValues("CH01", "ThrottledByAI")))
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.status.WithLabelValues("CH01", "Charging")))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.duration))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	second, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	assert.Same(t, first.ticks, second.ticks)
}
