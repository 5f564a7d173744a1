// daemon_test.go - Tests for the daemon's metrics and health surfaces.
package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollectorAccounting(t *testing.T) {
	mc := NewMetricsCollector()

	mc.IncrementCounter(MetricTransitionsBuilt)
	mc.IncrementCounter(MetricTransitionsBuilt)
	mc.RecordCommit(10 * time.Millisecond)
	mc.RecordAbort()
	mc.RecordError("settlement")
	mc.SetGauge(MetricUnpaidObligations, 2)
	mc.RecordDuration(MetricFlowDuration, 25*time.Millisecond)

	assert.Equal(t, int64(2), mc.Counter(MetricTransitionsBuilt))
	assert.Equal(t, int64(1), mc.Counter(MetricTransitionsCommitted))

	summary := mc.Summary()
	counters := summary["counters"].(map[string]int64)
	assert.Equal(t, int64(1), counters[MetricTransitionsAborted])
	assert.Equal(t, int64(1), counters[MetricErrorCount+"_settlement"])
	gauges := summary["gauges"].(map[string]float64)
	assert.Equal(t, float64(2), gauges[MetricUnpaidObligations])
	durations := summary["durations"].(map[string]DurationStats)
	assert.Equal(t, 1, durations[MetricNotaryLatency].Count)
	assert.Equal(t, 1, durations[MetricFlowDuration].Count)
}

func TestMetricsDurationStats(t *testing.T) {
	mc := NewMetricsCollector()
	for _, d := range []time.Duration{10 * time.Millisecond, 30 * time.Millisecond, 20 * time.Millisecond} {
		mc.RecordDuration(MetricNotaryLatency, d)
	}

	durations := mc.Summary()["durations"].(map[string]DurationStats)
	stats := durations[MetricNotaryLatency]
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 10*time.Millisecond, stats.Min)
	assert.Equal(t, 30*time.Millisecond, stats.Max)
	assert.Equal(t, 20*time.Millisecond, stats.Avg)
}

func TestHealthCheckerAggregatesComponents(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.RegisterComponent("vault", func() error { return nil })
	hc.RegisterComponent("notary", func() error { return nil })
	hc.RegisterComponent("transport", func() error { return errors.New("node is not listening") })

	h := hc.CheckHealth()
	assert.Equal(t, Unhealthy, h.OverallStatus)
	require.Len(t, h.Components, 3)
	// Registration order is reporting order.
	assert.Equal(t, "vault", h.Components[0].Name)
	assert.Equal(t, Healthy, h.Components[0].Status)
	assert.Equal(t, "transport", h.Components[2].Name)
	assert.Equal(t, Unhealthy, h.Components[2].Status)
	assert.Equal(t, "node is not listening", h.Components[2].Message)
}

func TestHealthCheckerAllHealthy(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.RegisterComponent("vault", func() error { return nil })

	h := hc.CheckHealth()
	assert.Equal(t, Healthy, h.OverallStatus)
	require.Len(t, h.Components, 1)
	assert.Equal(t, "OK", h.Components[0].Message)
}
