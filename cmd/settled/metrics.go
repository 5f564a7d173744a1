// metrics.go - Metrics collection for the settlement daemon
package main

import (
	"sync"
	"time"
)

// Predefined metric names
const (
	MetricTransitionsBuilt     = "transitions_built"
	MetricTransitionsCommitted = "transitions_committed"
	MetricTransitionsAborted   = "transitions_aborted"
	MetricUnpaidObligations    = "unpaid_obligations"
	MetricNotaryLatency        = "notary_latency"
	MetricFlowDuration         = "flow_duration"
	MetricErrorCount           = "error_count"
)

// MetricsCollector aggregates counters, gauges and duration samples for
// the daemon. All methods are safe for concurrent use.
type MetricsCollector struct {
	mu        sync.RWMutex
	counters  map[string]int64
	gauges    map[string]float64
	durations map[string][]time.Duration
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:  make(map[string]int64),
		gauges:    make(map[string]float64),
		durations: make(map[string][]time.Duration),
	}
}

// IncrementCounter increments a counter metric
func (mc *MetricsCollector) IncrementCounter(name string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.counters[name]++
}

// Counter returns the current value of a counter metric
func (mc *MetricsCollector) Counter(name string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.counters[name]
}

// SetGauge sets a gauge metric value
func (mc *MetricsCollector) SetGauge(name string, value float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.gauges[name] = value
}

// RecordDuration records a duration sample
func (mc *MetricsCollector) RecordDuration(name string, d time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	samples := append(mc.durations[name], d)
	// Keep only last 1000 values for memory efficiency
	if len(samples) > 1000 {
		samples = samples[len(samples)-1000:]
	}
	mc.durations[name] = samples
}

// DurationStats summarizes the samples recorded for a duration metric.
type DurationStats struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
}

// Summary returns a snapshot of all collected metrics
func (mc *MetricsCollector) Summary() map[string]interface{} {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	summary := make(map[string]interface{})

	counters := make(map[string]int64, len(mc.counters))
	for name, value := range mc.counters {
		counters[name] = value
	}
	summary["counters"] = counters

	gauges := make(map[string]float64, len(mc.gauges))
	for name, value := range mc.gauges {
		gauges[name] = value
	}
	summary["gauges"] = gauges

	durations := make(map[string]DurationStats, len(mc.durations))
	for name, samples := range mc.durations {
		if len(samples) == 0 {
			continue
		}
		stats := DurationStats{Count: len(samples), Min: samples[0], Max: samples[0]}
		var sum time.Duration
		for _, d := range samples {
			if d < stats.Min {
				stats.Min = d
			}
			if d > stats.Max {
				stats.Max = d
			}
			sum += d
		}
		stats.Avg = sum / time.Duration(stats.Count)
		durations[name] = stats
	}
	summary["durations"] = durations

	return summary
}

// Convenience methods for common metrics

func (mc *MetricsCollector) RecordCommit(latency time.Duration) {
	mc.IncrementCounter(MetricTransitionsCommitted)
	mc.RecordDuration(MetricNotaryLatency, latency)
}

func (mc *MetricsCollector) RecordAbort() {
	mc.IncrementCounter(MetricTransitionsAborted)
}

func (mc *MetricsCollector) RecordError(errorType string) {
	mc.IncrementCounter(MetricErrorCount + "_" + errorType)
}
