// Package telemetry tracks planning-cycle performance: a bounded in-memory
// metric window for inspection plus OpenTelemetry instruments for export.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	// DefaultCapacity bounds the in-memory metric window.
	DefaultCapacity = 1000
	// DefaultLatencyWindow is the sample count AverageLatency uses when n <= 0.
	DefaultLatencyWindow = 100

	bottleneckWindow = 50
	meterName        = "github.com/danielpatrickdp/plancore"
)

// #region types
// Metric is one performance sample.
type Metric struct {
	Latency             time.Duration
	Throughput          float64 // units of work per second
	ResourceUtilization float64
	RecordedAt          time.Time
}

// Summary averages the most recent samples.
type Summary struct {
	Latency             time.Duration `json:"latency"`
	Throughput          float64       `json:"throughput"`
	ResourceUtilization float64       `json:"resource_utilization"`
}

// Monitor holds the bounded sample window and the exported instruments.
type Monitor struct {
	capacity int

	mu      sync.Mutex
	metrics []Metric

	cycles    metric.Int64Counter
	fallbacks metric.Int64Counter
	latency   metric.Float64Histogram
	outcomes  metric.Int64Counter
}

// #endregion types

// #region constructor
// NewMonitor registers instruments on meter. A nil meter records nothing
// externally; the in-memory window still works.
func NewMonitor(meter metric.Meter) (*Monitor, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(meterName)
	}
	m := &Monitor{capacity: DefaultCapacity}

	var err error
	m.cycles, err = meter.Int64Counter(
		"plancore.cycles",
		metric.WithDescription("Total number of planning cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("cycles counter: %w", err)
	}
	m.fallbacks, err = meter.Int64Counter(
		"plancore.cycles.fallback",
		metric.WithDescription("Planning cycles where no candidate was approved"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("fallback counter: %w", err)
	}
	m.latency, err = meter.Float64Histogram(
		"plancore.cycle.latency",
		metric.WithDescription("Planning cycle latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("latency histogram: %w", err)
	}
	m.outcomes, err = meter.Int64Counter(
		"plancore.feedback.outcomes",
		metric.WithDescription("Recorded execution outcomes"),
		metric.WithUnit("{outcome}"),
	)
	if err != nil {
		return nil, fmt.Errorf("outcome counter: %w", err)
	}
	return m, nil
}

// #endregion constructor

// #region record
// RecordMetric appends a sample, dropping the oldest past capacity.
func (m *Monitor) RecordMetric(s Metric) {
	if s.RecordedAt.IsZero() {
		s.RecordedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, s)
	if over := len(m.metrics) - m.capacity; over > 0 {
		m.metrics = append(m.metrics[:0:0], m.metrics[over:]...)
	}
}

// RecordCycle records one planning cycle. Throughput is candidates evaluated per second.
func (m *Monitor) RecordCycle(ctx context.Context, strategy string, candidates int, fallback bool, latency time.Duration) {
	var throughput float64
	if latency > 0 {
		throughput = float64(candidates) / latency.Seconds()
	}
	m.RecordMetric(Metric{Latency: latency, Throughput: throughput})

	attrs := metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.Bool("fallback", fallback),
	)
	m.cycles.Add(ctx, 1, attrs)
	if fallback {
		m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
	}
	m.latency.Record(ctx, latency.Seconds(), metric.WithAttributes(attribute.String("strategy", strategy)))
}

// RecordOutcome records an externally executed plan's cost. Throughput is
// steps completed per second of execution.
func (m *Monitor) RecordOutcome(ctx context.Context, strategy string, steps int, success bool, execution time.Duration, resources float64) {
	var throughput float64
	if execution > 0 {
		throughput = float64(steps) / execution.Seconds()
	}
	m.RecordMetric(Metric{Latency: execution, Throughput: throughput, ResourceUtilization: resources})
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.Bool("success", success),
	))
}

// #endregion record

// #region read
// AverageLatency averages the latency of the last n samples (DefaultLatencyWindow
// when n <= 0). Zero when nothing has been recorded.
func (m *Monitor) AverageLatency(n int) time.Duration {
	if n <= 0 {
		n = DefaultLatencyWindow
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	recent := tail(m.metrics, n)
	if len(recent) == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range recent {
		sum += s.Latency
	}
	return sum / time.Duration(len(recent))
}

// Bottlenecks averages the last 50 samples.
func (m *Monitor) Bottlenecks() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	recent := tail(m.metrics, bottleneckWindow)
	if len(recent) == 0 {
		return Summary{}
	}
	var out Summary
	var latency time.Duration
	for _, s := range recent {
		latency += s.Latency
		out.Throughput += s.Throughput
		out.ResourceUtilization += s.ResourceUtilization
	}
	n := float64(len(recent))
	out.Latency = latency / time.Duration(len(recent))
	out.Throughput /= n
	out.ResourceUtilization /= n
	return out
}

// Len returns the number of retained samples.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.metrics)
}

func tail(ms []Metric, n int) []Metric {
	if n >= len(ms) {
		return ms
	}
	return ms[len(ms)-n:]
}

// #endregion read
