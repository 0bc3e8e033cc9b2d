package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of every flowdesk instrument.
const MeterName = "flowdesk"

// MetricsRecorder records engine and desk metrics.
// Use NewMetricsRecorder for OpenTelemetry or NoopMetrics when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records one node execution.
	RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error)

	// RecordGraphRun records one finished graph run.
	RecordGraphRun(ctx context.Context, success bool, duration time.Duration)

	// RecordCheckpoint records a checkpoint save. conflict is true when the
	// save lost an optimistic-concurrency race.
	RecordCheckpoint(ctx context.Context, sizeBytes int64, conflict bool)

	// RecordRouteDecision records the route the supervisor chose.
	RecordRouteDecision(ctx context.Context, route string)

	// RecordToolCall records one tool invocation.
	RecordToolCall(ctx context.Context, tool string, duration time.Duration, err error)

	// RecordRetrievalCycle records one retrieve/generate/evaluate cycle.
	RecordRetrievalCycle(ctx context.Context, passed bool)
}

// Instrument names. The Prometheus exporter turns dots into underscores
// and suffixes counters with _total and durations with _seconds.
const (
	MetricNodeExecutions      = "flowdesk.node.executions"
	MetricNodeErrors          = "flowdesk.node.errors"
	MetricNodeDuration        = "flowdesk.node.duration"
	MetricGraphRuns           = "flowdesk.graph.runs"
	MetricGraphDuration       = "flowdesk.graph.duration"
	MetricCheckpointSize      = "flowdesk.checkpoint.size"
	MetricCheckpointConflicts = "flowdesk.checkpoint.conflicts"
	MetricRouteDecisions      = "flowdesk.route.decisions"
	MetricToolCalls           = "flowdesk.tool.calls"
	MetricToolDuration        = "flowdesk.tool.duration"
	MetricRetrievalCycles     = "flowdesk.retrieval.cycles"
)

type otelMetrics struct {
	nodeExecutions      metric.Int64Counter
	nodeErrors          metric.Int64Counter
	nodeDuration        metric.Float64Histogram
	graphRuns           metric.Int64Counter
	graphDuration       metric.Float64Histogram
	checkpointSize      metric.Int64Histogram
	checkpointConflicts metric.Int64Counter
	routeDecisions      metric.Int64Counter
	toolCalls           metric.Int64Counter
	toolDuration        metric.Float64Histogram
	retrievalCycles     metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// NewMetricsRecorder returns a recorder backed by the global OpenTelemetry
// meter provider, or NoopMetrics if the instruments cannot be created.
// Set the provider with otel.SetMeterProvider before the first call; the
// instruments are created once per process.
func NewMetricsRecorder() MetricsRecorder {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics(otel.Meter(MeterName))
	})
	if defaultMetricsErr != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", defaultMetricsErr.Error()))
		return NoopMetrics{}
	}
	return defaultMetrics
}

// NewProviderRecorder returns a recorder whose instruments belong to mp.
func NewProviderRecorder(mp metric.MeterProvider) (MetricsRecorder, error) {
	return newOtelMetrics(mp.Meter(MeterName))
}

func newOtelMetrics(meter metric.Meter) (*otelMetrics, error) {
	m := &otelMetrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.nodeExecutions, MetricNodeExecutions, "Node executions"},
		{&m.nodeErrors, MetricNodeErrors, "Node executions that returned an error"},
		{&m.graphRuns, MetricGraphRuns, "Graph runs, labelled by success"},
		{&m.checkpointConflicts, MetricCheckpointConflicts, "Checkpoint saves rejected by a concurrent write"},
		{&m.routeDecisions, MetricRouteDecisions, "Supervisor route decisions, labelled by route"},
		{&m.toolCalls, MetricToolCalls, "Tool invocations, labelled by tool and success"},
		{&m.retrievalCycles, MetricRetrievalCycles, "Knowledge retrieval cycles, labelled by verdict"},
	}
	for _, c := range counters {
		inst, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", c.name, err)
		}
		*c.dst = inst
	}

	durations := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.nodeDuration, MetricNodeDuration, "Node execution time"},
		{&m.graphDuration, MetricGraphDuration, "Graph run time"},
		{&m.toolDuration, MetricToolDuration, "Tool invocation time"},
	}
	for _, h := range durations {
		inst, err := meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit("s"))
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", h.name, err)
		}
		*h.dst = inst
	}

	size, err := meter.Int64Histogram(MetricCheckpointSize,
		metric.WithDescription("Serialized checkpoint size"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", MetricCheckpointSize, err)
	}
	m.checkpointSize = size
	return m, nil
}

func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("node_id", nodeID))
	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordGraphRun(ctx context.Context, success bool, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.graphRuns.Add(ctx, 1, attrs)
	m.graphDuration.Record(ctx, duration.Seconds(), attrs)
}

func (m *otelMetrics) RecordCheckpoint(ctx context.Context, sizeBytes int64, conflict bool) {
	if conflict {
		m.checkpointConflicts.Add(ctx, 1)
		return
	}
	m.checkpointSize.Record(ctx, sizeBytes)
}

func (m *otelMetrics) RecordRouteDecision(ctx context.Context, route string) {
	m.routeDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
}

func (m *otelMetrics) RecordToolCall(ctx context.Context, tool string, duration time.Duration, err error) {
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("success", err == nil),
	))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("tool", tool)))
}

func (m *otelMetrics) RecordRetrievalCycle(ctx context.Context, passed bool) {
	verdict := "fail"
	if passed {
		verdict = "pass"
	}
	m.retrievalCycles.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
}
