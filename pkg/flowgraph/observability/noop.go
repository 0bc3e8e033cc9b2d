package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordNodeExecution(context.Context, string, time.Duration, error) {}
func (NoopMetrics) RecordGraphRun(context.Context, bool, time.Duration)                {}
func (NoopMetrics) RecordCheckpoint(context.Context, int64, bool)                      {}
func (NoopMetrics) RecordRouteDecision(context.Context, string)                        {}
func (NoopMetrics) RecordToolCall(context.Context, string, time.Duration, error)       {}
func (NoopMetrics) RecordRetrievalCycle(context.Context, bool)                         {}

// NoopSpanManager starts non-recording spans and leaves the context as is.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

func (NoopSpanManager) StartRunSpan(ctx context.Context, _, _, _ string) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

func (NoopSpanManager) StartNodeSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noop.Span{}
}

func (NoopSpanManager) EndSpanWithError(trace.Span, error) {}
