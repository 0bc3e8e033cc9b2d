package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of every flowdesk span.
const TracerName = "flowdesk"

// Span names. Node and tool spans append the node ID or tool name.
const (
	SpanRun       = "flowdesk.run"
	SpanNode      = "flowdesk.node."
	SpanTool      = "flowdesk.tool."
	SpanRetrieval = "flowdesk.retrieval"
)

// SpanManager starts and ends the engine's spans.
// Use NewSpanManager for OpenTelemetry or NoopSpanManager when disabled.
type SpanManager interface {
	// StartRunSpan starts the span covering a whole graph run.
	// threadID may be empty for runs that are not thread-scoped.
	StartRunSpan(ctx context.Context, graphName, runID, threadID string) (context.Context, trace.Span)

	// StartNodeSpan starts a child span for one node execution.
	StartNodeSpan(ctx context.Context, nodeID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, recording err when non-nil.
	EndSpanWithError(span trace.Span, err error)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager over the global tracer provider.
// The tracer is looked up on every span, so a provider installed later
// with otel.SetTracerProvider is picked up.
func NewSpanManager() SpanManager {
	return otelSpanManager{}
}

func (otelSpanManager) StartRunSpan(ctx context.Context, graphName, runID, threadID string) (context.Context, trace.Span) {
	return StartRunSpan(ctx, graphName, runID, threadID)
}

func (otelSpanManager) StartNodeSpan(ctx context.Context, nodeID string) (context.Context, trace.Span) {
	return startSpan(ctx, SpanNode+nodeID, trace.SpanKindInternal, attribute.String("node.id", nodeID))
}

func (otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func startSpan(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// StartRunSpan starts the span covering a whole graph run.
func StartRunSpan(ctx context.Context, graphName, runID, threadID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("graph.name", graphName),
		attribute.String("run.id", runID),
	}
	if threadID != "" {
		attrs = append(attrs, attribute.String("thread.id", threadID))
	}
	return startSpan(ctx, SpanRun, trace.SpanKindInternal, attrs...)
}

// StartToolSpan starts a client span for one tool invocation.
func StartToolSpan(ctx context.Context, tool, callID string) (context.Context, trace.Span) {
	return startSpan(ctx, SpanTool+tool, trace.SpanKindClient,
		attribute.String("tool.name", tool),
		attribute.String("tool.call_id", callID),
	)
}

// StartRetrievalSpan starts a client span for one knowledge base search.
func StartRetrievalSpan(ctx context.Context, query string, attempt int) (context.Context, trace.Span) {
	return startSpan(ctx, SpanRetrieval, trace.SpanKindClient,
		attribute.String("retrieval.query", query),
		attribute.Int("retrieval.attempt", attempt),
	)
}

// EndSpanWithError completes a span, recording err when non-nil.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
