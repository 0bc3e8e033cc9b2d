package flowgraph

import (
	"log/slog"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph/observability"
)

// runConfig holds configuration for graph execution.
type runConfig struct {
	maxIterations int

	// Observability
	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool
	graphName      string
	runID          string
}

// defaultRunConfig returns the default execution configuration.
func defaultRunConfig() runConfig {
	return runConfig{
		maxIterations: 1000,
		metrics:       observability.NoopMetrics{},
		spans:         observability.NoopSpanManager{},
		graphName:     "flowgraph",
	}
}

// RunOption configures execution behavior.
type RunOption func(*runConfig)

// WithMaxIterations sets the maximum number of node executions.
// Default: 1000
//
// This prevents infinite loops from hanging forever. If a graph
// exceeds this limit, Run returns a *MaxIterationsError.
//
// Example:
//
//	result, err := compiled.Run(ctx, state, flowgraph.WithMaxIterations(100))
func WithMaxIterations(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithObservabilityLogger enables run and node lifecycle logging.
// Nodes still receive the Context logger regardless of this option.
func WithObservabilityLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics for the run.
// Pass false to keep the no-op recorder.
func WithMetrics(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithMetricsRecorder sets a specific metrics recorder.
func WithMetricsRecorder(m observability.MetricsRecorder) RunOption {
	return func(c *runConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables OpenTelemetry spans for the run and each node.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		c.tracingEnabled = enabled
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithGraphName labels the run span and logs. Default: "flowgraph".
func WithGraphName(name string) RunOption {
	return func(c *runConfig) {
		if name != "" {
			c.graphName = name
		}
	}
}

// WithRunID overrides the run identifier used for logging and spans.
// Defaults to the Context's RunID.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}
