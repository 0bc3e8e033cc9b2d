package flowgraph

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/observability"
)

// Context provides execution context to nodes.
// It extends context.Context with flowgraph-specific services and metadata.
//
// Context is immutable after creation. The executor creates derived contexts
// for each node with updated NodeID and enriched logger.
type Context interface {
	context.Context

	// Logger returns the configured logger, enriched with run, thread and node context.
	// Never returns nil - defaults to slog.Default() if not configured.
	Logger() *slog.Logger

	// RunID returns the unique identifier for this execution run.
	// Auto-generated if not configured.
	RunID() string

	// ThreadID returns the conversation thread this run belongs to.
	// Empty for runs that are not thread-scoped (for example sub-loops run directly).
	ThreadID() string

	// NodeID returns the current node being executed.
	// Empty string before execution starts.
	NodeID() string
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context
	logger   *slog.Logger
	runID    string
	threadID string
	nodeID   string
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

// RunID returns the run identifier.
func (c *executionContext) RunID() string {
	return c.runID
}

// ThreadID returns the thread identifier.
func (c *executionContext) ThreadID() string {
	return c.threadID
}

// NodeID returns the current node identifier.
func (c *executionContext) NodeID() string {
	return c.nodeID
}

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context.
// The logger will be enriched with run_id, thread_id, and node_id during execution.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithContextRunID sets the run identifier for the context.
// If not set, a UUID will be auto-generated.
func WithContextRunID(id string) ContextOption {
	return func(c *executionContext) {
		c.runID = id
	}
}

// WithThreadID sets the thread identifier carried by the context.
func WithThreadID(id string) ContextOption {
	return func(c *executionContext) {
		c.threadID = id
	}
}

// NewContext creates an execution context from a standard context.
// The returned Context wraps the provided context.Context and adds
// flowgraph-specific services and metadata.
//
// Example:
//
//	ctx := flowgraph.NewContext(context.Background(),
//	    flowgraph.WithLogger(myLogger),
//	    flowgraph.WithContextRunID("run-123"))
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		runID:   uuid.New().String(),
	}

	for _, opt := range opts {
		opt(ec)
	}

	return ec
}

// Derive returns a Context that shares parent's services and metadata but
// wraps inner as its context.Context. Use it to attach a deadline or
// cancellation to an existing flowgraph Context.
func Derive(parent Context, inner context.Context) Context {
	return &executionContext{
		Context:  inner,
		logger:   parent.Logger(),
		runID:    parent.RunID(),
		threadID: parent.ThreadID(),
		nodeID:   parent.NodeID(),
	}
}

// withNodeID returns a new context with the given node ID set.
// Used internally by the executor to enrich the context per-node.
func (c *executionContext) withNodeID(nodeID string) *executionContext {
	return &executionContext{
		Context:  c.Context,
		logger:   observability.EnrichLogger(c.logger, c.runID, c.threadID, nodeID),
		runID:    c.runID,
		threadID: c.threadID,
		nodeID:   nodeID,
	}
}
