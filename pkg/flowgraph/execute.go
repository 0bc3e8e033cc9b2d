package flowgraph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph/observability"
	"go.opentelemetry.io/otel/trace"
)

// Run executes the graph with the given initial state.
// Returns the final state and any error encountered.
//
// On success, returns the state after the last node executed before END.
// On error, returns the state at the point of failure (useful for debugging).
//
// Execution flow:
//  1. Start at the entry point node
//  2. Check for cancellation
//  3. Execute the current node and merge its Update through the schema
//  4. Determine the next node (via simple or conditional edge)
//  5. Repeat until END is reached or an error occurs
//
// Run never persists anything; thread-scoped persistence is the job of Executor.
//
// Example:
//
//	ctx := flowgraph.NewContext(context.Background())
//	result, err := compiled.Run(ctx, initialState)
//	if err != nil {
//	    // result contains state at point of failure
//	}
func (cg *CompiledGraph[S]) Run(ctx Context, state S, opts ...RunOption) (result S, runErr error) {
	if ctx == nil {
		return state, ErrNilContext
	}

	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	result, _, runErr = cg.run(ctx, ctx, state, &cfg)
	return result, runErr
}

// runSummary describes a finished walk of the graph.
type runSummary struct {
	nodeCount int
	lastNode  string
}

// run wraps runFrom with run-level logging, metrics, and the run span.
// Callers must have applied RunOptions to cfg.
func (cg *CompiledGraph[S]) run(tracingCtx context.Context, ctx Context, state S, cfg *runConfig) (S, runSummary, error) {
	runID := cfg.runID
	if runID == "" {
		runID = ctx.RunID()
	}

	startTime := time.Now()
	observability.LogRunStart(cfg.logger, runID)

	var runSpan trace.Span
	if cfg.tracingEnabled {
		tracingCtx, runSpan = cfg.spans.StartRunSpan(tracingCtx, cfg.graphName, runID, ctx.ThreadID())
	}

	result, summary, runErr := cg.runFrom(tracingCtx, ctx, state, cg.entryPoint, cfg)

	if cfg.tracingEnabled {
		cfg.spans.EndSpanWithError(runSpan, runErr)
	}

	duration := time.Since(startTime)
	cfg.metrics.RecordGraphRun(tracingCtx, runErr == nil, duration)

	observability.LogRunEnd(cfg.logger, runID, duration, summary.nodeCount, lastNodeOf(runErr), runErr)

	return result, summary, runErr
}

// lastNodeOf extracts the failing node from an execution error, if any.
func lastNodeOf(err error) string {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.NodeID
	}
	var maxErr *MaxIterationsError
	if errors.As(err, &maxErr) {
		return maxErr.LastNodeID
	}
	var cancelErr *CancellationError
	if errors.As(err, &cancelErr) {
		return cancelErr.NodeID
	}
	var routerErr *RouterError
	if errors.As(err, &routerErr) {
		return routerErr.FromNode
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return panicErr.NodeID
	}
	return ""
}

// runFrom executes the graph starting from a specific node.
// tracingCtx carries span context; fgCtx is the flowgraph Context.
// Returns the final state, a run summary, and any error.
func (cg *CompiledGraph[S]) runFrom(tracingCtx context.Context, fgCtx Context, state S, startNode string, cfg *runConfig) (S, runSummary, error) {
	current := startNode
	iterations := 0
	var summary runSummary

	for current != END {
		iterations++
		if iterations > cfg.maxIterations {
			return state, summary, &MaxIterationsError{
				Max:        cfg.maxIterations,
				LastNodeID: current,
				State:      state,
			}
		}

		// Check for cancellation before executing node
		select {
		case <-fgCtx.Done():
			return state, summary, &CancellationError{
				NodeID:       current,
				State:        state,
				Cause:        fgCtx.Err(),
				WasExecuting: false,
			}
		default:
		}

		observability.LogNodeStart(cfg.logger, current)

		nodeTracingCtx := tracingCtx
		var nodeSpan trace.Span
		if cfg.tracingEnabled {
			nodeTracingCtx, nodeSpan = cfg.spans.StartNodeSpan(tracingCtx, current)
		}

		nodeStart := time.Now()
		next, nodeErr := cg.step(fgCtx, current, state)
		nodeDuration := time.Since(nodeStart)

		cfg.metrics.RecordNodeExecution(nodeTracingCtx, current, nodeDuration, nodeErr)
		if cfg.tracingEnabled {
			cfg.spans.EndSpanWithError(nodeSpan, nodeErr)
		}

		observability.LogNodeEnd(cfg.logger, current, nodeDuration, nodeErr)
		if nodeErr != nil {
			// A node that fails because its context ended is a cancellation.
			if ctxErr := fgCtx.Err(); ctxErr != nil {
				var panicErr *PanicError
				if !errors.As(nodeErr, &panicErr) {
					return state, summary, &CancellationError{
						NodeID:       current,
						State:        state,
						Cause:        ctxErr,
						WasExecuting: true,
					}
				}
			}
			return state, summary, nodeErr
		}
		summary.nodeCount++
		summary.lastNode = current

		state = next

		to, err := cg.nextNode(fgCtx, state, current)
		if err != nil {
			return state, summary, err
		}
		current = to
	}

	return state, summary, nil
}

// step executes one node and merges its update into state.
// The returned state is only meaningful when err is nil.
func (cg *CompiledGraph[S]) step(ctx Context, nodeID string, state S) (S, error) {
	update, err := cg.executeNode(ctx, nodeID, state)
	if err != nil {
		return state, err
	}
	merged, err := cg.schema.Merge(state, update)
	if err != nil {
		return state, &NodeError{
			NodeID: nodeID,
			Op:     "merge",
			Err:    err,
		}
	}
	return merged, nil
}

// executeNode executes a single node with panic recovery.
// Returns the node's partial update and any error (including wrapped panics).
func (cg *CompiledGraph[S]) executeNode(ctx Context, nodeID string, state S) (update Update, err error) {
	fn, exists := cg.getNode(nodeID)
	if !exists {
		// This shouldn't happen if compilation was successful
		return nil, &NodeError{
			NodeID: nodeID,
			Op:     "lookup",
			Err:    fmt.Errorf("node not found: %s", nodeID),
		}
	}

	nodeCtx := ctx
	if ec, ok := ctx.(*executionContext); ok {
		nodeCtx = ec.withNodeID(nodeID)
	}

	defer func() {
		if r := recover(); r != nil {
			update = nil
			err = &PanicError{
				NodeID: nodeID,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	update, err = fn(nodeCtx, state)
	if err != nil {
		return nil, &NodeError{
			NodeID: nodeID,
			Op:     "execute",
			Err:    err,
		}
	}

	return update, nil
}

// routeSafely runs a router, turning a panic into a *PanicError for the
// node the router branches from.
func routeSafely[S any](fn RouterFunc[S], ctx Context, state S, from string) (label string, err error) {
	defer func() {
		if r := recover(); r != nil {
			label = ""
			err = &PanicError{
				NodeID: from,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()
	return fn(ctx, state), nil
}

// nextNode determines the next node to execute.
// A conditional edge applies its router to the just-merged state and looks
// the label up in its route map; otherwise the single unconditional edge is followed.
func (cg *CompiledGraph[S]) nextNode(ctx Context, state S, current string) (string, error) {
	if ce, exists := cg.conditionalEdges[current]; exists {
		routerCtx := ctx
		if ec, ok := ctx.(*executionContext); ok {
			routerCtx = ec.withNodeID(current)
		}

		label, err := routeSafely(ce.router.fn, routerCtx, state, current)
		if err != nil {
			return "", &RouterError{FromNode: current, Err: err}
		}
		if label == "" {
			return "", &RouterError{
				FromNode: current,
				Returned: label,
				Err:      ErrInvalidRouterResult,
			}
		}

		to, ok := ce.routes[label]
		if !ok {
			return "", &RouterError{
				FromNode: current,
				Returned: label,
				Err:      ErrUnknownRoute,
			}
		}
		return to, nil
	}

	to, ok := cg.edges[current]
	if !ok {
		// No outgoing edges - this shouldn't happen if compilation was successful
		return "", &NodeError{
			NodeID: current,
			Op:     "routing",
			Err:    fmt.Errorf("no outgoing edge from node %s", current),
		}
	}
	return to, nil
}
