// Package observability carries the engine's structured logs, OpenTelemetry
// metrics, and OpenTelemetry traces.
//
// Every helper here accepts a nil logger and does nothing with it, and
// both MetricsRecorder and SpanManager have no-op implementations, so
// callers wire observability in without guarding each call site.
//
// Log levels follow one rule: anything that aborts a turn is ERROR, anything
// the turn recovers from is WARN, and per-node or per-tool progress is DEBUG.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds run_id, thread_id, and node_id to a logger.
// thread_id is omitted when empty.
func EnrichLogger(logger *slog.Logger, runID, threadID, nodeID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	attrs := []any{slog.String("run_id", runID)}
	if threadID != "" {
		attrs = append(attrs, slog.String("thread_id", threadID))
	}
	attrs = append(attrs, slog.String("node_id", nodeID))
	return logger.With(attrs...)
}

// LogRunStart logs the start of a graph run.
func LogRunStart(logger *slog.Logger, runID string) {
	if logger == nil {
		return
	}
	logger.Info("graph run starting", slog.String("run_id", runID))
}

// LogRunEnd logs how a graph run finished. lastNode names the node the run
// stopped at and is only logged on failure.
func LogRunEnd(logger *slog.Logger, runID string, elapsed time.Duration, nodes int, lastNode string, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Error("graph run failed",
			slog.String("run_id", runID),
			slog.Duration("elapsed", elapsed),
			slog.String("last_node", lastNode),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Info("graph run completed",
		slog.String("run_id", runID),
		slog.Duration("elapsed", elapsed),
		slog.Int("nodes_executed", nodes),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting", slog.String("node_id", nodeID))
}

// LogNodeEnd logs a finished node. Failures are ERROR.
func LogNodeEnd(logger *slog.Logger, nodeID string, elapsed time.Duration, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Error("node failed",
			slog.String("node_id", nodeID),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Duration("elapsed", elapsed),
	)
}

// LogCheckpoint logs a checkpoint load or save. A failed checkpoint
// discards the turn, so failures are ERROR.
func LogCheckpoint(logger *slog.Logger, threadID, op string, sequence, sizeBytes int, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Error("checkpoint failed",
			slog.String("thread_id", threadID),
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("thread_id", threadID),
		slog.Int("sequence", sequence),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogRouteDecision logs the route the supervisor chose for a turn.
func LogRouteDecision(logger *slog.Logger, route string) {
	if logger == nil {
		return
	}
	logger.Info("ticket routed", slog.String("route", route))
}

// LogToolCall logs one tool invocation. A failed tool is reported back to
// the model rather than aborting the turn, so failures are WARN.
func LogToolCall(logger *slog.Logger, tool, callID string, elapsed time.Duration, err error) {
	if logger == nil {
		return
	}
	if err != nil {
		logger.Warn("tool call failed",
			slog.String("tool", tool),
			slog.String("call_id", callID),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("tool call completed",
		slog.String("tool", tool),
		slog.String("call_id", callID),
		slog.Duration("elapsed", elapsed),
	)
}

// LogRetrievalCycle logs one retrieve/generate/evaluate cycle.
func LogRetrievalCycle(logger *slog.Logger, attempt, documents int, verdict string) {
	if logger == nil {
		return
	}
	logger.Debug("retrieval cycle evaluated",
		slog.Int("attempt", attempt),
		slog.Int("documents", documents),
		slog.String("verdict", verdict),
	)
}
