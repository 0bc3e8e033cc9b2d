/*
Package flowgraph provides the graph execution engine behind flowdesk's
support workflows.

# Overview

A workflow is a directed graph of named nodes over a typed state S. Each
node receives the current state and returns a partial Update naming only
the fields it changed. The Update is merged through the graph's Schema,
a reducer table that fixes, per field, whether values are appended,
overwritten, or incremented. The same reducer applies no matter which node
produced the update.

After a node runs, either its single unconditional edge is followed or its
Router picks a label that is looked up in a closed route map. Compile
rejects graphs where any declared label lacks a destination, so a missing
route is a build error rather than a run-time surprise.

# Basic Usage

	type State struct {
	    Messages []string
	    Route    string
	}

	schema := flowgraph.NewSchema(
	    flowgraph.AppendField("messages", func(s *State) *[]string { return &s.Messages }),
	    flowgraph.OverwriteField("route", func(s *State) *string { return &s.Route }),
	)

	func triage(ctx flowgraph.Context, s State) (flowgraph.Update, error) {
	    return flowgraph.Update{"route": "answer"}, nil
	}

	router := flowgraph.NewRouter(func(ctx flowgraph.Context, s State) string {
	    return s.Route
	}, "answer", "escalate")

	compiled, err := flowgraph.NewGraph(schema).
	    AddNode("triage", triage).
	    AddNode("answer", answer).
	    AddNode("escalate", escalate).
	    AddConditionalEdge("triage", router, map[string]string{
	        "answer":   "answer",
	        "escalate": "escalate",
	    }).
	    AddEdge("answer", flowgraph.END).
	    AddEdge("escalate", flowgraph.END).
	    SetEntry("triage").
	    Compile()

# Threads

CompiledGraph.Run executes a graph once and persists nothing. Executor adds
durable conversation threads on top of a checkpoint.Store:

	exec := flowgraph.NewExecutor(compiled, checkpoint.NewMemoryStore(),
	    flowgraph.WithRunTimeout(2*time.Minute))

	res, err := exec.Run(ctx, "t1", flowgraph.Update{"messages": "hi"})
	// res.Delta["messages"] holds only what this run appended.

A run loads the thread's last checkpoint, merges the input, walks the graph
to END and only then saves. Any failure, cancellation, or timeout leaves the
stored checkpoint byte-for-byte as it was. Saves are guarded by a sequence
number, so two writers that raced on the same thread cannot both commit.

# Loops

A router may send control back to an earlier node. Every run is bounded by
WithMaxIterations (default 1000).

# Error Handling

  - *SchemaError: an update named an undeclared field or a bad value
  - *NodeError: a node failed, or its update could not be merged
  - *PanicError: a node panicked; includes the stack
  - *RouterError: a router returned an empty or unmapped label
  - *CancellationError: the context ended before or during a node
  - *MaxIterationsError: the loop limit was reached
  - *CheckpointError: loading or saving a thread failed
  - *CapabilityError: a generate, retrieve, or tool call failed

# Observability

WithObservabilityLogger, WithMetrics, and WithTracing enable slog run and
node events, OpenTelemetry metrics, and OpenTelemetry spans. Nodes always
get an enriched logger through Context.Logger.
*/
package flowgraph
