package flowgraph

import "fmt"

// END is the terminal node identifier.
// Use this as an edge or route target to indicate the graph should terminate.
const END = "__end__"

// NodeFunc is the signature for all node functions.
// Nodes receive the execution context and the current merged state, and
// return a partial Update containing only the fields they changed.
//
// A node may perform at most one external call (generate, retrieve, or
// tool invoke). Running a node twice with the same input must be safe;
// the executor never replays nodes itself, but callers may retry a whole run.
//
// Example:
//
//	func greet(ctx flowgraph.Context, s Conversation) (flowgraph.Update, error) {
//	    return flowgraph.Update{"messages": []llm.Message{llm.AssistantText("hi")}}, nil
//	}
type NodeFunc[S any] func(ctx Context, state S) (Update, error)

// RouterFunc selects a route label based on the just-merged state.
// The returned label must belong to the router's declared label set.
type RouterFunc[S any] func(ctx Context, state S) string

// Router pairs a RouterFunc with the closed set of labels it can return.
// Compile checks that a conditional edge maps every declared label, so a
// missing destination is reported when the graph is built rather than when
// the label first shows up at run time.
type Router[S any] struct {
	fn     RouterFunc[S]
	labels []string
}

// NewRouter declares a router and its label set.
//
// Panics if fn is nil, no labels are given, or a label is repeated.
//
// Example:
//
//	router := flowgraph.NewRouter(func(ctx flowgraph.Context, s State) string {
//	    if s.Done {
//	        return "finish"
//	    }
//	    return "again"
//	}, "finish", "again")
func NewRouter[S any](fn RouterFunc[S], labels ...string) Router[S] {
	if fn == nil {
		panic("flowgraph: router function cannot be nil")
	}
	if len(labels) == 0 {
		panic("flowgraph: router must declare at least one label")
	}
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if l == "" {
			panic("flowgraph: router label cannot be empty")
		}
		if seen[l] {
			panic(fmt.Sprintf("flowgraph: duplicate router label: %s", l))
		}
		seen[l] = true
		out = append(out, l)
	}
	return Router[S]{fn: fn, labels: out}
}

// Labels returns the router's declared label set.
func (r Router[S]) Labels() []string {
	out := make([]string, len(r.labels))
	copy(out, r.labels)
	return out
}

// conditionalEdge is a router plus its label -> destination map.
type conditionalEdge[S any] struct {
	router Router[S]
	routes map[string]string
}
