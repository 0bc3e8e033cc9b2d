package flowgraph

import (
	"fmt"
	"strings"
	"sync"
)

// Graph is a mutable builder for creating execution graphs.
// Use NewGraph to create a new graph, then chain AddNode, AddEdge,
// AddConditionalEdge, and SetEntry calls to define the workflow.
//
// Graph is NOT thread-safe during building. Use a single goroutine
// to construct the graph, then call Compile() to create an immutable
// CompiledGraph that can be safely shared.
//
// Example:
//
//	graph := flowgraph.NewGraph(schema).
//	    AddNode("triage", triage).
//	    AddNode("answer", answer).
//	    AddNode("escalate", escalate).
//	    AddConditionalEdge("triage", router, map[string]string{
//	        "answer":   "answer",
//	        "escalate": "escalate",
//	    }).
//	    AddEdge("answer", flowgraph.END).
//	    AddEdge("escalate", flowgraph.END).
//	    SetEntry("triage")
//
//	compiled, err := graph.Compile()
type Graph[S any] struct {
	mu               sync.RWMutex
	schema           *Schema[S]
	nodes            map[string]NodeFunc[S]
	edges            map[string][]string
	conditionalEdges map[string]conditionalEdge[S]
	entryPoint       string
}

// NewGraph creates a new graph builder for state type S.
// The schema is the reducer table used to merge every node's Update.
//
// Panics if schema is nil.
func NewGraph[S any](schema *Schema[S]) *Graph[S] {
	if schema == nil {
		panic("flowgraph: schema cannot be nil")
	}
	return &Graph[S]{
		schema:           schema,
		nodes:            make(map[string]NodeFunc[S]),
		edges:            make(map[string][]string),
		conditionalEdges: make(map[string]conditionalEdge[S]),
	}
}

// AddNode adds a named node to the graph.
// Returns the graph for method chaining.
//
// Panics if:
//   - id is empty
//   - id is the reserved word "END" or "__end__" (case-insensitive)
//   - id contains whitespace (space, tab, newline)
//   - fn is nil
//   - id already exists in the graph
func (g *Graph[S]) AddNode(id string, fn NodeFunc[S]) *Graph[S] {
	if id == "" {
		panic("flowgraph: node ID cannot be empty")
	}

	idLower := strings.ToLower(id)
	if idLower == "end" || idLower == "__end__" {
		panic("flowgraph: node ID cannot be reserved word 'END'")
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("flowgraph: node ID cannot contain whitespace")
	}

	if fn == nil {
		panic("flowgraph: node function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		panic(fmt.Sprintf("flowgraph: duplicate node ID: %s", id))
	}

	g.nodes[id] = fn
	return g
}

// AddEdge adds an unconditional edge from one node to another.
// The target can be a node ID or flowgraph.END.
// Returns the graph for method chaining.
//
// Edge validation happens at Compile() time, not here.
// This allows edges to be added in any order. A node may have at most one
// unconditional edge; a second one is reported by Compile.
func (g *Graph[S]) AddEdge(from, to string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge adds a conditional edge from a node. After the node
// runs, the router is applied to the merged state and its label is looked
// up in routes to find the next node (a node ID or flowgraph.END).
// Returns the graph for method chaining.
//
// The key set of routes must equal the router's declared labels; Compile
// fails otherwise. A node can have either an unconditional edge or a
// conditional edge, not both.
func (g *Graph[S]) AddConditionalEdge(from string, router Router[S], routes map[string]string) *Graph[S] {
	if router.fn == nil {
		panic("flowgraph: router function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	copied := make(map[string]string, len(routes))
	for label, to := range routes {
		copied[label] = to
	}
	g.conditionalEdges[from] = conditionalEdge[S]{router: router, routes: copied}
	return g
}

// SetEntry designates the entry point node.
// This must be called before Compile().
// Returns the graph for method chaining.
//
// Entry point validation happens at Compile() time.
func (g *Graph[S]) SetEntry(id string) *Graph[S] {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entryPoint = id
	return g
}
