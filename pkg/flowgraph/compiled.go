package flowgraph

import "sort"

// CompiledGraph is an immutable, executable graph.
// It is created by calling Compile() on a Graph builder.
//
// CompiledGraph is thread-safe and can be used concurrently for multiple
// Run() calls. The graph structure cannot be modified after compilation.
//
// Use the introspection methods (NodeIDs, Successors, etc.) to examine
// the graph structure for debugging or visualization.
type CompiledGraph[S any] struct {
	schema           *Schema[S]
	nodes            map[string]NodeFunc[S]
	edges            map[string]string
	conditionalEdges map[string]conditionalEdge[S]
	entryPoint       string

	// Pre-computed for efficient lookup
	successors   map[string][]string
	predecessors map[string][]string
}

// Schema returns the reducer table used to merge node updates.
func (cg *CompiledGraph[S]) Schema() *Schema[S] {
	return cg.schema
}

// EntryPoint returns the entry node ID.
func (cg *CompiledGraph[S]) EntryPoint() string {
	return cg.entryPoint
}

// NodeIDs returns all node identifiers in the graph, sorted.
func (cg *CompiledGraph[S]) NodeIDs() []string {
	ids := make([]string, 0, len(cg.nodes))
	for id := range cg.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasNode checks if a node exists in the graph.
func (cg *CompiledGraph[S]) HasNode(id string) bool {
	_, exists := cg.nodes[id]
	return exists
}

// Successors returns every destination reachable in one step from the
// given node, including all conditional route targets and END.
// Returns nil for END or unknown nodes.
func (cg *CompiledGraph[S]) Successors(id string) []string {
	if id == END {
		return nil
	}
	return cg.successors[id]
}

// Predecessors returns the node IDs that have edges to the given node.
// Returns nil for the entry node or unknown nodes.
func (cg *CompiledGraph[S]) Predecessors(id string) []string {
	return cg.predecessors[id]
}

// IsConditional returns true if the node has a conditional edge.
func (cg *CompiledGraph[S]) IsConditional(id string) bool {
	_, ok := cg.conditionalEdges[id]
	return ok
}

// Routes returns a copy of the label -> destination map for a conditional
// node, or nil if the node has no conditional edge.
func (cg *CompiledGraph[S]) Routes(id string) map[string]string {
	ce, ok := cg.conditionalEdges[id]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(ce.routes))
	for label, to := range ce.routes {
		out[label] = to
	}
	return out
}

// getNode returns the node function for the given ID.
func (cg *CompiledGraph[S]) getNode(id string) (NodeFunc[S], bool) {
	fn, exists := cg.nodes[id]
	return fn, exists
}
