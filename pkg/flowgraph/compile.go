package flowgraph

import (
	"errors"
	"fmt"
	"sort"
)

// Compile validates the graph and creates an executable CompiledGraph.
// Returns an error if validation fails. Multiple errors are joined together.
//
// Validation checks (in order):
//  1. Entry point must be set and reference an existing node
//  2. Edge sources and targets must reference existing nodes (or END)
//  3. A node has exactly one outgoing edge: unconditional or conditional
//  4. Every router label has a route, and every route key is a declared label
//  5. Every node is reachable from the entry point
//  6. END is reachable from the entry point
func (g *Graph[S]) Compile() (*CompiledGraph[S], error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error

	// 1. Entry point
	if g.entryPoint == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if _, exists := g.nodes[g.entryPoint]; !exists {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entryPoint))
	}

	// 2 & 3. Unconditional edges
	for _, from := range sortedKeys(g.edges) {
		targets := g.edges[from]
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		if len(targets) > 1 {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateEdge, from))
		}
		if _, hasConditional := g.conditionalEdges[from]; hasConditional {
			errs = append(errs, fmt.Errorf("%w: %s", ErrConflictingEdges, from))
		}
		for _, to := range targets {
			if to != END {
				if _, exists := g.nodes[to]; !exists {
					errs = append(errs, fmt.Errorf("%w: edge target '%s' does not exist", ErrNodeNotFound, to))
				}
			}
		}
	}

	// 2 & 4. Conditional edges
	for _, from := range sortedKeys(g.conditionalEdges) {
		ce := g.conditionalEdges[from]
		if _, exists := g.nodes[from]; !exists {
			errs = append(errs, fmt.Errorf("%w: conditional edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		declared := make(map[string]bool, len(ce.router.labels))
		for _, label := range ce.router.labels {
			declared[label] = true
			if _, ok := ce.routes[label]; !ok {
				errs = append(errs, fmt.Errorf("%w: %s from node %s", ErrMissingRoute, label, from))
			}
		}
		for _, label := range sortedKeys(ce.routes) {
			if !declared[label] {
				errs = append(errs, fmt.Errorf("%w: %s from node %s", ErrUnknownRoute, label, from))
			}
			to := ce.routes[label]
			if to != END {
				if _, exists := g.nodes[to]; !exists {
					errs = append(errs, fmt.Errorf("%w: route '%s' target '%s' does not exist", ErrNodeNotFound, label, to))
				}
			}
		}
	}

	// 3. Every node must lead somewhere
	for _, id := range sortedKeys(g.nodes) {
		_, hasEdge := g.edges[id]
		_, hasConditional := g.conditionalEdges[id]
		if !hasEdge && !hasConditional {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoOutgoingEdge, id))
		}
	}

	// 5 & 6. Reachability
	if _, exists := g.nodes[g.entryPoint]; exists {
		reachable := g.findReachableNodes()
		for _, id := range sortedKeys(g.nodes) {
			if !reachable[id] {
				errs = append(errs, fmt.Errorf("%w: %s", ErrUnreachableNode, id))
			}
		}
		if !g.hasPathToEnd() {
			errs = append(errs, ErrNoPathToEnd)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return g.buildCompiledGraph(), nil
}

// targetsOf returns every destination a node can transition to.
func (g *Graph[S]) targetsOf(id string) []string {
	var out []string
	out = append(out, g.edges[id]...)
	if ce, ok := g.conditionalEdges[id]; ok {
		for _, label := range ce.router.labels {
			if to, ok := ce.routes[label]; ok {
				out = append(out, to)
			}
		}
	}
	return out
}

// hasPathToEnd checks if there's a path from entry to END.
// Route maps are closed, so every possible destination is known statically.
func (g *Graph[S]) hasPathToEnd() bool {
	canReachEnd := map[string]bool{END: true}

	changed := true
	for changed {
		changed = false
		for id := range g.nodes {
			if canReachEnd[id] {
				continue
			}
			for _, to := range g.targetsOf(id) {
				if canReachEnd[to] {
					canReachEnd[id] = true
					changed = true
					break
				}
			}
		}
	}

	return canReachEnd[g.entryPoint]
}

// findReachableNodes returns the set of nodes reachable from the entry point.
func (g *Graph[S]) findReachableNodes() map[string]bool {
	reachable := make(map[string]bool)

	if g.entryPoint == "" {
		return reachable
	}

	// BFS from entry
	queue := []string{g.entryPoint}
	reachable[g.entryPoint] = true

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, target := range g.targetsOf(current) {
			if target != END && !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}

	return reachable
}

// buildCompiledGraph creates the immutable CompiledGraph from the builder state.
func (g *Graph[S]) buildCompiledGraph() *CompiledGraph[S] {
	nodes := make(map[string]NodeFunc[S], len(g.nodes))
	for id, fn := range g.nodes {
		nodes[id] = fn
	}

	edges := make(map[string]string, len(g.edges))
	for from, targets := range g.edges {
		edges[from] = targets[0]
	}

	conditionalEdges := make(map[string]conditionalEdge[S], len(g.conditionalEdges))
	for from, ce := range g.conditionalEdges {
		routes := make(map[string]string, len(ce.routes))
		for label, to := range ce.routes {
			routes[label] = to
		}
		conditionalEdges[from] = conditionalEdge[S]{router: ce.router, routes: routes}
	}

	successors := make(map[string][]string, len(nodes))
	predecessors := make(map[string][]string)
	for id := range nodes {
		seen := make(map[string]bool)
		for _, to := range g.targetsOf(id) {
			if seen[to] {
				continue
			}
			seen[to] = true
			successors[id] = append(successors[id], to)
			if to != END {
				predecessors[to] = append(predecessors[to], id)
			}
		}
		sort.Strings(successors[id])
	}
	for id := range predecessors {
		sort.Strings(predecessors[id])
	}

	return &CompiledGraph[S]{
		schema:           g.schema,
		nodes:            nodes,
		edges:            edges,
		conditionalEdges: conditionalEdges,
		entryPoint:       g.entryPoint,
		successors:       successors,
		predecessors:     predecessors,
	}
}

// sortedKeys returns map keys in sorted order so compile errors are stable.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
