package flowgraph

import (
	"context"
)

// Test state types used across tests

// Counter is a simple state for testing incrementing.
type Counter struct {
	Value int
}

// counterSchema declares Counter.Value as an increment field.
func counterSchema() *Schema[Counter] {
	return NewSchema(
		IncrementField("value", func(s *Counter) *int { return &s.Value }),
	)
}

// State is a more complex state for testing various scenarios.
type State struct {
	Progress []string
	Output   string
	Route    string
	Done     bool
	GoLeft   bool
	Count    int
}

// stateSchema is the reducer table for State.
func stateSchema() *Schema[State] {
	return NewSchema(
		AppendField("progress", func(s *State) *[]string { return &s.Progress }),
		OverwriteField("output", func(s *State) *string { return &s.Output }),
		OverwriteField("route", func(s *State) *string { return &s.Route }),
		OverwriteField("done", func(s *State) *bool { return &s.Done }),
		OverwriteField("go_left", func(s *State) *bool { return &s.GoLeft }),
		IncrementField("count", func(s *State) *int { return &s.Count }),
	)
}

// Helper node functions

// increment is a node that increments the counter.
func increment(ctx Context, s Counter) (Update, error) {
	return Update{"value": 1}, nil
}

// noop returns an empty update.
func noop[S any](ctx Context, s S) (Update, error) {
	return nil, nil
}

// makeTrackingNode creates a node that records its execution.
func makeTrackingNode(name string, tracker *[]string) NodeFunc[State] {
	return func(ctx Context, s State) (Update, error) {
		*tracker = append(*tracker, name)
		return Update{"progress": name}, nil
	}
}

// makeFailingNode creates a node that returns the given error.
func makeFailingNode(err error) NodeFunc[State] {
	return func(ctx Context, s State) (Update, error) {
		return nil, err
	}
}

// makePanicNode creates a node that panics with the given value.
func makePanicNode(value any) NodeFunc[State] {
	return func(ctx Context, s State) (Update, error) {
		panic(value)
	}
}

// leftRight routes on State.GoLeft.
func leftRight() Router[State] {
	return NewRouter(func(ctx Context, s State) string {
		if s.GoLeft {
			return "left"
		}
		return "right"
	}, "left", "right")
}

// testCtx creates a simple test context.
func testCtx() Context {
	return NewContext(context.Background())
}
