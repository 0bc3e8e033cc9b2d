package flowgraph

import (
	"fmt"
	"sort"
)

// Update is a partial state update returned by a node.
// Keys are field names declared in the graph's Schema. Fields that are not
// present in the update are left untouched by Merge.
//
// Example:
//
//	return flowgraph.Update{"messages": []Message{reply}}, nil
type Update map[string]any

// Strategy determines how a field's update is combined with its current value.
type Strategy int

const (
	// Overwrite replaces the current value with the update.
	Overwrite Strategy = iota

	// Append concatenates the update to the end of the current sequence.
	// The existing elements are never replaced or reordered.
	Append

	// Increment adds a non-negative delta to an integer counter.
	Increment
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case Overwrite:
		return "overwrite"
	case Append:
		return "append"
	case Increment:
		return "increment"
	default:
		return "unknown"
	}
}

// Field is one entry of a Schema's reducer table.
// Create fields with AppendField, OverwriteField, or IncrementField.
type Field[S any] struct {
	name     string
	strategy Strategy
	apply    func(s *S, v any) error
	length   func(s *S) int
	suffix   func(s *S, from int) any
}

// Name returns the field name used as the Update key.
func (f Field[S]) Name() string {
	return f.name
}

// Strategy returns the field's reducer strategy.
func (f Field[S]) Strategy() Strategy {
	return f.strategy
}

// AppendField declares a sequence field with append-only merge semantics.
// The update value may be a []E or a single E.
//
// The merged slice is always freshly allocated, so a state value held by a
// caller never shares a backing array with a later state.
func AppendField[S any, E any](name string, field func(*S) *[]E) Field[S] {
	return Field[S]{
		name:     name,
		strategy: Append,
		apply: func(s *S, v any) error {
			var items []E
			switch val := v.(type) {
			case []E:
				items = val
			case E:
				items = []E{val}
			case nil:
				return nil
			default:
				return &SchemaError{Field: name, Reason: fmt.Sprintf("cannot append %T", v)}
			}
			cur := field(s)
			next := make([]E, len(*cur), len(*cur)+len(items))
			copy(next, *cur)
			*cur = append(next, items...)
			return nil
		},
		length: func(s *S) int {
			return len(*field(s))
		},
		suffix: func(s *S, from int) any {
			cur := *field(s)
			if from >= len(cur) {
				return []E{}
			}
			out := make([]E, len(cur)-from)
			copy(out, cur[from:])
			return out
		},
	}
}

// OverwriteField declares a field whose update replaces the current value.
// A nil update resets the field to its zero value.
func OverwriteField[S any, V any](name string, field func(*S) *V) Field[S] {
	return Field[S]{
		name:     name,
		strategy: Overwrite,
		apply: func(s *S, v any) error {
			if v == nil {
				var zero V
				*field(s) = zero
				return nil
			}
			val, ok := v.(V)
			if !ok {
				var zero V
				return &SchemaError{Field: name, Reason: fmt.Sprintf("expected %T, got %T", zero, v)}
			}
			*field(s) = val
			return nil
		},
	}
}

// IncrementField declares an integer counter. The update value is a
// non-negative delta; counters never decrease.
func IncrementField[S any](name string, field func(*S) *int) Field[S] {
	return Field[S]{
		name:     name,
		strategy: Increment,
		apply: func(s *S, v any) error {
			delta, ok := v.(int)
			if !ok {
				return &SchemaError{Field: name, Reason: fmt.Sprintf("expected int delta, got %T", v)}
			}
			if delta < 0 {
				return &SchemaError{Field: name, Reason: fmt.Sprintf("negative increment %d", delta)}
			}
			*field(s) += delta
			return nil
		},
	}
}

// Schema is the reducer table for a state type S.
// Every node's partial update is merged through the same table, so the
// combination rule for a field never depends on which node produced it.
//
// Schema is immutable after NewSchema and safe for concurrent use.
type Schema[S any] struct {
	fields map[string]Field[S]
	order  []string
}

// NewSchema creates a reducer table from the given fields.
//
// Panics if a field name is empty or declared twice.
func NewSchema[S any](fields ...Field[S]) *Schema[S] {
	sc := &Schema[S]{
		fields: make(map[string]Field[S], len(fields)),
		order:  make([]string, 0, len(fields)),
	}
	for _, f := range fields {
		if f.name == "" {
			panic("flowgraph: schema field name cannot be empty")
		}
		if _, exists := sc.fields[f.name]; exists {
			panic(fmt.Sprintf("flowgraph: duplicate schema field: %s", f.name))
		}
		sc.fields[f.name] = f
		sc.order = append(sc.order, f.name)
	}
	return sc
}

// Fields returns the declared field names in declaration order.
func (sc *Schema[S]) Fields() []string {
	out := make([]string, len(sc.order))
	copy(out, sc.order)
	return out
}

// Strategy returns the reducer strategy for a field.
func (sc *Schema[S]) Strategy(name string) (Strategy, bool) {
	f, ok := sc.fields[name]
	return f.strategy, ok
}

// Validate checks that every key in u is a declared field.
func (sc *Schema[S]) Validate(u Update) error {
	var unknown []string
	for k := range u {
		if _, ok := sc.fields[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return &SchemaError{Field: unknown[0], Reason: "field not declared in schema"}
}

// Merge applies a partial update to current and returns the next state.
// Fields are applied in declaration order. If any field is rejected the
// returned error is a *SchemaError and current is returned unchanged.
func (sc *Schema[S]) Merge(current S, u Update) (S, error) {
	if len(u) == 0 {
		return current, nil
	}
	if err := sc.Validate(u); err != nil {
		return current, err
	}

	next := current
	for _, name := range sc.order {
		v, ok := u[name]
		if !ok {
			continue
		}
		if err := sc.fields[name].apply(&next, v); err != nil {
			return current, err
		}
	}
	return next, nil
}

// Delta returns the append-field suffixes that final gained over prior.
// Only Append fields are reported; prior must be a prefix of final, which
// the Append strategy guarantees for states produced by Merge.
func (sc *Schema[S]) Delta(prior, final S) Update {
	out := make(Update)
	for _, name := range sc.order {
		f := sc.fields[name]
		if f.strategy != Append {
			continue
		}
		out[name] = f.suffix(&final, f.length(&prior))
	}
	return out
}
