// Package tools implements the tool-invocation capability used by the
// support specialists.
//
// A Registry holds named tools, each with a JSON Schema for its arguments.
// Invoke validates arguments against that schema before the handler runs,
// so handlers can read required arguments without re-checking them.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
)

var (
	// ErrUnknownTool is returned when a tool name is not registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArguments is returned when arguments fail schema validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrDuplicateTool is returned when a tool name is registered twice.
	ErrDuplicateTool = errors.New("tool already registered")
)

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Invoker executes a tool by name.
type Invoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// Args are decoded tool arguments.
type Args map[string]any

// String returns the string argument key, or "" when absent.
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Handler runs a tool with validated arguments and returns plain text.
type Handler func(ctx context.Context, args Args) (string, error)

// Tool is a named operation the model may request.
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON Schema object. Nil means no arguments.
	Parameters json.RawMessage
	Handler    Handler
}

// ArgumentError reports arguments that do not match a tool's schema.
type ArgumentError struct {
	Tool string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("tool %s: invalid arguments: %v", e.Tool, e.Err)
}

// Is reports ErrInvalidArguments.
func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidArguments
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

type registered struct {
	tool   Tool
	schema *jsonschema.Schema
}

// Registry is a set of tools. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registered
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registered)}
}

// Register adds a tool after compiling its parameter schema.
func (r *Registry) Register(t Tool) error {
	if !toolNamePattern.MatchString(t.Name) {
		return fmt.Errorf("invalid tool name %q", t.Name)
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s missing handler", t.Name)
	}
	if len(t.Parameters) == 0 {
		t.Parameters = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	schema, err := compileSchema(t.Name, t.Parameters)
	if err != nil {
		return fmt.Errorf("tool %s schema: %w", t.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
	}
	r.tools[t.Name] = registered{tool: t, schema: schema}
	r.order = append(r.order, t.Name)
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(tools ...Tool) *Registry {
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Definitions returns the model-facing definitions of the named tools, in
// the given order. With no names every tool is returned.
func (r *Registry) Definitions(names ...string) ([]llm.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(names) == 0 {
		names = r.order
	}
	out := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		reg, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
		}
		out = append(out, llm.Tool{
			Name:        reg.tool.Name,
			Description: reg.tool.Description,
			Parameters:  reg.tool.Parameters,
		})
	}
	return out, nil
}

// Subset returns a registry restricted to the named tools. The tools are
// shared, not copied.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub := NewRegistry()
	for _, name := range names {
		reg, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
		}
		if _, dup := sub.tools[name]; dup {
			continue
		}
		sub.tools[name] = reg
		sub.order = append(sub.order, name)
	}
	return sub, nil
}

// Invoke implements Invoker. Empty args are treated as an empty object.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	r.mu.RLock()
	reg, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if len(bytes.TrimSpace(args)) == 0 {
		args = json.RawMessage(`{}`)
	}
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return "", &ArgumentError{Tool: name, Err: err}
	}
	if err := reg.schema.Validate(decoded); err != nil {
		return "", &ArgumentError{Tool: name, Err: err}
	}
	obj, ok := decoded.(map[string]any)
	if !ok {
		return "", &ArgumentError{Tool: name, Err: fmt.Errorf("expected object, got %T", decoded)}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return reg.tool.Handler(ctx, Args(obj))
}

func compileSchema(name string, params json.RawMessage) (*jsonschema.Schema, error) {
	url := name + ".schema.json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(params)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}
