package flowgraph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoEntryPoint indicates SetEntry() was not called before Compile().
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrEntryNotFound indicates the entry point references a non-existent node.
	ErrEntryNotFound = errors.New("entry point node not found")

	// ErrNodeNotFound indicates an edge references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoPathToEnd indicates no path exists from the entry point to END.
	ErrNoPathToEnd = errors.New("no path to END from entry")

	// ErrUnreachableNode indicates a node cannot be reached from the entry point.
	ErrUnreachableNode = errors.New("node unreachable from entry")

	// ErrNoOutgoingEdge indicates a node has neither an edge nor a conditional edge.
	ErrNoOutgoingEdge = errors.New("node has no outgoing edge")

	// ErrDuplicateEdge indicates a node has more than one unconditional edge.
	ErrDuplicateEdge = errors.New("node has more than one unconditional edge")

	// ErrConflictingEdges indicates a node has both an unconditional and a conditional edge.
	ErrConflictingEdges = errors.New("node has both unconditional and conditional edges")

	// ErrMissingRoute indicates a router label has no destination in the route map.
	ErrMissingRoute = errors.New("router label has no route")

	// ErrUnknownRoute indicates a route map key that the router never declared,
	// or a router returning a label outside its route map at run time.
	ErrUnknownRoute = errors.New("route label not declared by router")
)

// Sentinel errors for execution.
var (
	// ErrMaxIterations indicates the execution loop exceeded the configured limit.
	ErrMaxIterations = errors.New("exceeded maximum iterations")

	// ErrNilContext indicates Run() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrInvalidRouterResult indicates a router function returned an empty string.
	ErrInvalidRouterResult = errors.New("router returned empty string")

	// ErrSchema indicates a partial update does not match the state schema.
	ErrSchema = errors.New("state update violates schema")

	// ErrCapability indicates an opaque external call failed or timed out.
	ErrCapability = errors.New("capability call failed")
)

// Sentinel errors for thread execution and checkpointing.
var (
	// ErrThreadIDRequired indicates a thread run was requested with an empty thread ID.
	ErrThreadIDRequired = errors.New("thread ID required")

	// ErrSerializeState indicates state serialization failed.
	ErrSerializeState = errors.New("failed to serialize state")

	// ErrDeserializeState indicates state deserialization failed.
	ErrDeserializeState = errors.New("failed to deserialize state")

	// ErrCheckpointVersionMismatch indicates the checkpoint version is incompatible.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")
)

// SchemaError reports a partial update that violates the declared schema:
// an undeclared field, or a value the field's reducer cannot accept.
type SchemaError struct {
	// Field is the offending field name.
	Field string
	// Reason describes the violation.
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: field %q: %s", e.Field, e.Reason)
}

// Unwrap returns ErrSchema for errors.Is support.
func (e *SchemaError) Unwrap() error {
	return ErrSchema
}

// CapabilityError wraps a failure of an opaque external call: generation,
// retrieval, or tool invocation.
type CapabilityError struct {
	// Capability is the kind of call ("generate", "retrieve", "invoke").
	Capability string
	// Name identifies the callee (model name, tool name, index).
	Name string
	// Err is the underlying error.
	Err error
}

func (e *CapabilityError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %s: %v", e.Capability, e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Capability, e.Err)
}

// Is reports ErrCapability so callers can test the category with errors.Is.
func (e *CapabilityError) Is(target error) bool {
	return target == ErrCapability
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// CheckpointError wraps errors from checkpoint operations.
type CheckpointError struct {
	// ThreadID is the thread whose checkpoint failed.
	ThreadID string
	// Op is the operation that failed ("load", "save", "serialize", "deserialize").
	Op string
	// Err is the underlying error.
	Err error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s for thread %s: %v", e.Op, e.ThreadID, e.Err)
}

func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// NodeError wraps an error with node context.
// It is the node-execution error of the engine: any failure inside a node,
// or while merging its update, surfaces as a *NodeError naming the node.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed ("execute", "merge", "lookup", "routing").
	Op string
	// Err is the underlying error from the node.
	Err error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError is a recovered node panic. Stack is captured at the recover
// site and is never shown to the customer.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError reports a run stopped by its context. Nothing from a
// cancelled run is checkpointed.
type CancellationError struct {
	// NodeID is the node that was about to execute or was executing.
	NodeID string
	// State is the state at cancellation (can type-assert to the actual type).
	State any
	// Cause is the underlying cancellation cause (context.Canceled or context.DeadlineExceeded).
	Cause error
	// WasExecuting is true if cancellation occurred during node execution.
	WasExecuting bool
}

func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during node %s: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// RouterError is a conditional edge whose router panicked or produced an
// empty label or one outside its route map. A panic is wrapped as *PanicError.
type RouterError struct {
	// FromNode is the node with the conditional edge.
	FromNode string
	// Returned is the value the router returned.
	Returned string
	// Err is the underlying error.
	Err error
}

func (e *RouterError) Error() string {
	return fmt.Sprintf("router from %s returned %q: %v", e.FromNode, e.Returned, e.Err)
}

func (e *RouterError) Unwrap() error {
	return e.Err
}

// MaxIterationsError reports a run that was still routing after Max node
// executions. State holds the last merged state.
type MaxIterationsError struct {
	// Max is the configured iteration limit.
	Max int
	// LastNodeID is the node that would have executed next.
	LastNodeID string
	// State is the state at termination (can type-assert to the actual type).
	State any
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("exceeded maximum iterations (%d) at node %s", e.Max, e.LastNodeID)
}

// Unwrap returns ErrMaxIterations for errors.Is support.
func (e *MaxIterationsError) Unwrap() error {
	return ErrMaxIterations
}
