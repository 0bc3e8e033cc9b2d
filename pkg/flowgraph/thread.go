package flowgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/flowdesk/pkg/flowgraph/observability"
)

// Result is the outcome of one thread-scoped run.
type Result[S any] struct {
	// ThreadID is the thread the run belonged to.
	ThreadID string
	// RunID identifies the run in logs and the stored checkpoint.
	RunID string
	// Prior is the state loaded from the checkpoint before the input was merged.
	Prior S
	// State is the final state that was persisted.
	State S
	// Delta holds, for every Append field, the elements added by this run.
	Delta Update
	// Sequence is the checkpoint sequence written by this run.
	Sequence int
}

// Executor runs a compiled graph against durable, thread-scoped state.
//
// For each Run it loads the thread's checkpoint (or starts from the zero
// state), merges the caller's input, walks the graph to END, and only then
// persists the final state. A failed, cancelled, or timed-out run persists
// nothing, so the previous checkpoint stays authoritative.
//
// Runs on the same thread are serialized in-process; the store's sequence
// check rejects writes from runs on other processes that raced this one.
// Runs on different threads proceed concurrently.
type Executor[S any] struct {
	graph   *CompiledGraph[S]
	store   checkpoint.Store
	timeout time.Duration
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	runOpts []RunOption
	locks   *threadLocks
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	timeout time.Duration
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	runOpts []RunOption
}

// WithRunTimeout bounds each Run. Zero means no deadline beyond the caller's.
func WithRunTimeout(d time.Duration) ExecutorOption {
	return func(c *executorConfig) {
		if d >= 0 {
			c.timeout = d
		}
	}
}

// WithExecutorLogger sets the logger for checkpoint lifecycle events.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(c *executorConfig) {
		c.logger = logger
	}
}

// WithExecutorMetrics sets the recorder for checkpoint metrics.
func WithExecutorMetrics(m observability.MetricsRecorder) ExecutorOption {
	return func(c *executorConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithRunOptions sets options applied to every graph run.
func WithRunOptions(opts ...RunOption) ExecutorOption {
	return func(c *executorConfig) {
		c.runOpts = append(c.runOpts, opts...)
	}
}

// NewExecutor creates an Executor over a compiled graph and a checkpoint store.
// The executor does not own the store; closing it is the caller's job.
//
// Panics if graph or store is nil.
func NewExecutor[S any](graph *CompiledGraph[S], store checkpoint.Store, opts ...ExecutorOption) *Executor[S] {
	if graph == nil {
		panic("flowgraph: executor graph cannot be nil")
	}
	if store == nil {
		panic("flowgraph: executor store cannot be nil")
	}

	cfg := executorConfig{metrics: observability.NoopMetrics{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Executor[S]{
		graph:   graph,
		store:   store,
		timeout: cfg.timeout,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		runOpts: cfg.runOpts,
		locks:   newThreadLocks(),
	}
}

// Graph returns the compiled graph the executor runs.
func (e *Executor[S]) Graph() *CompiledGraph[S] {
	return e.graph
}

// Run executes one turn on a thread.
//
// input is merged into the loaded state through the graph's schema before
// the entry node runs, so it is subject to the same reducer rules as any
// node update. Errors:
//   - ErrThreadIDRequired when threadID is empty
//   - *SchemaError when input does not match the schema
//   - *CheckpointError when loading or saving fails; a lost race wraps checkpoint.ErrConflict
//   - any execution error from CompiledGraph.Run (*NodeError, *RouterError, ...)
//
// On error the returned Result carries only ThreadID, RunID, and Prior.
func (e *Executor[S]) Run(ctx Context, threadID string, input Update) (Result[S], error) {
	if ctx == nil {
		return Result[S]{}, ErrNilContext
	}
	if threadID == "" {
		return Result[S]{}, ErrThreadIDRequired
	}

	var inner context.Context = ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		inner, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	runCtx := withThread(ctx, inner, threadID)
	res := Result[S]{ThreadID: threadID, RunID: runCtx.RunID()}

	unlock, err := e.locks.acquire(runCtx, threadID)
	if err != nil {
		return res, &CancellationError{Cause: err}
	}
	defer unlock()

	prior, seq, err := e.load(runCtx, threadID)
	if err != nil {
		return res, err
	}
	res.Prior = prior

	state, err := e.graph.schema.Merge(prior, input)
	if err != nil {
		return res, err
	}

	cfg := defaultRunConfig()
	for _, opt := range e.runOpts {
		opt(&cfg)
	}
	final, summary, err := e.graph.run(runCtx, runCtx, state, &cfg)
	if err != nil {
		return res, err
	}

	// The walk finished, but a deadline that expired on the way still
	// fails the run.
	if ctxErr := runCtx.Err(); ctxErr != nil {
		return res, &CancellationError{NodeID: END, State: final, Cause: ctxErr}
	}

	newSeq, err := e.save(runCtx, threadID, seq, summary.lastNode, final)
	if err != nil {
		return res, err
	}

	res.State = final
	res.Delta = e.graph.schema.Delta(prior, final)
	res.Sequence = newSeq
	return res, nil
}

// State returns the thread's last persisted state.
// The boolean is false when the thread has no checkpoint.
func (e *Executor[S]) State(ctx context.Context, threadID string) (S, bool, error) {
	var zero S
	if threadID == "" {
		return zero, false, ErrThreadIDRequired
	}
	state, seq, err := e.load(ctx, threadID)
	if err != nil {
		return zero, false, err
	}
	return state, seq > 0, nil
}

// load reads and decodes the thread's checkpoint.
// A missing checkpoint yields the zero state and sequence 0.
func (e *Executor[S]) load(ctx context.Context, threadID string) (S, int, error) {
	var state S

	rec, err := e.store.Load(ctx, threadID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return state, 0, nil
	}
	if err != nil {
		observability.LogCheckpoint(e.logger, threadID, "load", 0, 0, err)
		return state, 0, &CheckpointError{ThreadID: threadID, Op: "load", Err: err}
	}

	cp, err := checkpoint.Unmarshal(rec.Data)
	if err != nil {
		return state, 0, &CheckpointError{
			ThreadID: threadID,
			Op:       "deserialize",
			Err:      fmt.Errorf("%w: %v", ErrDeserializeState, err),
		}
	}
	if cp.Version != checkpoint.Version {
		return state, 0, &CheckpointError{
			ThreadID: threadID,
			Op:       "deserialize",
			Err: fmt.Errorf("%w: got %d, expected %d",
				ErrCheckpointVersionMismatch, cp.Version, checkpoint.Version),
		}
	}
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return state, 0, &CheckpointError{
			ThreadID: threadID,
			Op:       "deserialize",
			Err:      fmt.Errorf("%w: %v", ErrDeserializeState, err),
		}
	}

	return state, rec.Sequence, nil
}

// save serializes final state and commits it with the sequence observed at load.
func (e *Executor[S]) save(ctx Context, threadID string, prevSeq int, lastNode string, final S) (int, error) {
	stateBytes, err := json.Marshal(final)
	if err != nil {
		return 0, &CheckpointError{
			ThreadID: threadID,
			Op:       "serialize",
			Err:      fmt.Errorf("%w: %v", ErrSerializeState, err),
		}
	}

	data, err := checkpoint.New(threadID, ctx.RunID(), stateBytes).WithLastNode(lastNode).Marshal()
	if err != nil {
		return 0, &CheckpointError{ThreadID: threadID, Op: "serialize", Err: err}
	}

	rec, err := e.store.Save(ctx, threadID, prevSeq, data)
	if err != nil {
		conflict := errors.Is(err, checkpoint.ErrConflict)
		e.metrics.RecordCheckpoint(ctx, int64(len(data)), conflict)
		observability.LogCheckpoint(e.logger, threadID, "save", 0, len(data), err)
		return 0, &CheckpointError{ThreadID: threadID, Op: "save", Err: err}
	}

	observability.LogCheckpoint(e.logger, threadID, "save", rec.Sequence, len(data), nil)
	e.metrics.RecordCheckpoint(ctx, int64(len(data)), false)
	return rec.Sequence, nil
}

// withThread returns a Context bound to threadID whose cancellation is
// governed by inner.
func withThread(parent Context, inner context.Context, threadID string) Context {
	return &executionContext{
		Context:  inner,
		logger:   parent.Logger(),
		runID:    parent.RunID(),
		threadID: threadID,
		nodeID:   parent.NodeID(),
	}
}

// threadLocks serializes runs per thread ID. Entries are reference-counted
// and dropped when no run holds or waits on them.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	sem  chan struct{}
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

// acquire blocks until the thread is free or ctx is done.
func (l *threadLocks) acquire(ctx context.Context, threadID string) (func(), error) {
	l.mu.Lock()
	tl, ok := l.locks[threadID]
	if !ok {
		tl = &threadLock{sem: make(chan struct{}, 1)}
		l.locks[threadID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	select {
	case tl.sem <- struct{}{}:
		return func() {
			<-tl.sem
			l.release(threadID, tl)
		}, nil
	case <-ctx.Done():
		l.release(threadID, tl)
		return nil, ctx.Err()
	}
}

func (l *threadLocks) release(threadID string, tl *threadLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tl.refs--
	if tl.refs == 0 {
		delete(l.locks, threadID)
	}
}
