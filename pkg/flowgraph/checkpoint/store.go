// Package checkpoint provides durable, thread-scoped state storage so a
// conversation can resume across independent invocations.
//
// Every thread holds exactly one checkpoint. Writes are guarded by an
// optimistic sequence number: Save succeeds only when the caller's expected
// sequence matches the stored one, so two runs that both read sequence N
// cannot both commit N+1.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// Store persists one checkpoint per thread.
// Implementations must be safe for concurrent use, and Save must be atomic:
// a concurrent Load observes either the old bytes or the new bytes, never a mix.
type Store interface {
	// Load returns the current checkpoint for a thread.
	// Returns ErrNotFound if the thread has never been saved.
	Load(ctx context.Context, threadID string) (Record, error)

	// Save replaces the thread's checkpoint with data.
	// expectedSeq is the Sequence of the Record the caller loaded, or 0 if
	// the caller saw ErrNotFound. Returns ErrConflict if the stored sequence
	// differs. On success the returned Record carries expectedSeq+1.
	Save(ctx context.Context, threadID string, expectedSeq int, data []byte) (Record, error)

	// List returns metadata for every stored thread, ordered by thread ID.
	// Returns an empty slice (not error) if the store is empty.
	List(ctx context.Context) ([]Info, error)

	// Delete removes a thread's checkpoint.
	// Returns nil if the thread doesn't exist.
	Delete(ctx context.Context, threadID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Record is a stored checkpoint with its store-assigned metadata.
type Record struct {
	ThreadID  string
	Sequence  int
	Data      []byte
	UpdatedAt time.Time
}

// Info provides metadata without loading full state.
type Info struct {
	ThreadID  string
	Sequence  int
	Timestamp time.Time
	Size      int64
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates a checkpoint doesn't exist.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrConflict indicates a concurrent write to the same thread was detected.
	ErrConflict = errors.New("checkpoint conflict: thread was modified concurrently")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")

	// ErrEmptyThreadID indicates an operation was called without a thread ID.
	ErrEmptyThreadID = errors.New("thread ID cannot be empty")
)

// cloneBytes returns a copy so stores never retain or expose caller slices.
func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
