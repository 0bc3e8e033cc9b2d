// Package llm defines the generate capability used by support workflows and
// the adapters that provide it.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Client generates the next assistant message for a conversation.
// Implementations must be safe for concurrent use.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Sentinel errors reported by clients.
var (
	// ErrUnavailable indicates the provider could not be reached.
	ErrUnavailable = errors.New("llm unavailable")

	// ErrRateLimited indicates the provider throttled the request.
	ErrRateLimited = errors.New("llm rate limited")

	// ErrInvalidRequest indicates the provider rejected the request.
	ErrInvalidRequest = errors.New("llm invalid request")

	// ErrEmptyResponse indicates the provider returned no choices.
	ErrEmptyResponse = errors.New("llm returned no choices")
)

// Error wraps a client failure with the operation and whether a retry may help.
type Error struct {
	Op        string
	Err       error
	Retryable bool
}

// NewError creates an Error.
func NewError(op string, err error, retryable bool) *Error {
	return &Error{Op: op, Err: err, Retryable: retryable}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}
