// Package errors classifies capability failures and retries the transient ones.
//
// Generation, retrieval, and tool backends fail in different ways. A rate
// limit or a gateway timeout is worth another attempt; a rejected API key or
// an unknown model never is. Categorize maps an error to a category, and
// WithRetryContext uses that mapping to decide whether to back off and try
// again.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Category represents how an error should be handled.
type Category int

const (
	// CategoryPermanent indicates retry won't help.
	// Examples: authentication failures, unknown models, bad requests.
	CategoryPermanent Category = iota

	// CategoryTransient indicates retry will likely help.
	// Examples: rate limits, gateway timeouts, dropped connections.
	CategoryTransient
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryTransient:
		return "transient"
	case CategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// CategorizedError records the category a retry loop settled on.
type CategorizedError struct {
	Err      error
	Category Category

	// Attempts is the number of calls made before giving up.
	Attempts int

	// Context describes why the loop stopped.
	Context string
}

// Error implements the error interface.
func (e *CategorizedError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (%s, attempts: %d)", e.Context, e.Err, e.Category, e.Attempts)
	}
	return fmt.Sprintf("%s (%s, attempts: %d)", e.Err, e.Category, e.Attempts)
}

// Unwrap returns the underlying error.
func (e *CategorizedError) Unwrap() error {
	return e.Err
}

// Transient marks err as worth retrying.
func Transient(err error, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryTransient, Context: context}
}

// Permanent marks err as final.
func Permanent(err error, context string) *CategorizedError {
	return &CategorizedError{Err: err, Category: CategoryPermanent, Context: context}
}

// Categorize determines how an error should be handled. Unknown errors are
// permanent.
func Categorize(err error) Category {
	if err == nil {
		return CategoryPermanent
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.Category
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch code := httpErr.StatusCode; {
		case code == http.StatusRequestTimeout, code == http.StatusConflict, code == http.StatusTooManyRequests:
			return CategoryTransient
		case code >= http.StatusInternalServerError:
			return CategoryTransient
		default:
			return CategoryPermanent
		}
	}

	// A per-call deadline is worth retrying; the caller's own deadline is
	// checked by WithRetryContext before every attempt.
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTransient
	}
	if errors.Is(err, context.Canceled) {
		return CategoryPermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTransient
	}
	return CategoryPermanent
}

// IsRetryable reports whether the error should be retried.
func IsRetryable(err error) bool {
	return Categorize(err) == CategoryTransient
}
