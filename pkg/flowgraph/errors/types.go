package errors

import "fmt"

// HTTPError is a failed call to a remote capability.
// Provider adapters convert their SDK errors to HTTPError so Categorize can
// classify them without importing the SDK.
type HTTPError struct {
	StatusCode int
	Message    string
	Endpoint   string
	Err        error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("HTTP %d at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Unwrap returns the provider error, if any.
func (e *HTTPError) Unwrap() error {
	return e.Err
}
