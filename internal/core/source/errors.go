package source

import (
	"errors"
	"fmt"
)

// Sentinel errors callers branch on. Not-found and auth failures are never
// retried; transient failures are retried before being surfaced.
var (
	// ErrNotFound indicates the case or evidence item is absent upstream.
	ErrNotFound = errors.New("source: not found")

	// ErrAuthFailed indicates the API key was rejected upstream.
	ErrAuthFailed = errors.New("source: authentication failed")

	// ErrTransient indicates a network or timeout failure that persisted
	// through the retry budget.
	ErrTransient = errors.New("source: transient failure")
)

// APIError is any other non-success upstream response, carrying the HTTP
// status and response body for diagnostics.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("source: api error %d: %s", e.StatusCode, e.Body)
}
