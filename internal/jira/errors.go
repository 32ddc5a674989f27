package jira

import (
	"errors"
	"fmt"
)

// Common errors returned by remote tracker operations.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, jira.ErrAuthFailed) {
//	    // Prompt for new credentials
//	}
var (
	// ErrNotConfigured is returned when the client is missing required
	// connection settings (base URL, email, or API token).
	ErrNotConfigured = errors.New("remote tracker not configured")

	// ErrAuthFailed is returned when the remote rejects the configured
	// credentials (HTTP 401/403).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrNotFound is returned when a board, sprint, or issue does not
	// exist on the remote (HTTP 404, or an empty lookup result).
	ErrNotFound = errors.New("not found")

	// ErrNoSprint is returned when a board has no sprint in any state.
	// This is a soft condition: the sync pipeline continues with an
	// empty sprint issue set.
	ErrNoSprint = errors.New("no sprint found")

	// ErrTimeout is returned when a remote call exceeds its deadline.
	ErrTimeout = errors.New("request timed out")

	// ErrNetwork is returned when the remote could not be reached at all
	// (DNS failure, connection refused, TLS failure).
	ErrNetwork = errors.New("network error")
)

// ServerError represents a 5xx response from the remote tracker.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (HTTP %d): %s", e.Status, e.Message)
}

// ValidationError represents a request the remote rejected for a specific
// field, e.g. a transition that requires a field the issue doesn't have.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed on %q: %s", e.Field, e.Message)
}

// IsRetryable returns true if the error is likely to succeed on retry.
// Retry policy itself belongs to the caller; this core never auto-retries.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrTimeout) {
		return true
	}

	if errors.Is(err, ErrNetwork) {
		return true
	}

	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.Status >= 500
	}

	return false
}

// IsFatal returns true if the error indicates a state that retrying cannot
// fix and that requires operator intervention (credentials, configuration).
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNotConfigured) {
		return true
	}

	if errors.Is(err, ErrAuthFailed) {
		return true
	}

	return false
}
