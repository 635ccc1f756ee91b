package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when a stored record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// FailureKind classifies a terminal fetch outcome.
type FailureKind string

// Fetch failure kinds.
const (
	FailureTimeout          FailureKind = "timeout"
	FailureConnection       FailureKind = "connection_error"
	FailureTLS              FailureKind = "tls_error"
	FailureHTTP             FailureKind = "http_error"
	FailureRobotsDisallowed FailureKind = "robots_disallowed"
	FailureInvalidURL       FailureKind = "invalid_url"
)

// FetchError is the typed failure returned by a Fetcher.
type FetchError struct {
	Kind       FailureKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FailureHTTP {
		return fmt.Sprintf("%s: %s %d %s", e.URL, e.Kind, e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could plausibly succeed.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case FailureTimeout, FailureConnection:
		return true
	case FailureHTTP:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
	default:
		return false
	}
}

// FailureKindOf extracts the failure kind from err, or "" when err is not a
// FetchError.
func FailureKindOf(err error) FailureKind {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Kind
	}
	return ""
}
