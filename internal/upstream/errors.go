package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"econscour/internal/model"
)

// ErrMissingResource means the upstream has no such file for the day (HTTP 404).
// Callers treat it as empty data, not as a failure.
var ErrMissingResource = errors.New("resource not found upstream")

// UpstreamFetchError is a non-404 HTTP status or a network failure.
type UpstreamFetchError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *UpstreamFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("upstream fetch %s: %v", e.URL, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error { return e.Err }

// Transient reports whether retrying could succeed.
func (e *UpstreamFetchError) Transient() bool {
	if e.StatusCode == 0 {
		return true
	}
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

// IsTransient reports whether err is an UpstreamFetchError worth retrying.
// Cancellation is never transient.
func IsTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fetchErr *UpstreamFetchError
	return errors.As(err, &fetchErr) && fetchErr.Transient()
}

// MalformedPayloadError is a payload that could not be decompressed or decoded at all.
type MalformedPayloadError struct {
	Kind model.ResourceKind
	Err  error
}

// Error implements the error interface.
func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload: %v", e.Kind, e.Err)
}

func (e *MalformedPayloadError) Unwrap() error { return e.Err }
