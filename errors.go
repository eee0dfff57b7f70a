package cbtools

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a document id is absent from the store.
// Load errors wrap it, so use errors.Is to test for it.
var ErrNotFound = errors.New("document not found")

// ValidationError reports a local, pre-network failure: an empty channel
// set on save, or save/load called on a nested document.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "cbtools: " + e.Reason
}

// GatewayError is any non-success response from the Sync Gateway. It
// carries the HTTP status for diagnostics.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("cbtools: %s failed, response code: %d", e.Op, e.StatusCode)
}

// ConflictError is a save rejected because of a revision mismatch
// (HTTP 409). It is distinct from GatewayError so callers can implement
// reload-and-retry; this layer never retries on its own. It unwraps to a
// GatewayError, so errors.As with either type matches.
type ConflictError struct {
	UID string
	Rev string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cbtools: conflict saving %s (stale revision %q)", e.UID, e.Rev)
}

func (e *ConflictError) Unwrap() error {
	return &GatewayError{Op: "save document " + e.UID, StatusCode: 409}
}
