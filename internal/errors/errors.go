// Package errors defines the internal error kinds used throughout nxcache
// and the fixed plain-text bodies they map to on the wire.
package errors

import "fmt"

// Kind classifies an error into one of the internal categories. Handlers
// translate kinds to HTTP status codes; storage adapters never surface
// vendor-specific error types past this taxonomy.
type Kind int

const (
	// KindNotFound means a specific object does not exist.
	KindNotFound Kind = iota
	// KindAlreadyExists means a write was attempted against an occupied key.
	KindAlreadyExists
	// KindUnauthenticated means the request carried no valid bearer token.
	KindUnauthenticated
	// KindBadRequest means request input (the hash) failed validation.
	KindBadRequest
	// KindBackendUnavailable covers every other storage-layer failure:
	// network, credentials, quota, 5xx, timeout.
	KindBackendUnavailable
)

// CacheError is an error with a kind, an HTTP status, and the exact
// plain-text message written to the client.
type CacheError struct {
	Kind       Kind
	HTTPStatus int
	Message    string
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	return fmt.Sprintf("%s (%d)", e.Message, e.HTTPStatus)
}

// Is reports whether target is a CacheError of the same kind. This lets
// callers use errors.Is against the sentinel values below even when the
// error has been wrapped with fmt.Errorf("...: %w", err).
func (e *CacheError) Is(target error) bool {
	t, ok := target.(*CacheError)
	return ok && t.Kind == e.Kind
}

// Pre-defined errors carrying the canonical wire bodies.
var (
	// ErrNotFound is returned when the requested artifact is not stored.
	ErrNotFound = &CacheError{
		Kind:       KindNotFound,
		HTTPStatus: 404,
		Message:    "The record was not found",
	}

	// ErrAlreadyExists is returned when a PUT targets an occupied key.
	ErrAlreadyExists = &CacheError{
		Kind:       KindAlreadyExists,
		HTTPStatus: 409,
		Message:    "Cannot override an existing record",
	}

	// ErrUnauthorized is returned when the bearer token is missing or invalid.
	ErrUnauthorized = &CacheError{
		Kind:       KindUnauthenticated,
		HTTPStatus: 401,
		Message:    "Unauthorized",
	}

	// ErrBadRequest is returned when the hash fails validation.
	ErrBadRequest = &CacheError{
		Kind:       KindBadRequest,
		HTTPStatus: 400,
		Message:    "Bad request",
	}

	// ErrBackendUnavailable is returned for any underlying storage failure.
	// The message is deliberately generic; details are logged server-side.
	ErrBackendUnavailable = &CacheError{
		Kind:       KindBackendUnavailable,
		HTTPStatus: 500,
		Message:    "Internal server error",
	}
)
