// Package errors provides error handling for Cadence.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrNotFound) {
//	    // handle not found
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for use across Cadence.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates a referenced item, connection, or snapshot does not exist
	ErrNotFound = New("not found")

	// ErrInvalidRequest indicates the request was malformed or invalid
	// (bad input shape, self-connection, non-temporal anchor, unknown type)
	ErrInvalidRequest = New("invalid request")

	// ErrConflict indicates a resource conflict (e.g., duplicate identifier
	// where type-scoped uniqueness is configured)
	ErrConflict = New("resource conflict")

	// ErrLockBusy indicates another import already holds the scope lock.
	// Retryable; callers should back off and retry.
	ErrLockBusy = New("import lock busy")

	// ErrStaleVersion indicates an optimistic concurrency check failed:
	// the target snapshot was modified since it was read
	ErrStaleVersion = New("stale snapshot version")

	// ErrNoPath indicates navigation found no breadcrumb ancestor connected
	// to the target. A normal outcome, not a failure.
	ErrNoPath = New("no path to target")

	// ErrImportFailed indicates a detection batch was rolled back.
	// The batch is safe to retry from scratch (snapshot writes are upserts).
	ErrImportFailed = New("import failed")
)

// IsNotFound checks if an error is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidRequest checks if an error is or wraps ErrInvalidRequest
func IsInvalidRequest(err error) bool {
	return err != nil && Is(err, ErrInvalidRequest)
}

// IsLockBusy checks if an error is or wraps ErrLockBusy
func IsLockBusy(err error) bool {
	return err != nil && Is(err, ErrLockBusy)
}

// IsStaleVersion checks if an error is or wraps ErrStaleVersion
func IsStaleVersion(err error) bool {
	return err != nil && Is(err, ErrStaleVersion)
}

// NewNotFoundf creates a not-found error with a formatted message
func NewNotFoundf(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvalidRequestf creates an invalid-request error with a formatted message
func NewInvalidRequestf(format string, args ...interface{}) error {
	return Wrap(ErrInvalidRequest, Newf(format, args...).Error())
}
