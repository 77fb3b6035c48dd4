package server

import (
	"net/http"

	"github.com/cadencehq/cadence/db"
	"github.com/cadencehq/cadence/errors"
)

// statusForError maps domain errors onto HTTP statuses. NoPath is a
// normal navigation outcome and maps to 422 so callers distinguish it
// from a missing item.
func statusForError(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsInvalidRequest(err):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrConflict):
		return http.StatusConflict
	case errors.IsStaleVersion(err):
		return http.StatusConflict
	case errors.IsLockBusy(err):
		return http.StatusTooManyRequests
	case errors.Is(err, errors.ErrNoPath):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errors.ErrImportFailed):
		return http.StatusUnprocessableEntity
	case db.IsDatabaseClosed(err):
		// Requests racing shutdown get a retryable status, not a 500.
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
