package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cadencehq/cadence/errors"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error body with the status the domain error
// maps to.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError && s.logger != nil {
		s.logger.Errorw("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}

	body := map[string]any{"error": err.Error()}
	if errors.IsLockBusy(err) {
		// Retryable; give clients a hint instead of leaving them to
		// hammer the endpoint.
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, body)
}

// readJSON decodes the request body into v, answering 400 on malformed
// input. Returns false when the request has already been answered.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, errors.NewInvalidRequestf("invalid request body: %v", err))
		return false
	}
	return true
}

// requireMethod answers 405 unless the request uses one of the given
// methods.
func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, method := range methods {
		if r.Method == method {
			return true
		}
	}
	writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	return false
}

// pathParts splits the path remainder after a prefix into segments,
// dropping a trailing empty segment.
func pathParts(urlPath, prefix string) []string {
	parts := strings.Split(strings.TrimPrefix(urlPath, prefix), "/")
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}
