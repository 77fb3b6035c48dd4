package server

import (
	"net/http"

	"github.com/cadencehq/cadence/errors"
)

func (s *Server) handleTypes(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"types": s.types.All()})
}

func (s *Server) handleType(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	parts := pathParts(r.URL.Path, "/api/types/")
	if len(parts) != 1 || parts[0] == "" {
		s.writeError(w, r, errors.NewInvalidRequestf("type name is required"))
		return
	}

	desc, ok := s.types.Get(parts[0])
	if !ok {
		s.writeError(w, r, errors.NewNotFoundf("unknown type %q", parts[0]))
		return
	}
	writeJSON(w, http.StatusOK, desc)
}
