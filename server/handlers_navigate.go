package server

import (
	"net/http"

	"github.com/cadencehq/cadence/errors"
)

type navigateRequest struct {
	Breadcrumb []string `json:"breadcrumb"`
	TargetID   string   `json:"target_id"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var req navigateRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.TargetID == "" {
		s.writeError(w, r, errors.NewInvalidRequestf("target_id is required"))
		return
	}

	breadcrumb, err := s.nav.Navigate(r.Context(), req.Breadcrumb, req.TargetID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"breadcrumb": breadcrumb})
}
