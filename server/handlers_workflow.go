package server

import (
	"net/http"

	"github.com/cadencehq/cadence/errors"
	"github.com/cadencehq/cadence/ingest"
)

type resolveConflictRequest struct {
	ChosenValue     any    `json:"chosen_value"`
	ChosenSourceID  string `json:"chosen_source_id"`
	Rationale       string `json:"rationale"`
	AnchorID        string `json:"anchor_id"`
	ExpectedVersion int64  `json:"expected_version"`
}

// handleConflictAction serves POST /api/conflicts/{id}/resolve.
func (s *Server) handleConflictAction(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	parts := pathParts(r.URL.Path, "/api/conflicts/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "resolve" {
		s.writeError(w, r, errors.NewNotFoundf("unknown conflict action"))
		return
	}

	var req resolveConflictRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.AnchorID == "" {
		s.writeError(w, r, errors.NewInvalidRequestf("anchor_id is required"))
		return
	}

	res, err := s.pipeline.ResolveConflict(r.Context(), ingest.ResolveOptions{
		ConflictID:      parts[0],
		ChosenValue:     req.ChosenValue,
		ChosenSourceID:  req.ChosenSourceID,
		Rationale:       req.Rationale,
		AnchorID:        req.AnchorID,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type acknowledgeChangeRequest struct {
	Note            string `json:"note"`
	AnchorID        string `json:"anchor_id"`
	ExpectedVersion int64  `json:"expected_version"`
}

// handleChangeAction serves POST /api/changes/{id}/acknowledge.
func (s *Server) handleChangeAction(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	parts := pathParts(r.URL.Path, "/api/changes/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "acknowledge" {
		s.writeError(w, r, errors.NewNotFoundf("unknown change action"))
		return
	}

	var req acknowledgeChangeRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.AnchorID == "" {
		s.writeError(w, r, errors.NewInvalidRequestf("anchor_id is required"))
		return
	}

	snap, err := s.pipeline.AcknowledgeChange(r.Context(),
		parts[0], req.Note, req.AnchorID, req.ExpectedVersion)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
