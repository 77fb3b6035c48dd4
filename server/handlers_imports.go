package server

import (
	"net/http"

	"github.com/cadencehq/cadence/errors"
	"github.com/cadencehq/cadence/ingest"
)

type importRequest struct {
	SourceID string            `json:"source_id"`
	AnchorID string            `json:"anchor_id"`
	ItemType string            `json:"item_type"`
	ScopeID  string            `json:"scope_id"`
	Mapping  map[string]string `json:"mapping"`
	Rows     []ingest.Row      `json:"rows"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var req importRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.SourceID == "" || req.AnchorID == "" || req.ItemType == "" {
		s.writeError(w, r, errors.NewInvalidRequestf(
			"source_id, anchor_id and item_type are required"))
		return
	}

	result, err := s.pipeline.ImportBatch(r.Context(), ingest.Options{
		SourceID: req.SourceID,
		AnchorID: req.AnchorID,
		ItemType: req.ItemType,
		ScopeID:  req.ScopeID,
		Mapping:  req.Mapping,
		Rows:     req.Rows,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type confirmMatchRequest struct {
	SourceID   string         `json:"source_id"`
	AnchorID   string         `json:"anchor_id"`
	ItemID     string         `json:"item_id"`
	Properties map[string]any `json:"properties"`
}

// handleConfirmMatch applies a row that the import deferred as a fuzzy
// match, now that a human has confirmed which item it belongs to.
func (s *Server) handleConfirmMatch(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var req confirmMatchRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.SourceID == "" || req.AnchorID == "" || req.ItemID == "" {
		s.writeError(w, r, errors.NewInvalidRequestf(
			"source_id, anchor_id and item_id are required"))
		return
	}

	result, err := s.pipeline.ConfirmMatch(r.Context(),
		req.SourceID, req.AnchorID, req.ItemID, req.Properties)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
