package server

import (
	"net/http"

	"github.com/cadencehq/cadence/errors"
)

type compareRequest struct {
	ItemIDs      []string `json:"item_ids"`
	FromAnchorID string   `json:"from_anchor_id"`
	ToAnchorID   string   `json:"to_anchor_id"`
	// SourceID restricts the comparison to one document's assertions.
	// Empty compares resolved views.
	SourceID string `json:"source_id"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var req compareRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if len(req.ItemIDs) == 0 {
		s.writeError(w, r, errors.NewInvalidRequestf("item_ids is required"))
		return
	}
	if req.FromAnchorID == "" || req.ToAnchorID == "" {
		s.writeError(w, r, errors.NewInvalidRequestf(
			"from_anchor_id and to_anchor_id are required"))
		return
	}

	comparisons, err := s.composer.Compare(r.Context(),
		req.ItemIDs, req.FromAnchorID, req.ToAnchorID, req.SourceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comparisons": comparisons})
}
