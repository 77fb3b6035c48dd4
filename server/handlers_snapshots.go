package server

import (
	"net/http"

	"github.com/cadencehq/cadence/errors"
	"github.com/cadencehq/cadence/store"
)

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listSnapshots(w, r)
	case http.MethodPost:
		s.upsertSnapshot(w, r)
	default:
		s.requireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	snaps, err := s.store.ListSnapshots(r.Context(), store.SnapshotFilter{
		ItemID:    q.Get("item"),
		ContextID: q.Get("context"),
		SourceID:  q.Get("source"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
}

type upsertSnapshotRequest struct {
	ItemID     string         `json:"item_id"`
	ContextID  string         `json:"context_id"`
	SourceID   string         `json:"source_id"`
	Properties map[string]any `json:"properties"`
}

func (s *Server) upsertSnapshot(w http.ResponseWriter, r *http.Request) {
	var req upsertSnapshotRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.ItemID == "" || req.ContextID == "" || req.SourceID == "" {
		s.writeError(w, r, errors.NewInvalidRequestf(
			"item_id, context_id and source_id are required"))
		return
	}

	snap, written, err := s.store.UpsertSnapshot(r.Context(),
		req.ItemID, req.ContextID, req.SourceID, req.Properties)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if written && snap.Version == 1 {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"snapshot": snap, "written": written})
}

// handleSnapshot serves /api/snapshots/{id} and /api/snapshots/{id}/events.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	parts := pathParts(r.URL.Path, "/api/snapshots/")
	if len(parts) == 0 || parts[0] == "" {
		s.writeError(w, r, errors.NewInvalidRequestf("snapshot id is required"))
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		snap, err := s.store.GetSnapshotByID(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
		return
	}

	if parts[1] != "events" {
		s.writeError(w, r, errors.NewNotFoundf("unknown resource %q", parts[1]))
		return
	}
	if _, err := s.store.GetSnapshotByID(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	events, err := s.store.SnapshotEvents(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
