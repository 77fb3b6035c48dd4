package server

import (
	"net/http"
	"strconv"

	"github.com/cadencehq/cadence/errors"
	"github.com/cadencehq/cadence/store"
)

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listItems(w, r)
	case http.MethodPost:
		s.createItem(w, r)
	default:
		s.requireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ItemFilter{
		Type:            q.Get("type"),
		IdentifierQuery: q.Get("q"),
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			s.writeError(w, r, errors.NewInvalidRequestf("invalid limit %q", limit))
			return
		}
		filter.Limit = n
	}

	items, err := s.store.ListItems(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type createItemRequest struct {
	Type       string         `json:"item_type"`
	Identifier string         `json:"identifier"`
	Properties map[string]any `json:"properties"`
}

func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.Type == "" {
		s.writeError(w, r, errors.NewInvalidRequestf("item_type is required"))
		return
	}

	item, err := s.store.CreateItem(r.Context(), req.Type, req.Identifier, req.Properties)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleItem serves /api/items/{id} and its sub-resources:
//
//	GET   /api/items/{id}
//	PATCH /api/items/{id}             merge properties
//	GET   /api/items/{id}/connected   grouped neighbors with action counts
//	GET   /api/items/{id}/snapshots
//	GET   /api/items/{id}/resolved?anchor=
//	GET   /api/items/{id}/effective?source=&anchor=
//	GET   /api/items/{id}/reachable?to=
func (s *Server) handleItem(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/items/")
	if len(parts) == 0 || parts[0] == "" {
		s.writeError(w, r, errors.NewInvalidRequestf("item id is required"))
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.getItem(w, r, id)
		case http.MethodPatch:
			s.patchItem(w, r, id)
		default:
			s.requireMethod(w, r, http.MethodGet, http.MethodPatch)
		}
		return
	}

	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}
	switch parts[1] {
	case "connected":
		s.getConnected(w, r, id)
	case "snapshots":
		s.getItemSnapshots(w, r, id)
	case "resolved":
		s.getResolvedView(w, r, id)
	case "effective":
		s.getEffectiveValue(w, r, id)
	case "reachable":
		s.getReachable(w, r, id)
	default:
		s.writeError(w, r, errors.NewNotFoundf("unknown resource %q", parts[1]))
	}
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request, id string) {
	item, err := s.store.GetItem(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) patchItem(w http.ResponseWriter, r *http.Request, id string) {
	var updates map[string]any
	if !s.readJSON(w, r, &updates) {
		return
	}
	item, err := s.store.MergeItemProperties(r.Context(), id, updates)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) getConnected(w http.ResponseWriter, r *http.Request, id string) {
	q := r.URL.Query()
	filter := store.AdjacencyFilter{
		Exclude: q["exclude"],
		Types:   q["type"],
	}
	switch q.Get("direction") {
	case "", "both":
	case "outgoing":
		filter.Direction = store.Outgoing
	case "incoming":
		filter.Direction = store.Incoming
	default:
		s.writeError(w, r, errors.NewInvalidRequestf("invalid direction %q", q.Get("direction")))
		return
	}

	if _, err := s.store.GetItem(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	groups, err := s.nav.Connected(r.Context(), id, filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *Server) getItemSnapshots(w http.ResponseWriter, r *http.Request, id string) {
	snaps, err := s.store.ListSnapshots(r.Context(), store.SnapshotFilter{
		ItemID:    id,
		ContextID: r.URL.Query().Get("context"),
		SourceID:  r.URL.Query().Get("source"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
}

func (s *Server) getResolvedView(w http.ResponseWriter, r *http.Request, id string) {
	anchorID := r.URL.Query().Get("anchor")
	if anchorID == "" {
		s.writeError(w, r, errors.NewInvalidRequestf("anchor is required"))
		return
	}
	statuses, err := s.composer.ResolvedView(r.Context(), id, anchorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": statuses})
}

func (s *Server) getReachable(w http.ResponseWriter, r *http.Request, id string) {
	to := r.URL.Query().Get("to")
	if to == "" {
		s.writeError(w, r, errors.NewInvalidRequestf("to is required"))
		return
	}
	for _, itemID := range []string{id, to} {
		if _, err := s.store.GetItem(r.Context(), itemID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	reachable, err := s.nav.Reachable(r.Context(), id, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reachable": reachable})
}

func (s *Server) getEffectiveValue(w http.ResponseWriter, r *http.Request, id string) {
	q := r.URL.Query()
	sourceID, anchorID := q.Get("source"), q.Get("anchor")
	if sourceID == "" || anchorID == "" {
		s.writeError(w, r, errors.NewInvalidRequestf("source and anchor are required"))
		return
	}

	eff, err := s.composer.EffectiveValue(r.Context(), id, sourceID, anchorID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if eff == nil {
		s.writeError(w, r, errors.NewNotFoundf(
			"no effective assertion from %s about %s", sourceID, id))
		return
	}
	writeJSON(w, http.StatusOK, eff)
}
