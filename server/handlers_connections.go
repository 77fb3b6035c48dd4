package server

import (
	"net/http"

	"github.com/cadencehq/cadence/errors"
)

type connectRequest struct {
	FromItemID string         `json:"from_item_id"`
	ToItemID   string         `json:"to_item_id"`
	Properties map[string]any `json:"properties"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}
	var req connectRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if req.FromItemID == "" || req.ToItemID == "" {
		s.writeError(w, r, errors.NewInvalidRequestf("from_item_id and to_item_id are required"))
		return
	}

	conn, err := s.store.Connect(r.Context(), req.FromItemID, req.ToItemID, req.Properties)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

// handleConnection serves /api/connections/{id}:
//
//	GET    returns the connection, disconnected or not
//	DELETE soft-disconnects it, keeping the record
func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/connections/")
	if len(parts) != 1 || parts[0] == "" {
		s.writeError(w, r, errors.NewInvalidRequestf("connection id is required"))
		return
	}
	id := parts[0]

	switch r.Method {
	case http.MethodGet:
		conn, err := s.store.GetConnectionByID(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, conn)
	case http.MethodDelete:
		conn, err := s.store.Disconnect(r.Context(), id, r.URL.Query().Get("reason"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, conn)
	default:
		s.requireMethod(w, r, http.MethodGet, http.MethodDelete)
	}
}
