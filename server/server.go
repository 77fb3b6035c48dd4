// Package server exposes the Cadence engine over a JSON HTTP API.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cadencehq/cadence/config"
	"github.com/cadencehq/cadence/ingest"
	"github.com/cadencehq/cadence/logger"
	"github.com/cadencehq/cadence/nav"
	"github.com/cadencehq/cadence/registry"
	"github.com/cadencehq/cadence/store"
	"github.com/cadencehq/cadence/view"
)

// Server wires the engine components behind HTTP handlers.
type Server struct {
	store    *store.Store
	types    *registry.Registry
	pipeline *ingest.Pipeline
	composer *view.Composer
	nav      *nav.Engine

	cfg    *config.Config
	mux    *http.ServeMux
	http   *http.Server
	logger *zap.SugaredLogger
}

// New assembles a server over an open, migrated database.
func New(db *sql.DB, types *registry.Registry, cfg *config.Config) *Server {
	log := logger.Named("server")
	st := store.New(db, types, log)

	s := &Server{
		store:    st,
		types:    types,
		pipeline: ingest.New(st, nil, time.Duration(cfg.Import.LockTimeoutSeconds)*time.Second, log),
		composer: view.New(st),
		nav:      nav.New(st, cfg.Nav.MaxDepth, log),
		cfg:      cfg,
		mux:      http.NewServeMux(),
		logger:   log,
	}
	s.setupRoutes()
	return s
}

// Handler returns the routed handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins serving and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	s.logger.Infow("listening", "addr", s.cfg.Server.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.corsMiddleware(s.handleHealth))

	s.mux.HandleFunc("/api/items", s.corsMiddleware(s.handleItems))          // GET list / POST create
	s.mux.HandleFunc("/api/items/", s.corsMiddleware(s.handleItem))          // item and sub-resources
	s.mux.HandleFunc("/api/connections", s.corsMiddleware(s.handleConnect))  // POST create
	s.mux.HandleFunc("/api/connections/", s.corsMiddleware(s.handleConnection))
	s.mux.HandleFunc("/api/snapshots", s.corsMiddleware(s.handleSnapshots))  // GET list / POST upsert
	s.mux.HandleFunc("/api/snapshots/", s.corsMiddleware(s.handleSnapshot))  // GET one, GET /events
	s.mux.HandleFunc("/api/imports", s.corsMiddleware(s.handleImport))       // POST batch
	s.mux.HandleFunc("/api/imports/confirm", s.corsMiddleware(s.handleConfirmMatch))
	s.mux.HandleFunc("/api/conflicts/", s.corsMiddleware(s.handleConflictAction)) // POST {id}/resolve
	s.mux.HandleFunc("/api/changes/", s.corsMiddleware(s.handleChangeAction))     // POST {id}/acknowledge
	s.mux.HandleFunc("/api/navigate", s.corsMiddleware(s.handleNavigate))
	s.mux.HandleFunc("/api/compare", s.corsMiddleware(s.handleCompare))
	s.mux.HandleFunc("/api/types", s.corsMiddleware(s.handleTypes))
	s.mux.HandleFunc("/api/types/", s.corsMiddleware(s.handleType))
}

// corsMiddleware applies the configured allowed origins and answers
// preflight requests.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
