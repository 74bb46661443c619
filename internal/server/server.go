// Package server exposes the trait engine over an HTTP API.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pw-Chen-km/Twin3-algo/internal/affinity"
	"github.com/pw-Chen-km/Twin3-algo/internal/engine"
	"github.com/pw-Chen-km/Twin3-algo/internal/evolve"
	"github.com/pw-Chen-km/Twin3-algo/internal/registry"
	"github.com/pw-Chen-km/Twin3-algo/internal/store"
)

// Server is the twin3 HTTP API server.
type Server struct {
	db      *store.DB
	reg     *registry.Registry
	engine  *engine.Engine
	miner   *evolve.Miner     // nil when no embedder is available
	mapper  *affinity.Mapper  // nil when no taxonomy is configured
	router  chi.Router
	version string
	started time.Time
}

// New creates a Server. miner and mapper are optional; their job
// endpoints answer 503 when the component is not configured.
func New(db *store.DB, reg *registry.Registry, eng *engine.Engine, miner *evolve.Miner, mapper *affinity.Mapper, version string) *Server {
	s := &Server{
		db:      db,
		reg:     reg,
		engine:  eng,
		miner:   miner,
		mapper:  mapper,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/dimensions", s.handleDimensions)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/events", s.handleEvent)
			r.Get("/matrix", s.handleMatrix)
			r.Get("/matrix/{dimensionID}", s.handleMatrixDimension)
			r.Get("/tags", s.handleTags)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/evolve", s.handleEvolve)
			r.Get("/evolve", s.handleEvolveResults)
			r.Post("/affinity", s.handleAffinity)
			r.Get("/affinity", s.handleAffinityResults)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"version":    s.version,
		"uptime":     time.Since(s.started).Seconds(),
		"db":         dbOK,
		"db_path":    s.db.Path,
		"dimensions": s.reg.Len(),
	})
}
