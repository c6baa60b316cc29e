package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mediaflow/internal/ledger"
	"mediaflow/internal/proxy"
)

// Server exposes a read-only view of the run ledger and the live proxy
// pool. It never mutates engine state.
type Server struct {
	r    *chi.Mux
	repo ledger.Repository
	pool *proxy.Pool
}

func NewServer(repo ledger.Repository, pool *proxy.Pool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, repo: repo, pool: pool}

	r.Get("/health", s.health)
	r.Get("/api/pool", s.getPool)
	r.Get("/api/runs", s.listRuns)
	r.Get("/api/runs/{id}", s.runSummary)
	r.Get("/api/runs/{id}/attempts", s.runAttempts)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	records := s.pool.Snapshot()
	writeJSON(w, 200, map[string]any{
		"size":    len(records),
		"proxies": records,
	})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50)
	runs, err := s.repo.ListRuns(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, runs)
}

func (s *Server) runSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	summary, err := s.repo.RunSummary(r.Context(), id)
	if err != nil {
		http.Error(w, "not found", 404)
		return
	}
	writeJSON(w, 200, summary)
}

func (s *Server) runAttempts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := queryLimit(r, 200)
	attempts, err := s.repo.RunAttempts(r.Context(), id, limit)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, attempts)
}

func queryLimit(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
