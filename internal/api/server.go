package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"registration-verifier/internal/erp"
	"registration-verifier/internal/store"
	"registration-verifier/internal/telemetry"
	"registration-verifier/internal/verify"
)

// Server wires the operational HTTP surface: health, metrics, cache
// controls, on-demand batch runs, and registration intake/status.
type Server struct {
	store  *store.Store
	cache  *erp.Cache
	runner *verify.Runner
}

// New constructs the ops server.
func New(st *store.Store, cache *erp.Cache, runner *verify.Runner) *Server {
	return &Server{
		store:  st,
		cache:  cache,
		runner: runner,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Get("/cache/stats", s.handleCacheStats)
	r.Post("/cache/refresh", s.handleCacheRefresh)
	r.Post("/batch/run", s.handleRunBatch)

	r.Post("/registrations", s.handleCreateRegistration)
	r.Get("/registrations/{id}", s.handleGetRegistration)
	r.Post("/verify/{id}", s.handleVerifyEmail)
	return r
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

// handleCacheRefresh forces a reload outside the schedule. A failed reload
// still reports stats for the retained snapshot.
func (s *Server) handleCacheRefresh(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.Refresh(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": err.Error(),
			"stats": stats,
		})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleRunBatch triggers one batch immediately, bypassing the cadence wait.
func (s *Server) handleRunBatch(w http.ResponseWriter, r *http.Request) {
	result, err := s.runner.RunOnce(r.Context())
	if err != nil {
		http.Error(w, "batch run failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type createRegistrationRequest struct {
	StaffNumber string `json:"staff_number"`
	Email       string `json:"email"`
}

func (s *Server) handleCreateRegistration(w http.ResponseWriter, r *http.Request) {
	var req createRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.StaffNumber == "" || req.Email == "" {
		http.Error(w, "staff_number and email are required", http.StatusBadRequest)
		return
	}
	reg, err := s.store.Create(r.Context(), store.CreateParams{
		StaffNumber: req.StaffNumber,
		Email:       req.Email,
	})
	if err != nil {
		http.Error(w, "failed to create registration", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, reg)
}

// handleGetRegistration surfaces status, retry count and the last validation
// error for a registration.
func (s *Server) handleGetRegistration(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reg, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "registration not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load registration", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// handleVerifyEmail confirms the emailed verification link, moving an
// approved registration to active.
func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.MarkActive(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
