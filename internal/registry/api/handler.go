// Package api exposes the registry's HTTP surface: register, keepalive,
// deregister, and discovery by name or by id.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/scadable/replfleet/internal/registry/service"
	"github.com/scadable/replfleet/internal/registry/store"
)

// Handler serves the registry HTTP surface described in spec §4.1 / §6.
type Handler struct {
	store *store.Store
	lg    zerolog.Logger
}

// NewRouter builds the chi router for the registry service.
func NewRouter(st *store.Store, lg zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := &Handler{store: st, lg: lg}

	r.Get("/health", h.handleHealth)
	r.Route("/api/registry", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/keepalive", h.handleKeepalive)
		r.Post("/deregister", h.handleDeregister)
		r.Get("/services", h.handleListAll)
		r.Get("/services/{name}", h.handleListByName)
		r.Get("/services/{name}/{id}", h.handleGetByID)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

type registerResponse struct {
	LeaseID int64 `json:"lease_id"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var inst service.Instance
	if err := json.NewDecoder(r.Body).Decode(&inst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid service instance body")
		return
	}
	if inst.Name == "" || inst.ID == "" || inst.Address == "" || inst.Port == 0 {
		writeError(w, http.StatusBadRequest, "name, id, address and port are required")
		return
	}

	leaseID, err := h.store.Register(r.Context(), inst)
	if err != nil {
		h.lg.Error().Err(err).Str("name", inst.Name).Msg("register failed")
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{LeaseID: leaseID})
}

type keepaliveRequest struct {
	LeaseID int64 `json:"lease_id"`
}

func (h *Handler) handleKeepalive(w http.ResponseWriter, r *http.Request) {
	var req keepaliveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid keepalive body")
		return
	}
	if err := h.store.Keepalive(r.Context(), req.LeaseID); err != nil {
		writeError(w, http.StatusNotFound, "lease not found")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleDeregister(w http.ResponseWriter, r *http.Request) {
	var inst service.Instance
	if err := json.NewDecoder(r.Body).Decode(&inst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid service instance body")
		return
	}
	if err := h.store.Deregister(r.Context(), inst); err != nil {
		h.lg.Error().Err(err).Str("name", inst.Name).Msg("deregister failed")
		writeError(w, http.StatusInternalServerError, "deregister failed")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleListAll(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.GetAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleListByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	list, err := h.store.GetByName(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleGetByID(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id := chi.URLParam(r, "id")
	inst, ok, err := h.store.GetByID(r.Context(), name, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "service instance not found")
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
