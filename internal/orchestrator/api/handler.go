// Package api exposes the Orchestrator's HTTP surface: list, create
// (buffered and streamed), and remove (spec §4.3, §6).
package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/scadable/replfleet/internal/model"
	"github.com/scadable/replfleet/internal/orchestrator/execution"
	"github.com/scadable/replfleet/pkg/sseutil"
)

const heartbeatInterval = 15 * time.Second

// Handler serves /api/containers/*.
type Handler struct {
	mgr *execution.Manager
	lg  zerolog.Logger
}

// NewRouter builds the chi router for the Orchestrator service.
func NewRouter(mgr *execution.Manager, lg zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := &Handler{mgr: mgr, lg: lg}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("OK")) })
	r.Route("/api/containers", func(r chi.Router) {
		r.Get("/list", h.handleList)
		r.Post("/create", h.handleCreate)
		r.Post("/create/stream", h.handleCreateStream)
		r.Delete("/{id}", h.handleRemove)
	})

	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	refs, err := h.mgr.List(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

func decodeContainerRequest(r *http.Request) (model.ContainerRequest, error) {
	var req model.ContainerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return model.ContainerRequest{}, err
	}
	return req, nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, err := decodeContainerRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run := h.mgr.Start(r.Context(), req)
	for range run.Events() {
		// buffered mode discards intermediate events; Result() carries the
		// accumulated output once the channel closes.
	}
	res := run.Result()

	if res.FatalErr != nil {
		writeError(w, http.StatusBadGateway, res.FatalErr.Error())
		return
	}
	if res.TimedOut {
		writeJSON(w, http.StatusRequestTimeout, model.ContainerResponse{
			ID:      res.ContainerID,
			Output:  res.Output,
			Message: "execution timeout exceeded",
		})
		return
	}

	message := "Container executed successfully"
	if res.ExitCode != 0 {
		message = "container exited with a non-zero status"
	}
	writeJSON(w, http.StatusOK, model.ContainerResponse{
		ID:      res.ContainerID,
		Output:  res.Output,
		Message: message,
	})
}

func (h *Handler) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeContainerRequest(r)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sw, err := sseutil.NewWriter(w)
	if err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	run := h.mgr.Start(r.Context(), req)

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	events := run.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			heartbeat.Reset(heartbeatInterval)
			switch ev.Kind {
			case execution.EventChunk:
				_ = sw.Data(ev.Data)
			case execution.EventError:
				_ = sw.Error(ev.Data)
			case execution.EventDone:
				_ = sw.Done(ev.Data)
			}
		case <-heartbeat.C:
			_ = sw.Heartbeat()
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, "missing container id")
		return
	}
	if err := h.mgr.Remove(r.Context(), id); err != nil {
		h.lg.Error().Err(err).Str("container_id", id).Msg("remove failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.RemoveResponse{ID: id, Message: "removed"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
