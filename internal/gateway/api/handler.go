// Package api exposes the Gateway's HTTP surface: languages, execute
// (buffered), and execute/stream (SSE), plus the validation and rate-limit
// pipeline in front of them (spec §4.4, §6).
package api

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/scadable/replfleet/internal/gateway/langmap"
	"github.com/scadable/replfleet/internal/gateway/ratelimit"
	"github.com/scadable/replfleet/internal/gateway/validate"
	"github.com/scadable/replfleet/internal/model"
	"github.com/scadable/replfleet/internal/registryclient"
	"github.com/scadable/replfleet/pkg/sseutil"
)

// Config bounds the Gateway's own operation, independent of the
// Orchestrator's execution deadline.
type Config struct {
	MaxCodeBytes    int
	MaxDependencies int
	OrchestratorURL string // fallback used when registry discovery fails
}

// Handler serves /api/repl/*.
type Handler struct {
	cfg      Config
	registry *registryclient.Client
	limiter  *ratelimit.Limiter
	lg       zerolog.Logger
}

// NewRouter builds the chi router for the Gateway service.
func NewRouter(cfg Config, registry *registryclient.Client, limiter *ratelimit.Limiter, lg zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := &Handler{cfg: cfg, registry: registry, limiter: limiter, lg: lg}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("OK")) })
	r.Route("/api/repl", func(r chi.Router) {
		r.Get("/languages", h.handleLanguages)
		r.With(h.rateLimit).Post("/execute", h.handleExecute)
		r.With(h.rateLimit).Post("/execute/stream", h.handleExecuteStream)
	})

	return r
}

// rateLimit enforces the per-IP token bucket (spec §4.4 "Rate limiting").
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		allowed, retryAfter := h.limiter.Allow(ip)
		if !allowed {
			h.lg.Warn().Str("ip", ip).Msg("rate limit exceeded")
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.LanguagesResponse{Languages: langmap.Languages()})
}

// buildContainerRequest resolves the (image, command) mapping and wraps
// user code into a ContainerRequest (spec §4.4 "Language mapping").
func buildContainerRequest(req model.ExecutionRequest) model.ContainerRequest {
	cr := model.ContainerRequest{
		Image:   langmap.Image(req.Language),
		Command: langmap.BuildCommand(req.Language, req.Code, req.Dependencies),
	}
	if langmap.NeedsCodeEnv(req.Language) {
		cr.Env = []string{"CODE=" + req.Code}
	}
	return cr
}

// validateRequest runs the pipeline described in spec §4.4 steps 1-5.
// Returns the blocking rule name (empty if none) after logging every
// warning-only violation.
func (h *Handler) validateRequest(req model.ExecutionRequest) string {
	if !langmap.Supported(req.Language) {
		return "unsupported_language"
	}
	result := validate.Validate(req.Code, req.Language, req.Dependencies, h.cfg.MaxCodeBytes, h.cfg.MaxDependencies)
	for _, v := range result.Violations {
		if !v.Block {
			h.lg.Warn().Str("rule", v.Rule).Msg("security warning: " + v.Message)
		}
	}
	if !result.Safe {
		blocking := result.FirstBlocking()
		h.lg.Warn().Str("rule", blocking).Msg("code execution blocked")
		return blocking
	}
	return ""
}

func (h *Handler) discoverOrchestrator(r *http.Request) (*orchestratorClient, error) {
	if h.registry != nil {
		if endpoint, err := registryclient.DiscoverEndpoint(r.Context(), h.registry, "orchestrator"); err == nil {
			return newOrchestratorClient(endpoint), nil
		}
	}
	if h.cfg.OrchestratorURL != "" {
		return newOrchestratorClient(h.cfg.OrchestratorURL), nil
	}
	return nil, fmt.Errorf("no orchestrator instance available")
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req model.ExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if rule := h.validateRequest(req); rule != "" {
		writeJSON(w, http.StatusForbidden, model.ExecutionResponse{
			Result:  "code execution blocked: " + rule,
			Success: false,
		})
		return
	}

	client, err := h.discoverOrchestrator(r)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator unavailable")
		return
	}

	containerReq := buildContainerRequest(req)
	resp, status, err := client.Create(r.Context(), containerReq)
	if err != nil {
		h.lg.Error().Err(err).Msg("orchestrator request failed")
		writeError(w, http.StatusBadGateway, "upstream execution failed")
		return
	}

	switch {
	case status == http.StatusRequestTimeout:
		writeJSON(w, http.StatusRequestTimeout, model.ExecutionResponse{Result: resp.Output, Success: false})
	case status/100 == 5:
		h.lg.Error().Int("status", status).Str("message", resp.Message).Msg("orchestrator returned an upstream error")
		writeError(w, http.StatusBadGateway, "upstream execution failed")
	default:
		writeJSON(w, http.StatusOK, model.ExecutionResponse{Result: resp.Output, Success: status/100 == 2})
	}
}

func (h *Handler) handleExecuteStream(w http.ResponseWriter, r *http.Request) {
	var req model.ExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sw, err := sseutil.NewWriter(w)
	if err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	if rule := h.validateRequest(req); rule != "" {
		_ = sw.Error("code execution blocked: " + rule)
		return
	}

	client, err := h.discoverOrchestrator(r)
	if err != nil {
		_ = sw.Error("orchestrator unavailable")
		return
	}

	containerReq := buildContainerRequest(req)
	body, status, err := client.CreateStream(r.Context(), containerReq)
	if err != nil {
		_ = sw.Error("failed to reach orchestrator: " + err.Error())
		return
	}
	defer body.Close()

	if status/100 != 2 {
		_ = sw.Error(fmt.Sprintf("orchestrator returned status %d", status))
		return
	}

	// Pure byte-pipe: forward each line as-is, never reparse or buffer
	// more than one line (spec §4.4 "SSE forwarding").
	_ = sseutil.CopyLines(body, func(line string) error {
		_, err := fmt.Fprintf(w, "%s\n", line)
		if err != nil {
			return err
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		return nil
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
