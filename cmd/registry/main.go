package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/scadable/replfleet/internal/config"
	"github.com/scadable/replfleet/internal/registry/api"
	"github.com/scadable/replfleet/internal/registry/service"
	"github.com/scadable/replfleet/internal/registry/store"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().
		Str("svc", "registry").Logger()

	cfg := config.MustLoadRegistry()
	log.Info().Strs("store_endpoints", cfg.StoreEndpoints).Msg("bootstrapping registry")

	st, err := store.New(cfg.StoreEndpoints, cfg.LeaseTTLSecs, log)
	if err != nil {
		log.Fatal().Err(err).Msg("etcd connect")
	}
	defer st.Close()

	if cfg.EngineURL != "" {
		autoRegisterEngine(st, cfg, log)
	}

	handler := api.NewRouter(st, log)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("listen", cfg.ListenAddr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("shutting down server...")
	_ = srv.Shutdown(context.Background())
	log.Info().Msg("shutdown complete")
}

// autoRegisterEngine parses ENGINE_URL and self-registers the external
// container engine under the reserved name "engine", refreshed on the same
// keepalive cadence as any other service — spec §4.1 "Auto-registration of
// external engine".
func autoRegisterEngine(st *store.Store, cfg config.Registry, log zerolog.Logger) {
	u, err := url.Parse(cfg.EngineURL)
	if err != nil {
		log.Error().Err(err).Str("engine_url", cfg.EngineURL).Msg("invalid ENGINE_URL, skipping auto-registration")
		return
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := 8080
	if p := u.Port(); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			port = parsed
		}
	}

	inst := service.New("engine", "engine-primary", host, port)
	inst.Status = service.StatusHealthy
	inst.Metadata["auto_registered"] = "true"

	leaseID, err := st.Register(context.Background(), inst)
	if err != nil {
		log.Error().Err(err).Msg("failed to auto-register engine")
		return
	}
	log.Info().Int64("lease_id", leaseID).Str("engine_url", cfg.EngineURL).Msg("engine auto-registered")

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := st.Keepalive(context.Background(), leaseID); err != nil {
				log.Error().Err(err).Msg("failed to keep engine lease alive")
				return
			}
		}
	}()
}
