package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/scadable/replfleet/internal/bootstrap"
	"github.com/scadable/replfleet/internal/config"
	"github.com/scadable/replfleet/internal/gateway/api"
	"github.com/scadable/replfleet/internal/gateway/ratelimit"
	"github.com/scadable/replfleet/internal/registryclient"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().
		Str("svc", "gateway").Logger()

	cfg := config.MustLoadGateway()
	log.Info().Str("registry_url", cfg.RegistryURL).Msg("bootstrapping gateway")

	registry := registryclient.New(cfg.RegistryURL)

	limiter := ratelimit.New(
		cfg.RateLimitPerMin,
		cfg.RateLimitBurst,
		time.Duration(cfg.RateLimitIdleMins)*time.Minute,
	)

	handler := api.NewRouter(api.Config{
		MaxCodeBytes:    cfg.MaxCodeBytes,
		MaxDependencies: cfg.MaxDependencies,
		OrchestratorURL: cfg.OrchestratorURL,
	}, registry, limiter, log)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	advertisedPort := parsePort(cfg.ListenAddr)
	handle := bootstrap.Register(ctx, registry, "gateway", "gateway", advertisedPort, log)

	go func() {
		log.Info().Str("listen", cfg.ListenAddr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	log.Info().Msg("shutting down server...")
	_ = srv.Shutdown(context.Background())
	handle.Shutdown(context.Background())
	log.Info().Msg("shutdown complete")
}

func parsePort(listenAddr string) int {
	_, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return 3002
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port == 0 {
		return 3002
	}
	return port
}
