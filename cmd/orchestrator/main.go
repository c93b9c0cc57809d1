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
	"github.com/scadable/replfleet/internal/orchestrator/api"
	"github.com/scadable/replfleet/internal/orchestrator/execution"
	"github.com/scadable/replfleet/internal/registryclient"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().
		Str("svc", "orchestrator").Logger()

	cfg := config.MustLoadOrchestrator()
	log.Info().Str("registry_url", cfg.RegistryURL).Msg("bootstrapping orchestrator")

	registry := registryclient.New(cfg.RegistryURL)

	execMgr := execution.NewManager(execution.Config{
		MaxExecutionTime:  time.Duration(cfg.MaxExecutionSecs) * time.Second,
		MaxMemoryBytes:    cfg.MaxMemoryBytes,
		MaxCPUShares:      cfg.MaxCPUShares,
		EngineURLFallback: cfg.EngineURL,
	}, registry, log)

	handler := api.NewRouter(execMgr, log)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	advertisedPort := parsePort(cfg.ListenAddr)
	handle := bootstrap.Register(ctx, registry, "orchestrator", "orchestrator", advertisedPort, log)

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
		return 3000
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port == 0 {
		return 3000
	}
	return port
}
