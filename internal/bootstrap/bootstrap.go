// Package bootstrap provides the self-registration and lease-keepalive
// logic shared by the Orchestrator and Gateway services, grounded on
// original_source/crates/service-registry/src/bootstrap.rs.
package bootstrap

import (
	"context"
	"math"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/scadable/replfleet/internal/registry/service"
	"github.com/scadable/replfleet/internal/registryclient"
	"github.com/scadable/replfleet/pkg/rand"
)

// KeepalivePeriod is the interval at which the lease is renewed. Must stay
// strictly less than LeaseTTL/3 (spec §4.2, §8 "Lease TTL safety").
const KeepalivePeriod = 5 * time.Second

const maxBackoff = 30 * time.Second

// Handle owns the lease id for a self-registered service and the goroutine
// keeping it alive. A single Handle is the sole owner of the lease so the
// keepalive loop never outlives the service (spec §9).
type Handle struct {
	client  *registryclient.Client
	inst    service.Instance
	leaseID atomic.Int64
	status  atomic.Value // service.Status

	cancel context.CancelFunc
	done   chan struct{}
}

// Register builds a ServiceInstance for this process, registers it against
// the registry, and spawns the background keepalive loop. Registration
// itself is retried with exponential backoff (cap 30s) in the background if
// it fails initially, per spec §4.2 — the service still starts.
func Register(ctx context.Context, client *registryclient.Client, name, address string, port int, lg zerolog.Logger) *Handle {
	inst := service.New(name, instanceID(), address, port)
	inst.Status = service.StatusHealthy

	h := &Handle{client: client, inst: inst}
	h.status.Store(service.StatusStarting)

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})

	lg = lg.With().Str("component", "bootstrap").Str("service", name).Str("instance_id", inst.ID).Logger()

	go h.run(ctx, lg)

	return h
}

func (h *Handle) run(ctx context.Context, lg zerolog.Logger) {
	defer close(h.done)

	leaseID := h.registerWithBackoff(ctx, lg)
	if leaseID == 0 {
		// context was cancelled before registration succeeded.
		return
	}
	h.leaseID.Store(leaseID)
	h.status.Store(service.StatusHealthy)

	ticker := time.NewTicker(KeepalivePeriod)
	defer ticker.Stop()

	misses := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.client.Keepalive(ctx, h.leaseID.Load()); err != nil {
				misses++
				lg.Warn().Err(err).Int("misses", misses).Msg("keepalive failed")
				if misses >= 3 {
					h.status.Store(service.StatusUnhealthy)
					lg.Error().Msg("three consecutive missed keepalives, re-registering")
					newLease := h.registerWithBackoff(ctx, lg)
					if newLease == 0 {
						return
					}
					h.leaseID.Store(newLease)
					h.status.Store(service.StatusHealthy)
					misses = 0
				}
			} else {
				misses = 0
			}
		}
	}
}

func (h *Handle) registerWithBackoff(ctx context.Context, lg zerolog.Logger) int64 {
	backoff := time.Second
	for {
		leaseID, err := h.client.Register(ctx, h.inst)
		if err == nil {
			lg.Info().Int64("lease_id", leaseID).Msg("registered with registry")
			return leaseID
		}
		lg.Warn().Err(err).Dur("retry_in", backoff).Msg("registration failed, retrying")

		select {
		case <-ctx.Done():
			return 0
		case <-time.After(backoff):
		}
		backoff = time.Duration(math.Min(float64(backoff*2), float64(maxBackoff)))
	}
}

// Status returns the handle's local view of its own health.
func (h *Handle) Status() service.Status {
	return h.status.Load().(service.Status)
}

// Instance returns the ServiceInstance this handle represents.
func (h *Handle) Instance() service.Instance {
	return h.inst
}

// Shutdown stops the keepalive loop and deregisters, best-effort, bounded
// by a 2-second timeout so shutdown never blocks on a dead network.
func (h *Handle) Shutdown(ctx context.Context) {
	h.cancel()
	<-h.done

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_ = h.client.Deregister(ctx, h.inst)
}

func instanceID() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	pid := strconv.Itoa(os.Getpid())
	return hostname + "-" + pid + "-" + rand.ID16()
}
