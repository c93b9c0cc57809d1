package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/scadable/replfleet/internal/registry/service"
	"github.com/scadable/replfleet/internal/registryclient"
)

// fakeRegistry is a minimal stand-in for the registry HTTP surface, letting
// keepalive and registration failures be injected deterministically.
type fakeRegistry struct {
	registrations atomic.Int64
	keepalives    atomic.Int64
	failKeepalive atomic.Bool
	failRegister  atomic.Bool
}

func (f *fakeRegistry) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/registry/register", func(w http.ResponseWriter, r *http.Request) {
		if f.failRegister.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		f.registrations.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]int64{"lease_id": f.registrations.Load()})
	})
	mux.HandleFunc("/api/registry/keepalive", func(w http.ResponseWriter, r *http.Request) {
		if f.failKeepalive.Load() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.keepalives.Add(1)
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/registry/deregister", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func TestRegisterAndShutdownDeregisters(t *testing.T) {
	t.Parallel()

	fr := &fakeRegistry{}
	srv := httptest.NewServer(fr.handler())
	defer srv.Close()

	client := registryclient.New(srv.URL)
	lg := zerolog.Nop()

	handle := Register(context.Background(), client, "gateway", "10.0.0.1", 3002, lg)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if handle.Status() == service.StatusHealthy {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if handle.Status() != service.StatusHealthy {
		t.Fatalf("Status() = %q, want %q", handle.Status(), service.StatusHealthy)
	}
	if fr.registrations.Load() != 1 {
		t.Fatalf("registrations = %d, want 1", fr.registrations.Load())
	}

	handle.Shutdown(context.Background())
}

func TestReregistersAfterConsecutiveKeepaliveMisses(t *testing.T) {
	t.Parallel()

	fr := &fakeRegistry{}
	srv := httptest.NewServer(fr.handler())
	defer srv.Close()

	client := registryclient.New(srv.URL)
	lg := zerolog.Nop()

	handle := Register(context.Background(), client, "orchestrator", "10.0.0.2", 3000, lg)
	defer handle.Shutdown(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && handle.Status() != service.StatusHealthy {
		time.Sleep(10 * time.Millisecond)
	}

	fr.failKeepalive.Store(true)
	fr.failRegister.Store(true)

	// With the registry refusing keepalives and registrations alike, three
	// missed keepalives at KeepalivePeriod cadence flip status to Unhealthy,
	// where it stays until re-registration succeeds.
	deadline = time.Now().Add(3*KeepalivePeriod + 2*time.Second)
	sawUnhealthy := false
	for time.Now().Before(deadline) {
		if handle.Status() == service.StatusUnhealthy {
			sawUnhealthy = true
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !sawUnhealthy {
		t.Fatal("Status() never reported Unhealthy after repeated keepalive failures")
	}

	fr.failKeepalive.Store(false)
	fr.failRegister.Store(false)

	deadline = time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if handle.Status() == service.StatusHealthy && fr.registrations.Load() >= 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("did not re-register after recovery: status=%q registrations=%d", handle.Status(), fr.registrations.Load())
}
