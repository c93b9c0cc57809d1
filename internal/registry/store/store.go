// Package store wraps an etcd client with the lease/put/get operations the
// registry needs: register (lease + put), keepalive, deregister (key
// delete), and prefix-scan discovery.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/scadable/replfleet/internal/registry/service"
	"github.com/rs/zerolog"
)

// DefaultLeaseTTL is the TTL, in seconds, granted to every registration
// unless the caller overrides it.
const DefaultLeaseTTL = 30

// Store is a thin wrapper over an etcd client scoped to the /services/
// keyspace used by the registry.
type Store struct {
	cli      *clientv3.Client
	leaseTTL int64
	lg       zerolog.Logger
}

// New dials etcd at the given endpoints.
func New(endpoints []string, leaseTTL int64, lg zerolog.Logger) (*Store, error) {
	if leaseTTL <= 0 {
		leaseTTL = DefaultLeaseTTL
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("etcd connect: %w", err)
	}
	return &Store{cli: cli, leaseTTL: leaseTTL, lg: lg.With().Str("component", "registry-store").Logger()}, nil
}

// Close releases the underlying etcd client.
func (s *Store) Close() error {
	return s.cli.Close()
}

// Register grants a lease and writes the instance under its derived key,
// attached to that lease. Returns the lease id.
func (s *Store) Register(ctx context.Context, inst service.Instance) (int64, error) {
	value, err := json.Marshal(inst)
	if err != nil {
		return 0, fmt.Errorf("marshal instance: %w", err)
	}

	lease, err := s.cli.Grant(ctx, s.leaseTTL)
	if err != nil {
		return 0, fmt.Errorf("etcd lease grant: %w", err)
	}

	if _, err := s.cli.Put(ctx, inst.Key(), string(value), clientv3.WithLease(lease.ID)); err != nil {
		return 0, fmt.Errorf("etcd put: %w", err)
	}

	s.lg.Info().Str("key", inst.Key()).Int64("lease_id", int64(lease.ID)).Msg("service registered")
	return int64(lease.ID), nil
}

// Keepalive sends a single keepalive ping for the given lease.
func (s *Store) Keepalive(ctx context.Context, leaseID int64) error {
	resp, err := s.cli.KeepAliveOnce(ctx, clientv3.LeaseID(leaseID))
	if err != nil {
		return fmt.Errorf("lease not found or expired: %w", err)
	}
	s.lg.Debug().Int64("lease_id", leaseID).Int64("ttl", resp.TTL).Msg("lease renewed")
	return nil
}

// Deregister deletes the instance's derived key. It does not revoke the
// lease; the lease stays granted until its TTL runs out.
func (s *Store) Deregister(ctx context.Context, inst service.Instance) error {
	// The instance's own key is only associated with a lease id at register
	// time; deregistration doesn't carry it, so fall back to a direct
	// delete of the derived key. This is idempotent and safe even after the
	// lease has already expired the key on its own.
	if _, err := s.cli.Delete(ctx, inst.Key()); err != nil {
		return fmt.Errorf("etcd delete: %w", err)
	}
	s.lg.Info().Str("key", inst.Key()).Msg("service deregistered")
	return nil
}

// GetByName performs a prefix scan under /services/{name}/.
func (s *Store) GetByName(ctx context.Context, name string) ([]service.Instance, error) {
	resp, err := s.cli.Get(ctx, service.Prefix(name), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcd get: %w", err)
	}
	return decodeAll(resp, s.lg), nil
}

// GetAll performs a prefix scan under /services/.
func (s *Store) GetAll(ctx context.Context) ([]service.Instance, error) {
	resp, err := s.cli.Get(ctx, "/services/", clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcd get: %w", err)
	}
	return decodeAll(resp, s.lg), nil
}

// GetByID fetches a single instance by exact key.
func (s *Store) GetByID(ctx context.Context, name, id string) (service.Instance, bool, error) {
	inst := service.New(name, id, "", 0)
	resp, err := s.cli.Get(ctx, inst.Key())
	if err != nil {
		return service.Instance{}, false, fmt.Errorf("etcd get: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return service.Instance{}, false, nil
	}
	var out service.Instance
	if err := json.Unmarshal(resp.Kvs[0].Value, &out); err != nil {
		return service.Instance{}, false, fmt.Errorf("unmarshal instance: %w", err)
	}
	return out, true, nil
}

func decodeAll(resp *clientv3.GetResponse, lg zerolog.Logger) []service.Instance {
	out := make([]service.Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst service.Instance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			lg.Warn().Err(err).Str("key", string(kv.Key)).Msg("failed to decode service instance")
			continue
		}
		out = append(out, inst)
	}
	return out
}
