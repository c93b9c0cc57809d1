// Package registryclient is the HTTP client Orchestrator, Gateway, and the
// bootstrap package use to talk to the registry service: register,
// keepalive, deregister, and discover-by-name.
package registryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/scadable/replfleet/internal/registry/service"
)

// Client is a thin HTTP wrapper around the registry's /api/registry surface.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client pointed at the given registry base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Register registers inst and returns the lease id the registry assigned.
func (c *Client) Register(ctx context.Context, inst service.Instance) (int64, error) {
	var resp struct {
		LeaseID int64 `json:"lease_id"`
	}
	if err := c.postJSON(ctx, "/api/registry/register", inst, &resp); err != nil {
		return 0, err
	}
	return resp.LeaseID, nil
}

// Keepalive renews the given lease. The call is bounded by a 2-second
// per-call timeout per spec §5.
func (c *Client) Keepalive(ctx context.Context, leaseID int64) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	body := struct {
		LeaseID int64 `json:"lease_id"`
	}{LeaseID: leaseID}
	return c.postJSON(ctx, "/api/registry/keepalive", body, nil)
}

// Deregister revokes inst's registration. Best-effort: callers should bound
// this with a short context timeout of their own on shutdown paths.
func (c *Client) Deregister(ctx context.Context, inst service.Instance) error {
	return c.postJSON(ctx, "/api/registry/deregister", inst, nil)
}

// Discover returns every instance registered under name, whatever its
// status.
func (c *Client) Discover(ctx context.Context, name string) ([]service.Instance, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/registry/services/"+name, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discover %s: registry returned %s", name, resp.Status)
	}
	var out []service.Instance
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode discover response: %w", err)
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("post %s: registry returned %s", path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// DiscoverEndpoint returns the base URL of any healthy instance registered
// under name, or an error if none is found. Round-robin is not needed at
// this scale; the first healthy instance is used, matching spec §4.3 step 1.
func DiscoverEndpoint(ctx context.Context, c *Client, name string) (string, error) {
	instances, err := c.Discover(ctx, name)
	if err != nil {
		return "", err
	}
	for _, inst := range instances {
		if inst.Status == service.StatusHealthy {
			return inst.Endpoint(), nil
		}
	}
	return "", fmt.Errorf("no healthy instance of %q registered", name)
}
