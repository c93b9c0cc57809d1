package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scadable/replfleet/internal/model"
)

// orchestratorClient is the Gateway's HTTP client to the discovered
// Orchestrator instance (spec §4.4 "Discovery").
type orchestratorClient struct {
	baseURL string
	http    *http.Client
}

func newOrchestratorClient(baseURL string) *orchestratorClient {
	return &orchestratorClient{
		baseURL: baseURL,
		// long-poll path: 2x the execution deadline, spec §5 "Timeouts".
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *orchestratorClient) Create(ctx context.Context, req model.ContainerRequest) (model.ContainerResponse, int, error) {
	buf, err := json.Marshal(req)
	if err != nil {
		return model.ContainerResponse{}, 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/containers/create", bytes.NewReader(buf))
	if err != nil {
		return model.ContainerResponse{}, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return model.ContainerResponse{}, 0, fmt.Errorf("orchestrator request failed: %w", err)
	}
	defer resp.Body.Close()

	var out model.ContainerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.ContainerResponse{}, resp.StatusCode, fmt.Errorf("decode orchestrator response: %w", err)
	}
	return out, resp.StatusCode, nil
}

// CreateStream opens the Orchestrator's SSE stream and returns the raw
// response body for the caller to pipe through verbatim (spec §4.4
// "SSE forwarding": "a pure byte-pipe ... neither reparses nor buffers").
func (c *orchestratorClient) CreateStream(ctx context.Context, req model.ContainerRequest) (io.ReadCloser, int, error) {
	buf, err := json.Marshal(req)
	if err != nil {
		return nil, 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/containers/create/stream", bytes.NewReader(buf))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	// No client-side timeout: the execution deadline on the Orchestrator
	// side bounds the stream (spec §5 "Timeouts").
	resp, err := (&http.Client{}).Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("orchestrator stream request failed: %w", err)
	}
	return resp.Body, resp.StatusCode, nil
}
