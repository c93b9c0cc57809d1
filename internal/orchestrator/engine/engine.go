// Package engine drives the remote container engine's HTTP socket: image
// pull, container create/start, attach-stream demultiplexing, wait, and
// remove. This is the one external interface named in spec §6 — the engine
// itself is not implemented here, only the client subset the Orchestrator
// consumes.
package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"
)

// Client drives one remote engine endpoint.
type Client struct {
	cli *client.Client
	lg  zerolog.Logger
}

// NewFromHost builds a Client bound to the given engine base URL (e.g.
// "http://engine-host:2375" or a unix socket DSN).
func NewFromHost(host string, lg zerolog.Logger) (*Client, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("engine client init: %w", err)
	}
	return &Client{cli: cli, lg: lg.With().Str("component", "engine-client").Logger()}, nil
}

// PullError, CreateError, StartError classify the fatal failure points of
// an execution, per spec §4.3.
type PullError struct{ Err error }

func (e *PullError) Error() string { return "pull failed: " + e.Err.Error() }
func (e *PullError) Unwrap() error { return e.Err }

type CreateError struct{ Err error }

func (e *CreateError) Error() string { return "create failed: " + e.Err.Error() }
func (e *CreateError) Unwrap() error { return e.Err }

type StartError struct{ Err error }

func (e *StartError) Error() string { return "start failed: " + e.Err.Error() }
func (e *StartError) Unwrap() error { return e.Err }

// Pull always pulls the given image before create (spec §4.3 step 2: the
// engine must run the freshest interpreter image on every execution — this
// intentionally departs from the teacher's "pull only if missing" cache
// policy). Pull progress is consumed but not forwarded to the caller.
func (c *Client) Pull(ctx context.Context, img string) error {
	rc, err := c.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return &PullError{Err: err}
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		var line struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &line); err == nil && line.Error != "" {
			return &PullError{Err: fmt.Errorf("%s", line.Error)}
		}
	}
	if err := scanner.Err(); err != nil {
		return &PullError{Err: err}
	}
	return nil
}

// CreateOpts describes a container to create.
type CreateOpts struct {
	Image       string
	Command     []string
	Env         []string
	MemoryBytes int64
	CPUShares   int64
	WithCaps    bool // whether to attach the resource-cap fields
}

// Create builds a container with private network/pid/ipc namespaces, no
// host mounts, and automatic removal disabled (spec §4.3 step 3). Returns
// the container id.
func (c *Client) Create(ctx context.Context, opts CreateOpts) (string, error) {
	hostConfig := &container.HostConfig{
		NetworkMode: "none",
		IpcMode:     "private",
		PidMode:     "private",
		AutoRemove:  false,
	}
	if opts.WithCaps {
		hostConfig.Resources = container.Resources{
			Memory:    opts.MemoryBytes,
			CPUShares: opts.CPUShares,
		}
	}

	resp, err := c.cli.ContainerCreate(ctx,
		&container.Config{
			Image: opts.Image,
			Cmd:   opts.Command,
			Env:   opts.Env,
			Tty:   false,
		},
		hostConfig,
		nil, nil, "",
	)
	if err != nil {
		return "", &CreateError{Err: err}
	}
	return resp.ID, nil
}

// CreateWithCapFallback tries Create with resource caps, and on failure
// retries once without them, logging a warning — spec §4.3 step 3 /
// §9 "Engine-cap compatibility".
func (c *Client) CreateWithCapFallback(ctx context.Context, opts CreateOpts) (string, error) {
	opts.WithCaps = true
	id, err := c.Create(ctx, opts)
	if err == nil {
		return id, nil
	}

	c.lg.Warn().Err(err).Msg("engine rejected resource caps, retrying without them")
	opts.WithCaps = false
	id, err2 := c.Create(ctx, opts)
	if err2 != nil {
		return "", err // report the original error, caps were the intent
	}
	return id, nil
}

// Attach opens the bidirectional stdout+stderr stream. Must be called
// before Start to avoid losing early output (spec §4.3 step 4).
func (c *Client) Attach(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := c.cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	return resp.Conn, nil
}

// Start starts a previously created container.
func (c *Client) Start(ctx context.Context, id string) error {
	if err := c.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return &StartError{Err: err}
	}
	return nil
}

// frameWriter adapts stdcopy's per-frame Write calls into a callback, so
// each engine frame becomes exactly one emitted chunk (spec §4.3 step 5:
// "each decoded output frame ... is emitted as a distinct SSE data event").
type frameWriter struct {
	emit func(chunk string) error
	err  error
}

func (f *frameWriter) Write(p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	text := strings.TrimRight(string(p), "\n")
	if text == "" {
		return len(p), nil
	}
	if err := f.emit(text); err != nil {
		f.err = err
		return 0, err
	}
	return len(p), nil
}

// Demux reads the engine's multiplexed attach stream and calls emit once
// per decoded frame, for both stdout and stderr alike — the core does not
// interleave-merge stdout/stderr semantically (spec §4.3 step 5).
func Demux(r io.Reader, emit func(chunk string) error) error {
	w := &frameWriter{emit: emit}
	_, err := stdcopy.StdCopy(w, w, r)
	if w.err != nil {
		return w.err
	}
	if err != nil && err != io.EOF {
		return fmt.Errorf("demux attach stream: %w", err)
	}
	return nil
}

// Wait blocks until the container exits (or the context is cancelled) and
// returns its exit code.
func (c *Client) Wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := c.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return 0, fmt.Errorf("wait: %w", err)
		}
		return 0, nil
	case status := <-statusCh:
		return status.StatusCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Stop issues a stop with the given grace period.
func (c *Client) Stop(ctx context.Context, id string, graceSecs int) error {
	timeout := graceSecs
	return c.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
}

// Kill sends SIGKILL immediately.
func (c *Client) Kill(ctx context.Context, id string) error {
	return c.cli.ContainerKill(ctx, id, "KILL")
}

// Remove force-removes a container. Idempotent: removing an already-gone
// container is not an error.
func (c *Client) Remove(ctx context.Context, id string) error {
	err := c.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

// ContainerRef is one row of List's output.
type ContainerRef struct {
	ID    string   `json:"id"`
	Names []string `json:"names"`
}

// List returns every container the engine knows about, matching spec
// §4.3's `List` operation.
func (c *Client) List(ctx context.Context) ([]ContainerRef, error) {
	containers, err := c.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	out := make([]ContainerRef, 0, len(containers))
	for _, ctr := range containers {
		out = append(out, ContainerRef{ID: ctr.ID, Names: ctr.Names})
	}
	return out, nil
}
