// Package execution implements the Orchestrator's per-request execution
// pipeline: engine discovery, pull, create, attach-before-start, streamed
// output, a timeout-bounded deadline, and a cleanup guard that removes the
// container exactly once regardless of exit path (spec §4.3, §9).
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/scadable/replfleet/internal/model"
	"github.com/scadable/replfleet/internal/orchestrator/engine"
	"github.com/scadable/replfleet/internal/registryclient"
)

// State is one point in the ExecutionRecord state machine (spec §4.3).
type State string

const (
	StatePulling      State = "Pulling"
	StateCreated      State = "Created"
	StateRunning      State = "Running"
	StateExited       State = "Exited"
	StateKilled       State = "Killed"
	StateRemoved      State = "Removed"
	StateFailedCreate State = "FailedCreate"
)

// EventKind distinguishes streamed output from terminal signals.
type EventKind int

const (
	EventChunk EventKind = iota
	EventError
	EventDone
)

// Event is one item emitted on a Run's event channel.
type Event struct {
	Kind EventKind
	Data string
}

// ErrEngineUnavailable is returned when neither registry discovery nor the
// configured fallback can produce an engine endpoint (spec §4.3 step 1).
var ErrEngineUnavailable = errors.New("no engine endpoint available")

// Config bounds one Manager's executions (spec §3 defaults).
type Config struct {
	MaxExecutionTime  time.Duration
	MaxMemoryBytes    int64
	MaxCPUShares      int64
	EngineURLFallback string
}

// Manager runs executions against a discovered engine endpoint.
type Manager struct {
	cfg      Config
	registry *registryclient.Client
	lg       zerolog.Logger
}

// NewManager builds a Manager.
func NewManager(cfg Config, registry *registryclient.Client, lg zerolog.Logger) *Manager {
	return &Manager{cfg: cfg, registry: registry, lg: lg.With().Str("component", "execution-manager").Logger()}
}

// Result is the terminal outcome of a Run, read after its event channel
// closes.
type Result struct {
	ContainerID string
	State       State
	ExitCode    int64
	TimedOut    bool
	FatalErr    error // PullError / CreateError / StartError / ErrEngineUnavailable
	Output      string
}

// Run is one in-flight execution.
type Run struct {
	events chan Event
	result Result
	done   chan struct{}
}

// Events streams output chunks and terminal signals. The channel is closed
// exactly once, after which Result() is safe to read.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Result blocks until the run has finished and returns its terminal state.
func (r *Run) Result() Result {
	<-r.done
	return r.result
}

// discoverEngine resolves the "engine" service via the registry, falling
// back to the configured ENGINE_URL, per spec §4.3 step 1.
func (m *Manager) discoverEngine(ctx context.Context) (*engine.Client, error) {
	if m.registry != nil {
		if endpoint, err := registryclient.DiscoverEndpoint(ctx, m.registry, "engine"); err == nil {
			return engine.NewFromHost(endpoint, m.lg)
		}
	}
	if m.cfg.EngineURLFallback != "" {
		return engine.NewFromHost(m.cfg.EngineURLFallback, m.lg)
	}
	return nil, ErrEngineUnavailable
}

// List returns every container known to the discovered engine (spec §4.3
// "List").
func (m *Manager) List(ctx context.Context) ([]model.ContainerRef, error) {
	eng, err := m.discoverEngine(ctx)
	if err != nil {
		return nil, err
	}
	refs, err := eng.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ContainerRef, 0, len(refs))
	for _, r := range refs {
		out = append(out, model.ContainerRef{ID: r.ID, Names: r.Names})
	}
	return out, nil
}

// Remove force-removes a container by id (spec §4.3 "Remove").
func (m *Manager) Remove(ctx context.Context, id string) error {
	eng, err := m.discoverEngine(ctx)
	if err != nil {
		return err
	}
	return eng.Remove(ctx, id)
}

// Start launches the execution pipeline in the background and returns
// immediately with a Run the caller can consume events from.
func (m *Manager) Start(ctx context.Context, req model.ContainerRequest) *Run {
	run := &Run{
		events: make(chan Event, 8),
		done:   make(chan struct{}),
	}
	go m.execute(ctx, req, run)
	return run
}

func (m *Manager) execute(ctx context.Context, req model.ContainerRequest, run *Run) {
	defer close(run.events)
	defer close(run.done)

	eng, err := m.discoverEngine(ctx)
	if err != nil {
		run.result = Result{FatalErr: err}
		run.events <- Event{Kind: EventError, Data: err.Error()}
		return
	}

	lg := m.lg.With().Str("image", req.Image).Logger()

	if err := eng.Pull(ctx, req.Image); err != nil {
		lg.Error().Err(err).Msg("pull failed")
		run.result = Result{State: StateFailedCreate, FatalErr: err}
		run.events <- Event{Kind: EventError, Data: err.Error()}
		return
	}

	id, err := eng.CreateWithCapFallback(ctx, engine.CreateOpts{
		Image:       req.Image,
		Command:     req.Command,
		Env:         req.Env,
		MemoryBytes: m.cfg.MaxMemoryBytes,
		CPUShares:   m.cfg.MaxCPUShares,
	})
	if err != nil {
		lg.Error().Err(err).Msg("create failed")
		run.result = Result{State: StateFailedCreate, FatalErr: err}
		run.events <- Event{Kind: EventError, Data: err.Error()}
		return
	}
	lg = lg.With().Str("container_id", id).Logger()

	// Cleanup guard: from this point on, no matter which path we exit
	// through, the container is removed exactly once (spec §9).
	removed := false
	cleanup := func() {
		if removed {
			return
		}
		removed = true
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := eng.Remove(cleanupCtx, id); err != nil {
			lg.Error().Err(err).Msg("cleanup failed, container may be leaked")
		}
	}
	defer cleanup()

	attachConn, err := eng.Attach(ctx, id)
	if err != nil {
		lg.Error().Err(err).Msg("attach failed")
		run.result = Result{ContainerID: id, State: StateCreated, FatalErr: err}
		run.events <- Event{Kind: EventError, Data: err.Error()}
		return
	}
	defer attachConn.Close()

	startedAt := time.Now()
	if err := eng.Start(ctx, id); err != nil {
		lg.Error().Err(err).Msg("start failed")
		run.result = Result{ContainerID: id, State: StateCreated, FatalErr: err}
		run.events <- Event{Kind: EventError, Data: err.Error()}
		return
	}

	maxExecTime := m.cfg.MaxExecutionTime
	if maxExecTime <= 0 {
		maxExecTime = 30 * time.Second
	}
	deadline := startedAt.Add(maxExecTime)

	execCtx, execCancel := context.WithDeadline(ctx, deadline)
	defer execCancel()

	demuxDone := make(chan error, 1)
	var output []byte
	go func() {
		demuxDone <- engine.Demux(attachConn, func(chunk string) error {
			output = append(output, chunk...)
			output = append(output, '\n')
			select {
			case run.events <- Event{Kind: EventChunk, Data: chunk}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	waitDone := make(chan int64, 1)
	waitErr := make(chan error, 1)
	go func() {
		code, err := eng.Wait(context.Background(), id)
		if err != nil {
			waitErr <- err
			return
		}
		waitDone <- code
	}()

	select {
	case <-execCtx.Done():
		lg.Warn().Msg("execution deadline exceeded, stopping container")
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = eng.Stop(stopCtx, id, 5)
		cancel()
		killCtx, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		_ = eng.Kill(killCtx, id)
		cancel2()
		<-demuxDone
		run.result = Result{ContainerID: id, State: StateKilled, TimedOut: true, Output: string(output)}
		sendEvent(ctx, run, Event{Kind: EventError, Data: "execution timeout exceeded"})
		return

	case code := <-waitDone:
		<-demuxDone
		state := StateExited
		message := "Container executed successfully"
		if code != 0 {
			message = fmt.Sprintf("container exited with status %d", code)
		}
		run.result = Result{ContainerID: id, State: state, ExitCode: code, Output: string(output)}
		sendEvent(ctx, run, Event{Kind: EventDone, Data: message})
		return

	case err := <-waitErr:
		<-demuxDone
		lg.Error().Err(err).Msg("wait failed")
		run.result = Result{ContainerID: id, State: StateRunning, FatalErr: err, Output: string(output)}
		sendEvent(ctx, run, Event{Kind: EventError, Data: err.Error()})
		return
	}
}

// sendEvent delivers ev to the run's event channel unless the caller has
// already gone away, so a disconnected streaming client can never wedge the
// execute goroutine and prevent its deferred cleanup from running (spec §9:
// cleanup must run identically on normal exit, error exit, and cancellation).
func sendEvent(ctx context.Context, run *Run, ev Event) {
	select {
	case run.events <- ev:
	case <-ctx.Done():
	}
}
