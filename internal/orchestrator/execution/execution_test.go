package execution

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/scadable/replfleet/internal/model"
)

func TestStartFailsFastWithNoEngineAvailable(t *testing.T) {
	t.Parallel()

	mgr := NewManager(Config{MaxExecutionTime: time.Second}, nil, zerolog.Nop())
	run := mgr.Start(context.Background(), model.ContainerRequest{Image: "python:3.11-slim"})

	var sawError bool
	for ev := range run.Events() {
		if ev.Kind == EventError {
			sawError = true
		}
	}

	res := run.Result()
	if res.FatalErr != ErrEngineUnavailable {
		t.Fatalf("Result().FatalErr = %v, want %v", res.FatalErr, ErrEngineUnavailable)
	}
	if !sawError {
		t.Fatal("Events() never emitted an EventError before closing")
	}
}

func TestListFailsFastWithNoEngineAvailable(t *testing.T) {
	t.Parallel()

	mgr := NewManager(Config{}, nil, zerolog.Nop())
	if _, err := mgr.List(context.Background()); err != ErrEngineUnavailable {
		t.Fatalf("List() error = %v, want %v", err, ErrEngineUnavailable)
	}
}

func TestRemoveFailsFastWithNoEngineAvailable(t *testing.T) {
	t.Parallel()

	mgr := NewManager(Config{}, nil, zerolog.Nop())
	if err := mgr.Remove(context.Background(), "some-id"); err != ErrEngineUnavailable {
		t.Fatalf("Remove() error = %v, want %v", err, ErrEngineUnavailable)
	}
}

// TestSendEventDoesNotBlockAfterCancellation exercises the guard that keeps
// a cancelled (client-disconnected) run from wedging execute() forever once
// its event channel is full and nothing is draining it — the property that
// lets the deferred cleanup guard still run on cancellation (spec §9).
func TestSendEventDoesNotBlockAfterCancellation(t *testing.T) {
	t.Parallel()

	run := &Run{events: make(chan Event, 1)}
	run.events <- Event{Kind: EventChunk, Data: "fills the only slot"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		sendEvent(ctx, run, Event{Kind: EventDone, Data: "should not block"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sendEvent blocked after ctx was cancelled and the channel was full")
	}
}
