// Package sseutil provides small helpers for writing and forwarding
// server-sent events without buffering more than one chunk at a time, per
// spec §9 "SSE as a pure pipe".
package sseutil

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
)

// Writer wraps an http.ResponseWriter configured for text/event-stream and
// flushes after every write so intermediaries don't buffer partial events.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the SSE headers on w and returns a Writer. Returns an
// error if w does not support flushing.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &Writer{w: w, flusher: flusher}, nil
}

// Data emits one data: event carrying a single chunk, unsplit.
func (sw *Writer) Data(chunk string) error {
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", chunk); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// Error emits a data: line prefixed with ERROR:, the transport-level error
// convention used throughout spec §7.
func (sw *Writer) Error(msg string) error {
	return sw.Data("ERROR: " + msg)
}

// Done emits the terminal event: done frame and must be the last thing
// written on the stream (spec §7: never both ERROR and done, never neither
// — callers are responsible for choosing exactly one terminator).
func (sw *Writer) Done(summary string) error {
	if _, err := fmt.Fprintf(sw.w, "event: done\ndata: %s\n\n", summary); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// Heartbeat emits a comment line to keep intermediaries from closing an
// idle connection (spec §4.3 step 5: every 15s of silence).
func (sw *Writer) Heartbeat() error {
	if _, err := fmt.Fprint(sw.w, ":\n\n"); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// CopyLines is a pure byte-pipe forwarder: it reads r line by line and
// writes each `data:`/`event:` line through fn without reparsing or
// buffering more than a single line, matching spec §4.4's Gateway
// forwarding contract.
func CopyLines(r io.Reader, fn func(line string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
