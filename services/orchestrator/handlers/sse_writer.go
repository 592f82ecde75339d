// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianChat/services/orchestrator/datatypes"
)

// =============================================================================
// SSE Writer
// =============================================================================

// SSEWriter serializes stream events onto one Server-Sent Events
// connection.
//
// # Description
//
// Wraps an http.ResponseWriter with the framing rules the chat wire
// format requires:
//
//   - every event carries an explicit "event: <type>" line
//   - the JSON payload embeds the reconnect hint under "retry"
//   - payload text containing newlines is split across multiple
//     "data:" lines so the frame stays valid SSE
//   - each frame ends with a blank line and an immediate flush
//
// # Limitations
//
//   - The underlying writer must support http.Flusher; plain
//     ResponseWriters without flush cannot stream.
type SSEWriter interface {
	// Send validates, formats, and flushes one event.
	Send(event datatypes.StreamEvent, retryMillis int64) error

	// WriteKeepAlive emits an SSE comment frame to hold idle
	// connections open.
	WriteKeepAlive() error
}

type sseWriter struct {
	mu      sync.Mutex
	writer  http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter wraps w for event streaming. Returns an error when the
// writer cannot flush.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// SetSSEHeaders configures the response for event streaming. Must be
// called before the first write.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// setupSSE upgrades the response for event streaming. Headers are only
// touched once the writer is known to support flushing, so a rejection
// afterwards still goes out as plain JSON.
func setupSSE(w http.ResponseWriter) (SSEWriter, error) {
	writer, err := NewSSEWriter(w)
	if err != nil {
		return nil, err
	}
	SetSSEHeaders(w)
	return writer, nil
}

func (w *sseWriter) Send(event datatypes.StreamEvent, retryMillis int64) error {
	frame, err := FormatEvent(event, retryMillis)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.writer.Write(frame); err != nil {
		return fmt.Errorf("failed to write SSE frame: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("failed to write keep-alive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// FormatEvent renders one event as a complete SSE frame.
//
// The event type must be non-empty, the payload map non-nil, and the
// reconnect hint positive; a malformed event is a programming error
// surfaced before anything reaches the wire.
func FormatEvent(event datatypes.StreamEvent, retryMillis int64) ([]byte, error) {
	if event.Event == "" {
		return nil, fmt.Errorf("event type cannot be empty")
	}
	if event.Data == nil {
		return nil, fmt.Errorf("event payload cannot be nil")
	}
	if retryMillis <= 0 {
		return nil, fmt.Errorf("retry hint must be positive, got %d", retryMillis)
	}

	payload := make(map[string]any, len(event.Data)+1)
	for k, v := range event.Data {
		payload[k] = v
	}
	payload["retry"] = retryMillis

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("failed to encode event payload: %w", err)
	}
	data := strings.TrimRight(buf.String(), "\n")

	var frame bytes.Buffer
	fmt.Fprintf(&frame, "event: %s\n", event.Event)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(&frame, "data: %s\n", line)
	}
	frame.WriteString("\n")
	return frame.Bytes(), nil
}
