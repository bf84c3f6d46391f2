// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/Yasith867/PolyAgent/services/dashboard/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter defines the contract for writing Server-Sent Events to HTTP
// responses.
//
// # Description
//
// SSEWriter abstracts SSE frame serialization and writing, enabling
// testability and separation from HTTP response mechanics. Frames are
// data-only (`data: {json}\n\n`); there are no named event types, so any
// EventSource client receives every frame on its default message handler.
//
// Three frame payloads exist:
//   - {"content": string} for each forwarded model fragment
//   - {"done": true} on successful completion
//   - {"error": string} on mid-stream failure
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple goroutines.
// The relay writes content frames from the stream goroutine while a
// keepalive goroutine writes comment frames.
//
// # Limitations
//
//   - Must be used with an http.Flusher-compatible ResponseWriter
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders before the first write
type SSEWriter interface {
	// WriteContent writes one content frame. Each call flushes immediately;
	// there is no batching, so fragment boundaries reach the client as they
	// arrived from upstream.
	WriteContent(content string) error

	// WriteDone writes the terminal {"done": true} frame. Should only be
	// called once, after all content frames.
	WriteDone() error

	// WriteError writes an {"error": msg} frame. The message must already be
	// sanitized for client display. The stream ends after this frame.
	WriteError(errMsg string) error

	// WriteKeepAlive sends an SSE comment (": ping\n\n"). Comments are
	// ignored by clients but reset load balancer idle timers (AWS ALB,
	// Nginx default 60s).
	WriteKeepAlive() error
}

// =============================================================================
// Struct Definition
// =============================================================================

// sseWriter implements SSEWriter over an http.ResponseWriter. Thread-safe
// via mutex; flushes after every frame.
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewSSEWriter creates an SSEWriter for the given ResponseWriter. Returns an
// error when the ResponseWriter does not support http.Flusher.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &sseWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

// writeFrame serializes the payload and writes one data-only SSE frame.
func (w *sseWriter) writeFrame(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteContent(content string) error {
	return w.writeFrame(datatypes.StreamEvent{Content: content})
}

func (w *sseWriter) WriteDone() error {
	return w.writeFrame(datatypes.StreamEvent{Done: true})
}

func (w *sseWriter) WriteError(errMsg string) error {
	return w.writeFrame(datatypes.StreamEvent{Error: errMsg})
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// SSE comment format: colon followed by text, then double newline
	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures HTTP response headers for SSE streaming.
//
// Sets Content-Type: text/event-stream, Cache-Control: no-cache,
// Connection: keep-alive, and X-Accel-Buffering: no (disables nginx
// buffering). Must be called before any response body is written.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ SSEWriter = (*sseWriter)(nil)
