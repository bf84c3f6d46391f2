// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package llm

import (
	"context"
	"errors"
)

// Message is a single chat message sent to an LLM backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Streaming error taxonomy. Failures before the first fragment wrap
// ErrUpstreamUnavailable; failures after streaming began wrap
// ErrStreamInterrupted. Callers distinguish them with errors.Is.
var (
	ErrUpstreamUnavailable = errors.New("llm backend unavailable")
	ErrStreamInterrupted   = errors.New("llm stream interrupted")
)

// StreamEventType identifies the kind of event delivered to a StreamCallback.
type StreamEventType string

const (
	// StreamEventToken carries a content fragment in Content.
	StreamEventToken StreamEventType = "token"

	// StreamEventError carries an upstream error message in Error.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one unit of streamed LLM output.
type StreamEvent struct {
	Type    StreamEventType `json:"type"`
	Content string          `json:"content,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// StreamCallback receives stream events in arrival order. Returning a
// non-nil error aborts the stream (used for client disconnects).
type StreamCallback func(event StreamEvent) error

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	// Generate returns the complete response for the given messages.
	Generate(ctx context.Context, messages []Message, params GenerationParams) (string, error)

	// ChatStream invokes callback once per content fragment as the backend
	// produces them. It returns after the stream ends: nil on normal
	// completion, the callback's error if the callback aborted, or an error
	// wrapping ErrUpstreamUnavailable / ErrStreamInterrupted otherwise.
	ChatStream(ctx context.Context, messages []Message, params GenerationParams, callback StreamCallback) error
}
