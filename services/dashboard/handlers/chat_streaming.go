// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Package handlers provides HTTP request handlers for the dashboard service.
//
// This file implements the streaming chat relay: validate, persist the user
// turn, assemble the grounding context, stream the upstream completion to
// the client as SSE frames, and persist the assistant turn only when the
// stream runs to completion.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Yasith867/PolyAgent/services/dashboard/conversation"
	"github.com/Yasith867/PolyAgent/services/dashboard/datatypes"
	"github.com/Yasith867/PolyAgent/services/dashboard/observability"
	"github.com/Yasith867/PolyAgent/services/dashboard/store"
	"github.com/Yasith867/PolyAgent/services/llm"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// heartbeatInterval is how often keepalive pings are sent during streaming.
	// 15 seconds stays under common load balancer timeouts (AWS ALB 60s,
	// Nginx default 60s) with margin for network delays.
	heartbeatInterval = 15 * time.Second

	// maxChatCompletionTokens caps the upstream completion length for chat.
	maxChatCompletionTokens = 2048
)

// clientErrProcessing is the sanitized error frame text. Internal failure
// detail stays in the logs.
const clientErrProcessing = "Failed to process message"

// =============================================================================
// Handler
// =============================================================================

// AgentChatHandler serves the SSE chat relay endpoint.
//
// # Description
//
// The handler owns the full relay sequence for POST /api/ai-chat:
//
//  1. Validate the request (400 on failure, no side effects).
//  2. Persist the user turn. It is durable from this point regardless of
//     what happens downstream.
//  3. Assemble the system context and history window (500 before SSE
//     headers on a fatal store error).
//  4. Stream the upstream completion, forwarding each fragment as one SSE
//     frame in arrival order.
//  5. On completion, persist the assistant turn (the exact fragment
//     concatenation) and emit the done frame. On mid-stream failure, emit
//     an error frame and discard the partial answer. On client disconnect,
//     cancel upstream and persist nothing further.
//
// There are no retries at any layer.
//
// # Thread Safety
//
// Safe for concurrent requests. Per-request state lives on the stack.
type AgentChatHandler struct {
	store     store.Store
	assembler *conversation.Assembler
	llmClient llm.LLMClient
	metrics   *observability.StreamingMetrics
	tracer    trace.Tracer
}

// NewAgentChatHandler creates the relay handler. Panics when a dependency
// is nil so miswiring fails at startup, not mid-request.
func NewAgentChatHandler(s store.Store, client llm.LLMClient, metrics *observability.StreamingMetrics) *AgentChatHandler {
	if s == nil {
		panic("handlers: store cannot be nil")
	}
	if client == nil {
		panic("handlers: llm client cannot be nil")
	}
	if metrics == nil {
		panic("handlers: metrics cannot be nil")
	}
	return &AgentChatHandler{
		store:     s,
		assembler: conversation.NewAssembler(s),
		llmClient: client,
		metrics:   metrics,
		tracer:    otel.Tracer("polyagent.dashboard.handlers"),
	}
}

// HandleAgentChat handles POST /api/ai-chat.
func (h *AgentChatHandler) HandleAgentChat(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handlers.HandleAgentChat")
	defer span.End()

	endpoint := observability.EndpointAgentChat
	start := time.Now()
	success := false

	h.metrics.StreamStarted(endpoint)
	defer func() {
		h.metrics.StreamEnded(endpoint)
		h.metrics.RecordRequest(endpoint, success)
		h.metrics.RecordStreamDuration(endpoint, time.Since(start).Seconds(), success)
	}()

	// Step 1: Validate. A rejected request has no side effects of any kind.
	var req datatypes.AgentChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.metrics.RecordError(endpoint, observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		h.metrics.RecordError(endpoint, observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.EnsureDefaults()

	span.SetAttributes(
		attribute.Int64("portfolio.id", req.PortfolioID),
		attribute.Int("message.length", len(req.Message)),
	)

	// Step 2: Persist the user turn before anything can fail downstream.
	userTurn := &datatypes.ChatMessage{
		PortfolioID: req.PortfolioID,
		Role:        "user",
		Content:     req.Message,
	}
	if err := h.store.AppendChat(ctx, userTurn); err != nil {
		slog.Error("Failed to persist user turn", "error", err, "portfolio_id", req.PortfolioID)
		h.metrics.RecordError(endpoint, observability.ErrorCodeStoreError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": clientErrProcessing})
		return
	}

	// Step 3: Assemble context. The window read here includes the turn just
	// persisted, so the model sees the current question. Fatal only on a
	// store error; missing data degrades inside the assembler.
	messages, err := h.assembler.BuildMessages(ctx, req.PortfolioID)
	if err != nil {
		slog.Error("Context assembly failed", "error", err, "portfolio_id", req.PortfolioID)
		h.metrics.RecordError(endpoint, observability.ErrorCodeContextError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": clientErrProcessing})
		return
	}

	// Step 4: Switch the response to SSE. From here on, errors are reported
	// as error frames, not status codes.
	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		h.metrics.RecordError(endpoint, observability.ErrorCodeInternal)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	heartbeatDone := make(chan struct{})
	go h.runHeartbeat(writer, heartbeatDone, endpoint)
	defer close(heartbeatDone)

	acc, err := NewFragmentAccumulator()
	if err != nil {
		slog.Error("Failed to create fragment accumulator", "error", err)
		h.metrics.RecordError(endpoint, observability.ErrorCodeInternal)
		_ = writer.WriteError(clientErrProcessing)
		return
	}
	defer acc.Destroy()

	// Step 5: Stream. Fragments are forwarded in arrival order, one frame
	// each, and mirrored into the accumulator.
	streamErr := h.streamCompletion(ctx, writer, acc, messages, endpoint, start)
	if streamErr != nil {
		if errors.Is(streamErr, context.Canceled) {
			// Client went away. Upstream is already cancelled via ctx;
			// nothing more can be written and nothing further is persisted.
			slog.Info("Client disconnected during stream", "portfolio_id", req.PortfolioID)
			h.metrics.RecordClientDisconnect(endpoint)
			return
		}
		slog.Error("Upstream stream failed", "error", streamErr, "portfolio_id", req.PortfolioID)
		h.metrics.RecordError(endpoint, observability.ErrorCodeLLMError)
		_ = writer.WriteError(clientErrProcessing)
		return
	}

	answer, answerHash, err := acc.Finalize()
	if err != nil {
		slog.Error("Failed to finalize answer", "error", err)
		h.metrics.RecordError(endpoint, observability.ErrorCodeInternal)
		_ = writer.WriteError(clientErrProcessing)
		return
	}

	// Step 6: Persist the assistant turn, then signal completion. The done
	// frame is only sent once the turn is durable.
	assistantTurn := &datatypes.ChatMessage{
		PortfolioID: req.PortfolioID,
		Role:        "assistant",
		Content:     answer,
	}
	if err := h.store.AppendChat(ctx, assistantTurn); err != nil {
		slog.Error("Failed to persist assistant turn", "error", err, "portfolio_id", req.PortfolioID)
		h.metrics.RecordError(endpoint, observability.ErrorCodeStoreError)
		_ = writer.WriteError(clientErrProcessing)
		return
	}

	if err := writer.WriteDone(); err != nil {
		slog.Warn("Failed to write done frame", "error", err)
		return
	}

	slog.Debug("Chat stream completed",
		"portfolio_id", req.PortfolioID,
		"answer_length", len(answer),
		"answer_hash", answerHash[:16],
	)
	success = true
}

// =============================================================================
// Streaming Internals
// =============================================================================

// streamCompletion runs the upstream stream, forwarding each fragment and
// recording first-token latency and token counts. Returns the upstream
// error unwrapped so callers can distinguish cancellation.
func (h *AgentChatHandler) streamCompletion(
	ctx context.Context,
	writer SSEWriter,
	acc FragmentAccumulator,
	messages []llm.Message,
	endpoint observability.Endpoint,
	start time.Time,
) error {
	maxTokens := maxChatCompletionTokens
	params := llm.GenerationParams{MaxTokens: &maxTokens}

	var fragmentCount int64
	var firstFragment atomic.Bool

	callback := func(event llm.StreamEvent) error {
		// The upstream client also checks ctx between fragments; checking
		// here bounds the window where a disconnected client still receives
		// work.
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if event.Type != llm.StreamEventToken {
			return nil
		}

		if firstFragment.CompareAndSwap(false, true) {
			h.metrics.RecordTimeToFirstToken(endpoint, time.Since(start).Seconds())
		}
		atomic.AddInt64(&fragmentCount, 1)

		if err := acc.Write(event.Content); err != nil {
			return err
		}
		return writer.WriteContent(event.Content)
	}

	err := h.llmClient.ChatStream(ctx, messages, params, callback)
	h.metrics.RecordTokens(len(messages), int(atomic.LoadInt64(&fragmentCount)), "chat")
	return err
}

// runHeartbeat sends keepalive comment frames until done is closed. Comment
// frames are invisible to JSON-frame consumers, so they can interleave with
// content frames at any point.
func (h *AgentChatHandler) runHeartbeat(writer SSEWriter, done <-chan struct{}, endpoint observability.Endpoint) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				// Connection is gone; the stream path will observe the
				// cancelled context and clean up.
				return
			}
			h.metrics.RecordKeepAlive(endpoint)
		case <-done:
			return
		}
	}
}
