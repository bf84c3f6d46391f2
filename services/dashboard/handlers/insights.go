// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// This file implements the on-demand analysis endpoint: a non-streaming
// completion over the portfolio's holdings that is persisted as an insight.

package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Yasith867/PolyAgent/services/dashboard/datatypes"
	"github.com/Yasith867/PolyAgent/services/dashboard/observability"
	"github.com/Yasith867/PolyAgent/services/dashboard/store"
	"github.com/Yasith867/PolyAgent/services/llm"
)

// maxAnalysisTokens caps the non-streaming analysis completion.
const maxAnalysisTokens = 512

const analystSystemPrompt = "You are a DeFi analyst. Provide concise, actionable insights."

// AnalyzeHandler serves POST /api/ai-agent/analyze.
type AnalyzeHandler struct {
	store     store.Store
	llmClient llm.LLMClient
	metrics   *observability.StreamingMetrics
}

// NewAnalyzeHandler creates the analysis handler. Panics on nil dependencies.
func NewAnalyzeHandler(s store.Store, client llm.LLMClient, metrics *observability.StreamingMetrics) *AnalyzeHandler {
	if s == nil {
		panic("handlers: store cannot be nil")
	}
	if client == nil {
		panic("handlers: llm client cannot be nil")
	}
	if metrics == nil {
		panic("handlers: metrics cannot be nil")
	}
	return &AnalyzeHandler{store: s, llmClient: client, metrics: metrics}
}

// HandleAnalyze handles POST /api/ai-agent/analyze.
//
// Runs a non-streaming completion over the portfolio's current state and
// persists the result as an insight: "Risk Assessment" with severity
// warning for risk analyses, "Yield Opportunities" with severity
// opportunity for yield analyses.
func (h *AnalyzeHandler) HandleAnalyze(c *gin.Context) {
	ctx := c.Request.Context()
	endpoint := observability.EndpointAgentAnalyze

	var req datatypes.AnalyzeRequest
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

	prompt, err := h.buildAnalysisPrompt(c, &req)
	if err != nil {
		slog.Error("Failed to read portfolio state for analysis", "error", err, "portfolio_id", req.PortfolioID)
		h.metrics.RecordError(endpoint, observability.ErrorCodeStoreError)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate insight"})
		return
	}

	maxTokens := maxAnalysisTokens
	content, err := h.llmClient.Generate(ctx,
		[]llm.Message{
			{Role: "system", Content: analystSystemPrompt},
			{Role: "user", Content: prompt},
		},
		llm.GenerationParams{MaxTokens: &maxTokens},
	)
	if err != nil {
		slog.Error("Analysis generation failed", "error", err, "analysis_type", req.AnalysisType)
		h.metrics.RecordError(endpoint, observability.ErrorCodeLLMError)
		h.metrics.RecordRequest(endpoint, false)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate insight"})
		return
	}

	insight := &datatypes.AiInsight{
		PortfolioID: req.PortfolioID,
		Title:       "Yield Opportunities",
		Severity:    "opportunity",
		Content:     content,
	}
	if req.AnalysisType == "risk" {
		insight.Title = "Risk Assessment"
		insight.Severity = "warning"
	}

	if err := h.store.CreateInsight(ctx, insight); err != nil {
		slog.Error("Failed to persist insight", "error", err, "portfolio_id", req.PortfolioID)
		h.metrics.RecordError(endpoint, observability.ErrorCodeStoreError)
		h.metrics.RecordRequest(endpoint, false)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate insight"})
		return
	}

	h.metrics.RecordRequest(endpoint, true)
	c.JSON(http.StatusOK, insight)
}

// buildAnalysisPrompt renders the user prompt for the requested analysis
// type from the portfolio's stored state.
func (h *AnalyzeHandler) buildAnalysisPrompt(c *gin.Context, req *datatypes.AnalyzeRequest) (string, error) {
	ctx := c.Request.Context()

	if req.AnalysisType == "risk" {
		holdings, err := h.store.GetHoldingsByPortfolio(ctx, req.PortfolioID)
		if err != nil {
			return "", err
		}
		parts := make([]string, len(holdings))
		for i, holding := range holdings {
			parts[i] = fmt.Sprintf("%s: $%s", holding.Symbol, holding.ValueUsd)
		}
		return fmt.Sprintf(
			"Analyze the risk level of a portfolio with these holdings: %s. Provide a brief risk assessment.",
			strings.Join(parts, ", ")), nil
	}

	portfolio, err := h.store.GetPortfolio(ctx, req.PortfolioID)
	if err != nil {
		return "", err
	}
	totalValue := "0"
	if portfolio != nil {
		totalValue = portfolio.TotalValueUsd
	}
	return fmt.Sprintf(
		"Identify yield opportunities for a portfolio on Polygon with value $%s. Suggest 2-3 specific DeFi strategies.",
		totalValue), nil
}
