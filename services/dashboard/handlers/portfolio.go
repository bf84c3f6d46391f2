// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// This file implements the read-mostly dashboard API: portfolios, holdings,
// insights, strategies, market data, and chat history.

package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Yasith867/PolyAgent/services/dashboard/store"
)

// DashboardHandler serves the non-streaming dashboard endpoints.
type DashboardHandler struct {
	store store.Store
}

// NewDashboardHandler creates the dashboard CRUD handler.
func NewDashboardHandler(s store.Store) *DashboardHandler {
	if s == nil {
		panic("handlers: store cannot be nil")
	}
	return &DashboardHandler{store: s}
}

// pathID parses the :id path parameter. Writes a 400 response and returns
// false when the parameter is not a positive integer.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return id, true
}

// HandleGetPortfolios handles GET /api/portfolio.
func (h *DashboardHandler) HandleGetPortfolios(c *gin.Context) {
	portfolios, err := h.store.GetAllPortfolios(c.Request.Context())
	if err != nil {
		slog.Error("Failed to fetch portfolios", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch portfolios"})
		return
	}
	c.JSON(http.StatusOK, portfolios)
}

// HandleGetPortfolio handles GET /api/portfolio/:id.
func (h *DashboardHandler) HandleGetPortfolio(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	portfolio, err := h.store.GetPortfolio(c.Request.Context(), id)
	if err != nil {
		slog.Error("Failed to fetch portfolio", "error", err, "portfolio_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch portfolio"})
		return
	}
	if portfolio == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Portfolio not found"})
		return
	}
	c.JSON(http.StatusOK, portfolio)
}

// HandleGetHoldings handles GET /api/portfolio/:id/holdings.
func (h *DashboardHandler) HandleGetHoldings(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	holdings, err := h.store.GetHoldingsByPortfolio(c.Request.Context(), id)
	if err != nil {
		slog.Error("Failed to fetch holdings", "error", err, "portfolio_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch holdings"})
		return
	}
	c.JSON(http.StatusOK, holdings)
}

// HandleGetAllInsights handles GET /api/insights.
func (h *DashboardHandler) HandleGetAllInsights(c *gin.Context) {
	insights, err := h.store.GetAllInsights(c.Request.Context())
	if err != nil {
		slog.Error("Failed to fetch insights", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch insights"})
		return
	}
	c.JSON(http.StatusOK, insights)
}

// HandleGetInsights handles GET /api/portfolio/:id/insights.
func (h *DashboardHandler) HandleGetInsights(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	insights, err := h.store.GetInsightsByPortfolio(c.Request.Context(), id)
	if err != nil {
		slog.Error("Failed to fetch insights", "error", err, "portfolio_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch insights"})
		return
	}
	c.JSON(http.StatusOK, insights)
}

// HandleMarkInsightRead handles POST /api/insights/:id/read.
func (h *DashboardHandler) HandleMarkInsightRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.store.MarkInsightRead(c.Request.Context(), id); err != nil {
		slog.Error("Failed to mark insight read", "error", err, "insight_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update insight"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// HandleGetAllStrategies handles GET /api/strategies.
func (h *DashboardHandler) HandleGetAllStrategies(c *gin.Context) {
	strategies, err := h.store.GetAllStrategies(c.Request.Context())
	if err != nil {
		slog.Error("Failed to fetch strategies", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch strategies"})
		return
	}
	c.JSON(http.StatusOK, strategies)
}

// HandleGetStrategies handles GET /api/portfolio/:id/strategies.
func (h *DashboardHandler) HandleGetStrategies(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	strategies, err := h.store.GetStrategiesByPortfolio(c.Request.Context(), id)
	if err != nil {
		slog.Error("Failed to fetch strategies", "error", err, "portfolio_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch strategies"})
		return
	}
	c.JSON(http.StatusOK, strategies)
}

// HandleGetMarketData handles GET /api/market.
func (h *DashboardHandler) HandleGetMarketData(c *gin.Context) {
	market, err := h.store.GetAllMarketData(c.Request.Context())
	if err != nil {
		slog.Error("Failed to fetch market data", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch market data"})
		return
	}
	c.JSON(http.StatusOK, market)
}

// HandleGetChats handles GET /api/portfolio/:id/chats.
func (h *DashboardHandler) HandleGetChats(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	chats, err := h.store.GetChatsByPortfolio(c.Request.Context(), id)
	if err != nil {
		slog.Error("Failed to fetch chats", "error", err, "portfolio_id", id)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch chats"})
		return
	}
	c.JSON(http.StatusOK, chats)
}

// HandleHealth handles GET /health.
func (h *DashboardHandler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
