// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yasith867/PolyAgent/services/dashboard/datatypes"
	"github.com/Yasith867/PolyAgent/services/dashboard/store"
)

func newDashboardRouter(t *testing.T) (*gin.Engine, *store.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := NewDashboardHandler(db)
	router := gin.New()
	router.GET("/health", h.HandleHealth)
	api := router.Group("/api")
	{
		api.GET("/portfolio", h.HandleGetPortfolios)
		api.GET("/portfolio/:id", h.HandleGetPortfolio)
		api.GET("/portfolio/:id/holdings", h.HandleGetHoldings)
		api.GET("/portfolio/:id/insights", h.HandleGetInsights)
		api.GET("/portfolio/:id/strategies", h.HandleGetStrategies)
		api.GET("/portfolio/:id/chats", h.HandleGetChats)
		api.GET("/insights", h.HandleGetAllInsights)
		api.POST("/insights/:id/read", h.HandleMarkInsightRead)
		api.GET("/strategies", h.HandleGetAllStrategies)
		api.GET("/market", h.HandleGetMarketData)
	}
	return router, db
}

func doGet(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleGetPortfolio(t *testing.T) {
	router, db := newDashboardRouter(t)
	require.NoError(t, db.Seed(context.Background()))

	w := doGet(router, "/api/portfolio/1")
	require.Equal(t, http.StatusOK, w.Code)

	var p datatypes.Portfolio
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "Main Portfolio", p.Name)
	assert.Equal(t, "15247.83", p.TotalValueUsd)
}

func TestHandleGetPortfolio_NotFound(t *testing.T) {
	router, _ := newDashboardRouter(t)

	w := doGet(router, "/api/portfolio/99")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetPortfolio_InvalidID(t *testing.T) {
	router, _ := newDashboardRouter(t)

	w := doGet(router, "/api/portfolio/abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetHoldings(t *testing.T) {
	router, db := newDashboardRouter(t)
	require.NoError(t, db.Seed(context.Background()))

	w := doGet(router, "/api/portfolio/1/holdings")
	require.Equal(t, http.StatusOK, w.Code)

	var holdings []datatypes.TokenHolding
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &holdings))
	require.Len(t, holdings, 5)
	assert.Equal(t, "MATIC", holdings[0].Symbol)
}

func TestHandleMarkInsightRead(t *testing.T) {
	router, db := newDashboardRouter(t)
	ctx := context.Background()
	require.NoError(t, db.Seed(ctx))

	insights, err := db.GetInsightsByPortfolio(ctx, 1)
	require.NoError(t, err)
	require.NotEmpty(t, insights)
	target := insights[0]
	require.False(t, target.IsRead)

	req := httptest.NewRequest(http.MethodPost, "/api/insights/"+jsonNumber(target.ID)+"/read", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	updated, err := db.GetInsightsByPortfolio(ctx, 1)
	require.NoError(t, err)
	for _, ins := range updated {
		if ins.ID == target.ID {
			assert.True(t, ins.IsRead)
			return
		}
	}
	t.Fatalf("insight %d not found after update", target.ID)
}

func TestHandleGetMarketData(t *testing.T) {
	router, db := newDashboardRouter(t)
	require.NoError(t, db.Seed(context.Background()))

	w := doGet(router, "/api/market")
	require.Equal(t, http.StatusOK, w.Code)

	var market []datatypes.MarketData
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &market))
	assert.Len(t, market, 8)
}

func TestHandleGetStrategies_JSONSteps(t *testing.T) {
	router, db := newDashboardRouter(t)
	require.NoError(t, db.Seed(context.Background()))

	w := doGet(router, "/api/strategies")
	require.Equal(t, http.StatusOK, w.Code)

	var strategies []datatypes.Strategy
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &strategies))
	require.Len(t, strategies, 5)

	// Steps serialize as a JSON array, not a quoted string.
	var steps []string
	require.NoError(t, json.Unmarshal(strategies[0].Steps, &steps))
	assert.Len(t, steps, 4)
}

func TestHandleHealth(t *testing.T) {
	router, _ := newDashboardRouter(t)

	w := doGet(router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
