// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Yasith867/PolyAgent/services/dashboard/handlers"
	"github.com/Yasith867/PolyAgent/services/dashboard/observability"
	"github.com/Yasith867/PolyAgent/services/dashboard/store"
	"github.com/Yasith867/PolyAgent/services/llm"
)

// SetupRoutes registers the full dashboard API on the router.
func SetupRoutes(router *gin.Engine, s store.Store, llmClient llm.LLMClient,
	metrics *observability.StreamingMetrics) {

	dashboard := handlers.NewDashboardHandler(s)
	chat := handlers.NewAgentChatHandler(s, llmClient, metrics)
	analyze := handlers.NewAnalyzeHandler(s, llmClient, metrics)

	router.GET("/health", dashboard.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/portfolio", dashboard.HandleGetPortfolios)
		api.GET("/portfolio/:id", dashboard.HandleGetPortfolio)
		api.GET("/portfolio/:id/holdings", dashboard.HandleGetHoldings)
		api.GET("/portfolio/:id/insights", dashboard.HandleGetInsights)
		api.GET("/portfolio/:id/strategies", dashboard.HandleGetStrategies)
		api.GET("/portfolio/:id/chats", dashboard.HandleGetChats)

		api.GET("/insights", dashboard.HandleGetAllInsights)
		api.POST("/insights/:id/read", dashboard.HandleMarkInsightRead)
		api.GET("/strategies", dashboard.HandleGetAllStrategies)
		api.GET("/market", dashboard.HandleGetMarketData)

		api.POST("/ai-chat", chat.HandleAgentChat)
		api.POST("/ai-agent/analyze", analyze.HandleAnalyze)
	}
}
