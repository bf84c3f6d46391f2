// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yasith867/PolyAgent/services/dashboard/datatypes"
)

// newTestDB opens an in-memory store with migrations applied.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err, "opening in-memory store")
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSeed_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Seed(ctx))
	require.NoError(t, db.Seed(ctx), "second seed should be a no-op")

	portfolios, err := db.GetAllPortfolios(ctx)
	require.NoError(t, err)
	require.Len(t, portfolios, 1, "seed must not duplicate the portfolio")

	p := portfolios[0]
	assert.Equal(t, "Main Portfolio", p.Name)
	assert.Equal(t, "15247.83", p.TotalValueUsd)
	assert.Equal(t, "3.24", p.DailyChange)

	holdings, err := db.GetHoldingsByPortfolio(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, holdings, 5)
	assert.Equal(t, "MATIC", holdings[0].Symbol, "holdings ordered by value, MATIC first")
	assert.Equal(t, "5337.50", holdings[0].ValueUsd)

	insights, err := db.GetInsightsByPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, insights, 4)

	strategies, err := db.GetAllStrategies(ctx)
	require.NoError(t, err)
	require.Len(t, strategies, 5)
	assert.Equal(t, "WETH-MATIC Concentrated LP", strategies[0].Name, "strategies ordered by APY")

	market, err := db.GetAllMarketData(ctx)
	require.NoError(t, err)
	require.Len(t, market, 8)
	assert.Equal(t, "WETH", market[0].Symbol, "market rows ordered by market cap")
}

func TestGetPortfolio_NotFound(t *testing.T) {
	db := newTestDB(t)

	p, err := db.GetPortfolio(context.Background(), 404)
	require.NoError(t, err, "missing portfolio is not an error")
	assert.Nil(t, p)
}

func TestAppendChat_AndRecentWindow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p := &datatypes.Portfolio{Name: "Test", WalletAddress: "0xabc"}
	require.NoError(t, db.CreatePortfolio(ctx, p))

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msg := &datatypes.ChatMessage{
			PortfolioID: p.ID,
			Role:        role,
			Content:     fmt.Sprintf("turn %d", i),
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, db.AppendChat(ctx, msg))
		assert.NotZero(t, msg.ID, "AppendChat should set the generated ID")
	}

	all, err := db.GetChatsByPortfolio(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, all, 12)
	assert.Equal(t, "turn 0", all[0].Content, "full history is chronological")

	recent, err := db.RecentChats(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 10, "window is capped at the limit")
	assert.Equal(t, "turn 2", recent[0].Content, "oldest two turns fall out of the window")
	assert.Equal(t, "turn 11", recent[9].Content, "newest turn is last (chronological)")
}

func TestRecentChats_SameTimestampOrdering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p := &datatypes.Portfolio{Name: "Test", WalletAddress: "0xabc"}
	require.NoError(t, db.CreatePortfolio(ctx, p))

	// All turns share one timestamp; insertion order must still hold.
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.AppendChat(ctx, &datatypes.ChatMessage{
			PortfolioID: p.ID,
			Role:        "user",
			Content:     fmt.Sprintf("turn %d", i),
			CreatedAt:   at,
		}))
	}

	recent, err := db.RecentChats(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	for i, m := range recent {
		assert.Equal(t, fmt.Sprintf("turn %d", i), m.Content)
	}
}

func TestMarkInsightRead(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p := &datatypes.Portfolio{Name: "Test", WalletAddress: "0xabc"}
	require.NoError(t, db.CreatePortfolio(ctx, p))

	insight := &datatypes.AiInsight{PortfolioID: p.ID, Title: "t", Content: "c"}
	require.NoError(t, db.CreateInsight(ctx, insight))
	assert.Equal(t, "info", insight.Severity, "severity defaults to info")

	require.NoError(t, db.MarkInsightRead(ctx, insight.ID))

	insights, err := db.GetInsightsByPortfolio(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.True(t, insights[0].IsRead)
}

func TestUpsertMarketData(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	row := &datatypes.MarketData{Symbol: "MATIC", Name: "Polygon", PriceUsd: "1.00"}
	require.NoError(t, db.UpsertMarketData(ctx, row))

	row.PriceUsd = "1.10"
	require.NoError(t, db.UpsertMarketData(ctx, row), "second upsert updates in place")

	got, err := db.GetMarketDataBySymbol(ctx, "MATIC")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "1.10", got.PriceUsd)

	missing, err := db.GetMarketDataBySymbol(ctx, "NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStrategySteps_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p := &datatypes.Portfolio{Name: "Test", WalletAddress: "0xabc"}
	require.NoError(t, db.CreatePortfolio(ctx, p))

	s := &datatypes.Strategy{
		PortfolioID: p.ID,
		Name:        "LP",
		Apy:         "10.00",
		RiskLevel:   "medium",
		IsActive:    true,
		Steps:       mustStepsJSON("step one", "step two"),
	}
	require.NoError(t, db.CreateStrategy(ctx, s))

	strategies, err := db.GetStrategiesByPortfolio(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, strategies, 1)
	assert.JSONEq(t, `["step one","step two"]`, string(strategies[0].Steps))
	assert.True(t, strategies[0].IsActive)
}
