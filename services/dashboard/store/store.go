// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package store

import (
	"context"

	"github.com/Yasith867/PolyAgent/services/dashboard/datatypes"
)

// Store is the persistence contract for the dashboard service.
//
// # Description
//
// Store abstracts all database access so handlers can be tested against
// fakes. Lookup methods return (nil, nil) when the row does not exist;
// list methods return an empty slice. All methods are safe for concurrent
// use.
//
// # Assumptions
//
//   - Contexts are honored for cancellation on every call.
type Store interface {
	// Portfolios
	GetPortfolio(ctx context.Context, id int64) (*datatypes.Portfolio, error)
	GetAllPortfolios(ctx context.Context) ([]datatypes.Portfolio, error)
	CreatePortfolio(ctx context.Context, p *datatypes.Portfolio) error
	UpdatePortfolio(ctx context.Context, p *datatypes.Portfolio) error

	// Token holdings
	GetHoldingsByPortfolio(ctx context.Context, portfolioID int64) ([]datatypes.TokenHolding, error)
	CreateHolding(ctx context.Context, h *datatypes.TokenHolding) error
	UpdateHolding(ctx context.Context, h *datatypes.TokenHolding) error
	DeleteHolding(ctx context.Context, id int64) error

	// AI insights
	GetInsightsByPortfolio(ctx context.Context, portfolioID int64) ([]datatypes.AiInsight, error)
	GetAllInsights(ctx context.Context) ([]datatypes.AiInsight, error)
	CreateInsight(ctx context.Context, i *datatypes.AiInsight) error
	MarkInsightRead(ctx context.Context, id int64) error

	// Strategies
	GetStrategiesByPortfolio(ctx context.Context, portfolioID int64) ([]datatypes.Strategy, error)
	GetAllStrategies(ctx context.Context) ([]datatypes.Strategy, error)
	CreateStrategy(ctx context.Context, s *datatypes.Strategy) error
	UpdateStrategy(ctx context.Context, s *datatypes.Strategy) error

	// Conversation turns
	GetChatsByPortfolio(ctx context.Context, portfolioID int64) ([]datatypes.ChatMessage, error)
	AppendChat(ctx context.Context, m *datatypes.ChatMessage) error
	RecentChats(ctx context.Context, portfolioID int64, limit int) ([]datatypes.ChatMessage, error)

	// Market data
	GetAllMarketData(ctx context.Context) ([]datatypes.MarketData, error)
	GetMarketDataBySymbol(ctx context.Context, symbol string) (*datatypes.MarketData, error)
	UpsertMarketData(ctx context.Context, m *datatypes.MarketData) error

	// Seed loads the demo dataset when the portfolios table is empty.
	Seed(ctx context.Context) error

	Close() error
}

// Compile-time check that DB satisfies Store.
var _ Store = (*DB)(nil)
