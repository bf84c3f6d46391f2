// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Package datatypes provides data structures for the dashboard service.
//
// This file contains the persisted domain models. Monetary amounts are kept
// as decimal strings exactly as stored, so values like "15247.83" round-trip
// without float drift. Struct fields carry both `db` tags (scany column
// mapping) and `json` tags (API wire names).
package datatypes

import (
	"encoding/json"
	"time"
)

// Portfolio is a tracked wallet portfolio.
type Portfolio struct {
	ID            int64     `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	WalletAddress string    `db:"wallet_address" json:"walletAddress"`
	TotalValueUsd string    `db:"total_value_usd" json:"totalValueUsd"`
	DailyChange   string    `db:"daily_change" json:"dailyChange"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// TokenHolding is one token position inside a portfolio.
type TokenHolding struct {
	ID          int64     `db:"id" json:"id"`
	PortfolioID int64     `db:"portfolio_id" json:"portfolioId"`
	Symbol      string    `db:"symbol" json:"symbol"`
	Name        string    `db:"name" json:"name"`
	Amount      string    `db:"amount" json:"amount"`
	ValueUsd    string    `db:"value_usd" json:"valueUsd"`
	PriceUsd    string    `db:"price_usd" json:"priceUsd"`
	Change24h   string    `db:"change_24h" json:"change24h"`
	Protocol    string    `db:"protocol" json:"protocol"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// AiInsight is an agent-generated observation about a portfolio.
// Severity is one of "info", "warning", "opportunity".
type AiInsight struct {
	ID          int64     `db:"id" json:"id"`
	PortfolioID int64     `db:"portfolio_id" json:"portfolioId"`
	Title       string    `db:"title" json:"title"`
	Content     string    `db:"content" json:"content"`
	Severity    string    `db:"severity" json:"severity"`
	IsRead      bool      `db:"is_read" json:"isRead"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Strategy is a DeFi yield strategy suggestion.
// Steps is a JSON array of instruction strings, stored verbatim.
type Strategy struct {
	ID          int64           `db:"id" json:"id"`
	PortfolioID int64           `db:"portfolio_id" json:"portfolioId"`
	Name        string          `db:"name" json:"name"`
	Protocol    string          `db:"protocol" json:"protocol"`
	Apy         string          `db:"apy" json:"apy"`
	RiskLevel   string          `db:"risk_level" json:"riskLevel"`
	IsActive    bool            `db:"is_active" json:"isActive"`
	Steps       json.RawMessage `db:"steps" json:"steps"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
}

// ChatMessage is one persisted conversation turn.
// Role is "user" or "assistant".
type ChatMessage struct {
	ID          int64     `db:"id" json:"id"`
	PortfolioID int64     `db:"portfolio_id" json:"portfolioId"`
	Role        string    `db:"role" json:"role"`
	Content     string    `db:"content" json:"content"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// MarketData is one market row, keyed by token symbol.
type MarketData struct {
	ID        int64     `db:"id" json:"id"`
	Symbol    string    `db:"symbol" json:"symbol"`
	Name      string    `db:"name" json:"name"`
	PriceUsd  string    `db:"price_usd" json:"priceUsd"`
	MarketCap string    `db:"market_cap" json:"marketCap"`
	Volume24h string    `db:"volume_24h" json:"volume24h"`
	Change24h string    `db:"change_24h" json:"change24h"`
	Change7d  string    `db:"change_7d" json:"change7d"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
