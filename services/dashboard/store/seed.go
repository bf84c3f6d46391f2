// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Yasith867/PolyAgent/services/dashboard/datatypes"
)

// Seed loads the demo dataset: one portfolio with five holdings, four
// insights, five strategies, and eight market rows. A no-op when any
// portfolio already exists, so repeated starts do not duplicate data.
func (d *DB) Seed(ctx context.Context) error {
	existing, err := d.GetAllPortfolios(ctx)
	if err != nil {
		return fmt.Errorf("seed: checking existing portfolios: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("Database already seeded, skipping")
		return nil
	}

	slog.Info("Seeding database")

	portfolio := &datatypes.Portfolio{
		Name:          "Main Portfolio",
		WalletAddress: "0x742d35Cc6634C0532925a3b844Bc9e7595f4a2E",
		TotalValueUsd: "15247.83",
		DailyChange:   "3.24",
	}
	if err := d.CreatePortfolio(ctx, portfolio); err != nil {
		return fmt.Errorf("seed: creating portfolio: %w", err)
	}

	holdings := []datatypes.TokenHolding{
		{PortfolioID: portfolio.ID, Symbol: "MATIC", Name: "Polygon", Amount: "5000", ValueUsd: "5337.50", PriceUsd: "1.0675", Change24h: "4.52", Protocol: "Native"},
		{PortfolioID: portfolio.ID, Symbol: "WETH", Name: "Wrapped Ether", Amount: "1.25", ValueUsd: "3811.96", PriceUsd: "3049.57", Change24h: "2.18", Protocol: "Wrapped"},
		{PortfolioID: portfolio.ID, Symbol: "USDC", Name: "USD Coin", Amount: "3050", ValueUsd: "3050.00", PriceUsd: "1.00", Change24h: "0.01", Protocol: "Circle"},
		{PortfolioID: portfolio.ID, Symbol: "AAVE", Name: "Aave", Amount: "12.5", ValueUsd: "1830.00", PriceUsd: "146.40", Change24h: "5.72", Protocol: "Aave"},
		{PortfolioID: portfolio.ID, Symbol: "LINK", Name: "Chainlink", Amount: "85", ValueUsd: "1218.37", PriceUsd: "14.33", Change24h: "-1.24", Protocol: "Oracle"},
	}
	for i := range holdings {
		if err := d.CreateHolding(ctx, &holdings[i]); err != nil {
			return fmt.Errorf("seed: creating holding %s: %w", holdings[i].Symbol, err)
		}
	}

	insights := []datatypes.AiInsight{
		{
			PortfolioID: portfolio.ID,
			Title:       "High Yield Opportunity Detected",
			Content:     "MATIC-USDC pool on QuickSwap is offering 18.5% APY with low impermanent loss risk. Consider allocating 10-15% of your portfolio.",
			Severity:    "opportunity",
		},
		{
			PortfolioID: portfolio.ID,
			Title:       "MATIC Momentum Building",
			Content:     "Technical indicators show bullish momentum for MATIC. RSI at 58, MACD crossing above signal line. Consider holding current position.",
			Severity:    "info",
		},
		{
			PortfolioID: portfolio.ID,
			Title:       "Portfolio Concentration Warning",
			Content:     "35% of your portfolio is in MATIC. Consider diversifying into stablecoins or other blue-chip assets to reduce volatility risk.",
			Severity:    "warning",
		},
		{
			PortfolioID: portfolio.ID,
			Title:       "Aave V3 Lending Strategy",
			Content:     "Your USDC holdings could earn 6.2% APY on Aave V3 Polygon with minimal risk. This is higher than current USDC yields on other protocols.",
			Severity:    "opportunity",
		},
	}
	for i := range insights {
		if err := d.CreateInsight(ctx, &insights[i]); err != nil {
			return fmt.Errorf("seed: creating insight %q: %w", insights[i].Title, err)
		}
	}

	strategies := []datatypes.Strategy{
		{
			PortfolioID: portfolio.ID,
			Name:        "USDC Lending on Aave V3",
			Protocol:    "Aave V3",
			Apy:         "6.20",
			RiskLevel:   "low",
			IsActive:    true,
			Steps:       mustStepsJSON("Connect wallet to Aave V3", "Navigate to Supply section", "Select USDC and enter amount", "Confirm transaction"),
		},
		{
			PortfolioID: portfolio.ID,
			Name:        "MATIC-USDC LP on QuickSwap",
			Protocol:    "QuickSwap",
			Apy:         "18.50",
			RiskLevel:   "medium",
			IsActive:    true,
			Steps:       mustStepsJSON("Go to QuickSwap pools", "Select MATIC-USDC pair", "Choose price range", "Add liquidity"),
		},
		{
			PortfolioID: portfolio.ID,
			Name:        "wstETH Staking via Lido",
			Protocol:    "Lido",
			Apy:         "4.20",
			RiskLevel:   "low",
			IsActive:    false,
			Steps:       mustStepsJSON("Bridge ETH to Polygon", "Visit Lido on Polygon", "Stake ETH for wstETH", "Use wstETH in DeFi"),
		},
		{
			PortfolioID: portfolio.ID,
			Name:        "WETH-MATIC Concentrated LP",
			Protocol:    "Uniswap V3",
			Apy:         "32.40",
			RiskLevel:   "high",
			IsActive:    false,
			Steps:       mustStepsJSON("Access Uniswap V3 on Polygon", "Select WETH-MATIC pool", "Set tight price range", "Monitor and rebalance regularly"),
		},
		{
			PortfolioID: portfolio.ID,
			Name:        "Curve stablecoin yield",
			Protocol:    "Curve",
			Apy:         "8.50",
			RiskLevel:   "low",
			IsActive:    false,
			Steps:       mustStepsJSON("Go to Curve Finance", "Select aave pool on Polygon", "Deposit USDC/DAI/USDT", "Stake LP tokens for CRV"),
		},
	}
	for i := range strategies {
		if err := d.CreateStrategy(ctx, &strategies[i]); err != nil {
			return fmt.Errorf("seed: creating strategy %q: %w", strategies[i].Name, err)
		}
	}

	market := []datatypes.MarketData{
		{Symbol: "MATIC", Name: "Polygon", PriceUsd: "1.0675", MarketCap: "9870000000", Volume24h: "456000000", Change24h: "4.52", Change7d: "12.34"},
		{Symbol: "WETH", Name: "Wrapped Ether", PriceUsd: "3049.57", MarketCap: "366000000000", Volume24h: "12500000000", Change24h: "2.18", Change7d: "8.45"},
		{Symbol: "USDC", Name: "USD Coin", PriceUsd: "1.00", MarketCap: "25000000000", Volume24h: "5200000000", Change24h: "0.01", Change7d: "0.02"},
		{Symbol: "AAVE", Name: "Aave", PriceUsd: "146.40", MarketCap: "2180000000", Volume24h: "198000000", Change24h: "5.72", Change7d: "15.23"},
		{Symbol: "LINK", Name: "Chainlink", PriceUsd: "14.33", MarketCap: "8420000000", Volume24h: "423000000", Change24h: "-1.24", Change7d: "3.56"},
		{Symbol: "UNI", Name: "Uniswap", PriceUsd: "9.82", MarketCap: "5870000000", Volume24h: "156000000", Change24h: "3.45", Change7d: "7.89"},
		{Symbol: "CRV", Name: "Curve DAO", PriceUsd: "0.78", MarketCap: "720000000", Volume24h: "89000000", Change24h: "2.34", Change7d: "-4.21"},
		{Symbol: "QI", Name: "Qi Dao", PriceUsd: "0.0234", MarketCap: "12000000", Volume24h: "890000", Change24h: "8.92", Change7d: "22.45"},
	}
	for i := range market {
		if err := d.UpsertMarketData(ctx, &market[i]); err != nil {
			return fmt.Errorf("seed: upserting market row %s: %w", market[i].Symbol, err)
		}
	}

	slog.Info("Database seeded successfully",
		"holdings", len(holdings),
		"insights", len(insights),
		"strategies", len(strategies),
		"market_rows", len(market),
	)
	return nil
}

// mustStepsJSON marshals step strings to the stored JSON array form.
func mustStepsJSON(steps ...string) json.RawMessage {
	data, err := json.Marshal(steps)
	if err != nil {
		panic(err) // static input, cannot fail
	}
	return data
}
