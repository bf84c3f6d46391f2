// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Package conversation assembles the grounding context sent to the upstream
// model: a persona prompt enriched with live portfolio state, plus the
// trailing window of chat history.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Yasith867/PolyAgent/services/dashboard/store"
	"github.com/Yasith867/PolyAgent/services/llm"
)

// ErrContextAssembly marks a store failure that prevents reading portfolio
// state at all. Missing or empty data is not an error; each context clause
// degrades to its fallback instead.
var ErrContextAssembly = errors.New("context assembly failed")

// HistoryWindowTurns is how many trailing conversation turns are sent
// upstream after the system prompt. The just-persisted user turn counts
// toward the window.
const HistoryWindowTurns = 10

// topMarketRows caps the market clause at the largest rows by market cap.
const topMarketRows = 5

const personaPrompt = `You are PolyAgent, an advanced AI-powered DeFi portfolio manager specializing in the Polygon blockchain ecosystem. You help users understand their portfolios, analyze market conditions, recommend strategies, and optimize yield.`

const personaGuidance = `You should:
- Provide actionable DeFi insights and recommendations
- Analyze risk levels and suggest diversification
- Recommend yield farming, staking, and liquidity provision strategies on Polygon
- Explain complex DeFi concepts in simple terms
- Reference specific protocols like Uniswap V3, Aave V3, QuickSwap, Curve, and Lido on Polygon
- Consider gas costs and APY when making recommendations
- Be concise but thorough in your responses

When discussing strategies, include:
- Expected APY ranges
- Risk level (low/medium/high)
- Protocol name
- Brief explanation of the strategy`

// Assembler builds upstream message lists from stored portfolio state.
type Assembler struct {
	store store.Store
}

// NewAssembler creates an Assembler backed by the given store.
func NewAssembler(s store.Store) *Assembler {
	if s == nil {
		panic("conversation: store cannot be nil")
	}
	return &Assembler{store: s}
}

// BuildSystemPrompt produces the system prompt for a portfolio. The prompt
// is the persona text plus three context clauses. Each clause falls back to
// a fixed string when its data is missing; only a store read error is fatal
// and is wrapped with ErrContextAssembly.
func (a *Assembler) BuildSystemPrompt(ctx context.Context, portfolioID int64) (string, error) {
	portfolio, err := a.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return "", fmt.Errorf("%w: reading portfolio: %v", ErrContextAssembly, err)
	}
	holdings, err := a.store.GetHoldingsByPortfolio(ctx, portfolioID)
	if err != nil {
		return "", fmt.Errorf("%w: reading holdings: %v", ErrContextAssembly, err)
	}
	market, err := a.store.GetAllMarketData(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: reading market data: %v", ErrContextAssembly, err)
	}

	portfolioClause := "No portfolio data available."
	if portfolio != nil {
		portfolioClause = fmt.Sprintf("Portfolio %q with total value $%s, daily change %s%%.",
			portfolio.Name, portfolio.TotalValueUsd, portfolio.DailyChange)
	}

	holdingsClause := "No token holdings."
	if len(holdings) > 0 {
		parts := make([]string, len(holdings))
		for i, h := range holdings {
			parts[i] = fmt.Sprintf("%s: %s ($%s)", h.Symbol, h.Amount, h.ValueUsd)
		}
		holdingsClause = "Holdings: " + strings.Join(parts, ", ") + "."
	}

	marketClause := ""
	if len(market) > 0 {
		rows := market
		if len(rows) > topMarketRows {
			rows = rows[:topMarketRows]
		}
		parts := make([]string, len(rows))
		for i, m := range rows {
			parts[i] = fmt.Sprintf("%s: $%s (%s%% 24h)", m.Symbol, m.PriceUsd, m.Change24h)
		}
		marketClause = "Market data: " + strings.Join(parts, ", ") + "."
	}

	var b strings.Builder
	b.WriteString(personaPrompt)
	b.WriteString("\n\nCurrent context:\n")
	b.WriteString(portfolioClause)
	b.WriteString("\n")
	b.WriteString(holdingsClause)
	b.WriteString("\n")
	b.WriteString(marketClause)
	b.WriteString("\n\n")
	b.WriteString(personaGuidance)
	return b.String(), nil
}

// BuildMessages assembles the full upstream message list: the system prompt
// followed by the trailing history window in chronological order.
func (a *Assembler) BuildMessages(ctx context.Context, portfolioID int64) ([]llm.Message, error) {
	systemPrompt, err := a.BuildSystemPrompt(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	history, err := a.store.RecentChats(ctx, portfolioID, HistoryWindowTurns)
	if err != nil {
		return nil, fmt.Errorf("%w: reading chat history: %v", ErrContextAssembly, err)
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	return messages, nil
}
