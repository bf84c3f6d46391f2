// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package prices

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/Yasith867/PolyAgent/pkg/validation"
	"github.com/Yasith867/PolyAgent/services/dashboard/store"
)

// DefaultRefreshInterval is how often stored market rows are updated from
// live prices when no interval is configured.
const DefaultRefreshInterval = 60 * time.Second

// Refresher periodically rewrites stored market_data rows with live quotes.
// Rows for symbols CoinGecko cannot quote keep their last stored values.
type Refresher struct {
	store    store.Store
	client   *Client
	interval time.Duration
}

// NewRefresher creates a refresher over the given store and price client.
// A non-positive interval falls back to DefaultRefreshInterval.
func NewRefresher(s store.Store, client *Client, interval time.Duration) *Refresher {
	if s == nil {
		panic("prices: store cannot be nil")
	}
	if client == nil {
		panic("prices: client cannot be nil")
	}
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{store: s, client: client, interval: interval}
}

// Run refreshes once immediately, then on every interval tick until the
// context is cancelled. Intended to run in its own goroutine.
func (r *Refresher) Run(ctx context.Context) {
	slog.Info("Starting market price refresher", "interval", r.interval)

	if err := r.RefreshOnce(ctx); err != nil {
		slog.Warn("Initial market refresh failed", "error", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.RefreshOnce(ctx); err != nil {
				slog.Warn("Market refresh failed", "error", err)
			}
		case <-ctx.Done():
			slog.Info("Stopping market price refresher")
			return
		}
	}
}

// RefreshOnce updates every stored market row that has a live quote.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	rows, err := r.store.GetAllMarketData(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	// The quote map is keyed by uppercase symbol, so stored symbols are
	// normalized once here and used for both the query and the lookup.
	normalized := make([]string, len(rows))
	symbols := make([]string, 0, len(rows))
	for i, row := range rows {
		sym, err := validation.SanitizeSymbol(row.Symbol)
		if err != nil {
			slog.Warn("Skipping market row with invalid symbol", "symbol", row.Symbol, "error", err)
			continue
		}
		normalized[i] = sym
		symbols = append(symbols, sym)
	}
	if len(symbols) == 0 {
		return nil
	}

	quotes, err := r.client.GetPrices(ctx, symbols)
	if err != nil {
		return err
	}

	updated := 0
	for i := range rows {
		if normalized[i] == "" {
			continue
		}
		quote, ok := quotes[normalized[i]]
		if !ok {
			continue
		}
		rows[i].PriceUsd = formatDecimal(quote.PriceUsd)
		rows[i].Change24h = formatDecimal(quote.Change24h)
		rows[i].UpdatedAt = time.Now().UTC()
		if err := r.store.UpsertMarketData(ctx, &rows[i]); err != nil {
			slog.Warn("Failed to update market row", "symbol", rows[i].Symbol, "error", err)
			continue
		}
		updated++
	}

	slog.Debug("Refreshed market rows", "updated", updated, "total", len(rows))
	return nil
}

// formatDecimal renders a float as the decimal string form the store uses.
func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
