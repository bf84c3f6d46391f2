// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/Yasith867/PolyAgent/services/dashboard/datatypes"
)

const marketColumns = `id, symbol, name, price_usd, market_cap, volume_24h, change_24h, change_7d, updated_at`

// GetAllMarketData retrieves all market rows ordered by market cap, largest
// first. This is the ordering used to pick the top symbols for the chat
// context.
func (d *DB) GetAllMarketData(ctx context.Context) ([]datatypes.MarketData, error) {
	query := `SELECT ` + marketColumns + ` FROM market_data ORDER BY CAST(market_cap AS REAL) DESC`
	var rows []datatypes.MarketData
	if err := sqlscan.Select(ctx, d.db, &rows, query); err != nil {
		return nil, err
	}
	return rows, nil
}

// GetMarketDataBySymbol retrieves one market row. Returns (nil, nil) when
// the symbol is unknown.
func (d *DB) GetMarketDataBySymbol(ctx context.Context, symbol string) (*datatypes.MarketData, error) {
	query := `SELECT ` + marketColumns + ` FROM market_data WHERE symbol = ?`
	var m datatypes.MarketData
	err := sqlscan.Get(ctx, d.db, &m, query, symbol)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &m, nil
}

// UpsertMarketData inserts or updates the row for m.Symbol.
func (d *DB) UpsertMarketData(ctx context.Context, m *datatypes.MarketData) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}

	query := `INSERT INTO market_data (symbol, name, price_usd, market_cap, volume_24h, change_24h, change_7d, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	          ON CONFLICT(symbol) DO UPDATE SET
	              name = excluded.name,
	              price_usd = excluded.price_usd,
	              market_cap = excluded.market_cap,
	              volume_24h = excluded.volume_24h,
	              change_24h = excluded.change_24h,
	              change_7d = excluded.change_7d,
	              updated_at = excluded.updated_at`
	_, err := d.db.ExecContext(ctx, query,
		m.Symbol, m.Name, m.PriceUsd, m.MarketCap, m.Volume24h, m.Change24h, m.Change7d, m.UpdatedAt)
	return err
}
