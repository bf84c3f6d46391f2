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

// GetPortfolio retrieves a portfolio by ID. Returns (nil, nil) when not found.
func (d *DB) GetPortfolio(ctx context.Context, id int64) (*datatypes.Portfolio, error) {
	query := `SELECT id, name, wallet_address, total_value_usd, daily_change, created_at
	          FROM portfolios WHERE id = ?`
	var p datatypes.Portfolio
	err := sqlscan.Get(ctx, d.db, &p, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &p, nil
}

// GetAllPortfolios retrieves all portfolios ordered by creation time.
func (d *DB) GetAllPortfolios(ctx context.Context) ([]datatypes.Portfolio, error) {
	query := `SELECT id, name, wallet_address, total_value_usd, daily_change, created_at
	          FROM portfolios ORDER BY created_at, id`
	var portfolios []datatypes.Portfolio
	if err := sqlscan.Select(ctx, d.db, &portfolios, query); err != nil {
		return nil, err
	}
	return portfolios, nil
}

// CreatePortfolio inserts a portfolio and sets its generated ID.
func (d *DB) CreatePortfolio(ctx context.Context, p *datatypes.Portfolio) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO portfolios (name, wallet_address, total_value_usd, daily_change, created_at)
	          VALUES (?, ?, ?, ?, ?)`
	res, err := d.db.ExecContext(ctx, query, p.Name, p.WalletAddress, p.TotalValueUsd, p.DailyChange, p.CreatedAt)
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

// UpdatePortfolio updates an existing portfolio's mutable fields.
func (d *DB) UpdatePortfolio(ctx context.Context, p *datatypes.Portfolio) error {
	query := `UPDATE portfolios SET name = ?, wallet_address = ?, total_value_usd = ?, daily_change = ?
	          WHERE id = ?`
	_, err := d.db.ExecContext(ctx, query, p.Name, p.WalletAddress, p.TotalValueUsd, p.DailyChange, p.ID)
	return err
}

// GetHoldingsByPortfolio retrieves holdings for a portfolio, largest value first.
func (d *DB) GetHoldingsByPortfolio(ctx context.Context, portfolioID int64) ([]datatypes.TokenHolding, error) {
	query := `SELECT id, portfolio_id, symbol, name, amount, value_usd, price_usd, change_24h, protocol, created_at
	          FROM token_holdings WHERE portfolio_id = ? ORDER BY CAST(value_usd AS REAL) DESC`
	var holdings []datatypes.TokenHolding
	if err := sqlscan.Select(ctx, d.db, &holdings, query, portfolioID); err != nil {
		return nil, err
	}
	return holdings, nil
}

// CreateHolding inserts a token holding and sets its generated ID.
func (d *DB) CreateHolding(ctx context.Context, h *datatypes.TokenHolding) error {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO token_holdings (portfolio_id, symbol, name, amount, value_usd, price_usd, change_24h, protocol, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := d.db.ExecContext(ctx, query,
		h.PortfolioID, h.Symbol, h.Name, h.Amount, h.ValueUsd, h.PriceUsd, h.Change24h, h.Protocol, h.CreatedAt)
	if err != nil {
		return err
	}
	h.ID, err = res.LastInsertId()
	return err
}

// UpdateHolding updates an existing holding's mutable fields.
func (d *DB) UpdateHolding(ctx context.Context, h *datatypes.TokenHolding) error {
	query := `UPDATE token_holdings SET symbol = ?, name = ?, amount = ?, value_usd = ?, price_usd = ?, change_24h = ?, protocol = ?
	          WHERE id = ?`
	_, err := d.db.ExecContext(ctx, query,
		h.Symbol, h.Name, h.Amount, h.ValueUsd, h.PriceUsd, h.Change24h, h.Protocol, h.ID)
	return err
}

// DeleteHolding removes a holding by ID.
func (d *DB) DeleteHolding(ctx context.Context, id int64) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM token_holdings WHERE id = ?`, id)
	return err
}
