// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package store

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/Yasith867/PolyAgent/services/dashboard/datatypes"
)

const strategyColumns = `id, portfolio_id, name, protocol, apy, risk_level, is_active, steps, created_at`

// GetStrategiesByPortfolio retrieves strategies for a portfolio, highest APY first.
func (d *DB) GetStrategiesByPortfolio(ctx context.Context, portfolioID int64) ([]datatypes.Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE portfolio_id = ? ORDER BY CAST(apy AS REAL) DESC`
	var strategies []datatypes.Strategy
	if err := sqlscan.Select(ctx, d.db, &strategies, query, portfolioID); err != nil {
		return nil, err
	}
	return strategies, nil
}

// GetAllStrategies retrieves all strategies, highest APY first.
func (d *DB) GetAllStrategies(ctx context.Context) ([]datatypes.Strategy, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies ORDER BY CAST(apy AS REAL) DESC`
	var strategies []datatypes.Strategy
	if err := sqlscan.Select(ctx, d.db, &strategies, query); err != nil {
		return nil, err
	}
	return strategies, nil
}

// CreateStrategy inserts a strategy and sets its generated ID.
func (d *DB) CreateStrategy(ctx context.Context, s *datatypes.Strategy) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if len(s.Steps) == 0 {
		s.Steps = []byte(`[]`)
	}

	query := `INSERT INTO strategies (portfolio_id, name, protocol, apy, risk_level, is_active, steps, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := d.db.ExecContext(ctx, query,
		s.PortfolioID, s.Name, s.Protocol, s.Apy, s.RiskLevel, s.IsActive, string(s.Steps), s.CreatedAt)
	if err != nil {
		return err
	}
	s.ID, err = res.LastInsertId()
	return err
}

// UpdateStrategy updates an existing strategy's mutable fields.
func (d *DB) UpdateStrategy(ctx context.Context, s *datatypes.Strategy) error {
	query := `UPDATE strategies SET name = ?, protocol = ?, apy = ?, risk_level = ?, is_active = ?, steps = ?
	          WHERE id = ?`
	_, err := d.db.ExecContext(ctx, query,
		s.Name, s.Protocol, s.Apy, s.RiskLevel, s.IsActive, string(s.Steps), s.ID)
	return err
}
