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

const insightColumns = `id, portfolio_id, title, content, severity, is_read, created_at`

// GetInsightsByPortfolio retrieves insights for a portfolio, newest first.
func (d *DB) GetInsightsByPortfolio(ctx context.Context, portfolioID int64) ([]datatypes.AiInsight, error) {
	query := `SELECT ` + insightColumns + ` FROM ai_insights WHERE portfolio_id = ? ORDER BY created_at DESC, id DESC`
	var insights []datatypes.AiInsight
	if err := sqlscan.Select(ctx, d.db, &insights, query, portfolioID); err != nil {
		return nil, err
	}
	return insights, nil
}

// GetAllInsights retrieves all insights, newest first.
func (d *DB) GetAllInsights(ctx context.Context) ([]datatypes.AiInsight, error) {
	query := `SELECT ` + insightColumns + ` FROM ai_insights ORDER BY created_at DESC, id DESC`
	var insights []datatypes.AiInsight
	if err := sqlscan.Select(ctx, d.db, &insights, query); err != nil {
		return nil, err
	}
	return insights, nil
}

// CreateInsight inserts an insight and sets its generated ID.
func (d *DB) CreateInsight(ctx context.Context, i *datatypes.AiInsight) error {
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}
	if i.Severity == "" {
		i.Severity = "info"
	}

	query := `INSERT INTO ai_insights (portfolio_id, title, content, severity, is_read, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`
	res, err := d.db.ExecContext(ctx, query, i.PortfolioID, i.Title, i.Content, i.Severity, i.IsRead, i.CreatedAt)
	if err != nil {
		return err
	}
	i.ID, err = res.LastInsertId()
	return err
}

// MarkInsightRead marks an insight as read.
func (d *DB) MarkInsightRead(ctx context.Context, id int64) error {
	_, err := d.db.ExecContext(ctx, `UPDATE ai_insights SET is_read = 1 WHERE id = ?`, id)
	return err
}
