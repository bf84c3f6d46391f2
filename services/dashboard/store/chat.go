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

const chatColumns = `id, portfolio_id, role, content, created_at`

// GetChatsByPortfolio retrieves the full conversation for a portfolio in
// chronological order.
func (d *DB) GetChatsByPortfolio(ctx context.Context, portfolioID int64) ([]datatypes.ChatMessage, error) {
	query := `SELECT ` + chatColumns + ` FROM ai_chats WHERE portfolio_id = ? ORDER BY created_at, id`
	var chats []datatypes.ChatMessage
	if err := sqlscan.Select(ctx, d.db, &chats, query, portfolioID); err != nil {
		return nil, err
	}
	return chats, nil
}

// AppendChat persists one conversation turn and sets its generated ID.
func (d *DB) AppendChat(ctx context.Context, m *datatypes.ChatMessage) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO ai_chats (portfolio_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	res, err := d.db.ExecContext(ctx, query, m.PortfolioID, m.Role, m.Content, m.CreatedAt)
	if err != nil {
		return err
	}
	m.ID, err = res.LastInsertId()
	return err
}

// RecentChats retrieves the trailing window of the conversation: the last
// `limit` turns, returned in chronological order. The id tiebreak keeps
// ordering stable for turns persisted within the same timestamp.
func (d *DB) RecentChats(ctx context.Context, portfolioID int64, limit int) ([]datatypes.ChatMessage, error) {
	query := `SELECT ` + chatColumns + ` FROM ai_chats WHERE portfolio_id = ?
	          ORDER BY created_at DESC, id DESC LIMIT ?`
	var chats []datatypes.ChatMessage
	if err := sqlscan.Select(ctx, d.db, &chats, query, portfolioID, limit); err != nil {
		return nil, err
	}

	// Reverse newest-first to chronological.
	for i, j := 0, len(chats)-1; i < j; i, j = i+1, j-1 {
		chats[i], chats[j] = chats[j], chats[i]
	}
	return chats, nil
}
