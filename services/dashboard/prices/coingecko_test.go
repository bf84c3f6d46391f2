// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package prices

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yasith867/PolyAgent/services/dashboard/datatypes"
	"github.com/Yasith867/PolyAgent/services/dashboard/store"
)

const simplePriceBody = `{
	"matic-network": {"usd": 1.07, "usd_24h_change": 4.52},
	"weth": {"usd": 3050.12, "usd_24h_change": 2.18},
	"usd-coin": {"usd": 1.0, "usd_24h_change": 0.01}
}`

func newPriceServer(t *testing.T, calls *atomic.Int64, status int, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Contains(t, r.URL.RawQuery, "vs_currencies=usd")
		assert.Contains(t, r.URL.RawQuery, "include_24hr_change=true")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return newClient(srv.URL)
}

func TestGetPrices_FetchAndMap(t *testing.T) {
	var calls atomic.Int64
	client := newPriceServer(t, &calls, http.StatusOK, simplePriceBody)

	quotes, err := client.GetPrices(context.Background(), []string{"MATIC", "WETH", "NOPE"})
	require.NoError(t, err)

	require.Len(t, quotes, 2, "unmapped symbols are absent, not errors")
	assert.InDelta(t, 1.07, quotes["MATIC"].PriceUsd, 1e-9)
	assert.InDelta(t, 4.52, quotes["MATIC"].Change24h, 1e-9)
	assert.InDelta(t, 3050.12, quotes["WETH"].PriceUsd, 1e-9)
}

func TestGetPrices_CacheAvoidsSecondFetch(t *testing.T) {
	var calls atomic.Int64
	client := newPriceServer(t, &calls, http.StatusOK, simplePriceBody)
	ctx := context.Background()

	_, err := client.GetPrices(ctx, []string{"MATIC"})
	require.NoError(t, err)
	_, err = client.GetPrices(ctx, []string{"WETH"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), calls.Load(), "second call within the TTL hits the cache")
}

func TestGetPrices_StaleFallbackOnError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_, _ = w.Write([]byte(simplePriceBody))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()
	client := newClient(srv.URL)
	ctx := context.Background()

	_, err := client.GetPrices(ctx, []string{"MATIC"})
	require.NoError(t, err)

	// Expire the cache, then fail the refetch; stale data is served.
	client.cacheMu.Lock()
	client.fetchedAt = client.fetchedAt.Add(-2 * cacheTTL)
	client.cacheMu.Unlock()

	quotes, err := client.GetPrices(ctx, []string{"MATIC"})
	require.NoError(t, err, "stale cache absorbs the upstream failure")
	assert.InDelta(t, 1.07, quotes["MATIC"].PriceUsd, 1e-9)
}

func TestGetPrices_ErrorWithEmptyCache(t *testing.T) {
	var calls atomic.Int64
	client := newPriceServer(t, &calls, http.StatusInternalServerError, "")

	_, err := client.GetPrices(context.Background(), []string{"MATIC"})
	assert.Error(t, err, "no cache to fall back to")
}

func TestRefreshOnce_UpdatesStoredRows(t *testing.T) {
	var calls atomic.Int64
	client := newPriceServer(t, &calls, http.StatusOK, simplePriceBody)

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()
	require.NoError(t, db.Seed(ctx))

	refresher := NewRefresher(db, client, 0)
	require.NoError(t, refresher.RefreshOnce(ctx))

	matic, err := db.GetMarketDataBySymbol(ctx, "MATIC")
	require.NoError(t, err)
	require.NotNil(t, matic)
	assert.Equal(t, "1.07", matic.PriceUsd)
	assert.Equal(t, "4.52", matic.Change24h)

	// Symbols without a live quote keep their seeded values.
	aave, err := db.GetMarketDataBySymbol(ctx, "AAVE")
	require.NoError(t, err)
	require.NotNil(t, aave)
	assert.Equal(t, "146.40", aave.PriceUsd)
}

func TestRefreshOnce_MixedCaseSymbolRow(t *testing.T) {
	var calls atomic.Int64
	client := newPriceServer(t, &calls, http.StatusOK, simplePriceBody)

	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	row := &datatypes.MarketData{Symbol: "wEth", Name: "Wrapped Ether", PriceUsd: "1.00"}
	require.NoError(t, db.UpsertMarketData(ctx, row))

	refresher := NewRefresher(db, client, 0)
	require.NoError(t, refresher.RefreshOnce(ctx))

	// The stored symbol stays verbatim; the quote lookup is normalized.
	got, err := db.GetMarketDataBySymbol(ctx, "wEth")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "3050.12", got.PriceUsd)
	assert.Equal(t, "2.18", got.Change24h)
}
