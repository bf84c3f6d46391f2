// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// Package prices fetches live token prices from CoinGecko with a short
// in-memory cache and a stale-data fallback, so a flaky upstream degrades
// to slightly old prices instead of errors.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// coinGeckoIDs maps Polygon-ecosystem token symbols to CoinGecko asset IDs.
var coinGeckoIDs = map[string]string{
	"MATIC": "matic-network",
	"USDC":  "usd-coin",
	"USDT":  "tether",
	"WETH":  "weth",
	"WBTC":  "wrapped-bitcoin",
	"AAVE":  "aave",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
	"QUICK": "quickswap",
	"DAI":   "dai",
	"CRV":   "curve-dao-token",
}

const (
	defaultBaseURL = "https://api.coingecko.com/api/v3"

	// cacheTTL matches the upstream guidance for the free simple/price tier.
	cacheTTL = 60 * time.Second

	// CoinGecko's free tier allows roughly 10-30 calls/min. One request
	// every 6 seconds with a small burst stays safely inside that.
	requestsPerMinute = 10
)

// Quote is one token's live market data.
type Quote struct {
	PriceUsd  float64
	Change24h float64
}

// Client fetches spot prices from CoinGecko.
//
// Concurrency behavior: concurrent callers during a cache miss are
// collapsed into one upstream request (singleflight), and upstream calls
// are rate limited client-side.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	group      singleflight.Group

	cacheMu   sync.RWMutex
	cache     map[string]Quote
	fetchedAt time.Time
}

// NewClient creates a CoinGecko client with the default endpoint.
func NewClient() *Client {
	return newClient(defaultBaseURL)
}

func newClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 2),
	}
}

// KnownSymbols returns the symbols this client can quote.
func KnownSymbols() []string {
	symbols := make([]string, 0, len(coinGeckoIDs))
	for sym := range coinGeckoIDs {
		symbols = append(symbols, sym)
	}
	return symbols
}

// GetPrices returns quotes for the requested symbols. Symbols without a
// CoinGecko mapping are silently absent from the result. Cached quotes are
// served for cacheTTL; on a fetch error, stale cached quotes are returned
// instead when any exist.
func (c *Client) GetPrices(ctx context.Context, symbols []string) (map[string]Quote, error) {
	cached, age := c.snapshotCache()
	if cached != nil && age < cacheTTL {
		return filterQuotes(cached, symbols), nil
	}

	// Collapse concurrent cache misses into one upstream fetch.
	result, err, _ := c.group.Do("simple_price", func() (any, error) {
		return c.fetchAll(ctx)
	})
	if err != nil {
		if cached != nil {
			slog.Warn("CoinGecko fetch failed, serving stale prices",
				"error", err, "age", age.Round(time.Second))
			return filterQuotes(cached, symbols), nil
		}
		return nil, err
	}

	return filterQuotes(result.(map[string]Quote), symbols), nil
}

// fetchAll retrieves quotes for every known symbol in one batch request and
// refreshes the cache.
func (c *Client) fetchAll(ctx context.Context) (map[string]Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(coinGeckoIDs))
	for _, id := range coinGeckoIDs {
		ids = append(ids, id)
	}
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd&include_24hr_change=true",
		c.baseURL, strings.Join(ids, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building CoinGecko request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("CoinGecko request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CoinGecko returned status %d", resp.StatusCode)
	}

	var payload map[string]struct {
		Usd          float64 `json:"usd"`
		Usd24hChange float64 `json:"usd_24h_change"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding CoinGecko response: %w", err)
	}

	quotes := make(map[string]Quote, len(coinGeckoIDs))
	for sym, id := range coinGeckoIDs {
		entry, ok := payload[id]
		if !ok {
			continue
		}
		quotes[sym] = Quote{PriceUsd: entry.Usd, Change24h: entry.Usd24hChange}
	}

	c.storeCache(quotes)
	slog.Debug("Refreshed CoinGecko price cache", "quotes", len(quotes))
	return quotes, nil
}

func (c *Client) snapshotCache() (map[string]Quote, time.Duration) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	if c.cache == nil {
		return nil, 0
	}
	return c.cache, time.Since(c.fetchedAt)
}

func (c *Client) storeCache(quotes map[string]Quote) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	c.cache = quotes
	c.fetchedAt = time.Now()
}

func filterQuotes(all map[string]Quote, symbols []string) map[string]Quote {
	if symbols == nil {
		out := make(map[string]Quote, len(all))
		for k, v := range all {
			out[k] = v
		}
		return out
	}
	out := make(map[string]Quote, len(symbols))
	for _, sym := range symbols {
		if q, ok := all[strings.ToUpper(sym)]; ok {
			out[strings.ToUpper(sym)] = q
		}
	}
	return out
}
