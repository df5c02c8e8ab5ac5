package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"arena-api/pkg/venue"
)

// MarkPrice returns the current mark price for symbol.
func (c *Client) MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{"symbol": []string{symbol}}
	var resp premiumIndexResponse
	if err := c.doPublic(ctx, "/fapi/v1/premiumIndex", params, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("binance: mark price %s: %w", symbol, err)
	}
	return parseDecimal("mark price", resp.MarkPrice)
}

// Ticker24h returns rolling 24h statistics merged with the current
// top-of-book quote.
func (c *Client) Ticker24h(ctx context.Context, symbol string) (*venue.Ticker24h, error) {
	params := url.Values{"symbol": []string{symbol}}

	var stats ticker24hResponse
	if err := c.doPublic(ctx, "/fapi/v1/ticker/24hr", params, &stats); err != nil {
		return nil, fmt.Errorf("binance: ticker 24h %s: %w", symbol, err)
	}
	var book bookTickerResponse
	if err := c.doPublic(ctx, "/fapi/v1/ticker/bookTicker", params, &book); err != nil {
		return nil, fmt.Errorf("binance: book ticker %s: %w", symbol, err)
	}

	ticker := &venue.Ticker24h{Symbol: symbol}
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"last price", stats.LastPrice, &ticker.LastPrice},
		{"price change percent", stats.PriceChangePercent, &ticker.PriceChangePct},
		{"high price", stats.HighPrice, &ticker.HighPrice},
		{"low price", stats.LowPrice, &ticker.LowPrice},
		{"volume", stats.Volume, &ticker.Volume},
		{"quote volume", stats.QuoteVolume, &ticker.QuoteVolume},
		{"bid price", book.BidPrice, &ticker.BidPrice},
		{"ask price", book.AskPrice, &ticker.AskPrice},
	} {
		d, err := parseDecimal(f.name, f.raw)
		if err != nil {
			return nil, err
		}
		*f.dst = d
	}
	return ticker, nil
}

// Klines returns up to limit recent candles for symbol at the given interval
// (for example "3m" or "4h"), ordered oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]venue.Kline, error) {
	params := url.Values{
		"symbol":   []string{symbol},
		"interval": []string{interval},
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var rows [][]json.RawMessage
	if err := c.doPublic(ctx, "/fapi/v1/klines", params, &rows); err != nil {
		return nil, fmt.Errorf("binance: klines %s %s: %w", symbol, interval, err)
	}

	klines := make([]venue.Kline, 0, len(rows))
	for _, row := range rows {
		k, err := parseKlineRow(row)
		if err != nil {
			return nil, err
		}
		klines = append(klines, k)
	}
	return klines, nil
}

// SymbolFilters returns the trading rules for symbol. The full exchange
// directory is fetched once and cached; a stale cache is refreshed in place
// and served as-is when the refresh fails.
func (c *Client) SymbolFilters(ctx context.Context, symbol string) (*venue.SymbolFilters, error) {
	c.filtersMu.RLock()
	cached, ok := c.filters[symbol]
	fresh := c.clock().Sub(c.filtersLastRef) < c.filtersTTL
	c.filtersMu.RUnlock()
	if ok && fresh {
		return &cached, nil
	}

	if err := c.refreshFilters(ctx); err != nil {
		if ok {
			c.logf("binance: filter refresh failed, serving stale entry for %s: %v", symbol, err)
			return &cached, nil
		}
		return nil, err
	}

	c.filtersMu.RLock()
	defer c.filtersMu.RUnlock()
	refreshed, ok := c.filters[symbol]
	if !ok {
		return nil, fmt.Errorf("binance: filters for %s: %w", symbol, venue.ErrSymbolNotFound)
	}
	return &refreshed, nil
}

func (c *Client) refreshFilters(ctx context.Context) error {
	var resp exchangeInfoResponse
	if err := c.doPublic(ctx, "/fapi/v1/exchangeInfo", nil, &resp); err != nil {
		return fmt.Errorf("binance: exchange info: %w", err)
	}

	filters := make(map[string]venue.SymbolFilters, len(resp.Symbols))
	for _, sym := range resp.Symbols {
		if sym.Status != "TRADING" {
			continue
		}
		entry := venue.SymbolFilters{Symbol: sym.Symbol}
		for _, f := range sym.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				if d, err := decimal.NewFromString(f.TickSize); err == nil {
					entry.PriceTick = d
				}
			case "LOT_SIZE":
				if d, err := decimal.NewFromString(f.StepSize); err == nil {
					entry.QuantityStep = d
				}
			case "MIN_NOTIONAL":
				if d, err := decimal.NewFromString(f.Notional); err == nil {
					entry.MinNotional = d
				}
			}
		}
		filters[sym.Symbol] = entry
	}

	c.filtersMu.Lock()
	c.filters = filters
	c.filtersLastRef = c.clock()
	c.filtersMu.Unlock()
	return nil
}
