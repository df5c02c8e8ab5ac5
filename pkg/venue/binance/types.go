package binance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"arena-api/pkg/venue"
)

// Wire DTOs for the futures REST API. Prices and quantities arrive as JSON
// strings and are decoded into decimals at the edge.

type premiumIndexResponse struct {
	Symbol    string `json:"symbol"`
	MarkPrice string `json:"markPrice"`
	Time      int64  `json:"time"`
}

type ticker24hResponse struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
}

type bookTickerResponse struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

type exchangeInfoResponse struct {
	Symbols []exchangeInfoSymbol `json:"symbols"`
}

type exchangeInfoSymbol struct {
	Symbol  string               `json:"symbol"`
	Status  string               `json:"status"`
	Filters []exchangeInfoFilter `json:"filters"`
}

type exchangeInfoFilter struct {
	FilterType string `json:"filterType"`
	TickSize   string `json:"tickSize"`
	StepSize   string `json:"stepSize"`
	Notional   string `json:"notional"`
}

type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Status        string `json:"status"`
	AvgPrice      string `json:"avgPrice"`
	ExecutedQty   string `json:"executedQty"`
	CumQuote      string `json:"cumQuote"`
	ReduceOnly    bool   `json:"reduceOnly"`
	UpdateTime    int64  `json:"updateTime"`
}

type positionRiskResponse struct {
	Symbol       string `json:"symbol"`
	PositionAmt  string `json:"positionAmt"`
	EntryPrice   string `json:"entryPrice"`
	Leverage     string `json:"leverage"`
	PositionSide string `json:"positionSide"`
}

type positionModeResponse struct {
	DualSidePosition bool `json:"dualSidePosition"`
}

type leverageResponse struct {
	Symbol   string `json:"symbol"`
	Leverage int    `json:"leverage"`
}

type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

// parseKlineRow decodes one candle row. The wire format is a mixed array:
// [openTime, open, high, low, close, volume, closeTime, ...].
func parseKlineRow(raw []json.RawMessage) (venue.Kline, error) {
	if len(raw) < 7 {
		return venue.Kline{}, fmt.Errorf("binance: kline row has %d fields, want at least 7", len(raw))
	}
	var openTime, closeTime int64
	if err := json.Unmarshal(raw[0], &openTime); err != nil {
		return venue.Kline{}, fmt.Errorf("binance: kline open time: %w", err)
	}
	if err := json.Unmarshal(raw[6], &closeTime); err != nil {
		return venue.Kline{}, fmt.Errorf("binance: kline close time: %w", err)
	}

	fields := make([]decimal.Decimal, 5)
	for i := 0; i < 5; i++ {
		var s string
		if err := json.Unmarshal(raw[i+1], &s); err != nil {
			return venue.Kline{}, fmt.Errorf("binance: kline field %d: %w", i+1, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return venue.Kline{}, fmt.Errorf("binance: kline field %d value %q: %w", i+1, s, err)
		}
		fields[i] = d
	}

	return venue.Kline{
		OpenTime:  time.UnixMilli(openTime),
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    fields[4],
		CloseTime: time.UnixMilli(closeTime),
	}, nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: parse %s %q: %w", field, s, err)
	}
	return d, nil
}
