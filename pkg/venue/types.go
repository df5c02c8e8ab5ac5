package venue

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies the taker direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PositionSide identifies the direction of an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// Kline is a single candle. Prices are decimal to avoid precision loss when
// they feed position arithmetic downstream.
type Kline struct {
	OpenTime  time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	CloseTime time.Time
}

// Ticker24h bundles the rolling 24h statistics plus top-of-book quotes for a
// symbol.
type Ticker24h struct {
	Symbol         string
	LastPrice      decimal.Decimal
	BidPrice       decimal.Decimal
	AskPrice       decimal.Decimal
	Volume         decimal.Decimal
	QuoteVolume    decimal.Decimal
	PriceChangePct decimal.Decimal
	HighPrice      decimal.Decimal
	LowPrice       decimal.Decimal
}

// SymbolFilters carries the venue trading rules for one symbol. Quantities
// are rounded down to QuantityStep and orders below MinNotional are refused
// before they reach the wire.
type SymbolFilters struct {
	Symbol       string
	PriceTick    decimal.Decimal
	QuantityStep decimal.Decimal
	MinNotional  decimal.Decimal
}

// OrderRequest describes a market order. ClientOrderID carries the ownership
// tag and must be set on every order the arena places.
type OrderRequest struct {
	Symbol        string
	Side          Side
	Quantity      decimal.Decimal
	ReduceOnly    bool
	ClientOrderID string
}

// OrderResult reports the venue's view of a filled market order.
type OrderResult struct {
	VenueOrderID  int64
	ClientOrderID string
	Symbol        string
	Side          Side
	FillPrice     decimal.Decimal
	ExecutedQty   decimal.Decimal
	Commission    decimal.Decimal
	Status        string
}

// VenuePosition is one open position as reported by the venue. ClientOrderID
// is back-correlated from recent orders when the positions endpoint does not
// carry it directly; it is empty when no correlation was possible.
type VenuePosition struct {
	Symbol        string
	Side          PositionSide
	Quantity      decimal.Decimal
	EntryPrice    decimal.Decimal
	Leverage      int
	ClientOrderID string
}

// RoundQuantityDown floors qty to the symbol's quantity step. A zero or
// negative step returns qty unchanged.
func RoundQuantityDown(qty, step decimal.Decimal) decimal.Decimal {
	if step.Sign() <= 0 {
		return qty
	}
	return qty.Div(step).Floor().Mul(step)
}
