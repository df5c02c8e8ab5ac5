package market

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotReady reports that a symbol does not yet have enough kline history to
// compute the full indicator set. Callers treat indicators as absent.
var ErrNotReady = errors.New("market: indicator history not ready")

// Indicators aggregates the technical indicators computed over kline closes.
// Values are advisory inputs for decision prompts and never participate in
// balance arithmetic, so float64 is fine here.
type Indicators struct {
	RSI14      float64 `json:"rsi_14"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`
	SMA20      float64 `json:"sma_20"`
	SMA50      float64 `json:"sma_50"`
}

// Snapshot is the normalised per-symbol market view handed to decision
// prompts and HTTP readers. Price is the venue mark price; Indicators is nil
// until enough kline history has accumulated.
type Snapshot struct {
	Symbol       string          `json:"symbol"`
	Price        decimal.Decimal `json:"price"`
	LastPrice    decimal.Decimal `json:"last_price"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	Volume24h    decimal.Decimal `json:"volume_24h"`
	ChangePct24h decimal.Decimal `json:"change_pct_24h"`
	High24h      decimal.Decimal `json:"high_24h"`
	Low24h       decimal.Decimal `json:"low_24h"`
	Indicators   *Indicators     `json:"indicators,omitempty"`
	KlineCount   int             `json:"kline_count"`
	FetchedAt    time.Time       `json:"fetched_at"`
}

// Clone returns a copy safe to hand outside the cache.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	dup := *s
	if s.Indicators != nil {
		ind := *s.Indicators
		dup.Indicators = &ind
	}
	return &dup
}
