// Package account implements the per-agent paper accounting engine: isolated
// margin positions, realised and unrealised P&L, SL/TP/liquidation triggers
// and the reconciliation seam. All money arithmetic is decimal; float64 never
// touches a balance.
package account

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// PositionStatus tracks the lifecycle of a position.
type PositionStatus string

const (
	StatusOpen       PositionStatus = "OPEN"
	StatusClosed     PositionStatus = "CLOSED"
	StatusLiquidated PositionStatus = "LIQUIDATED"
)

// ExitReason explains why a position leg was closed.
type ExitReason string

const (
	ExitManual           ExitReason = "MANUAL"
	ExitStopLoss         ExitReason = "STOP_LOSS"
	ExitTakeProfit       ExitReason = "TAKE_PROFIT"
	ExitLiquidation      ExitReason = "LIQUIDATION"
	ExitReconcileRemoved ExitReason = "RECONCILE_REMOVED"
)

// Position is one isolated-margin position. SL/TP prices are zero when the
// position carries no trigger. MarkPrice and UnrealisedPnL move with
// MarkToMarket.
type Position struct {
	ID               string          `json:"id"`
	AgentID          string          `json:"agent_id"`
	Symbol           string          `json:"symbol"`
	Side             Side            `json:"side"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	Quantity         decimal.Decimal `json:"quantity"`
	Leverage         int             `json:"leverage"`
	MarginUsed       decimal.Decimal `json:"margin_used"`
	StopLossPrice    decimal.Decimal `json:"stop_loss_price"`
	TakeProfitPrice  decimal.Decimal `json:"take_profit_price"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	MarkPrice        decimal.Decimal `json:"mark_price"`
	UnrealisedPnL    decimal.Decimal `json:"unrealised_pnl"`
	Fees             decimal.Decimal `json:"fees"`
	ClientOrderID    string          `json:"client_order_id"`
	Status           PositionStatus  `json:"status"`
	OpenedAt         time.Time       `json:"opened_at"`
}

// Trade is the immutable record of a closed position leg.
type Trade struct {
	ID          string          `json:"id"`
	AgentID     string          `json:"agent_id"`
	PositionID  string          `json:"position_id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	Quantity    decimal.Decimal `json:"quantity"`
	Leverage    int             `json:"leverage"`
	RealisedPnL decimal.Decimal `json:"realised_pnl"`
	PnLPct      decimal.Decimal `json:"pnl_pct"`
	Fees        decimal.Decimal `json:"fees"`
	ExitReason  ExitReason      `json:"exit_reason"`
	OpenedAt    time.Time       `json:"opened_at"`
	ClosedAt    time.Time       `json:"closed_at"`
}

// View is an immutable copy of account state for prompts, risk checks and
// HTTP readers. Positions are copies sorted by open time, then id.
type View struct {
	AgentID         string          `json:"agent_id"`
	Balance         decimal.Decimal `json:"balance"`
	Equity          decimal.Decimal `json:"equity"`
	MarginUsed      decimal.Decimal `json:"margin_used"`
	AvailableMargin decimal.Decimal `json:"available_margin"`
	RealisedPnL     decimal.Decimal `json:"realised_pnl"`
	UnrealisedPnL   decimal.Decimal `json:"unrealised_pnl"`
	TradeCount      int             `json:"trade_count"`
	WinCount        int             `json:"win_count"`
	LossCount       int             `json:"loss_count"`
	CallsLastHour   int             `json:"calls_last_hour"`
	Enabled         bool            `json:"enabled"`
	DisabledReason  string          `json:"disabled_reason,omitempty"`
	LastDecisionAt  time.Time       `json:"last_decision_at"`
	Positions       []Position      `json:"positions"`
}

// PositionOn looks up an open position by symbol in a view.
func (v *View) PositionOn(symbol string) (Position, bool) {
	for _, p := range v.Positions {
		if p.Symbol == symbol {
			return p, true
		}
	}
	return Position{}, false
}

// ExternalPosition is a venue-reported position handed to Replace during
// reconciliation.
type ExternalPosition struct {
	Symbol        string
	Side          Side
	Quantity      decimal.Decimal
	EntryPrice    decimal.Decimal
	Leverage      int
	ClientOrderID string
}

// TriggerHit names a position whose SL, TP or liquidation level was crossed.
// Price is the snapshot price that crossed the level.
type TriggerHit struct {
	Position Position
	Reason   ExitReason
	Price    decimal.Decimal
}

// RemovedPosition is one book entry dropped during Replace. Trade is nil when
// no snapshot price was available to settle the exit.
type RemovedPosition struct {
	Position Position
	Trade    *Trade
}

// ReplaceReport summarises one reconciliation pass over an account.
type ReplaceReport struct {
	Added   []Position
	Updated []Position
	Removed []RemovedPosition
}

// Config carries the account-level limits enforced by OpenPosition.
type Config struct {
	InitialBalance   decimal.Decimal
	MaxOpenPositions int
	MaxLeverage      int
	MinTradeSize     decimal.Decimal
	MaxTradeSize     decimal.Decimal
}
