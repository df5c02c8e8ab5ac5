package arena

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"arena-api/pkg/account"
	"arena-api/pkg/market"
	"arena-api/pkg/risk"
)

// decisionSchema is the exact output contract appended to every user prompt.
// Models answer with one JSON object; anything else is a parse failure.
const decisionSchema = `Respond with exactly one JSON object and nothing else:
{
  "action": "BUY" | "SELL" | "CLOSE" | "HOLD",
  "symbol": "<symbol from the tradable list, required unless HOLD>",
  "quantity_usd": <notional position size in USDT, required for BUY/SELL>,
  "leverage": <integer leverage, required for BUY/SELL>,
  "stop_loss_pct": <optional stop loss distance in percent>,
  "take_profit_pct": <optional take profit distance in percent>,
  "confidence": <optional integer 0-100>,
  "reasoning": "<short explanation>",
  "strategy": "<short strategy label>"
}`

// ContextInputs carries the rendered sections of one agent's user prompt.
type ContextInputs struct {
	CurrentTime     string
	AccountOverview string
	OpenPositions   string
	RecentTrades    string
	RiskBudget      string
	MarketSnapshots string
}

// BuildContextInputs renders the dynamic prompt sections from the agent's
// account view, its recent trades and the cycle's market snapshots.
func BuildContextInputs(view *account.View, trades []account.Trade, snaps map[string]*market.Snapshot, limits risk.Limits, now time.Time) ContextInputs {
	return ContextInputs{
		CurrentTime:     now.UTC().Format(time.RFC3339),
		AccountOverview: formatAccount(view),
		OpenPositions:   formatPositions(view.Positions),
		RecentTrades:    formatTrades(trades),
		RiskBudget:      formatRiskBudget(limits, view),
		MarketSnapshots: formatMarketJSON(snaps),
	}
}

// RenderUserPrompt assembles the sections into the final user prompt.
func RenderUserPrompt(in ContextInputs) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current time: %s\n\n", in.CurrentTime)
	fmt.Fprintf(&b, "## Account\n%s\n\n", in.AccountOverview)
	fmt.Fprintf(&b, "## Open positions\n%s\n\n", in.OpenPositions)
	fmt.Fprintf(&b, "## Recent trades\n%s\n\n", in.RecentTrades)
	fmt.Fprintf(&b, "## Risk budget\n%s\n\n", in.RiskBudget)
	fmt.Fprintf(&b, "## Market\n%s\n\n", in.MarketSnapshots)
	b.WriteString(decisionSchema)
	return b.String()
}

func formatAccount(v *account.View) string {
	return fmt.Sprintf("balance=%s, equity=%s, avail=%s, margin_used=%s, realised_pnl=%s, unrealised_pnl=%s, trades=%d (w=%d l=%d)",
		v.Balance.StringFixed(2), v.Equity.StringFixed(2), v.AvailableMargin.StringFixed(2),
		v.MarginUsed.StringFixed(2), v.RealisedPnL.StringFixed(2), v.UnrealisedPnL.StringFixed(2),
		v.TradeCount, v.WinCount, v.LossCount,
	)
}

func formatPositions(positions []account.Position) string {
	if len(positions) == 0 {
		return "(none)"
	}
	items := make([]string, 0, len(positions))
	for _, p := range positions {
		items = append(items, fmt.Sprintf("%s %s qty=%s lev=%dx entry=%s mark=%s upnl=%s liq=%s sl=%s tp=%s",
			p.Symbol, p.Side, p.Quantity.StringFixed(4), p.Leverage,
			p.EntryPrice.StringFixed(4), p.MarkPrice.StringFixed(4), p.UnrealisedPnL.StringFixed(2),
			p.LiquidationPrice.StringFixed(4), levelOrDash(p.StopLossPrice), levelOrDash(p.TakeProfitPrice),
		))
	}
	sort.Strings(items)
	return strings.Join(items, "\n")
}

func formatTrades(trades []account.Trade) string {
	if len(trades) == 0 {
		return "(none)"
	}
	items := make([]string, 0, len(trades))
	for _, t := range trades {
		items = append(items, fmt.Sprintf("%s %s pnl=%s (%s%%) exit=%s closed=%s",
			t.Symbol, t.Side, t.RealisedPnL.StringFixed(2), t.PnLPct.StringFixed(2),
			t.ExitReason, t.ClosedAt.UTC().Format(time.RFC3339),
		))
	}
	return strings.Join(items, "\n")
}

func formatRiskBudget(lim risk.Limits, v *account.View) string {
	remaining := lim.MaxOpenPositions - len(v.Positions)
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("max_positions=%d (remaining=%d), max_leverage=%dx, trade_size=[%s, %s] USDT, stop_loss_pct=[%s, %s], take_profit_pct=[%s, %s], tradable=%s",
		lim.MaxOpenPositions, remaining, lim.MaxLeverage,
		lim.MinTradeSize.String(), lim.MaxTradeSize.String(),
		lim.StopLossPctMin.String(), lim.StopLossPctMax.String(),
		lim.TakeProfitPctMin.String(), lim.TakeProfitPctMax.String(),
		strings.Join(lim.Symbols, ","),
	)
}

func formatMarketJSON(snaps map[string]*market.Snapshot) string {
	if len(snaps) == 0 {
		return "{}"
	}
	// Reduce payload: selected fields only.
	type lite struct {
		Price      float64  `json:"price"`
		Change24h  float64  `json:"change_24h_pct"`
		Volume24h  float64  `json:"volume_24h"`
		RSI14      *float64 `json:"rsi_14,omitempty"`
		MACD       *float64 `json:"macd,omitempty"`
		MACDSignal *float64 `json:"macd_signal,omitempty"`
		SMA20      *float64 `json:"sma_20,omitempty"`
		SMA50      *float64 `json:"sma_50,omitempty"`
	}
	out := make(map[string]lite, len(snaps))
	for sym, s := range snaps {
		if s == nil {
			continue
		}
		l := lite{
			Price:     s.Price.InexactFloat64(),
			Change24h: s.ChangePct24h.InexactFloat64(),
			Volume24h: s.Volume24h.InexactFloat64(),
		}
		if ind := s.Indicators; ind != nil {
			l.RSI14 = f64ptr(ind.RSI14)
			l.MACD = f64ptr(ind.MACD)
			l.MACDSignal = f64ptr(ind.MACDSignal)
			l.SMA20 = f64ptr(ind.SMA20)
			l.SMA50 = f64ptr(ind.SMA50)
		}
		out[sym] = l
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func levelOrDash(level decimal.Decimal) string {
	if level.Sign() <= 0 {
		return "-"
	}
	return level.StringFixed(4)
}

func f64ptr(v float64) *float64 { return &v }
