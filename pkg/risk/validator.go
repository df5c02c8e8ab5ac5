// Package risk validates proposed decisions against account state, market
// prices and configured limits. Validation is pure: no I/O, no clock, no
// mutation, so the same inputs always produce the same verdict.
package risk

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"arena-api/pkg/account"
	"arena-api/pkg/decision"
)

// Limits bounds what any agent may do in one decision.
type Limits struct {
	Symbols          []string
	MaxOpenPositions int
	MaxLeverage      int
	MinTradeSize     decimal.Decimal
	MaxTradeSize     decimal.Decimal
	StopLossPctMin   decimal.Decimal
	StopLossPctMax   decimal.Decimal
	TakeProfitPctMin decimal.Decimal
	TakeProfitPctMax decimal.Decimal
}

// Validate checks the limit set itself at configuration time.
func (l Limits) Validate() error {
	if len(l.Symbols) == 0 {
		return fmt.Errorf("risk limits: symbol allow-list cannot be empty")
	}
	if l.MaxOpenPositions < 1 {
		return fmt.Errorf("risk limits: max open positions must be at least 1, got %d", l.MaxOpenPositions)
	}
	if l.MaxLeverage < 1 {
		return fmt.Errorf("risk limits: max leverage must be at least 1, got %d", l.MaxLeverage)
	}
	if l.MinTradeSize.Sign() <= 0 {
		return fmt.Errorf("risk limits: min trade size must be positive, got %s", l.MinTradeSize)
	}
	if l.MaxTradeSize.LessThan(l.MinTradeSize) {
		return fmt.Errorf("risk limits: max trade size %s below min %s", l.MaxTradeSize, l.MinTradeSize)
	}
	if l.StopLossPctMin.Sign() <= 0 || l.StopLossPctMax.LessThan(l.StopLossPctMin) {
		return fmt.Errorf("risk limits: stop loss bounds invalid: [%s, %s]", l.StopLossPctMin, l.StopLossPctMax)
	}
	if l.TakeProfitPctMin.Sign() <= 0 || l.TakeProfitPctMax.LessThan(l.TakeProfitPctMin) {
		return fmt.Errorf("risk limits: take profit bounds invalid: [%s, %s]", l.TakeProfitPctMin, l.TakeProfitPctMax)
	}
	return nil
}

// SymbolAllowed reports whether symbol is on the allow-list.
func (l Limits) SymbolAllowed(symbol string) bool {
	for _, s := range l.Symbols {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

// Result is one validation verdict. Reason is a stable snake_case code for
// persistence and metrics; Check names the rule that fired.
type Result struct {
	OK     bool
	Check  string
	Reason string
	Detail string
}

func accept() Result { return Result{OK: true} }

func reject(check, reason, format string, args ...interface{}) Result {
	return Result{
		OK:     false,
		Check:  check,
		Reason: reason,
		Detail: fmt.Sprintf(format, args...),
	}
}

// Validate runs the ordered rule chain and stops at the first violation.
// HOLD decisions are always accepted.
func Validate(dec *decision.Decision, acct *account.View, prices map[string]decimal.Decimal, lim Limits) Result {
	if dec == nil {
		return reject("decision", "missing_decision", "no decision supplied")
	}
	if dec.Action == decision.ActionHold {
		return accept()
	}

	if !lim.SymbolAllowed(dec.Symbol) {
		return reject("symbol_allowlist", "symbol_not_allowed", "symbol %q not in allow-list", dec.Symbol)
	}

	price, ok := prices[dec.Symbol]
	if !ok || price.Sign() <= 0 {
		return reject("price_available", "price_unavailable", "no current price for %q", dec.Symbol)
	}

	switch dec.Action {
	case decision.ActionClose:
		if _, held := acct.PositionOn(dec.Symbol); !held {
			return reject("close_target", "no_open_position", "no open position on %q", dec.Symbol)
		}
		return accept()

	case decision.ActionBuy, decision.ActionSell:
		return validateOpen(dec, acct, lim)

	default:
		return reject("action", "unknown_action", "unsupported action %q", dec.Action)
	}
}

func validateOpen(dec *decision.Decision, acct *account.View, lim Limits) Result {
	if len(acct.Positions) >= lim.MaxOpenPositions {
		return reject("max_positions", "max_positions_reached", "%d positions open, limit %d", len(acct.Positions), lim.MaxOpenPositions)
	}
	if _, held := acct.PositionOn(dec.Symbol); held {
		return reject("duplicate_symbol", "duplicate_symbol", "position already open on %q", dec.Symbol)
	}
	if dec.QuantityUSD.LessThan(lim.MinTradeSize) {
		return reject("trade_size", "quantity_below_min", "quantity %s below min %s", dec.QuantityUSD, lim.MinTradeSize)
	}
	if dec.QuantityUSD.GreaterThan(lim.MaxTradeSize) {
		return reject("trade_size", "quantity_above_max", "quantity %s above max %s", dec.QuantityUSD, lim.MaxTradeSize)
	}
	if dec.Leverage < 1 || dec.Leverage > lim.MaxLeverage {
		return reject("leverage", "leverage_out_of_bounds", "leverage %d not in [1, %d]", dec.Leverage, lim.MaxLeverage)
	}

	margin := dec.QuantityUSD.Div(decimal.NewFromInt(int64(dec.Leverage)))
	if acct.AvailableMargin.LessThan(margin) {
		return reject("margin", "insufficient_margin", "need %s, available %s", margin, acct.AvailableMargin)
	}

	if dec.StopLossPct.Sign() != 0 {
		if dec.StopLossPct.LessThan(lim.StopLossPctMin) || dec.StopLossPct.GreaterThan(lim.StopLossPctMax) {
			return reject("stop_loss", "stop_loss_out_of_bounds", "stop loss %s%% not in [%s, %s]", dec.StopLossPct, lim.StopLossPctMin, lim.StopLossPctMax)
		}
	}
	if dec.TakeProfitPct.Sign() != 0 {
		if dec.TakeProfitPct.LessThan(lim.TakeProfitPctMin) || dec.TakeProfitPct.GreaterThan(lim.TakeProfitPctMax) {
			return reject("take_profit", "take_profit_out_of_bounds", "take profit %s%% not in [%s, %s]", dec.TakeProfitPct, lim.TakeProfitPctMin, lim.TakeProfitPctMax)
		}
	}
	return accept()
}
