// Package decision defines the action schema agents must emit and the
// tolerant parser that recovers it from raw model output.
package decision

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Action is the trading verb of a decision.
type Action string

const (
	ActionBuy   Action = "BUY"
	ActionSell  Action = "SELL"
	ActionClose Action = "CLOSE"
	ActionHold  Action = "HOLD"
)

// ParseAction normalises a raw action token. Unknown tokens return false.
func ParseAction(raw string) (Action, bool) {
	switch Action(strings.ToUpper(strings.TrimSpace(raw))) {
	case ActionBuy:
		return ActionBuy, true
	case ActionSell:
		return ActionSell, true
	case ActionClose:
		return ActionClose, true
	case ActionHold:
		return ActionHold, true
	default:
		return "", false
	}
}

// OpensPosition reports whether the action opens a new position.
func (a Action) OpensPosition() bool {
	return a == ActionBuy || a == ActionSell
}

// Decision is the parsed trading intent of one agent for one cycle. Optional
// fields are zero when the model omitted them; the validator decides whether
// that is acceptable for the action.
type Decision struct {
	Action        Action          `json:"action"`
	Symbol        string          `json:"symbol,omitempty"`
	QuantityUSD   decimal.Decimal `json:"quantity_usd,omitempty"`
	Leverage      int             `json:"leverage,omitempty"`
	StopLossPct   decimal.Decimal `json:"stop_loss_pct,omitempty"`
	TakeProfitPct decimal.Decimal `json:"take_profit_pct,omitempty"`
	Confidence    int             `json:"confidence,omitempty"`
	Reasoning     string          `json:"reasoning,omitempty"`
	Strategy      string          `json:"strategy,omitempty"`
}
