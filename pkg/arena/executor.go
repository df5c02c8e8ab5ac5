package arena

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"arena-api/pkg/account"
	"arena-api/pkg/decision"
	"arena-api/pkg/risk"
	"arena-api/pkg/venue"
)

// ExecutionResult reports what happened to one decision. Exactly the fields
// matching the outcome are populated: Rejection for rejected, Order and
// Position for executed opens, Order and Trade for executed closes.
type ExecutionResult struct {
	Outcome   DecisionStatus
	Rejection *risk.Result
	Order     *venue.OrderResult
	Position  *account.Position
	Trade     *account.Trade
	Err       error
}

// TradeExecutor turns validated decisions into venue orders and account
// mutations. The venue order always goes first: if it fails, the account is
// untouched; if the account then refuses the fill, the venue position is
// left for the reconciler to adopt on its next pass.
type TradeExecutor struct {
	venue  venue.Venue
	limits risk.Limits
	now    func() time.Time
}

// ExecutorOption customises TradeExecutor construction.
type ExecutorOption func(*TradeExecutor)

// WithExecutorClock overrides the wall clock, for tests.
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *TradeExecutor) {
		if now != nil {
			e.now = now
		}
	}
}

// NewTradeExecutor wires an executor to a venue and a limit set.
func NewTradeExecutor(v venue.Venue, limits risk.Limits, opts ...ExecutorOption) *TradeExecutor {
	e := &TradeExecutor{
		venue:  v,
		limits: limits,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute validates dec against the agent's current state and carries it out.
// Market orders are never retried: a venue error surfaces as a failed outcome
// and the next cycle decides afresh.
func (e *TradeExecutor) Execute(ctx context.Context, agent *Agent, dec *decision.Decision, prices map[string]decimal.Decimal) *ExecutionResult {
	view := agent.Account().Snapshot()
	verdict := risk.Validate(dec, view, prices, e.limits)
	if !verdict.OK {
		return &ExecutionResult{Outcome: StatusRejected, Rejection: &verdict}
	}

	switch dec.Action {
	case decision.ActionHold:
		return &ExecutionResult{Outcome: StatusHold}
	case decision.ActionClose:
		pos, ok := view.PositionOn(dec.Symbol)
		if !ok {
			return &ExecutionResult{Outcome: StatusFailed, Err: fmt.Errorf("close %s: %w", dec.Symbol, account.ErrPositionNotFound)}
		}
		trade, order, err := e.ForceClose(ctx, agent, pos, account.ExitManual, prices[dec.Symbol])
		if err != nil {
			return &ExecutionResult{Outcome: StatusFailed, Err: err}
		}
		return &ExecutionResult{Outcome: StatusExecuted, Order: order, Trade: trade}
	case decision.ActionBuy, decision.ActionSell:
		return e.open(ctx, agent, dec, prices[dec.Symbol])
	default:
		return &ExecutionResult{Outcome: StatusFailed, Err: fmt.Errorf("unsupported action %q", dec.Action)}
	}
}

func (e *TradeExecutor) open(ctx context.Context, agent *Agent, dec *decision.Decision, price decimal.Decimal) *ExecutionResult {
	filters, err := e.venue.SymbolFilters(ctx, dec.Symbol)
	if err != nil {
		return &ExecutionResult{Outcome: StatusFailed, Err: fmt.Errorf("symbol filters %s: %w", dec.Symbol, err)}
	}

	qty := venue.RoundQuantityDown(dec.QuantityUSD.Div(price), filters.QuantityStep)
	notional := qty.Mul(price)
	if qty.Sign() <= 0 || notional.LessThan(filters.MinNotional) || notional.LessThan(e.limits.MinTradeSize) {
		verdict := risk.Result{
			OK:     false,
			Check:  "min_notional",
			Reason: "below_min_notional",
			Detail: fmt.Sprintf("rounded notional %s below venue min %s / arena min %s", notional, filters.MinNotional, e.limits.MinTradeSize),
		}
		return &ExecutionResult{Outcome: StatusRejected, Rejection: &verdict}
	}

	if err := e.venue.SetLeverage(ctx, dec.Symbol, dec.Leverage); err != nil {
		return &ExecutionResult{Outcome: StatusFailed, Err: fmt.Errorf("set leverage %s %dx: %w", dec.Symbol, dec.Leverage, err)}
	}

	tag := ComposeTag(agent.ID(), dec.Symbol, e.now())
	order, err := e.venue.PlaceMarketOrder(ctx, venue.OrderRequest{
		Symbol:        dec.Symbol,
		Side:          orderSideFor(dec.Action),
		Quantity:      qty,
		ClientOrderID: tag,
	})
	if err != nil {
		return &ExecutionResult{Outcome: StatusFailed, Err: fmt.Errorf("place order %s: %w", dec.Symbol, err)}
	}
	if order.ExecutedQty.Sign() <= 0 || order.FillPrice.Sign() <= 0 {
		return &ExecutionResult{Outcome: StatusFailed, Err: fmt.Errorf("order %s reported no fill (status %s)", tag, order.Status)}
	}

	pos, err := agent.Account().OpenPosition(account.OpenParams{
		Symbol:        dec.Symbol,
		Side:          positionSideFor(dec.Action),
		QuantityUSD:   order.ExecutedQty.Mul(order.FillPrice),
		Leverage:      dec.Leverage,
		StopLossPct:   dec.StopLossPct,
		TakeProfitPct: dec.TakeProfitPct,
		EntryPrice:    order.FillPrice,
		Fee:           order.Commission,
		ClientOrderID: tag,
		OpenedAt:      e.now(),
	})
	if err != nil {
		// The fill is live on the venue; reconciliation adopts it next cycle.
		logx.WithContext(ctx).Errorf("arena: order %s filled but book refused: %v", tag, err)
		return &ExecutionResult{Outcome: StatusFailed, Order: order, Err: fmt.Errorf("order %s filled but book refused: %w", tag, err)}
	}
	return &ExecutionResult{Outcome: StatusExecuted, Order: order, Position: pos}
}

// ForceClose exits a position with a reduce-only market order and settles the
// book at the fill price. When the venue omits a fill price the fallback
// (usually the cycle snapshot price) settles the trade instead. A venue error
// leaves the position open.
func (e *TradeExecutor) ForceClose(ctx context.Context, agent *Agent, pos account.Position, reason account.ExitReason, fallback decimal.Decimal) (*account.Trade, *venue.OrderResult, error) {
	side := venue.SideSell
	if pos.Side == account.SideShort {
		side = venue.SideBuy
	}
	order, err := e.venue.PlaceMarketOrder(ctx, venue.OrderRequest{
		Symbol:        pos.Symbol,
		Side:          side,
		Quantity:      pos.Quantity,
		ReduceOnly:    true,
		ClientOrderID: ComposeTag(agent.ID(), pos.Symbol, e.now()),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("close order %s: %w", pos.Symbol, err)
	}

	exit := order.FillPrice
	if exit.Sign() <= 0 {
		exit = fallback
	}
	trade, err := agent.Account().ClosePosition(pos.ID, exit, reason, order.Commission, e.now())
	if err != nil {
		return nil, order, fmt.Errorf("settle close %s: %w", pos.Symbol, err)
	}
	return trade, order, nil
}

func orderSideFor(action decision.Action) venue.Side {
	if action == decision.ActionSell {
		return venue.SideSell
	}
	return venue.SideBuy
}

func positionSideFor(action decision.Action) account.Side {
	if action == decision.ActionSell {
		return account.SideShort
	}
	return account.SideLong
}
