package account

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

const (
	tradeHistoryCap = 256
	callWindow      = time.Hour
)

var (
	oneHundred = decimal.NewFromInt(100)
)

// Account is the mutable paper book of a single agent. All operations take
// the account lock; exposed values are copies.
type Account struct {
	mu sync.Mutex

	agentID string
	cfg     Config

	balance     decimal.Decimal
	marginUsed  decimal.Decimal
	realisedPnL decimal.Decimal

	tradeCount int
	winCount   int
	lossCount  int

	enabled        bool
	disabledReason string
	lastDecisionAt time.Time
	callTimes      []time.Time

	positions map[string]*Position // open positions by id
	bySymbol  map[string]string    // open position id by symbol
	trades    []Trade              // most recent last, capped
}

// New constructs an account funded with the configured initial balance.
func New(agentID string, cfg Config) (*Account, error) {
	if agentID == "" {
		return nil, fmt.Errorf("account: agent id cannot be empty")
	}
	if cfg.InitialBalance.Sign() <= 0 {
		return nil, fmt.Errorf("account: initial balance must be positive, got %s", cfg.InitialBalance)
	}
	if cfg.MaxOpenPositions < 1 {
		return nil, fmt.Errorf("account: max open positions must be at least 1, got %d", cfg.MaxOpenPositions)
	}
	if cfg.MaxLeverage < 1 {
		return nil, fmt.Errorf("account: max leverage must be at least 1, got %d", cfg.MaxLeverage)
	}
	if cfg.MinTradeSize.Sign() <= 0 || cfg.MaxTradeSize.LessThan(cfg.MinTradeSize) {
		return nil, fmt.Errorf("account: trade size bounds invalid: min %s max %s", cfg.MinTradeSize, cfg.MaxTradeSize)
	}
	return &Account{
		agentID:   agentID,
		cfg:       cfg,
		balance:   cfg.InitialBalance,
		enabled:   true,
		positions: make(map[string]*Position),
		bySymbol:  make(map[string]string),
	}, nil
}

// AgentID returns the owning agent id.
func (a *Account) AgentID() string { return a.agentID }

// Enabled reports whether the account accepts mutations.
func (a *Account) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// Disable switches the account off. Used when an operator intervenes or an
// invariant breaks.
func (a *Account) Disable(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = false
	a.disabledReason = reason
}

// Enable switches the account back on after operator intervention.
func (a *Account) Enable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = true
	a.disabledReason = ""
}

// Restore seeds balances and counters from persisted state at startup.
// Positions are not restored here; reconciliation rebuilds the book from the
// venue.
func (a *Account) Restore(balance, realisedPnL decimal.Decimal, trades, wins, losses int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.balance = balance
	a.realisedPnL = realisedPnL
	a.tradeCount = trades
	a.winCount = wins
	a.lossCount = losses
}

// OpenParams carries everything OpenPosition needs. QuantityUSD is the
// notional actually filled; quantity derives from it at the entry price.
// Zero StopLossPct/TakeProfitPct mean no trigger.
type OpenParams struct {
	Symbol        string
	Side          Side
	QuantityUSD   decimal.Decimal
	Leverage      int
	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal
	EntryPrice    decimal.Decimal
	Fee           decimal.Decimal
	ClientOrderID string
	OpenedAt      time.Time
}

// OpenPosition reserves margin and adds a position to the book. The margin
// model is reservation based: balance moves only when realised P&L settles,
// free margin is balance − marginUsed.
func (a *Account) OpenPosition(p OpenParams) (*Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.enabled {
		return nil, ErrDisabled
	}
	if p.Symbol == "" {
		return nil, fmt.Errorf("account: symbol cannot be empty")
	}
	if p.Side != SideLong && p.Side != SideShort {
		return nil, fmt.Errorf("account: invalid side %q", p.Side)
	}
	if p.EntryPrice.Sign() <= 0 {
		return nil, fmt.Errorf("account: entry price must be positive, got %s", p.EntryPrice)
	}
	if p.QuantityUSD.LessThan(a.cfg.MinTradeSize) || p.QuantityUSD.GreaterThan(a.cfg.MaxTradeSize) {
		return nil, fmt.Errorf("%w: %s not in [%s, %s]", ErrInvalidSize, p.QuantityUSD, a.cfg.MinTradeSize, a.cfg.MaxTradeSize)
	}
	if p.Leverage < 1 || p.Leverage > a.cfg.MaxLeverage {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidLeverage, p.Leverage, a.cfg.MaxLeverage)
	}
	if _, exists := a.bySymbol[p.Symbol]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSymbol, p.Symbol)
	}
	if len(a.positions) >= a.cfg.MaxOpenPositions {
		return nil, fmt.Errorf("%w: %d open", ErrMaxPositionsReached, len(a.positions))
	}

	lev := decimal.NewFromInt(int64(p.Leverage))
	quantity := p.QuantityUSD.Div(p.EntryPrice)
	margin := p.EntryPrice.Mul(quantity).Div(lev)

	available := a.balance.Sub(a.marginUsed)
	if available.LessThan(margin) {
		return nil, fmt.Errorf("%w: need %s, available %s", ErrInsufficientMargin, margin, available)
	}

	pos := &Position{
		ID:               uuid.NewString(),
		AgentID:          a.agentID,
		Symbol:           p.Symbol,
		Side:             p.Side,
		EntryPrice:       p.EntryPrice,
		Quantity:         quantity,
		Leverage:         p.Leverage,
		MarginUsed:       margin,
		LiquidationPrice: liquidationPrice(p.Side, p.EntryPrice, lev),
		MarkPrice:        p.EntryPrice,
		Fees:             p.Fee,
		ClientOrderID:    p.ClientOrderID,
		Status:           StatusOpen,
		OpenedAt:         p.OpenedAt,
	}
	if p.StopLossPct.Sign() > 0 {
		pos.StopLossPrice = triggerPrice(p.Side, p.EntryPrice, p.StopLossPct, true)
	}
	if p.TakeProfitPct.Sign() > 0 {
		pos.TakeProfitPrice = triggerPrice(p.Side, p.EntryPrice, p.TakeProfitPct, false)
	}

	a.positions[pos.ID] = pos
	a.bySymbol[pos.Symbol] = pos.ID
	a.marginUsed = a.marginUsed.Add(margin)

	if err := a.checkInvariantsLocked(); err != nil {
		return nil, err
	}
	out := *pos
	return &out, nil
}

// ClosePosition settles a position at the given exit price, releases its
// margin and books the realised P&L. An exit worse than the liquidation
// price is clamped to it: isolated margin cannot lose more than itself.
func (a *Account) ClosePosition(positionID string, exitPrice decimal.Decimal, reason ExitReason, fee decimal.Decimal, closedAt time.Time) (*Trade, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	pos, ok := a.positions[positionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPositionNotFound, positionID)
	}
	if exitPrice.Sign() <= 0 {
		return nil, fmt.Errorf("account: exit price must be positive, got %s", exitPrice)
	}

	trade := a.settleLocked(pos, exitPrice, reason, fee, closedAt)
	if err := a.checkInvariantsLocked(); err != nil {
		return nil, err
	}
	return &trade, nil
}

// MarkToMarket refreshes mark prices and unrealised P&L from the given price
// map. Symbols without a price keep their previous mark.
func (a *Account) MarkToMarket(prices map[string]decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, pos := range a.positions {
		price, ok := prices[pos.Symbol]
		if !ok || price.Sign() <= 0 {
			continue
		}
		pos.MarkPrice = price
		pos.UnrealisedPnL = positionPnL(pos.Side, pos.EntryPrice, price, pos.Quantity)
	}
}

// EvaluateTriggers reports positions whose liquidation, stop-loss or
// take-profit level the given prices crossed. Evaluation order is
// deterministic (open time, then id) and liquidation wins over SL over TP
// for the same position. The book is not mutated; the caller closes hits
// through the executor.
func (a *Account) EvaluateTriggers(prices map[string]decimal.Decimal) []TriggerHit {
	a.mu.Lock()
	defer a.mu.Unlock()

	var hits []TriggerHit
	for _, pos := range a.sortedOpenLocked() {
		price, ok := prices[pos.Symbol]
		if !ok || price.Sign() <= 0 {
			continue
		}
		reason, crossed := crossedTrigger(pos, price)
		if !crossed {
			continue
		}
		hits = append(hits, TriggerHit{Position: *pos, Reason: reason, Price: price})
	}
	return hits
}

// Replace reconciles the book against venue-reported positions in one
// atomic pass: adds entries the venue has and the book lacks, updates
// diverged fields, and removes entries the venue no longer has, settling
// them at the snapshot price when one exists.
func (a *Account) Replace(external []ExternalPosition, prices map[string]decimal.Decimal, now time.Time) (*ReplaceReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := &ReplaceReport{}
	venueBySymbol := make(map[string]ExternalPosition, len(external))
	for _, ext := range external {
		venueBySymbol[ext.Symbol] = ext
	}

	// Removals first so margin frees up before adoptions reserve it.
	for _, pos := range a.sortedOpenLocked() {
		if _, held := venueBySymbol[pos.Symbol]; held {
			continue
		}
		var removed RemovedPosition
		if price, ok := prices[pos.Symbol]; ok && price.Sign() > 0 {
			trade := a.settleLocked(pos, price, ExitReconcileRemoved, decimal.Zero, now)
			removed = RemovedPosition{Position: *pos, Trade: &trade}
		} else {
			// No price reference: release margin, book no trade.
			a.marginUsed = a.marginUsed.Sub(pos.MarginUsed)
			pos.Status = StatusClosed
			delete(a.positions, pos.ID)
			delete(a.bySymbol, pos.Symbol)
			removed = RemovedPosition{Position: *pos}
		}
		report.Removed = append(report.Removed, removed)
	}

	symbols := make([]string, 0, len(venueBySymbol))
	for symbol := range venueBySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		ext := venueBySymbol[symbol]
		if id, held := a.bySymbol[symbol]; held {
			pos := a.positions[id]
			if positionMatches(pos, ext) {
				continue
			}
			a.applyExternalLocked(pos, ext)
			report.Updated = append(report.Updated, *pos)
			continue
		}

		lev := ext.Leverage
		if lev < 1 {
			lev = 1
		}
		levDec := decimal.NewFromInt(int64(lev))
		pos := &Position{
			ID:               uuid.NewString(),
			AgentID:          a.agentID,
			Symbol:           ext.Symbol,
			Side:             ext.Side,
			EntryPrice:       ext.EntryPrice,
			Quantity:         ext.Quantity,
			Leverage:         lev,
			MarginUsed:       ext.EntryPrice.Mul(ext.Quantity).Div(levDec),
			LiquidationPrice: liquidationPrice(ext.Side, ext.EntryPrice, levDec),
			MarkPrice:        ext.EntryPrice,
			ClientOrderID:    ext.ClientOrderID,
			Status:           StatusOpen,
			OpenedAt:         now,
		}
		a.positions[pos.ID] = pos
		a.bySymbol[pos.Symbol] = pos.ID
		a.marginUsed = a.marginUsed.Add(pos.MarginUsed)
		report.Added = append(report.Added, *pos)
	}

	if err := a.checkInvariantsLocked(); err != nil {
		return report, err
	}
	return report, nil
}

// Snapshot returns an immutable copy of the account.
func (a *Account) Snapshot() *View {
	a.mu.Lock()
	defer a.mu.Unlock()

	unrealised := decimal.Zero
	positions := make([]Position, 0, len(a.positions))
	for _, pos := range a.sortedOpenLocked() {
		unrealised = unrealised.Add(pos.UnrealisedPnL)
		positions = append(positions, *pos)
	}

	return &View{
		AgentID:         a.agentID,
		Balance:         a.balance,
		Equity:          a.balance.Add(unrealised),
		MarginUsed:      a.marginUsed,
		AvailableMargin: a.balance.Sub(a.marginUsed),
		RealisedPnL:     a.realisedPnL,
		UnrealisedPnL:   unrealised,
		TradeCount:      a.tradeCount,
		WinCount:        a.winCount,
		LossCount:       a.lossCount,
		CallsLastHour:   a.countCallsLocked(),
		Enabled:         a.enabled,
		DisabledReason:  a.disabledReason,
		LastDecisionAt:  a.lastDecisionAt,
		Positions:       positions,
	}
}

// RecentTrades returns up to n most recent trades, newest first.
func (a *Account) RecentTrades(n int) []Trade {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n <= 0 || n > len(a.trades) {
		n = len(a.trades)
	}
	out := make([]Trade, 0, n)
	for i := len(a.trades) - 1; i >= len(a.trades)-n; i-- {
		out = append(out, a.trades[i])
	}
	return out
}

// RecordDecision stamps the decision clock and the rolling call window.
func (a *Account) RecordDecision(at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastDecisionAt = at
	a.callTimes = append(a.callTimes, at)
	cutoff := at.Add(-callWindow)
	for len(a.callTimes) > 0 && a.callTimes[0].Before(cutoff) {
		a.callTimes = a.callTimes[1:]
	}
}

func (a *Account) countCallsLocked() int { return len(a.callTimes) }

// settleLocked closes pos at price and books the trade. Caller holds the
// lock.
func (a *Account) settleLocked(pos *Position, price decimal.Decimal, reason ExitReason, fee decimal.Decimal, closedAt time.Time) Trade {
	exit := price
	pnl := positionPnL(pos.Side, pos.EntryPrice, exit, pos.Quantity)
	if pnl.LessThan(pos.MarginUsed.Neg()) {
		exit = pos.LiquidationPrice
		pnl = positionPnL(pos.Side, pos.EntryPrice, exit, pos.Quantity)
	}
	pnlPct := decimal.Zero
	if pos.MarginUsed.Sign() > 0 {
		pnlPct = pnl.Div(pos.MarginUsed).Mul(oneHundred)
	}

	a.balance = a.balance.Add(pnl)
	a.marginUsed = a.marginUsed.Sub(pos.MarginUsed)
	a.realisedPnL = a.realisedPnL.Add(pnl)
	a.tradeCount++
	if pnl.Sign() > 0 {
		a.winCount++
	} else {
		a.lossCount++
	}

	pos.MarkPrice = exit
	pos.UnrealisedPnL = decimal.Zero
	pos.Status = StatusClosed
	if reason == ExitLiquidation {
		pos.Status = StatusLiquidated
	}
	delete(a.positions, pos.ID)
	delete(a.bySymbol, pos.Symbol)

	trade := Trade{
		ID:          ulid.Make().String(),
		AgentID:     a.agentID,
		PositionID:  pos.ID,
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exit,
		Quantity:    pos.Quantity,
		Leverage:    pos.Leverage,
		RealisedPnL: pnl,
		PnLPct:      pnlPct,
		Fees:        pos.Fees.Add(fee),
		ExitReason:  reason,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    closedAt,
	}
	a.trades = append(a.trades, trade)
	if len(a.trades) > tradeHistoryCap {
		a.trades = a.trades[len(a.trades)-tradeHistoryCap:]
	}
	return trade
}

func (a *Account) applyExternalLocked(pos *Position, ext ExternalPosition) {
	sideChanged := pos.Side != ext.Side
	pos.Side = ext.Side
	pos.EntryPrice = ext.EntryPrice
	pos.Quantity = ext.Quantity
	if ext.Leverage >= 1 {
		pos.Leverage = ext.Leverage
	}
	if ext.ClientOrderID != "" {
		pos.ClientOrderID = ext.ClientOrderID
	}

	lev := decimal.NewFromInt(int64(pos.Leverage))
	a.marginUsed = a.marginUsed.Sub(pos.MarginUsed)
	pos.MarginUsed = pos.EntryPrice.Mul(pos.Quantity).Div(lev)
	a.marginUsed = a.marginUsed.Add(pos.MarginUsed)
	pos.LiquidationPrice = liquidationPrice(pos.Side, pos.EntryPrice, lev)
	if sideChanged {
		// Trigger prices were derived for the old direction.
		pos.StopLossPrice = decimal.Zero
		pos.TakeProfitPrice = decimal.Zero
	}
	pos.UnrealisedPnL = positionPnL(pos.Side, pos.EntryPrice, pos.MarkPrice, pos.Quantity)
}

func (a *Account) sortedOpenLocked() []*Position {
	out := make([]*Position, 0, len(a.positions))
	for _, pos := range a.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// checkInvariantsLocked verifies the accounting identities after a mutation.
// A violation disables the account; state is left as-is for inspection.
func (a *Account) checkInvariantsLocked() error {
	fail := func(format string, args ...interface{}) error {
		detail := fmt.Sprintf(format, args...)
		a.enabled = false
		a.disabledReason = detail
		return fmt.Errorf("%w: agent %s: %s", ErrInvariant, a.agentID, detail)
	}

	if a.balance.Sign() < 0 {
		return fail("balance negative: %s", a.balance)
	}
	if a.marginUsed.Sign() < 0 {
		return fail("margin used negative: %s", a.marginUsed)
	}
	if a.marginUsed.GreaterThan(a.balance) {
		return fail("margin used %s exceeds balance %s", a.marginUsed, a.balance)
	}

	marginSum := decimal.Zero
	for id, pos := range a.positions {
		if pos.Status != StatusOpen {
			return fail("position %s in book with status %s", id, pos.Status)
		}
		if pos.Quantity.Sign() <= 0 {
			return fail("position %s quantity not positive: %s", id, pos.Quantity)
		}
		if pos.EntryPrice.Sign() <= 0 {
			return fail("position %s entry price not positive: %s", id, pos.EntryPrice)
		}
		if pos.Leverage < 1 {
			return fail("position %s leverage %d below 1", id, pos.Leverage)
		}
		want := pos.EntryPrice.Mul(pos.Quantity).Div(decimal.NewFromInt(int64(pos.Leverage)))
		if !pos.MarginUsed.Equal(want) {
			return fail("position %s margin %s != entry*qty/leverage %s", id, pos.MarginUsed, want)
		}
		if a.bySymbol[pos.Symbol] != id {
			return fail("symbol index inconsistent for %s", pos.Symbol)
		}
		marginSum = marginSum.Add(pos.MarginUsed)
	}
	if !marginSum.Equal(a.marginUsed) {
		return fail("margin used %s != position margin sum %s", a.marginUsed, marginSum)
	}
	if len(a.bySymbol) != len(a.positions) {
		return fail("symbol index size %d != position count %d", len(a.bySymbol), len(a.positions))
	}
	return nil
}

// positionPnL computes realised or unrealised P&L for a side: LONG profits
// when price rises, SHORT when it falls.
func positionPnL(side Side, entry, price, qty decimal.Decimal) decimal.Decimal {
	if side == SideShort {
		return entry.Sub(price).Mul(qty)
	}
	return price.Sub(entry).Mul(qty)
}

// liquidationPrice is the price at which loss equals margin:
// entry*(1 - 1/lev) for LONG, entry*(1 + 1/lev) for SHORT.
func liquidationPrice(side Side, entry, lev decimal.Decimal) decimal.Decimal {
	step := entry.Div(lev)
	if side == SideShort {
		return entry.Add(step)
	}
	return entry.Sub(step)
}

// triggerPrice derives the SL/TP price from a percent move. The pct is the
// magnitude of the move in the relevant direction: adverse for stops,
// favourable for take-profits.
func triggerPrice(side Side, entry, pct decimal.Decimal, stop bool) decimal.Decimal {
	delta := entry.Mul(pct.Div(oneHundred))
	adverse := stop
	if side == SideShort {
		adverse = !adverse
	}
	// For a LONG, adverse moves are down; for a SHORT they are up, which the
	// flip above folds into one branch.
	if adverse {
		return entry.Sub(delta)
	}
	return entry.Add(delta)
}

// crossedTrigger checks liquidation, then SL, then TP for one position.
func crossedTrigger(pos *Position, price decimal.Decimal) (ExitReason, bool) {
	if pos.Side == SideLong {
		if price.LessThanOrEqual(pos.LiquidationPrice) {
			return ExitLiquidation, true
		}
		if pos.StopLossPrice.Sign() > 0 && price.LessThanOrEqual(pos.StopLossPrice) {
			return ExitStopLoss, true
		}
		if pos.TakeProfitPrice.Sign() > 0 && price.GreaterThanOrEqual(pos.TakeProfitPrice) {
			return ExitTakeProfit, true
		}
		return "", false
	}

	if price.GreaterThanOrEqual(pos.LiquidationPrice) {
		return ExitLiquidation, true
	}
	if pos.StopLossPrice.Sign() > 0 && price.GreaterThanOrEqual(pos.StopLossPrice) {
		return ExitStopLoss, true
	}
	if pos.TakeProfitPrice.Sign() > 0 && price.LessThanOrEqual(pos.TakeProfitPrice) {
		return ExitTakeProfit, true
	}
	return "", false
}

func positionMatches(pos *Position, ext ExternalPosition) bool {
	if pos.Side != ext.Side {
		return false
	}
	if !pos.Quantity.Equal(ext.Quantity) {
		return false
	}
	if !pos.EntryPrice.Equal(ext.EntryPrice) {
		return false
	}
	if ext.Leverage >= 1 && pos.Leverage != ext.Leverage {
		return false
	}
	return true
}
