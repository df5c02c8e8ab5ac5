package sim

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"arena-api/pkg/venue"
)

var (
	fallbackPrice      = decimal.NewFromInt(100)
	defaultPriceTick   = decimal.RequireFromString("0.01")
	defaultQtyStep     = decimal.RequireFromString("0.001")
	defaultMinNotional = decimal.NewFromInt(5)
)

var _ venue.Venue = (*Provider)(nil)

// Provider is a paper-trading venue that keeps a one-way net position book
// in memory. Orders fill synchronously at the injected mark price.
type Provider struct {
	mu sync.Mutex

	marks     map[string]decimal.Decimal
	positions map[string]*positionState
	leverage  map[string]int
	filters   map[string]venue.SymbolFilters

	slippage  decimal.Decimal
	hedgeMode bool
	orderSeq  atomic.Int64
}

type positionState struct {
	Symbol        string
	Qty           decimal.Decimal // positive long, negative short
	Entry         decimal.Decimal
	ClientOrderID string
}

// ProviderOption customises the simulator.
type ProviderOption func(*Provider)

// WithSlippage applies a symmetric fill slippage fraction (0.002 = 20 bps).
func WithSlippage(slippage decimal.Decimal) ProviderOption {
	return func(p *Provider) {
		if slippage.Sign() > 0 {
			p.slippage = slippage
		}
	}
}

// New constructs a simulator with an empty book.
func New(opts ...ProviderOption) *Provider {
	p := &Provider{
		marks:     make(map[string]decimal.Decimal),
		positions: make(map[string]*positionState),
		leverage:  make(map[string]int),
		filters:   make(map[string]venue.SymbolFilters),
		slippage:  decimal.Zero,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func canonical(symbol string) string { return strings.ToUpper(strings.TrimSpace(symbol)) }

// SetMarkPrice injects the reference price used for fills and quotes.
func (p *Provider) SetMarkPrice(symbol string, price decimal.Decimal) error {
	if price.Sign() <= 0 {
		return fmt.Errorf("sim: mark price must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marks[canonical(symbol)] = price
	return nil
}

// SetSymbolFilters overrides the default trading rules for symbol.
func (p *Provider) SetSymbolFilters(filters venue.SymbolFilters) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filters[canonical(filters.Symbol)] = filters
}

// SeedPosition installs a venue-side position directly, bypassing order flow.
func (p *Provider) SeedPosition(pos venue.VenuePosition) {
	qty := pos.Quantity
	if pos.Side == venue.PositionShort {
		qty = qty.Neg()
	}
	symbol := canonical(pos.Symbol)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[symbol] = &positionState{
		Symbol:        symbol,
		Qty:           qty,
		Entry:         pos.EntryPrice,
		ClientOrderID: pos.ClientOrderID,
	}
	if pos.Leverage > 0 {
		p.leverage[symbol] = pos.Leverage
	}
}

// SetHedgeMode flips the reported position mode.
func (p *Provider) SetHedgeMode(hedge bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hedgeMode = hedge
}

// MarkPrice returns the injected mark, the entry price of an open position,
// or the fallback constant, in that order.
func (p *Provider) MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolveMarkLocked(canonical(symbol)), nil
}

// Ticker24h synthesizes a quote around the current mark.
func (p *Provider) Ticker24h(ctx context.Context, symbol string) (*venue.Ticker24h, error) {
	p.mu.Lock()
	mark := p.resolveMarkLocked(canonical(symbol))
	p.mu.Unlock()

	spread := mark.Mul(decimal.RequireFromString("0.0001"))
	return &venue.Ticker24h{
		Symbol:    canonical(symbol),
		LastPrice: mark,
		BidPrice:  mark.Sub(spread),
		AskPrice:  mark.Add(spread),
		HighPrice: mark,
		LowPrice:  mark,
	}, nil
}

// Klines synthesizes flat candles at the current mark, newest last.
func (p *Provider) Klines(ctx context.Context, symbol, interval string, limit int) ([]venue.Kline, error) {
	step, err := parseInterval(interval)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1
	}

	p.mu.Lock()
	mark := p.resolveMarkLocked(canonical(symbol))
	p.mu.Unlock()

	end := time.Now().Truncate(step)
	klines := make([]venue.Kline, 0, limit)
	for i := limit; i > 0; i-- {
		open := end.Add(-time.Duration(i) * step)
		klines = append(klines, venue.Kline{
			OpenTime:  open,
			Open:      mark,
			High:      mark,
			Low:       mark,
			Close:     mark,
			Volume:    decimal.Zero,
			CloseTime: open.Add(step - time.Millisecond),
		})
	}
	return klines, nil
}

func parseInterval(interval string) (time.Duration, error) {
	if strings.HasSuffix(interval, "d") {
		days, err := time.ParseDuration(strings.TrimSuffix(interval, "d") + "h")
		if err != nil {
			return 0, fmt.Errorf("sim: invalid interval %q", interval)
		}
		return days * 24, nil
	}
	d, err := time.ParseDuration(interval)
	if err != nil {
		return 0, fmt.Errorf("sim: invalid interval %q", interval)
	}
	return d, nil
}

// SymbolFilters returns configured filters or permissive defaults.
func (p *Provider) SymbolFilters(ctx context.Context, symbol string) (*venue.SymbolFilters, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if f, ok := p.filters[canonical(symbol)]; ok {
		return &f, nil
	}
	return &venue.SymbolFilters{
		Symbol:       canonical(symbol),
		PriceTick:    defaultPriceTick,
		QuantityStep: defaultQtyStep,
		MinNotional:  defaultMinNotional,
	}, nil
}

// SetLeverage records leverage for later position reports.
func (p *Provider) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage <= 0 {
		return fmt.Errorf("sim: leverage must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leverage[canonical(symbol)] = leverage
	return nil
}

// PlaceMarketOrder fills immediately at the mark price adjusted by slippage.
// A reduce-only order against a flat book expires with zero fill rather than
// erroring, matching live venue behavior closely enough for paper trading.
func (p *Provider) PlaceMarketOrder(ctx context.Context, req venue.OrderRequest) (*venue.OrderResult, error) {
	if req.Quantity.Sign() <= 0 {
		return nil, fmt.Errorf("sim: order quantity must be positive")
	}
	symbol := canonical(req.Symbol)

	p.mu.Lock()
	defer p.mu.Unlock()

	price := p.resolveMarkLocked(symbol)
	if p.slippage.Sign() > 0 {
		adj := price.Mul(p.slippage)
		if req.Side == venue.SideBuy {
			price = price.Add(adj)
		} else {
			price = price.Sub(adj)
		}
	}

	filled, err := p.applyOrderLocked(symbol, price, req)
	if err != nil {
		return nil, err
	}

	status := "FILLED"
	if filled.Sign() == 0 {
		status = "EXPIRED"
	}
	return &venue.OrderResult{
		VenueOrderID:  p.orderSeq.Add(1),
		ClientOrderID: req.ClientOrderID,
		Symbol:        symbol,
		Side:          req.Side,
		FillPrice:     price,
		ExecutedQty:   filled,
		Status:        status,
	}, nil
}

func (p *Provider) applyOrderLocked(symbol string, price decimal.Decimal, req venue.OrderRequest) (decimal.Decimal, error) {
	state := p.positions[symbol]
	if req.ReduceOnly && (state == nil || state.Qty.Sign() == 0) {
		return decimal.Zero, nil
	}

	delta := req.Quantity
	if req.Side == venue.SideSell {
		delta = delta.Neg()
	}

	if req.ReduceOnly {
		if state.Qty.Sign() == delta.Sign() {
			return decimal.Zero, fmt.Errorf("sim: reduce-only order would increase position")
		}
		if delta.Abs().GreaterThan(state.Qty.Abs()) {
			delta = state.Qty.Neg()
		}
	}

	if state == nil {
		state = &positionState{Symbol: symbol}
		p.positions[symbol] = state
	}

	oldQty := state.Qty
	newQty := oldQty.Add(delta)

	switch {
	case oldQty.Sign() == 0:
		state.Entry = price
		state.ClientOrderID = req.ClientOrderID
	case oldQty.Sign() == delta.Sign():
		notional := oldQty.Mul(state.Entry).Add(delta.Mul(price))
		state.Entry = notional.Div(newQty)
	default:
		if newQty.Sign() != 0 && oldQty.Sign() != newQty.Sign() {
			// Flipped through flat: the remainder is a fresh position.
			state.Entry = price
			state.ClientOrderID = req.ClientOrderID
		}
	}

	state.Qty = newQty
	if state.Qty.Sign() == 0 {
		delete(p.positions, symbol)
	}
	p.marks[symbol] = price
	return delta.Abs(), nil
}

// OpenPositions reports the current book.
func (p *Provider) OpenPositions(ctx context.Context) ([]venue.VenuePosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	positions := make([]venue.VenuePosition, 0, len(p.positions))
	for symbol, state := range p.positions {
		side := venue.PositionLong
		if state.Qty.Sign() < 0 {
			side = venue.PositionShort
		}
		leverage := p.leverage[symbol]
		if leverage == 0 {
			leverage = 1
		}
		positions = append(positions, venue.VenuePosition{
			Symbol:        symbol,
			Side:          side,
			Quantity:      state.Qty.Abs(),
			EntryPrice:    state.Entry,
			Leverage:      leverage,
			ClientOrderID: state.ClientOrderID,
		})
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })
	return positions, nil
}

// PositionMode reports one-way unless hedge mode was forced on.
func (p *Provider) PositionMode(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.hedgeMode, nil
}

func (p *Provider) resolveMarkLocked(symbol string) decimal.Decimal {
	if price, ok := p.marks[symbol]; ok && price.Sign() > 0 {
		return price
	}
	if state, ok := p.positions[symbol]; ok && state.Entry.Sign() > 0 {
		return state.Entry
	}
	return fallbackPrice
}

// Registry hook for venue.Config.
func init() {
	venue.Register("sim", func(name string, cfg *venue.ProviderConfig) (venue.Venue, error) {
		return New(), nil
	})
}
