package arena

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"arena-api/pkg/account"
	"arena-api/pkg/llm"
	"arena-api/pkg/market"
	"arena-api/pkg/venue"
)

var testEpoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// stubVenue is an in-memory venue.Venue with scriptable failures. Every
// mutating call is captured for assertions.
type stubVenue struct {
	mu sync.Mutex

	marks      map[string]decimal.Decimal
	filters    map[string]*venue.SymbolFilters
	positions  []venue.VenuePosition
	commission decimal.Decimal

	positionsErr error
	leverageErr  error
	orderErr     error
	filtersErr   error
	zeroFill     bool

	orders    []venue.OrderRequest
	leverages map[string]int
}

func newStubVenue() *stubVenue {
	return &stubVenue{
		marks:     make(map[string]decimal.Decimal),
		filters:   make(map[string]*venue.SymbolFilters),
		leverages: make(map[string]int),
	}
}

func (v *stubVenue) setMark(symbol string, price decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.marks[symbol] = price
}

func (v *stubVenue) placedOrders() []venue.OrderRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]venue.OrderRequest, len(v.orders))
	copy(out, v.orders)
	return out
}

func (v *stubVenue) MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	price, ok := v.marks[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no mark for %s", symbol)
	}
	return price, nil
}

func (v *stubVenue) Ticker24h(ctx context.Context, symbol string) (*venue.Ticker24h, error) {
	price, err := v.MarkPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return &venue.Ticker24h{
		Symbol:    symbol,
		LastPrice: price,
		BidPrice:  price,
		AskPrice:  price,
		Volume:    dec("1000"),
	}, nil
}

func (v *stubVenue) Klines(ctx context.Context, symbol, interval string, limit int) ([]venue.Kline, error) {
	return nil, fmt.Errorf("klines unavailable")
}

func (v *stubVenue) SymbolFilters(ctx context.Context, symbol string) (*venue.SymbolFilters, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.filtersErr != nil {
		return nil, v.filtersErr
	}
	if f, ok := v.filters[symbol]; ok {
		return f, nil
	}
	return &venue.SymbolFilters{
		PriceTick:    dec("0.01"),
		QuantityStep: dec("0.001"),
		MinNotional:  dec("5"),
	}, nil
}

func (v *stubVenue) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.leverageErr != nil {
		return v.leverageErr
	}
	v.leverages[symbol] = leverage
	return nil
}

func (v *stubVenue) PlaceMarketOrder(ctx context.Context, req venue.OrderRequest) (*venue.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.orderErr != nil {
		return nil, v.orderErr
	}
	v.orders = append(v.orders, req)
	fill, ok := v.marks[req.Symbol]
	if !ok {
		return nil, fmt.Errorf("no mark for %s", req.Symbol)
	}
	if v.zeroFill {
		fill = decimal.Zero
	}
	v.applyFillLocked(req, fill)
	return &venue.OrderResult{
		VenueOrderID:  int64(len(v.orders)),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		FillPrice:     fill,
		ExecutedQty:   req.Quantity,
		Commission:    v.commission,
		Status:        "FILLED",
	}, nil
}

// applyFillLocked mirrors a filled order into the venue's position list so
// reconcile passes observe what was just traded. Reduce-only orders remove
// the matching position; opens append one.
func (v *stubVenue) applyFillLocked(req venue.OrderRequest, fill decimal.Decimal) {
	if req.ReduceOnly {
		reqAgent, _, _, reqErr := ParseTag(req.ClientOrderID)
		for i, pos := range v.positions {
			if pos.Symbol != req.Symbol {
				continue
			}
			posAgent, _, _, posErr := ParseTag(pos.ClientOrderID)
			if reqErr == nil && posErr == nil && posAgent != reqAgent {
				continue
			}
			v.positions = append(v.positions[:i], v.positions[i+1:]...)
			return
		}
		return
	}
	side := venue.PositionLong
	if req.Side == venue.SideSell {
		side = venue.PositionShort
	}
	v.positions = append(v.positions, venue.VenuePosition{
		Symbol:        req.Symbol,
		Side:          side,
		Quantity:      req.Quantity,
		EntryPrice:    fill,
		Leverage:      v.leverages[req.Symbol],
		ClientOrderID: req.ClientOrderID,
	})
}

func (v *stubVenue) clearPositions() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.positions = nil
}

func (v *stubVenue) OpenPositions(ctx context.Context) ([]venue.VenuePosition, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.positionsErr != nil {
		return nil, v.positionsErr
	}
	out := make([]venue.VenuePosition, len(v.positions))
	copy(out, v.positions)
	return out, nil
}

func (v *stubVenue) PositionMode(ctx context.Context) (bool, error) { return true, nil }

// scriptedLLM returns canned responses per model, or an error.
type scriptedLLM struct {
	mu        sync.Mutex
	responses map[string]string
	fallback  string
	err       error
	delay     time.Duration
	calls     int
}

func (c *scriptedLLM) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	delay := c.delay
	failure := c.err
	text := c.fallback
	if t, ok := c.responses[req.Model]; ok {
		text = t
	}
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failure != nil {
		return nil, failure
	}
	return &llm.ChatResponse{
		ID:    fmt.Sprintf("resp-%d", n),
		Model: req.Model,
		Choices: []llm.Choice{{
			Message:      llm.Message{Role: "assistant", Content: text},
			FinishReason: "stop",
		}},
		Usage: llm.Usage{PromptTokens: 120, CompletionTokens: 40, TotalTokens: 160},
	}, nil
}

func (c *scriptedLLM) ChatStream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamResponse, error) {
	return nil, fmt.Errorf("stream unsupported")
}

func (c *scriptedLLM) ChatStructured(ctx context.Context, req *llm.ChatRequest, target interface{}) (interface{}, error) {
	return nil, fmt.Errorf("structured unsupported")
}

func (c *scriptedLLM) GetConfig() *llm.Config { return &llm.Config{} }

func (c *scriptedLLM) Close() error { return nil }

func (c *scriptedLLM) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// memoryRecorder captures everything for assertions.
type memoryRecorder struct {
	mu         sync.Mutex
	decisions  []DecisionRecord
	rejections []RejectionRecord
	modelCalls []ModelCallRecord
	trades     []tradeRow
	positions  []positionRow
	accounts   []accountRow
	snapshots  []snapshotRow
	cycles     []CycleRecord
}

type tradeRow struct {
	AgentID string
	CycleID string
	Trade   account.Trade
}

type positionRow struct {
	AgentID  string
	CycleID  string
	Position account.Position
}

type accountRow struct {
	CycleID string
	View    *account.View
}

type snapshotRow struct {
	CycleID string
	Symbol  string
}

func newMemoryRecorder() *memoryRecorder { return &memoryRecorder{} }

func (r *memoryRecorder) RecordDecision(ctx context.Context, rec DecisionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, rec)
	return nil
}

func (r *memoryRecorder) RecordRejection(ctx context.Context, rec RejectionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejections = append(r.rejections, rec)
	return nil
}

func (r *memoryRecorder) RecordModelCall(ctx context.Context, rec ModelCallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modelCalls = append(r.modelCalls, rec)
	return nil
}

func (r *memoryRecorder) RecordTrade(ctx context.Context, agentID, cycleID string, trade account.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, tradeRow{AgentID: agentID, CycleID: cycleID, Trade: trade})
	return nil
}

func (r *memoryRecorder) UpsertPosition(ctx context.Context, agentID, cycleID string, pos account.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, positionRow{AgentID: agentID, CycleID: cycleID, Position: pos})
	return nil
}

func (r *memoryRecorder) RecordAccountState(ctx context.Context, cycleID string, view *account.View) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = append(r.accounts, accountRow{CycleID: cycleID, View: view})
	return nil
}

func (r *memoryRecorder) RecordMarketSnapshot(ctx context.Context, cycleID string, snap *market.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, snapshotRow{CycleID: cycleID, Symbol: snap.Symbol})
	return nil
}

func (r *memoryRecorder) RecordCycle(ctx context.Context, rec CycleRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, rec)
	return nil
}

// writeTestConfig lays a config file plus prompt templates in a temp dir and
// loads it. Agent ids double as models so scriptedLLM can address them.
func writeTestConfig(t *testing.T, agentIDs ...string) *Config {
	t.Helper()
	dir := t.TempDir()

	var agents strings.Builder
	for _, id := range agentIDs {
		prompt := filepath.Join(dir, id+".tmpl")
		require.NoError(t, os.WriteFile(prompt, []byte("You are {{.Name}}. Trade {{range .Symbols}}{{.}} {{end}}with discipline."), 0o644))
		fmt.Fprintf(&agents, "  - id: %s\n    name: %s\n    model: %s\n    prompt_file: %s.tmpl\n", id, strings.ToUpper(id), id, id)
	}

	raw := fmt.Sprintf(`arena:
  cycle_interval: 1m
  cycle_slack: 10s
  symbols: [BTCUSDT, ETHUSDT, DOGEUSDT]
  initial_balance: 10000
  max_open_positions: 5
  max_leverage: 20
  min_trade_size: 10
  max_trade_size: 50000
  stop_loss_pct_min: 0.5
  stop_loss_pct_max: 20
  take_profit_pct_min: 0.5
  take_profit_pct_max: 50
  rejection_sample_rate: 1.0
  recent_trades: 10
agents:
%s`, agents.String())

	cfg, err := LoadConfigFromReader(strings.NewReader(raw), dir)
	require.NoError(t, err)
	return cfg
}

func testClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Millisecond)
		return current
	}
}
