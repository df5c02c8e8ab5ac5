package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"arena-api/pkg/account"
	"arena-api/pkg/decision"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLimits() Limits {
	return Limits{
		Symbols:          []string{"BTCUSDT", "ETHUSDT", "BNBUSDT"},
		MaxOpenPositions: 2,
		MaxLeverage:      10,
		MinTradeSize:     d("10"),
		MaxTradeSize:     d("1000"),
		StopLossPctMin:   d("0.5"),
		StopLossPctMax:   d("20"),
		TakeProfitPctMin: d("0.5"),
		TakeProfitPctMax: d("50"),
	}
}

func flatView() *account.View {
	return &account.View{
		AgentID:         "alpha-1",
		Balance:         d("100"),
		Equity:          d("100"),
		AvailableMargin: d("100"),
	}
}

func viewWithPosition(symbol string) *account.View {
	v := flatView()
	v.Positions = []account.Position{{
		ID: "pos-1", AgentID: "alpha-1", Symbol: symbol,
		Side: account.SideLong, EntryPrice: d("3000"),
		Quantity: d("0.01"), Leverage: 5, MarginUsed: d("6"),
		Status: account.StatusOpen,
	}}
	v.MarginUsed = d("6")
	v.AvailableMargin = d("94")
	return v
}

func prices() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"BTCUSDT": d("50000"),
		"ETHUSDT": d("3000"),
		"BNBUSDT": d("500"),
	}
}

func buyDecision() *decision.Decision {
	return &decision.Decision{
		Action:        decision.ActionBuy,
		Symbol:        "ETHUSDT",
		QuantityUSD:   d("100"),
		Leverage:      5,
		StopLossPct:   d("2"),
		TakeProfitPct: d("6"),
	}
}

func TestValidateHoldAlwaysAccepted(t *testing.T) {
	res := Validate(&decision.Decision{Action: decision.ActionHold}, flatView(), nil, testLimits())
	require.True(t, res.OK)
	require.Empty(t, res.Reason)
}

func TestValidateSymbolAllowList(t *testing.T) {
	dec := buyDecision()
	dec.Symbol = "DOGEUSDT"
	res := Validate(dec, flatView(), prices(), testLimits())
	require.False(t, res.OK)
	require.Equal(t, "symbol_not_allowed", res.Reason)
}

func TestValidatePriceUnavailable(t *testing.T) {
	dec := buyDecision()
	res := Validate(dec, flatView(), map[string]decimal.Decimal{"BTCUSDT": d("50000")}, testLimits())
	require.False(t, res.OK)
	require.Equal(t, "price_unavailable", res.Reason)
}

func TestValidateCloseRequiresOpenPosition(t *testing.T) {
	dec := &decision.Decision{Action: decision.ActionClose, Symbol: "ETHUSDT"}

	res := Validate(dec, flatView(), prices(), testLimits())
	require.False(t, res.OK)
	require.Equal(t, "no_open_position", res.Reason)

	res = Validate(dec, viewWithPosition("ETHUSDT"), prices(), testLimits())
	require.True(t, res.OK)
}

func TestValidateMaxPositions(t *testing.T) {
	view := flatView()
	view.Positions = []account.Position{
		{Symbol: "BTCUSDT", Status: account.StatusOpen},
		{Symbol: "BNBUSDT", Status: account.StatusOpen},
	}
	res := Validate(buyDecision(), view, prices(), testLimits())
	require.False(t, res.OK)
	require.Equal(t, "max_positions_reached", res.Reason)
}

func TestValidateDuplicateSymbol(t *testing.T) {
	res := Validate(buyDecision(), viewWithPosition("ETHUSDT"), prices(), testLimits())
	require.False(t, res.OK)
	require.Equal(t, "duplicate_symbol", res.Reason)
}

func TestValidateQuantityBoundaries(t *testing.T) {
	cases := []struct {
		qty    string
		ok     bool
		reason string
	}{
		{"10", true, ""},
		{"1000", true, ""},
		{"9.99", false, "quantity_below_min"},
		{"1000.01", false, "quantity_above_max"},
	}
	for _, tc := range cases {
		dec := buyDecision()
		dec.QuantityUSD = d(tc.qty)
		res := Validate(dec, flatView(), prices(), testLimits())
		require.Equal(t, tc.ok, res.OK, "qty %s: %s", tc.qty, res.Detail)
		if !tc.ok {
			require.Equal(t, tc.reason, res.Reason)
		}
	}
}

func TestValidateLeverageBoundaries(t *testing.T) {
	for _, lev := range []int{1, 10} {
		dec := buyDecision()
		dec.Leverage = lev
		res := Validate(dec, flatView(), prices(), testLimits())
		require.True(t, res.OK, "leverage %d: %s", lev, res.Detail)
	}
	for _, lev := range []int{0, 11} {
		dec := buyDecision()
		dec.Leverage = lev
		res := Validate(dec, flatView(), prices(), testLimits())
		require.False(t, res.OK, "leverage %d", lev)
		require.Equal(t, "leverage_out_of_bounds", res.Reason)
	}
}

func TestValidateInsufficientMargin(t *testing.T) {
	dec := buyDecision()
	dec.QuantityUSD = d("1000")
	dec.Leverage = 5 // margin 200 > available 100
	res := Validate(dec, flatView(), prices(), testLimits())
	require.False(t, res.OK)
	require.Equal(t, "insufficient_margin", res.Reason)

	dec.Leverage = 10 // margin 100 == available 100: accepted
	res = Validate(dec, flatView(), prices(), testLimits())
	require.True(t, res.OK, res.Detail)

	// One cent over the free margin still fails.
	dec.QuantityUSD = d("500.05")
	dec.Leverage = 5 // margin 100.01
	res = Validate(dec, flatView(), prices(), testLimits())
	require.False(t, res.OK)
	require.Equal(t, "insufficient_margin", res.Reason)
}

func TestValidateStopLossBounds(t *testing.T) {
	dec := buyDecision()
	dec.StopLossPct = d("25")
	res := Validate(dec, flatView(), prices(), testLimits())
	require.False(t, res.OK)
	require.Equal(t, "stop_loss_out_of_bounds", res.Reason)

	// A negative distance would put the stop on the profit side of entry.
	dec.StopLossPct = d("-2")
	res = Validate(dec, flatView(), prices(), testLimits())
	require.False(t, res.OK)
	require.Equal(t, "stop_loss_out_of_bounds", res.Reason)

	dec.StopLossPct = decimal.Zero // absent is fine
	res = Validate(dec, flatView(), prices(), testLimits())
	require.True(t, res.OK)
}

func TestValidateTakeProfitBounds(t *testing.T) {
	dec := buyDecision()
	dec.TakeProfitPct = d("0.25")
	res := Validate(dec, flatView(), prices(), testLimits())
	require.False(t, res.OK)
	require.Equal(t, "take_profit_out_of_bounds", res.Reason)
}

func TestValidateOrderShortCircuits(t *testing.T) {
	// Both the allow-list and the size rule are violated; the earlier rule
	// must win.
	dec := buyDecision()
	dec.Symbol = "DOGEUSDT"
	dec.QuantityUSD = d("5")
	res := Validate(dec, flatView(), prices(), testLimits())
	require.Equal(t, "symbol_not_allowed", res.Reason)
}

func TestValidateIsPure(t *testing.T) {
	dec := buyDecision()
	view := flatView()
	p := prices()
	lim := testLimits()

	first := Validate(dec, view, p, lim)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Validate(dec, view, p, lim))
	}
}

func TestLimitsValidate(t *testing.T) {
	lim := testLimits()
	require.NoError(t, lim.Validate())

	bad := testLimits()
	bad.Symbols = nil
	require.Error(t, bad.Validate())

	bad = testLimits()
	bad.MaxTradeSize = d("1")
	require.Error(t, bad.Validate())

	bad = testLimits()
	bad.StopLossPctMin = decimal.Zero
	require.Error(t, bad.Validate())
}
