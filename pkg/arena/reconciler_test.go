package arena

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-api/pkg/account"
	"arena-api/pkg/market"
	"arena-api/pkg/venue"
)

func reconcilerFixture(t *testing.T, agentIDs ...string) (*Reconciler, *Registry, *stubVenue, *market.Service) {
	t.Helper()
	cfg := writeTestConfig(t, agentIDs...)
	reg, err := NewRegistry(cfg)
	require.NoError(t, err)

	stub := newStubVenue()
	stub.setMark("BTCUSDT", dec("50000"))
	stub.setMark("ETHUSDT", dec("3000"))
	stub.setMark("DOGEUSDT", dec("0.1"))

	mkt, err := market.NewService(stub, nil)
	require.NoError(t, err)

	rec := NewReconciler(stub, reg, mkt, WithReconcilerClock(testClock(testEpoch)))
	return rec, reg, stub, mkt
}

func primeMarket(t *testing.T, mkt *market.Service, symbols ...string) {
	t.Helper()
	_, err := mkt.Snapshot(context.Background(), symbols)
	require.NoError(t, err)
}

func TestReconcileAdoptsOrphan(t *testing.T) {
	rec, reg, stub, _ := reconcilerFixture(t, "alpha")
	agent, _ := reg.Get("alpha")

	tag := ComposeTag("alpha", "BTCUSDT", time.UnixMilli(1700000000000))
	stub.positions = []venue.VenuePosition{{
		Symbol:        "BTCUSDT",
		Side:          venue.PositionLong,
		Quantity:      dec("0.002"),
		EntryPrice:    dec("50000"),
		Leverage:      5,
		ClientOrderID: tag,
	}}

	report, err := rec.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Zero(t, report.Removed)
	assert.Zero(t, report.Unowned)
	require.Len(t, report.AddedPositions, 1)
	assert.Equal(t, "alpha", report.AddedPositions[0].AgentID)

	view := agent.Account().Snapshot()
	require.Len(t, view.Positions, 1)
	pos := view.Positions[0]
	assert.Equal(t, "BTCUSDT", pos.Symbol)
	assert.Equal(t, account.SideLong, pos.Side)
	assert.Equal(t, tag, pos.ClientOrderID)
	assert.True(t, pos.MarginUsed.Equal(dec("20")), "got %s", pos.MarginUsed)
}

func TestReconcileRemovesStaleAndSettles(t *testing.T) {
	rec, reg, stub, mkt := reconcilerFixture(t, "alpha")
	agent, _ := reg.Get("alpha")

	exec := NewTradeExecutor(stub, writeTestConfig(t, "alpha").RiskLimits(), WithExecutorClock(testClock(testEpoch)))
	res := exec.Execute(context.Background(), agent, buyDecision(), testPrices())
	require.Equal(t, StatusExecuted, res.Outcome)

	// Venue price has moved up before the position vanished from the venue.
	stub.clearPositions()
	stub.setMark("BTCUSDT", dec("51000"))
	primeMarket(t, mkt, "BTCUSDT")

	report, err := rec.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	require.Len(t, report.Trades, 1)

	trade := report.Trades[0].Trade
	assert.Equal(t, account.ExitReconcileRemoved, trade.ExitReason)
	assert.True(t, trade.ExitPrice.Equal(dec("51000")))
	assert.True(t, trade.RealisedPnL.Equal(dec("2")), "got %s", trade.RealisedPnL)

	view := agent.Account().Snapshot()
	assert.Empty(t, view.Positions)
	assert.True(t, view.Balance.Equal(dec("10002")))
}

func TestReconcileRemovalWithoutPriceReleasesMargin(t *testing.T) {
	rec, reg, stub, _ := reconcilerFixture(t, "alpha")
	agent, _ := reg.Get("alpha")

	exec := NewTradeExecutor(stub, writeTestConfig(t, "alpha").RiskLimits(), WithExecutorClock(testClock(testEpoch)))
	res := exec.Execute(context.Background(), agent, buyDecision(), testPrices())
	require.Equal(t, StatusExecuted, res.Outcome)

	// No cached market data: the removal releases margin without a trade.
	stub.clearPositions()
	report, err := rec.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Removed)
	assert.Empty(t, report.Trades)

	view := agent.Account().Snapshot()
	assert.Empty(t, view.Positions)
	assert.True(t, view.Balance.Equal(dec("10000")))
	assert.True(t, view.MarginUsed.IsZero())
}

func TestReconcileCountsUnowned(t *testing.T) {
	rec, reg, stub, _ := reconcilerFixture(t, "alpha")

	stub.positions = []venue.VenuePosition{
		{Symbol: "BTCUSDT", Side: venue.PositionLong, Quantity: dec("1"), EntryPrice: dec("50000"), Leverage: 2, ClientOrderID: "web_3J9x"},
		{Symbol: "ETHUSDT", Side: venue.PositionShort, Quantity: dec("1"), EntryPrice: dec("3000"), Leverage: 2, ClientOrderID: ComposeTag("ghost", "ETHUSDT", testEpoch)},
	}

	report, err := rec.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Unowned)
	assert.Zero(t, report.Added)

	agent, _ := reg.Get("alpha")
	assert.Empty(t, agent.Account().Snapshot().Positions)
}

func TestReconcileFetchErrorAbortsUnchanged(t *testing.T) {
	rec, reg, stub, _ := reconcilerFixture(t, "alpha")
	agent, _ := reg.Get("alpha")

	exec := NewTradeExecutor(stub, writeTestConfig(t, "alpha").RiskLimits(), WithExecutorClock(testClock(testEpoch)))
	res := exec.Execute(context.Background(), agent, buyDecision(), testPrices())
	require.Equal(t, StatusExecuted, res.Outcome)

	stub.positionsErr = fmt.Errorf("venue 503")
	_, err := rec.Reconcile(context.Background())
	require.Error(t, err)

	// Book untouched.
	view := agent.Account().Snapshot()
	require.Len(t, view.Positions, 1)
	assert.True(t, view.MarginUsed.Equal(dec("20")))
}

func TestReconcileSecondPassIsStable(t *testing.T) {
	rec, reg, stub, _ := reconcilerFixture(t, "alpha")
	agent, _ := reg.Get("alpha")

	tag := ComposeTag("alpha", "BTCUSDT", time.UnixMilli(1700000000000))
	stub.positions = []venue.VenuePosition{{
		Symbol:        "BTCUSDT",
		Side:          venue.PositionLong,
		Quantity:      dec("0.002"),
		EntryPrice:    dec("50000"),
		Leverage:      5,
		ClientOrderID: tag,
	}}

	first, err := rec.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Added)

	second, err := rec.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, second.Added)
	assert.Zero(t, second.Removed)
	assert.Empty(t, second.Trades)

	require.Len(t, agent.Account().Snapshot().Positions, 1)
}

func TestReconcileRoutesMultipleAgents(t *testing.T) {
	rec, reg, stub, _ := reconcilerFixture(t, "alpha", "AGENT_B")

	stub.positions = []venue.VenuePosition{
		{Symbol: "BTCUSDT", Side: venue.PositionLong, Quantity: dec("0.002"), EntryPrice: dec("50000"), Leverage: 5,
			ClientOrderID: ComposeTag("alpha", "BTCUSDT", testEpoch)},
		{Symbol: "DOGEUSDT", Side: venue.PositionShort, Quantity: dec("1000"), EntryPrice: dec("0.1"), Leverage: 2,
			ClientOrderID: "AGENT_B_DOGEUSDT_1700000000000"},
	}

	report, err := rec.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Added)

	alpha, _ := reg.Get("alpha")
	require.Len(t, alpha.Account().Snapshot().Positions, 1)
	assert.Equal(t, "BTCUSDT", alpha.Account().Snapshot().Positions[0].Symbol)

	b, _ := reg.Get("AGENT_B")
	require.Len(t, b.Account().Snapshot().Positions, 1)
	pos := b.Account().Snapshot().Positions[0]
	assert.Equal(t, "DOGEUSDT", pos.Symbol)
	assert.Equal(t, account.SideShort, pos.Side)
}
