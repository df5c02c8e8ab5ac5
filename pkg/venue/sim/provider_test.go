package sim

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-api/pkg/venue"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestPlaceMarketOrderOpensLong(t *testing.T) {
	p := New()
	require.NoError(t, p.SetMarkPrice("ETHUSDT", dec(t, "3000")))
	require.NoError(t, p.SetLeverage(context.Background(), "ETHUSDT", 10))

	result, err := p.PlaceMarketOrder(context.Background(), venue.OrderRequest{
		Symbol:        "ETHUSDT",
		Side:          venue.SideBuy,
		Quantity:      dec(t, "0.5"),
		ClientOrderID: "AGENT_A_ETHUSDT_1700000000000",
	})
	require.NoError(t, err)
	assert.Equal(t, "FILLED", result.Status)
	assert.True(t, result.FillPrice.Equal(dec(t, "3000")))
	assert.True(t, result.ExecutedQty.Equal(dec(t, "0.5")))

	positions, err := p.OpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, venue.PositionLong, positions[0].Side)
	assert.True(t, positions[0].Quantity.Equal(dec(t, "0.5")))
	assert.True(t, positions[0].EntryPrice.Equal(dec(t, "3000")))
	assert.Equal(t, 10, positions[0].Leverage)
	assert.Equal(t, "AGENT_A_ETHUSDT_1700000000000", positions[0].ClientOrderID)
}

func TestPlaceMarketOrderReduceOnlyCloses(t *testing.T) {
	p := New()
	require.NoError(t, p.SetMarkPrice("BNBUSDT", dec(t, "500")))

	_, err := p.PlaceMarketOrder(context.Background(), venue.OrderRequest{
		Symbol:        "BNBUSDT",
		Side:          venue.SideSell,
		Quantity:      dec(t, "2"),
		ClientOrderID: "AGENT_B_BNBUSDT_1700000000000",
	})
	require.NoError(t, err)

	require.NoError(t, p.SetMarkPrice("BNBUSDT", dec(t, "550")))
	result, err := p.PlaceMarketOrder(context.Background(), venue.OrderRequest{
		Symbol:     "BNBUSDT",
		Side:       venue.SideBuy,
		Quantity:   dec(t, "2"),
		ReduceOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "FILLED", result.Status)
	assert.True(t, result.FillPrice.Equal(dec(t, "550")))

	positions, err := p.OpenPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)

	// Reduce-only against a flat book expires with zero fill.
	expired, err := p.PlaceMarketOrder(context.Background(), venue.OrderRequest{
		Symbol:     "BNBUSDT",
		Side:       venue.SideBuy,
		Quantity:   dec(t, "1"),
		ReduceOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "EXPIRED", expired.Status)
	assert.True(t, expired.ExecutedQty.IsZero())
}

func TestPlaceMarketOrderIncreaseAveragesEntry(t *testing.T) {
	p := New()
	require.NoError(t, p.SetMarkPrice("ETHUSDT", dec(t, "3000")))

	_, err := p.PlaceMarketOrder(context.Background(), venue.OrderRequest{
		Symbol:   "ETHUSDT",
		Side:     venue.SideBuy,
		Quantity: dec(t, "1"),
	})
	require.NoError(t, err)

	require.NoError(t, p.SetMarkPrice("ETHUSDT", dec(t, "3300")))
	_, err = p.PlaceMarketOrder(context.Background(), venue.OrderRequest{
		Symbol:   "ETHUSDT",
		Side:     venue.SideBuy,
		Quantity: dec(t, "1"),
	})
	require.NoError(t, err)

	positions, err := p.OpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].EntryPrice.Equal(dec(t, "3150")))
	assert.True(t, positions[0].Quantity.Equal(dec(t, "2")))
}

func TestReduceOnlyCannotIncrease(t *testing.T) {
	p := New()
	require.NoError(t, p.SetMarkPrice("ETHUSDT", dec(t, "3000")))

	_, err := p.PlaceMarketOrder(context.Background(), venue.OrderRequest{
		Symbol:   "ETHUSDT",
		Side:     venue.SideBuy,
		Quantity: dec(t, "1"),
	})
	require.NoError(t, err)

	_, err = p.PlaceMarketOrder(context.Background(), venue.OrderRequest{
		Symbol:     "ETHUSDT",
		Side:       venue.SideBuy,
		Quantity:   dec(t, "1"),
		ReduceOnly: true,
	})
	assert.Error(t, err)
}

func TestSeedPosition(t *testing.T) {
	p := New()
	p.SeedPosition(venue.VenuePosition{
		Symbol:        "DOGEUSDT",
		Side:          venue.PositionShort,
		Quantity:      dec(t, "1000"),
		EntryPrice:    dec(t, "0.10"),
		Leverage:      3,
		ClientOrderID: "AGENT_B_DOGEUSDT_1700000000000",
	})

	positions, err := p.OpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, venue.PositionShort, positions[0].Side)
	assert.True(t, positions[0].Quantity.Equal(dec(t, "1000")))
	assert.Equal(t, 3, positions[0].Leverage)
	assert.Equal(t, "AGENT_B_DOGEUSDT_1700000000000", positions[0].ClientOrderID)

	// Without an injected mark the entry price backs the quote.
	mark, err := p.MarkPrice(context.Background(), "DOGEUSDT")
	require.NoError(t, err)
	assert.True(t, mark.Equal(dec(t, "0.10")))
}

func TestPositionMode(t *testing.T) {
	p := New()

	oneWay, err := p.PositionMode(context.Background())
	require.NoError(t, err)
	assert.True(t, oneWay)

	p.SetHedgeMode(true)
	oneWay, err = p.PositionMode(context.Background())
	require.NoError(t, err)
	assert.False(t, oneWay)
}

func TestSymbolFilters(t *testing.T) {
	p := New()

	t.Run("defaults", func(t *testing.T) {
		filters, err := p.SymbolFilters(context.Background(), "ethusdt")
		require.NoError(t, err)
		assert.Equal(t, "ETHUSDT", filters.Symbol)
		assert.True(t, filters.QuantityStep.Equal(dec(t, "0.001")))
	})

	t.Run("override", func(t *testing.T) {
		p.SetSymbolFilters(venue.SymbolFilters{
			Symbol:       "BTCUSDT",
			PriceTick:    dec(t, "0.1"),
			QuantityStep: dec(t, "0.0001"),
			MinNotional:  dec(t, "100"),
		})
		filters, err := p.SymbolFilters(context.Background(), "BTCUSDT")
		require.NoError(t, err)
		assert.True(t, filters.MinNotional.Equal(dec(t, "100")))
	})
}

func TestKlinesSynthesized(t *testing.T) {
	p := New()
	require.NoError(t, p.SetMarkPrice("ETHUSDT", dec(t, "3000")))

	klines, err := p.Klines(context.Background(), "ETHUSDT", "3m", 5)
	require.NoError(t, err)
	require.Len(t, klines, 5)
	for _, k := range klines {
		assert.True(t, k.Close.Equal(dec(t, "3000")))
	}
	assert.True(t, klines[0].OpenTime.Before(klines[4].OpenTime))

	_, err = p.Klines(context.Background(), "ETHUSDT", "1d", 2)
	require.NoError(t, err)

	_, err = p.Klines(context.Background(), "ETHUSDT", "bogus", 2)
	assert.Error(t, err)
}

func TestSlippage(t *testing.T) {
	p := New(WithSlippage(dec(t, "0.001")))
	require.NoError(t, p.SetMarkPrice("ETHUSDT", dec(t, "3000")))

	result, err := p.PlaceMarketOrder(context.Background(), venue.OrderRequest{
		Symbol:   "ETHUSDT",
		Side:     venue.SideBuy,
		Quantity: dec(t, "1"),
	})
	require.NoError(t, err)
	assert.True(t, result.FillPrice.Equal(dec(t, "3003")))
}

func TestProviderRegistration(t *testing.T) {
	cfg := &venue.Config{
		Providers: map[string]*venue.ProviderConfig{
			"paper": {Type: "sim"},
		},
	}
	providers, err := cfg.BuildProviders()
	require.NoError(t, err)
	_, ok := providers["paper"].(*Provider)
	assert.True(t, ok)
}
