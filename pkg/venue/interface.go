package venue

import (
	"context"

	"github.com/shopspring/decimal"
)

// Venue abstracts a crypto futures venue. Implementations must be safe for
// concurrent use; every call honours the supplied context for cancellation.
type Venue interface {
	// MarkPrice returns the current mark price for a symbol.
	MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// Ticker24h returns rolling 24h statistics plus top-of-book quotes.
	Ticker24h(ctx context.Context, symbol string) (*Ticker24h, error)

	// Klines returns up to limit candles for the symbol at the given interval,
	// oldest first.
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)

	// SymbolFilters returns the trading rules for a symbol. Implementations
	// cache the filter directory; staleness is bounded by the configured TTL.
	SymbolFilters(ctx context.Context, symbol string) (*SymbolFilters, error)

	// SetLeverage sets the leverage for a symbol. Idempotent: setting the
	// current value succeeds.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// PlaceMarketOrder submits a market order and reports the fill.
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)

	// OpenPositions returns all open positions on the account with their
	// client order ids where recoverable.
	OpenPositions(ctx context.Context) ([]VenuePosition, error)

	// PositionMode reports whether the account trades in one-way position
	// mode. The arena requires one-way mode and refuses to start otherwise.
	PositionMode(ctx context.Context) (oneWay bool, err error)
}
