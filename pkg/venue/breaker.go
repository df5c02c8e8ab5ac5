package venue

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/zeromicro/go-zero/core/logx"
)

var _ Venue = (*BreakerVenue)(nil)

// BreakerVenue wraps a Venue with a circuit breaker so a failing venue stops
// absorbing cycle time. Rejections (4xx) count as successes for the breaker:
// the venue answered, it just said no.
type BreakerVenue struct {
	venue   Venue
	breaker *gobreaker.CircuitBreaker
}

// BreakerSettings configures the circuit breaker behaviour.
type BreakerSettings struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

// NewBreakerVenue wraps v with sensible breaker defaults.
func NewBreakerVenue(v Venue) *BreakerVenue {
	return NewBreakerVenueWithSettings(v, BreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	})
}

// NewBreakerVenueWithSettings wraps v with custom breaker settings.
func NewBreakerVenueWithSettings(v Venue, settings BreakerSettings) *BreakerVenue {
	gbSettings := gobreaker.Settings{
		Name:        "venue",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logx.Infof("venue breaker %s: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsReject(err)
		},
	}

	return &BreakerVenue{
		venue:   v,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// State exposes the current breaker state for status reporting.
func (b *BreakerVenue) State() gobreaker.State {
	return b.breaker.State()
}

func execBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("venue breaker: type assertion failed")
	}
	return v, nil
}

func (b *BreakerVenue) MarkPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return execBreaker(b.breaker, func() (decimal.Decimal, error) { return b.venue.MarkPrice(ctx, symbol) })
}

func (b *BreakerVenue) Ticker24h(ctx context.Context, symbol string) (*Ticker24h, error) {
	return execBreaker(b.breaker, func() (*Ticker24h, error) { return b.venue.Ticker24h(ctx, symbol) })
}

func (b *BreakerVenue) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	return execBreaker(b.breaker, func() ([]Kline, error) { return b.venue.Klines(ctx, symbol, interval, limit) })
}

func (b *BreakerVenue) SymbolFilters(ctx context.Context, symbol string) (*SymbolFilters, error) {
	return execBreaker(b.breaker, func() (*SymbolFilters, error) { return b.venue.SymbolFilters(ctx, symbol) })
}

func (b *BreakerVenue) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := execBreaker(b.breaker, func() (struct{}, error) {
		return struct{}{}, b.venue.SetLeverage(ctx, symbol, leverage)
	})
	return err
}

func (b *BreakerVenue) PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	return execBreaker(b.breaker, func() (*OrderResult, error) { return b.venue.PlaceMarketOrder(ctx, req) })
}

func (b *BreakerVenue) OpenPositions(ctx context.Context) ([]VenuePosition, error) {
	return execBreaker(b.breaker, func() ([]VenuePosition, error) { return b.venue.OpenPositions(ctx) })
}

func (b *BreakerVenue) PositionMode(ctx context.Context) (bool, error) {
	return execBreaker(b.breaker, func() (bool, error) { return b.venue.PositionMode(ctx) })
}
