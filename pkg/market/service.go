package market

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"arena-api/pkg/market/indicators"
	"arena-api/pkg/venue"
)

// indicatorMinCloses is the shortest close history that supports the full
// indicator set; SMA50 is the widest window.
const indicatorMinCloses = 50

// Service caches per-symbol market snapshots fetched from a venue. Entries
// are refreshed lazily once they age past the configured TTL; concurrent
// refreshes of the same symbol are coalesced into a single venue round-trip.
type Service struct {
	venue venue.Venue
	cfg   *Config
	now   func() time.Time

	mu      sync.RWMutex
	entries map[string]*Snapshot

	group singleflight.Group
}

// ServiceOption customises the snapshot service.
type ServiceOption func(*Service)

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a snapshot service over the supplied venue.
func NewService(v venue.Venue, cfg *Config, opts ...ServiceOption) (*Service, error) {
	if v == nil {
		return nil, fmt.Errorf("market: venue cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	svc := &Service{
		venue:   v,
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*Snapshot),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// PriceOf returns the mark price for a symbol, served from cache when the
// entry is within TTL.
func (s *Service) PriceOf(ctx context.Context, symbol string) (decimal.Decimal, error) {
	snap, err := s.SnapshotOf(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return snap.Price, nil
}

// SnapshotOf returns the snapshot for a single symbol, refreshing it when
// stale.
func (s *Service) SnapshotOf(ctx context.Context, symbol string) (*Snapshot, error) {
	if cached, ok := s.fresh(symbol); ok {
		return cached, nil
	}
	return s.refresh(ctx, symbol)
}

// Snapshot performs one coalesced refresh pass over the given symbols and
// returns the resulting map. Symbols whose fetch fails are absent from the
// result; their previous cache entries are left untouched.
func (s *Service) Snapshot(ctx context.Context, symbols []string) (map[string]*Snapshot, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("market: no symbols requested")
	}

	var (
		outMu sync.Mutex
		out   = make(map[string]*Snapshot, len(symbols))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrent)

	seen := make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}

		symbol := symbol
		g.Go(func() error {
			snap, err := s.SnapshotOf(gctx, symbol)
			if err != nil {
				// Tolerated: the symbol is simply absent this pass.
				return nil
			}
			outMu.Lock()
			out[symbol] = snap
			outMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// Indicators returns the computed indicator set for a symbol, or ErrNotReady
// when the kline history is still shorter than the widest window.
func (s *Service) Indicators(ctx context.Context, symbol string) (*Indicators, error) {
	snap, err := s.SnapshotOf(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if snap.Indicators == nil {
		return nil, ErrNotReady
	}
	ind := *snap.Indicators
	return &ind, nil
}

// Cached returns the last snapshot for a symbol without touching the venue,
// regardless of age. The reconciler uses it to price orphan exits.
func (s *Service) Cached(symbol string) (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.entries[symbol]
	if !ok {
		return nil, false
	}
	return snap.Clone(), true
}

// CachedAll returns every cached snapshot sorted by symbol.
func (s *Service) CachedAll() []*Snapshot {
	s.mu.RLock()
	out := make([]*Snapshot, 0, len(s.entries))
	for _, snap := range s.entries {
		out = append(out, snap.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (s *Service) fresh(symbol string) (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.entries[symbol]
	if !ok {
		return nil, false
	}
	if s.now().Sub(snap.FetchedAt) >= s.cfg.TTL {
		return nil, false
	}
	return snap.Clone(), true
}

func (s *Service) refresh(ctx context.Context, symbol string) (*Snapshot, error) {
	v, err, _ := s.group.Do(symbol, func() (interface{}, error) {
		// Re-check under the flight: a concurrent caller may have refreshed
		// the entry while this one waited on the group.
		if cached, ok := s.fresh(symbol); ok {
			return cached, nil
		}
		snap, err := s.fetch(ctx, symbol)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.entries[symbol] = snap
		s.mu.Unlock()
		return snap.Clone(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// fetch assembles a snapshot from the venue. Ticker and mark price failures
// fail the symbol; a kline failure only degrades the snapshot to one without
// indicators.
func (s *Service) fetch(ctx context.Context, symbol string) (*Snapshot, error) {
	mark, err := s.venue.MarkPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("market: mark price %s: %w", symbol, err)
	}
	ticker, err := s.venue.Ticker24h(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("market: ticker %s: %w", symbol, err)
	}

	snap := &Snapshot{
		Symbol:       symbol,
		Price:        mark,
		LastPrice:    ticker.LastPrice,
		Bid:          ticker.BidPrice,
		Ask:          ticker.AskPrice,
		Volume24h:    ticker.Volume,
		ChangePct24h: ticker.PriceChangePct,
		High24h:      ticker.HighPrice,
		Low24h:       ticker.LowPrice,
		FetchedAt:    s.now(),
	}

	klines, err := s.venue.Klines(ctx, symbol, s.cfg.KlineInterval, s.cfg.KlineLimit)
	if err != nil {
		return snap, nil
	}
	snap.KlineCount = len(klines)
	snap.Indicators = computeIndicators(klines)
	return snap, nil
}

// computeIndicators reduces kline closes to the indicator set, or nil when
// the history is too short.
func computeIndicators(klines []venue.Kline) *Indicators {
	if len(klines) < indicatorMinCloses {
		return nil
	}
	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close.InexactFloat64()
	}

	out := &Indicators{}
	if v, ok := indicators.Latest(indicators.RSI(closes, 14)); ok {
		out.RSI14 = v
	}
	macd, signal, hist := indicators.MACD(closes)
	if v, ok := indicators.Latest(macd); ok {
		out.MACD = v
	}
	if v, ok := indicators.Latest(signal); ok {
		out.MACDSignal = v
	}
	if v, ok := indicators.Latest(hist); ok {
		out.MACDHist = v
	}
	if v, ok := indicators.Latest(indicators.SMA(closes, 20)); ok {
		out.SMA20 = v
	}
	if v, ok := indicators.Latest(indicators.SMA(closes, 50)); ok {
		out.SMA50 = v
	}
	return out
}
