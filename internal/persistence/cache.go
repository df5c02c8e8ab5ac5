package persistence

import (
	"context"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	cachekeys "arena-api/internal/cache"
	"arena-api/pkg/account"
	"arena-api/pkg/arena"
	"arena-api/pkg/market"
)

// positionCacheEntry is the per-symbol record kept in the positions hash.
// Money fields are decimal strings so cache round-trips never lose precision.
type positionCacheEntry struct {
	ID               string `json:"id"`
	Symbol           string `json:"symbol"`
	Side             string `json:"side"`
	Quantity         string `json:"quantity"`
	EntryPrice       string `json:"entry_price"`
	MarkPrice        string `json:"mark_price,omitempty"`
	Leverage         int    `json:"leverage"`
	MarginUsed       string `json:"margin_used"`
	UnrealisedPnL    string `json:"unrealised_pnl,omitempty"`
	StopLossPrice    string `json:"stop_loss_price,omitempty"`
	TakeProfitPrice  string `json:"take_profit_price,omitempty"`
	LiquidationPrice string `json:"liquidation_price,omitempty"`
	UpdatedAtMs      int64  `json:"updated_at_ms"`
}

type tradeCacheEntry struct {
	ID          string `json:"id"`
	AgentID     string `json:"agent_id"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Quantity    string `json:"quantity"`
	EntryPrice  string `json:"entry_price"`
	ExitPrice   string `json:"exit_price"`
	RealisedPnL string `json:"realised_pnl"`
	PnLPct      string `json:"pnl_pct"`
	Leverage    int    `json:"leverage"`
	ExitReason  string `json:"exit_reason"`
	ClosedAtMs  int64  `json:"closed_at_ms"`
}

type cycleCacheEntry struct {
	CycleID    string `json:"cycle_id"`
	Seq        uint64 `json:"seq"`
	StartedAt  int64  `json:"started_at_ms"`
	FinishedAt int64  `json:"finished_at_ms"`
	AgentsRun  int    `json:"agents_run"`
	Executed   int    `json:"executed"`
	Held       int    `json:"held"`
	Rejected   int    `json:"rejected"`
	Failed     int    `json:"failed"`
	Triggers   int    `json:"triggers"`
	Error      string `json:"error,omitempty"`
}

func positionEntry(pos account.Position) positionCacheEntry {
	entry := positionCacheEntry{
		ID:          pos.ID,
		Symbol:      pos.Symbol,
		Side:        string(pos.Side),
		Quantity:    pos.Quantity.String(),
		EntryPrice:  pos.EntryPrice.String(),
		Leverage:    pos.Leverage,
		MarginUsed:  pos.MarginUsed.String(),
		UpdatedAtMs: time.Now().UTC().UnixMilli(),
	}
	if pos.MarkPrice.Sign() > 0 {
		entry.MarkPrice = pos.MarkPrice.String()
		entry.UnrealisedPnL = pos.UnrealisedPnL.String()
	}
	if pos.StopLossPrice.Sign() > 0 {
		entry.StopLossPrice = pos.StopLossPrice.String()
	}
	if pos.TakeProfitPrice.Sign() > 0 {
		entry.TakeProfitPrice = pos.TakeProfitPrice.String()
	}
	if pos.LiquidationPrice.Sign() > 0 {
		entry.LiquidationPrice = pos.LiquidationPrice.String()
	}
	return entry
}

// cacheOpenPosition upserts or removes one symbol in the per-agent positions
// hash. A nil entry removes the symbol.
func (s *Service) cacheOpenPosition(ctx context.Context, agentID, symbol string, entry *positionCacheEntry) {
	if s == nil || s.cache == nil {
		return
	}
	key := cachekeys.PositionsHashKey(agentID)
	payload := make(map[string]positionCacheEntry)
	if err := s.cache.GetCtx(ctx, key, &payload); err != nil && !s.cache.IsNotFound(err) {
		logx.WithContext(ctx).Errorf("arenapersist: load positions cache key=%s err=%v", key, err)
		return
	}
	if payload == nil {
		payload = make(map[string]positionCacheEntry)
	}
	upSymbol := strings.ToUpper(strings.TrimSpace(symbol))
	if upSymbol == "" {
		return
	}
	if entry == nil {
		delete(payload, upSymbol)
	} else {
		if entry.Symbol == "" {
			entry.Symbol = upSymbol
		}
		payload[upSymbol] = *entry
	}
	if len(payload) == 0 {
		if err := s.cache.DelCtx(ctx, key); err != nil && !s.cache.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("arenapersist: del positions cache key=%s err=%v", key, err)
		}
		return
	}
	ttl := s.ttlDuration(s.ttl.Positions())
	if err := s.cache.SetWithExpireCtx(ctx, key, payload, ttl); err != nil {
		logx.WithContext(ctx).Errorf("arenapersist: set positions cache key=%s err=%v", key, err)
	}
}

// persistPositionCache replaces the whole per-agent positions hash with the
// authoritative view taken at cycle end.
func (s *Service) persistPositionCache(ctx context.Context, agentID string, positions []account.Position) {
	if s == nil || s.cache == nil {
		return
	}
	key := cachekeys.PositionsHashKey(agentID)
	if len(positions) == 0 {
		if err := s.cache.DelCtx(ctx, key); err != nil && !s.cache.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("arenapersist: del positions cache key=%s err=%v", key, err)
		}
		return
	}
	payload := make(map[string]positionCacheEntry, len(positions))
	for _, pos := range positions {
		symbol := strings.ToUpper(strings.TrimSpace(pos.Symbol))
		if symbol == "" {
			continue
		}
		payload[symbol] = positionEntry(pos)
	}
	ttl := s.ttlDuration(s.ttl.Positions())
	if err := s.cache.SetWithExpireCtx(ctx, key, payload, ttl); err != nil {
		logx.WithContext(ctx).Errorf("arenapersist: set positions cache key=%s err=%v", key, err)
	}
}

// appendRecentTrade prepends a settled trade and caps the cached list.
func (s *Service) appendRecentTrade(ctx context.Context, agentID string, entry tradeCacheEntry) {
	if s == nil || s.cache == nil {
		return
	}
	key := cachekeys.TradesRecentKey(agentID)
	var payload []tradeCacheEntry
	if err := s.cache.GetCtx(ctx, key, &payload); err != nil && !s.cache.IsNotFound(err) {
		logx.WithContext(ctx).Errorf("arenapersist: load trades cache key=%s err=%v", key, err)
		return
	}
	payload = append([]tradeCacheEntry{entry}, payload...)
	if len(payload) > recentTradesLimit {
		payload = payload[:recentTradesLimit]
	}
	ttl := s.ttlDuration(s.ttl.TradesRecent())
	if err := s.cache.SetWithExpireCtx(ctx, key, payload, ttl); err != nil {
		logx.WithContext(ctx).Errorf("arenapersist: set trades cache key=%s err=%v", key, err)
	}
}

func (s *Service) cacheAccountView(ctx context.Context, view *account.View) {
	if s == nil || s.cache == nil || view == nil {
		return
	}
	key := cachekeys.AccountKey(view.AgentID)
	ttl := s.ttlDuration(s.ttl.Account())
	if err := s.cache.SetWithExpireCtx(ctx, key, view, ttl); err != nil {
		logx.WithContext(ctx).Errorf("arenapersist: set account cache key=%s err=%v", key, err)
	}
}

func (s *Service) cacheMarketSnapshot(ctx context.Context, snap *market.Snapshot) {
	if s == nil || s.cache == nil || snap == nil {
		return
	}
	key := cachekeys.MarketSnapshotKey(snap.Symbol)
	ttl := s.ttlDuration(s.ttl.MarketSnapshot())
	if err := s.cache.SetWithExpireCtx(ctx, key, snap, ttl); err != nil {
		logx.WithContext(ctx).Errorf("arenapersist: set market cache key=%s err=%v", key, err)
	}
}

func (s *Service) cacheLastCycle(ctx context.Context, rec arena.CycleRecord) {
	if s == nil || s.cache == nil {
		return
	}
	key := cachekeys.CycleLastKey()
	entry := cycleCacheEntry{
		CycleID:    rec.CycleID,
		Seq:        rec.Seq,
		StartedAt:  rec.StartedAt.UTC().UnixMilli(),
		FinishedAt: rec.FinishedAt.UTC().UnixMilli(),
		AgentsRun:  rec.AgentsRun,
		Executed:   rec.Executed,
		Held:       rec.Held,
		Rejected:   rec.Rejected,
		Failed:     rec.Failed,
		Triggers:   rec.Triggers,
		Error:      rec.Error,
	}
	ttl := s.ttlDuration(s.ttl.CycleLast())
	if err := s.cache.SetWithExpireCtx(ctx, key, entry, ttl); err != nil {
		logx.WithContext(ctx).Errorf("arenapersist: set cycle cache key=%s err=%v", key, err)
	}
}

// CachedAccountView serves the cycle-end account view without touching
// Postgres. ok is false on a miss.
func (s *Service) CachedAccountView(ctx context.Context, agentID string) (*account.View, bool) {
	if s == nil || s.cache == nil {
		return nil, false
	}
	key := cachekeys.AccountKey(agentID)
	var view account.View
	if err := s.cache.GetCtx(ctx, key, &view); err != nil {
		if !s.cache.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("arenapersist: load account cache key=%s err=%v", key, err)
		}
		return nil, false
	}
	return &view, true
}

// CachedMarketSnapshot serves the latest audited snapshot for a symbol.
func (s *Service) CachedMarketSnapshot(ctx context.Context, symbol string) (*market.Snapshot, bool) {
	if s == nil || s.cache == nil {
		return nil, false
	}
	key := cachekeys.MarketSnapshotKey(symbol)
	var snap market.Snapshot
	if err := s.cache.GetCtx(ctx, key, &snap); err != nil {
		if !s.cache.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("arenapersist: load market cache key=%s err=%v", key, err)
		}
		return nil, false
	}
	return &snap, true
}

func (s *Service) ttlDuration(value time.Duration) time.Duration {
	if value <= 0 {
		return defaultCacheTTL
	}
	return value
}
