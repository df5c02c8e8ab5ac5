// Package persistence mirrors arena state changes into Postgres and Redis.
// Every write is best-effort from the trading path's point of view: the
// pipeline keeps running when the database is down, and replayed cycles are
// absorbed by upserts and unique-violation tolerance.
package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"

	cachekeys "arena-api/internal/cache"
	"arena-api/internal/store"
	"arena-api/pkg/account"
	"arena-api/pkg/arena"
	"arena-api/pkg/market"
)

var _ arena.Recorder = (*Service)(nil)

const (
	recentTradesLimit = 100
	defaultCacheTTL   = time.Minute
	retryBackoff      = 100 * time.Millisecond
)

// Service wires Postgres + Redis collaborators behind the arena recorder
// hooks.
type Service struct {
	repos *store.Set
	cache gocache.Cache
	ttl   cachekeys.TTLSet
}

// Config enumerates dependencies needed to persist arena events.
type Config struct {
	Repos *store.Set
	Cache gocache.Cache
	TTL   cachekeys.TTLSet
}

// NewService returns a concrete recorder when mandatory dependencies are
// present, nil otherwise.
func NewService(cfg Config) *Service {
	if cfg.Repos == nil {
		return nil
	}
	return &Service{
		repos: cfg.Repos,
		cache: cfg.Cache,
		ttl:   cfg.TTL,
	}
}

// withRetry runs fn and retries once after a short backoff. Transient
// database hiccups should not cost a cycle its audit trail.
func (s *Service) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return err
	case <-time.After(retryBackoff):
	}
	logx.WithContext(ctx).Errorf("arenapersist: %s retrying err=%v", op, err)
	return fn(ctx)
}

// RecordDecision persists one agent decision attempt.
func (s *Service) RecordDecision(ctx context.Context, rec arena.DecisionRecord) error {
	if s == nil || s.repos == nil {
		return nil
	}
	row := store.DecisionRecord{
		CycleID:   rec.CycleID,
		AgentID:   rec.AgentID,
		Model:     rec.Model,
		Status:    string(rec.Status),
		RawText:   rec.RawText,
		Error:     rec.Error,
		TokensIn:  rec.TokensIn,
		TokensOut: rec.TokensOut,
		LatencyMs: rec.LatencyMs,
		CreatedAt: rec.CreatedAt,
	}
	if rec.Decision != nil {
		action := string(rec.Decision.Action)
		row.Action = &action
		if rec.Decision.Symbol != "" {
			symbol := rec.Decision.Symbol
			row.Symbol = &symbol
		}
		if data, err := json.Marshal(rec.Decision); err == nil {
			row.DecisionJSON = data
		}
	}
	return s.withRetry(ctx, "record decision", func(ctx context.Context) error {
		return s.repos.Decisions.Insert(ctx, row)
	})
}

// RecordRejection persists one sampled risk rejection.
func (s *Service) RecordRejection(ctx context.Context, rec arena.RejectionRecord) error {
	if s == nil || s.repos == nil {
		return nil
	}
	row := store.RejectionRecord{
		CycleID:   rec.CycleID,
		AgentID:   rec.AgentID,
		Check:     rec.Check,
		Reason:    rec.Reason,
		Detail:    rec.Detail,
		Price:     rec.Price,
		CreatedAt: rec.CreatedAt,
	}
	if rec.Decision != nil {
		if data, err := json.Marshal(rec.Decision); err == nil {
			row.DecisionJSON = data
		}
	}
	return s.withRetry(ctx, "record rejection", func(ctx context.Context) error {
		return s.repos.Rejections.Insert(ctx, row)
	})
}

// RecordModelCall persists token and latency cost for one LLM invocation.
func (s *Service) RecordModelCall(ctx context.Context, rec arena.ModelCallRecord) error {
	if s == nil || s.repos == nil {
		return nil
	}
	row := store.ModelCallRecord{
		CycleID:      rec.CycleID,
		AgentID:      rec.AgentID,
		Model:        rec.Model,
		PromptDigest: rec.PromptDigest,
		TokensIn:     rec.TokensIn,
		TokensOut:    rec.TokensOut,
		LatencyMs:    rec.LatencyMs,
		CostUSD:      rec.CostUSD,
		Error:        rec.Error,
		ErrorKind:    rec.ErrorKind,
		CreatedAt:    rec.CreatedAt,
	}
	return s.withRetry(ctx, "record model call", func(ctx context.Context) error {
		return s.repos.ModelCalls.Insert(ctx, row)
	})
}

// RecordTrade persists a closed leg, transitions its position row and
// updates the recent-trades cache.
func (s *Service) RecordTrade(ctx context.Context, agentID, cycleID string, trade account.Trade) error {
	if s == nil || s.repos == nil {
		return nil
	}
	row := store.TradeRecord{
		ID:          trade.ID,
		AgentID:     agentID,
		PositionID:  trade.PositionID,
		CycleID:     cycleID,
		Symbol:      trade.Symbol,
		Side:        string(trade.Side),
		EntryPrice:  trade.EntryPrice,
		ExitPrice:   trade.ExitPrice,
		Quantity:    trade.Quantity,
		Leverage:    trade.Leverage,
		RealisedPnL: trade.RealisedPnL,
		PnLPct:      trade.PnLPct,
		Fees:        trade.Fees,
		ExitReason:  string(trade.ExitReason),
		OpenedAt:    trade.OpenedAt,
		ClosedAt:    trade.ClosedAt,
	}
	err := s.withRetry(ctx, "record trade", func(ctx context.Context) error {
		return s.repos.Trades.Insert(ctx, row)
	})
	if err != nil {
		return err
	}

	status := string(account.StatusClosed)
	if trade.ExitReason == account.ExitLiquidation {
		status = string(account.StatusLiquidated)
	}
	err = s.withRetry(ctx, "close position", func(ctx context.Context) error {
		return s.repos.Positions.MarkClosed(ctx, trade.PositionID, status, trade.ExitPrice, trade.RealisedPnL, string(trade.ExitReason), trade.ClosedAt)
	})
	if err != nil {
		return err
	}

	s.cacheOpenPosition(ctx, agentID, trade.Symbol, nil)
	s.appendRecentTrade(ctx, agentID, tradeCacheEntry{
		ID:          trade.ID,
		AgentID:     agentID,
		Symbol:      trade.Symbol,
		Side:        string(trade.Side),
		Quantity:    trade.Quantity.String(),
		EntryPrice:  trade.EntryPrice.String(),
		ExitPrice:   trade.ExitPrice.String(),
		RealisedPnL: trade.RealisedPnL.String(),
		PnLPct:      trade.PnLPct.String(),
		Leverage:    trade.Leverage,
		ExitReason:  string(trade.ExitReason),
		ClosedAtMs:  trade.ClosedAt.UTC().UnixMilli(),
	})
	return nil
}

// UpsertPosition persists an open position row and refreshes the per-agent
// positions cache.
func (s *Service) UpsertPosition(ctx context.Context, agentID, cycleID string, pos account.Position) error {
	if s == nil || s.repos == nil {
		return nil
	}
	row := positionRecord(agentID, cycleID, pos)
	err := s.withRetry(ctx, "upsert position", func(ctx context.Context) error {
		return s.repos.Positions.UpsertOpen(ctx, row)
	})
	if err != nil {
		return err
	}
	entry := positionEntry(pos)
	s.cacheOpenPosition(ctx, agentID, pos.Symbol, &entry)
	return nil
}

// RecordAccountState overwrites the per-agent account row, appends the
// equity sample for the cycle and re-primes the account caches.
func (s *Service) RecordAccountState(ctx context.Context, cycleID string, view *account.View) error {
	if s == nil || s.repos == nil || view == nil {
		return nil
	}
	row := store.AccountStateRecord{
		AgentID:       view.AgentID,
		CycleID:       cycleID,
		Balance:       view.Balance,
		Equity:        view.Equity,
		MarginUsed:    view.MarginUsed,
		RealisedPnL:   view.RealisedPnL,
		UnrealisedPnL: view.UnrealisedPnL,
		TradeCount:    view.TradeCount,
		WinCount:      view.WinCount,
		LossCount:     view.LossCount,
		OpenPositions: len(view.Positions),
		Enabled:       view.Enabled,
	}
	if view.DisabledReason != "" {
		reason := view.DisabledReason
		row.DisabledReason = &reason
	}
	err := s.withRetry(ctx, "record account state", func(ctx context.Context) error {
		return s.repos.Accounts.UpsertState(ctx, row)
	})
	if err != nil {
		return err
	}

	point := store.EquityPointRecord{
		AgentID: view.AgentID,
		CycleID: cycleID,
		Equity:  view.Equity,
		Balance: view.Balance,
		Ts:      time.Now().UTC(),
	}
	err = s.withRetry(ctx, "record equity point", func(ctx context.Context) error {
		return s.repos.Equity.UpsertPoint(ctx, point)
	})
	if err != nil {
		return err
	}

	s.cacheAccountView(ctx, view)
	s.persistPositionCache(ctx, view.AgentID, view.Positions)
	s.repos.Leaderboard.Invalidate(ctx)
	return nil
}

// RecordMarketSnapshot persists the audited per-symbol market view and primes
// the snapshot cache read by the HTTP surface.
func (s *Service) RecordMarketSnapshot(ctx context.Context, cycleID string, snap *market.Snapshot) error {
	if s == nil || s.repos == nil || snap == nil {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	row := store.MarketSnapshotRecord{
		CycleID:   cycleID,
		Symbol:    snap.Symbol,
		Price:     snap.Price,
		Payload:   payload,
		FetchedAt: snap.FetchedAt,
	}
	if err := s.withRetry(ctx, "record market snapshot", func(ctx context.Context) error {
		return s.repos.Snapshots.Insert(ctx, row)
	}); err != nil {
		return err
	}
	s.cacheMarketSnapshot(ctx, snap)
	return nil
}

// RecordCycle persists the cycle summary and caches it for /api/status.
func (s *Service) RecordCycle(ctx context.Context, rec arena.CycleRecord) error {
	if s == nil || s.repos == nil {
		return nil
	}
	row := store.CycleRecord{
		CycleID:          rec.CycleID,
		Seq:              int64(rec.Seq),
		StartedAt:        rec.StartedAt,
		FinishedAt:       rec.FinishedAt,
		AgentsRun:        rec.AgentsRun,
		Executed:         rec.Executed,
		Held:             rec.Held,
		Rejected:         rec.Rejected,
		Failed:           rec.Failed,
		Triggers:         rec.Triggers,
		ReconcileAdded:   rec.ReconcileAdded,
		ReconcileUpdated: rec.ReconcileUpdated,
		ReconcileRemoved: rec.ReconcileRemoved,
		Error:            rec.Error,
	}
	if err := s.withRetry(ctx, "record cycle", func(ctx context.Context) error {
		return s.repos.Cycles.Upsert(ctx, row)
	}); err != nil {
		return err
	}
	s.cacheLastCycle(ctx, rec)
	return nil
}

func positionRecord(agentID, cycleID string, pos account.Position) store.PositionRecord {
	rec := store.PositionRecord{
		ID:            pos.ID,
		AgentID:       agentID,
		CycleID:       cycleID,
		Symbol:        pos.Symbol,
		Side:          string(pos.Side),
		Status:        string(pos.Status),
		EntryPrice:    pos.EntryPrice,
		Quantity:      pos.Quantity,
		Leverage:      pos.Leverage,
		MarginUsed:    pos.MarginUsed,
		Fees:          pos.Fees,
		ClientOrderID: pos.ClientOrderID,
		OpenedAt:      pos.OpenedAt,
	}
	rec.StopLossPrice = decimalOrNil(pos.StopLossPrice)
	rec.TakeProfitPrice = decimalOrNil(pos.TakeProfitPrice)
	rec.LiquidationPrice = decimalOrNil(pos.LiquidationPrice)
	if pos.MarkPrice.Sign() > 0 {
		mark := pos.MarkPrice
		rec.MarkPrice = &mark
		pnl := pos.UnrealisedPnL
		rec.UnrealisedPnL = &pnl
	}
	return rec
}

func decimalOrNil(value decimal.Decimal) *decimal.Decimal {
	if value.Sign() <= 0 {
		return nil
	}
	v := value
	return &v
}
