package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "arena-api/internal/cache"
)

// LeaderboardRow is one ranked competitor, aggregated from agents and
// account_states.
type LeaderboardRow struct {
	Rank          int             `json:"rank"`
	AgentID       string          `json:"agent_id"`
	Name          string          `json:"name"`
	Model         string          `json:"model"`
	Equity        decimal.Decimal `json:"equity"`
	Balance       decimal.Decimal `json:"balance"`
	RealisedPnL   decimal.Decimal `json:"realised_pnl"`
	UnrealisedPnL decimal.Decimal `json:"unrealised_pnl"`
	ReturnPct     decimal.Decimal `json:"return_pct"`
	TradeCount    int             `json:"trade_count"`
	WinCount      int             `json:"win_count"`
	LossCount     int             `json:"loss_count"`
	WinRatePct    decimal.Decimal `json:"win_rate_pct"`
	OpenPositions int             `json:"open_positions"`
	Enabled       bool            `json:"enabled"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// LeaderboardRepo ranks agents by equity. Reads go through a short-TTL cache
// so the HTTP surface never hammers the aggregate query.
type LeaderboardRepo interface {
	// Rows returns agents ranked by equity descending. initialBalance feeds
	// the return percentage; pass zero to omit it.
	Rows(ctx context.Context, initialBalance decimal.Decimal) ([]LeaderboardRow, error)
	// Invalidate drops the cached ranking after account writes.
	Invalidate(ctx context.Context)
}

type leaderboardRepo struct {
	conn  sqlx.SqlConn
	cache cache.Cache
	ttl   cachekeys.TTLSet
}

func newLeaderboardRepo(deps Dependencies) LeaderboardRepo {
	return &leaderboardRepo{
		conn:  deps.DBConn,
		cache: deps.Cache,
		ttl:   deps.TTL,
	}
}

func (r *leaderboardRepo) Rows(ctx context.Context, initialBalance decimal.Decimal) ([]LeaderboardRow, error) {
	key := cachekeys.LeaderboardCacheKey()
	if r.cache != nil {
		var cached []LeaderboardRow
		if err := r.cache.GetCtx(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !r.cache.IsNotFound(err) {
			logx.WithContext(ctx).Errorf("leaderboardRepo: load cache key=%s err=%v", key, err)
		}
	}

	query := `
SELECT
    s.agent_id,
    a.name,
    a.model,
    s.equity,
    s.balance,
    s.realised_pnl,
    s.unrealised_pnl,
    s.trade_count,
    s.win_count,
    s.loss_count,
    s.open_positions,
    s.enabled,
    s.updated_at
FROM public.account_states s
JOIN public.agents a ON a.id = s.agent_id
ORDER BY s.equity DESC, s.agent_id`

	var rows []leaderboardRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("leaderboardRepo.Rows query: %w", err)
	}

	hundred := decimal.NewFromInt(100)
	result := make([]LeaderboardRow, 0, len(rows))
	for i, row := range rows {
		rec := LeaderboardRow{
			Rank:          i + 1,
			AgentID:       row.AgentID,
			Name:          row.Name,
			Model:         row.Model,
			Equity:        row.Equity,
			Balance:       row.Balance,
			RealisedPnL:   row.RealisedPnL,
			UnrealisedPnL: row.UnrealisedPnL,
			TradeCount:    row.TradeCount,
			WinCount:      row.WinCount,
			LossCount:     row.LossCount,
			OpenPositions: row.OpenPositions,
			Enabled:       row.Enabled,
			UpdatedAt:     row.UpdatedAt,
		}
		if initialBalance.Sign() > 0 {
			rec.ReturnPct = row.Equity.Sub(initialBalance).Div(initialBalance).Mul(hundred).Round(4)
		}
		if row.TradeCount > 0 {
			rec.WinRatePct = decimal.NewFromInt(int64(row.WinCount)).
				Div(decimal.NewFromInt(int64(row.TradeCount))).
				Mul(hundred).Round(2)
		}
		result = append(result, rec)
	}

	if r.cache != nil && len(result) > 0 {
		ttl := r.ttl.Leaderboard()
		if ttl > 0 {
			if err := r.cache.SetWithExpireCtx(ctx, key, result, ttl); err != nil {
				logx.WithContext(ctx).Errorf("leaderboardRepo: set cache key=%s err=%v", key, err)
			}
		}
	}
	return result, nil
}

func (r *leaderboardRepo) Invalidate(ctx context.Context) {
	if r.cache == nil {
		return
	}
	key := cachekeys.LeaderboardCacheKey()
	if err := r.cache.DelCtx(ctx, key); err != nil && !r.cache.IsNotFound(err) {
		logx.WithContext(ctx).Errorf("leaderboardRepo: del cache key=%s err=%v", key, err)
	}
}

type leaderboardRow struct {
	AgentID       string          `db:"agent_id"`
	Name          string          `db:"name"`
	Model         string          `db:"model"`
	Equity        decimal.Decimal `db:"equity"`
	Balance       decimal.Decimal `db:"balance"`
	RealisedPnL   decimal.Decimal `db:"realised_pnl"`
	UnrealisedPnL decimal.Decimal `db:"unrealised_pnl"`
	TradeCount    int             `db:"trade_count"`
	WinCount      int             `db:"win_count"`
	LossCount     int             `db:"loss_count"`
	OpenPositions int             `db:"open_positions"`
	Enabled       bool            `db:"enabled"`
	UpdatedAt     time.Time       `db:"updated_at"`
}
