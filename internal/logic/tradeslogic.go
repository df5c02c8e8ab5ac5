package logic

import (
	"context"
	"sort"

	"github.com/zeromicro/go-zero/core/logx"

	"arena-api/internal/svc"
	"arena-api/internal/types"
	"arena-api/pkg/account"
	"arena-api/pkg/arena"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 200
)

type TradesLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewTradesLogic(ctx context.Context, svcCtx *svc.ServiceContext) *TradesLogic {
	return &TradesLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Trades returns closed trades newest first. Per-agent requests prefer the
// store for depth beyond the in-memory window; everything else, and any store
// outage, is served from the live accounts.
func (l *TradesLogic) Trades(req *types.TradesReq) (*types.TradesResp, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultTradeLimit
	}
	if limit > maxTradeLimit {
		limit = maxTradeLimit
	}

	if req.Agent != "" {
		ag, ok := l.svcCtx.Registry.Get(req.Agent)
		if !ok {
			return nil, arena.ErrUnknownAgent
		}
		if l.svcCtx.Store != nil {
			recs, err := l.svcCtx.Store.Trades.RecentByAgent(l.ctx, req.Agent, limit)
			if err == nil {
				trades := make([]types.Trade, 0, len(recs))
				for _, rec := range recs {
					trades = append(trades, tradeFromRecord(rec))
				}
				return &types.TradesResp{Trades: trades}, nil
			}
			l.Errorf("trade history for %s unavailable, serving in-memory window: %v", req.Agent, err)
		}
		return &types.TradesResp{Trades: tradesFromViews(ag.Account().RecentTrades(limit))}, nil
	}

	var all []account.Trade
	for _, ag := range l.svcCtx.Registry.Agents() {
		all = append(all, ag.Account().RecentTrades(limit)...)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].ClosedAt.Equal(all[j].ClosedAt) {
			return all[i].ClosedAt.After(all[j].ClosedAt)
		}
		return all[i].ID > all[j].ID
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return &types.TradesResp{Trades: tradesFromViews(all)}, nil
}

func tradesFromViews(trades []account.Trade) []types.Trade {
	out := make([]types.Trade, 0, len(trades))
	for _, tr := range trades {
		out = append(out, tradeFromView(tr))
	}
	return out
}
