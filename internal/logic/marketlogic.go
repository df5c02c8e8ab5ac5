package logic

import (
	"context"
	"strings"

	"github.com/zeromicro/go-zero/core/logx"

	"arena-api/internal/svc"
	"arena-api/internal/types"
)

type MarketLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewMarketLogic(ctx context.Context, svcCtx *svc.ServiceContext) *MarketLogic {
	return &MarketLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Market serves the snapshots the last cycle worked with: the in-process
// market cache first, then the Redis copy for a symbol the process has not
// fetched since restart. It never calls the venue, so a read cannot slow a
// cycle down. Unknown or unfetched symbols yield an empty list.
func (l *MarketLogic) Market(req *types.MarketReq) (*types.MarketResp, error) {
	if req.Symbol != "" {
		symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
		if snap, ok := l.svcCtx.Market.Cached(symbol); ok {
			return &types.MarketResp{Snapshots: []types.MarketSnapshot{snapshotFromMarket(snap)}}, nil
		}
		if l.svcCtx.Persist != nil {
			if snap, ok := l.svcCtx.Persist.CachedMarketSnapshot(l.ctx, symbol); ok {
				return &types.MarketResp{Snapshots: []types.MarketSnapshot{snapshotFromMarket(snap)}}, nil
			}
		}
		return &types.MarketResp{Snapshots: []types.MarketSnapshot{}}, nil
	}

	cached := l.svcCtx.Market.CachedAll()
	resp := &types.MarketResp{Snapshots: make([]types.MarketSnapshot, 0, len(cached))}
	for _, snap := range cached {
		resp.Snapshots = append(resp.Snapshots, snapshotFromMarket(snap))
	}
	return resp, nil
}
