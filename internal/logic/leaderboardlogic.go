package logic

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"arena-api/internal/svc"
	"arena-api/internal/types"
)

type LeaderboardLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewLeaderboardLogic(ctx context.Context, svcCtx *svc.ServiceContext) *LeaderboardLogic {
	return &LeaderboardLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Leaderboard ranks agents by equity. With a store configured the ranking
// comes from the cached aggregate over persisted account states; otherwise,
// or when the store read fails, it is computed from the live accounts.
func (l *LeaderboardLogic) Leaderboard() (*types.LeaderboardResp, error) {
	initial := l.svcCtx.InitialBalance()

	if l.svcCtx.Store != nil {
		rows, err := l.svcCtx.Store.Leaderboard.Rows(l.ctx, initial)
		if err == nil && len(rows) > 0 {
			return &types.LeaderboardResp{
				Leaderboard: leaderboardFromRows(rows),
				GeneratedAt: formatTime(time.Now().UTC()),
			}, nil
		}
		if err != nil {
			l.Errorf("leaderboard store read failed, serving live ranking: %v", err)
		}
	}

	return &types.LeaderboardResp{
		Leaderboard: leaderboardFromViews(l.svcCtx.Registry.Agents(), initial),
		GeneratedAt: formatTime(time.Now().UTC()),
	}, nil
}
