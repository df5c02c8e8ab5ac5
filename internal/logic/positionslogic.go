package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"arena-api/internal/svc"
	"arena-api/internal/types"
	"arena-api/pkg/arena"
)

type PositionsLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewPositionsLogic(ctx context.Context, svcCtx *svc.ServiceContext) *PositionsLogic {
	return &PositionsLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Positions lists open positions across all agents, or a single agent when
// the agent parameter is set.
func (l *PositionsLogic) Positions(req *types.PositionsReq) (*types.PositionsResp, error) {
	agents := l.svcCtx.Registry.Agents()
	if req.Agent != "" {
		ag, ok := l.svcCtx.Registry.Get(req.Agent)
		if !ok {
			return nil, arena.ErrUnknownAgent
		}
		agents = []*arena.Agent{ag}
	}

	resp := &types.PositionsResp{Positions: []types.Position{}}
	for _, ag := range agents {
		view := ag.Account().Snapshot()
		for _, pos := range view.Positions {
			resp.Positions = append(resp.Positions, positionFromView(pos))
		}
	}
	return resp, nil
}
