package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"arena-api/internal/svc"
	"arena-api/internal/types"
	"arena-api/pkg/arena"
)

// equityCurveLimit caps the number of equity points returned with an account;
// it matches the store-side series default.
const equityCurveLimit = 500

type AccountDetailLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewAccountDetailLogic(ctx context.Context, svcCtx *svc.ServiceContext) *AccountDetailLogic {
	return &AccountDetailLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// AccountDetail returns one agent's live account view, open positions and,
// when a store is configured, its persisted equity curve. A store outage
// degrades the response to the live view instead of failing it.
func (l *AccountDetailLogic) AccountDetail(req *types.AccountDetailReq) (*types.AccountDetailResp, error) {
	ag, ok := l.svcCtx.Registry.Get(req.AgentID)
	if !ok {
		return nil, arena.ErrUnknownAgent
	}

	view := ag.Account().Snapshot()
	resp := &types.AccountDetailResp{
		Account:   accountFromView(view, ag.Name(), ag.Model(), l.svcCtx.InitialBalance()),
		Positions: make([]types.Position, 0, len(view.Positions)),
	}
	for _, pos := range view.Positions {
		resp.Positions = append(resp.Positions, positionFromView(pos))
	}

	if l.svcCtx.Store != nil {
		points, err := l.svcCtx.Store.Equity.SeriesByAgent(l.ctx, req.AgentID, equityCurveLimit)
		if err != nil {
			l.Errorf("equity series for %s unavailable: %v", req.AgentID, err)
		}
		for _, p := range points {
			resp.Equity = append(resp.Equity, types.EquityPoint{
				CycleID: p.CycleID,
				Equity:  p.Equity.String(),
				Balance: p.Balance.String(),
				Ts:      formatTime(p.Ts),
			})
		}
	}
	return resp, nil
}
