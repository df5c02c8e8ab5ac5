package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"arena-api/internal/svc"
	"arena-api/internal/types"
)

type AccountsLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewAccountsLogic(ctx context.Context, svcCtx *svc.ServiceContext) *AccountsLogic {
	return &AccountsLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Accounts returns the live view of every competing account, sorted by agent
// id. Views come straight from the in-memory accounts so the response never
// waits on a running cycle or the store.
func (l *AccountsLogic) Accounts() (*types.AccountsResp, error) {
	initial := l.svcCtx.InitialBalance()
	agents := l.svcCtx.Registry.Agents()

	resp := &types.AccountsResp{Accounts: make([]types.Account, 0, len(agents))}
	for _, ag := range agents {
		view := ag.Account().Snapshot()
		resp.Accounts = append(resp.Accounts, accountFromView(view, ag.Name(), ag.Model(), initial))
	}
	return resp, nil
}
