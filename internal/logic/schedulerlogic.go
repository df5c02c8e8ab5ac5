package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"arena-api/internal/svc"
	"arena-api/internal/types"
)

type SchedulerLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewSchedulerLogic(ctx context.Context, svcCtx *svc.ServiceContext) *SchedulerLogic {
	return &SchedulerLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *SchedulerLogic) SchedulerStatus() (*types.SchedulerStatusResp, error) {
	resp := schedulerStatusResp(l.svcCtx.Scheduler.Status(), l.svcCtx.Bus.DropCounts())
	return &resp, nil
}
