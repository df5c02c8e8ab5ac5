package logic

import (
	"context"

	"github.com/zeromicro/go-zero/core/logx"

	"arena-api/internal/svc"
	"arena-api/internal/types"
)

type SchedulerActionLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewSchedulerActionLogic(ctx context.Context, svcCtx *svc.ServiceContext) *SchedulerActionLogic {
	return &SchedulerActionLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

// Trigger starts a cycle immediately. The cycle is detached from the request
// context so finishing the HTTP response does not cancel it; the scheduler
// still applies its own cycle budget.
func (l *SchedulerActionLogic) Trigger() (*types.SchedulerActionResp, error) {
	if err := l.svcCtx.Scheduler.TriggerNow(context.WithoutCancel(l.ctx)); err != nil {
		return nil, err
	}
	l.Infof("cycle triggered via API")
	return l.result("trigger"), nil
}

// Pause stops the ticker from starting new cycles. An in-flight cycle always
// finishes.
func (l *SchedulerActionLogic) Pause() (*types.SchedulerActionResp, error) {
	if err := l.svcCtx.Scheduler.Pause(); err != nil {
		return nil, err
	}
	l.Infof("scheduler paused via API")
	return l.result("pause"), nil
}

// Resume lifts a pause.
func (l *SchedulerActionLogic) Resume() (*types.SchedulerActionResp, error) {
	if err := l.svcCtx.Scheduler.Resume(); err != nil {
		return nil, err
	}
	l.Infof("scheduler resumed via API")
	return l.result("resume"), nil
}

func (l *SchedulerActionLogic) result(action string) *types.SchedulerActionResp {
	return &types.SchedulerActionResp{
		Ok:        true,
		Action:    action,
		Scheduler: schedulerStatusResp(l.svcCtx.Scheduler.Status(), nil),
	}
}
