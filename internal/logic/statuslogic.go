package logic

import (
	"context"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"arena-api/internal/svc"
	"arena-api/internal/types"
)

type StatusLogic struct {
	logx.Logger
	ctx    context.Context
	svcCtx *svc.ServiceContext
}

func NewStatusLogic(ctx context.Context, svcCtx *svc.ServiceContext) *StatusLogic {
	return &StatusLogic{
		Logger: logx.WithContext(ctx),
		ctx:    ctx,
		svcCtx: svcCtx,
	}
}

func (l *StatusLogic) Status() (*types.StatusResp, error) {
	st := l.svcCtx.Scheduler.Status()
	return &types.StatusResp{
		Status:           "ok",
		Env:              l.svcCtx.Config.Env,
		Venue:            l.svcCtx.VenueName,
		Symbols:          l.svcCtx.ArenaConfig.Arena.Symbols,
		AgentCount:       l.svcCtx.Registry.Len(),
		CyclesRun:        st.CyclesRun,
		SchedulerRunning: st.Running,
		SchedulerPaused:  st.Paused,
		StartedAt:        formatTime(l.svcCtx.StartedAt),
		UptimeSeconds:    int64(time.Since(l.svcCtx.StartedAt).Seconds()),
	}, nil
}
