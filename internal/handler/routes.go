// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package handler

import (
	"net/http"

	"arena-api/internal/svc"

	"github.com/zeromicro/go-zero/rest"
)

func RegisterHandlers(server *rest.Server, serverCtx *svc.ServiceContext) {
	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodGet,
				Path:    "/api/status",
				Handler: StatusHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/accounts",
				Handler: AccountsHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/accounts/:agentId",
				Handler: AccountDetailHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/positions",
				Handler: PositionsHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/trades",
				Handler: TradesHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/leaderboard",
				Handler: LeaderboardHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/market",
				Handler: MarketHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/api/scheduler",
				Handler: SchedulerStatusHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/api/scheduler/trigger",
				Handler: SchedulerTriggerHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/api/scheduler/pause",
				Handler: SchedulerPauseHandler(serverCtx),
			},
			{
				Method:  http.MethodPost,
				Path:    "/api/scheduler/resume",
				Handler: SchedulerResumeHandler(serverCtx),
			},
		},
	)
}
