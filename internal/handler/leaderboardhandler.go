package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"arena-api/internal/logic"
	"arena-api/internal/svc"
)

func LeaderboardHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := logic.NewLeaderboardLogic(r.Context(), svcCtx)
		resp, err := l.Leaderboard()
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}
