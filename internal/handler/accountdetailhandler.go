package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"arena-api/internal/logic"
	"arena-api/internal/svc"
	"arena-api/internal/types"
)

func AccountDetailHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.AccountDetailReq
		if err := httpx.Parse(r, &req); err != nil {
			httpx.ErrorCtx(r.Context(), w, err)
			return
		}

		l := logic.NewAccountDetailLogic(r.Context(), svcCtx)
		resp, err := l.AccountDetail(&req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}
