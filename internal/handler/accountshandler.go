package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"arena-api/internal/logic"
	"arena-api/internal/svc"
)

func AccountsHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := logic.NewAccountsLogic(r.Context(), svcCtx)
		resp, err := l.Accounts()
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}
