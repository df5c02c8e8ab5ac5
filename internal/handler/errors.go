package handler

import (
	"errors"
	"net/http"

	"github.com/zeromicro/go-zero/rest/httpx"

	"arena-api/internal/types"
	"arena-api/pkg/arena"
)

// writeError maps domain errors onto HTTP statuses: unknown agents are 404s
// and invalid scheduler transitions are 409s with the transition reason in
// the body. Everything else falls through to the default go-zero handler.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, arena.ErrUnknownAgent):
		httpx.WriteJsonCtx(r.Context(), w, http.StatusNotFound, &types.ErrorResp{Error: err.Error()})
	case errors.Is(err, arena.ErrCycleRunning),
		errors.Is(err, arena.ErrAlreadyPaused),
		errors.Is(err, arena.ErrNotPaused),
		errors.Is(err, arena.ErrSchedulerClosed):
		httpx.WriteJsonCtx(r.Context(), w, http.StatusConflict, &types.ErrorResp{Error: err.Error()})
	default:
		httpx.ErrorCtx(r.Context(), w, err)
	}
}
