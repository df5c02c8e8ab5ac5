package logic

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"arena-api/internal/store"
	"arena-api/internal/types"
	"arena-api/pkg/account"
	"arena-api/pkg/arena"
	"arena-api/pkg/market"
)

var hundred = decimal.NewFromInt(100)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func returnPct(equity, initial decimal.Decimal) string {
	if initial.Sign() <= 0 {
		return ""
	}
	return equity.Sub(initial).Div(initial).Mul(hundred).Round(4).String()
}

func winRatePct(wins, trades int) string {
	if trades <= 0 {
		return "0"
	}
	return decimal.NewFromInt(int64(wins)).
		Div(decimal.NewFromInt(int64(trades))).
		Mul(hundred).Round(2).String()
}

func accountFromView(view *account.View, name, model string, initial decimal.Decimal) types.Account {
	return types.Account{
		AgentID:         view.AgentID,
		Name:            name,
		Model:           model,
		Balance:         view.Balance.String(),
		Equity:          view.Equity.String(),
		MarginUsed:      view.MarginUsed.String(),
		AvailableMargin: view.AvailableMargin.String(),
		RealisedPnL:     view.RealisedPnL.String(),
		UnrealisedPnL:   view.UnrealisedPnL.String(),
		ReturnPct:       returnPct(view.Equity, initial),
		TradeCount:      view.TradeCount,
		WinCount:        view.WinCount,
		LossCount:       view.LossCount,
		OpenPositions:   len(view.Positions),
		Enabled:         view.Enabled,
		DisabledReason:  view.DisabledReason,
	}
}

func positionFromView(pos account.Position) types.Position {
	out := types.Position{
		ID:               pos.ID,
		AgentID:          pos.AgentID,
		Symbol:           pos.Symbol,
		Side:             string(pos.Side),
		EntryPrice:       pos.EntryPrice.String(),
		Quantity:         pos.Quantity.String(),
		Leverage:         pos.Leverage,
		MarginUsed:       pos.MarginUsed.String(),
		LiquidationPrice: pos.LiquidationPrice.String(),
		MarkPrice:        pos.MarkPrice.String(),
		UnrealisedPnL:    pos.UnrealisedPnL.String(),
		OpenedAt:         formatTime(pos.OpenedAt),
	}
	if pos.StopLossPrice.Sign() > 0 {
		out.StopLossPrice = pos.StopLossPrice.String()
	}
	if pos.TakeProfitPrice.Sign() > 0 {
		out.TakeProfitPrice = pos.TakeProfitPrice.String()
	}
	return out
}

func tradeFromView(tr account.Trade) types.Trade {
	return types.Trade{
		ID:          tr.ID,
		AgentID:     tr.AgentID,
		Symbol:      tr.Symbol,
		Side:        string(tr.Side),
		EntryPrice:  tr.EntryPrice.String(),
		ExitPrice:   tr.ExitPrice.String(),
		Quantity:    tr.Quantity.String(),
		Leverage:    tr.Leverage,
		RealisedPnL: tr.RealisedPnL.String(),
		PnLPct:      tr.PnLPct.String(),
		Fees:        tr.Fees.String(),
		ExitReason:  string(tr.ExitReason),
		OpenedAt:    formatTime(tr.OpenedAt),
		ClosedAt:    formatTime(tr.ClosedAt),
	}
}

func tradeFromRecord(rec store.TradeRecord) types.Trade {
	return types.Trade{
		ID:          rec.ID,
		AgentID:     rec.AgentID,
		Symbol:      rec.Symbol,
		Side:        rec.Side,
		EntryPrice:  rec.EntryPrice.String(),
		ExitPrice:   rec.ExitPrice.String(),
		Quantity:    rec.Quantity.String(),
		Leverage:    rec.Leverage,
		RealisedPnL: rec.RealisedPnL.String(),
		PnLPct:      rec.PnLPct.String(),
		Fees:        rec.Fees.String(),
		ExitReason:  rec.ExitReason,
		OpenedAt:    formatTime(rec.OpenedAt),
		ClosedAt:    formatTime(rec.ClosedAt),
	}
}

func snapshotFromMarket(snap *market.Snapshot) types.MarketSnapshot {
	out := types.MarketSnapshot{
		Symbol:       snap.Symbol,
		Price:        snap.Price.String(),
		LastPrice:    snap.LastPrice.String(),
		Bid:          snap.Bid.String(),
		Ask:          snap.Ask.String(),
		Volume24h:    snap.Volume24h.String(),
		ChangePct24h: snap.ChangePct24h.String(),
		High24h:      snap.High24h.String(),
		Low24h:       snap.Low24h.String(),
		KlineCount:   snap.KlineCount,
		FetchedAt:    formatTime(snap.FetchedAt),
	}
	if snap.Indicators != nil {
		out.Indicators = &types.MarketIndicators{
			RSI14:      snap.Indicators.RSI14,
			MACD:       snap.Indicators.MACD,
			MACDSignal: snap.Indicators.MACDSignal,
			MACDHist:   snap.Indicators.MACDHist,
			SMA20:      snap.Indicators.SMA20,
			SMA50:      snap.Indicators.SMA50,
		}
	}
	return out
}

func schedulerStatusResp(st arena.SchedulerStatus, drops map[string]uint64) types.SchedulerStatusResp {
	resp := types.SchedulerStatusResp{
		Running:        st.Running,
		Paused:         st.Paused,
		CycleInterval:  st.CycleInterval,
		CycleSeq:       st.CycleSeq,
		LastCycleID:    st.LastCycleID,
		LastStartedAt:  formatTime(st.LastStartedAt),
		LastFinishedAt: formatTime(st.LastFinishedAt),
		LastDurationMs: st.LastDurationMs,
		LastError:      st.LastError,
		NextRunAt:      formatTime(st.NextRunAt),
		SkippedOverlap: st.SkippedOverlap,
		SkippedPaused:  st.SkippedPaused,
		CyclesRun:      st.CyclesRun,
		CyclesFailed:   st.CyclesFailed,
	}
	if len(drops) > 0 {
		resp.EventDrops = drops
	}
	return resp
}

func leaderboardFromRows(rows []store.LeaderboardRow) []types.LeaderboardEntry {
	out := make([]types.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.LeaderboardEntry{
			Rank:          row.Rank,
			AgentID:       row.AgentID,
			Name:          row.Name,
			Model:         row.Model,
			Equity:        row.Equity.String(),
			Balance:       row.Balance.String(),
			RealisedPnL:   row.RealisedPnL.String(),
			UnrealisedPnL: row.UnrealisedPnL.String(),
			ReturnPct:     row.ReturnPct.String(),
			TradeCount:    row.TradeCount,
			WinRatePct:    row.WinRatePct.String(),
			OpenPositions: row.OpenPositions,
			Enabled:       row.Enabled,
		})
	}
	return out
}

// leaderboardFromViews ranks live account views by equity descending. It is
// the fallback when no store is configured.
func leaderboardFromViews(agents []*arena.Agent, initial decimal.Decimal) []types.LeaderboardEntry {
	type ranked struct {
		agent *arena.Agent
		view  *account.View
	}
	views := make([]ranked, 0, len(agents))
	for _, ag := range agents {
		views = append(views, ranked{agent: ag, view: ag.Account().Snapshot()})
	}
	sort.Slice(views, func(i, j int) bool {
		if !views[i].view.Equity.Equal(views[j].view.Equity) {
			return views[i].view.Equity.GreaterThan(views[j].view.Equity)
		}
		return views[i].view.AgentID < views[j].view.AgentID
	})

	out := make([]types.LeaderboardEntry, 0, len(views))
	for i, rv := range views {
		out = append(out, types.LeaderboardEntry{
			Rank:          i + 1,
			AgentID:       rv.view.AgentID,
			Name:          rv.agent.Name(),
			Model:         rv.agent.Model(),
			Equity:        rv.view.Equity.String(),
			Balance:       rv.view.Balance.String(),
			RealisedPnL:   rv.view.RealisedPnL.String(),
			UnrealisedPnL: rv.view.UnrealisedPnL.String(),
			ReturnPct:     returnPct(rv.view.Equity, initial),
			TradeCount:    rv.view.TradeCount,
			WinRatePct:    winRatePct(rv.view.WinCount, rv.view.TradeCount),
			OpenPositions: len(rv.view.Positions),
			Enabled:       rv.view.Enabled,
		})
	}
	return out
}
