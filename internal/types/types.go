// Code scaffolded by goctl. Safe to edit.
// goctl 1.9.2

package types

// Money and price fields are decimal strings end to end; the API never
// round-trips balances through float64.

type StatusResp struct {
	Status           string   `json:"status"`
	Env              string   `json:"env"`
	Venue            string   `json:"venue"`
	Symbols          []string `json:"symbols"`
	AgentCount       int      `json:"agent_count"`
	CyclesRun        uint64   `json:"cycles_run"`
	SchedulerRunning bool     `json:"scheduler_running"`
	SchedulerPaused  bool     `json:"scheduler_paused"`
	StartedAt        string   `json:"started_at"`
	UptimeSeconds    int64    `json:"uptime_seconds"`
}

type Account struct {
	AgentID         string `json:"agent_id"`
	Name            string `json:"name"`
	Model           string `json:"model"`
	Balance         string `json:"balance"`
	Equity          string `json:"equity"`
	MarginUsed      string `json:"margin_used"`
	AvailableMargin string `json:"available_margin"`
	RealisedPnL     string `json:"realised_pnl"`
	UnrealisedPnL   string `json:"unrealised_pnl"`
	ReturnPct       string `json:"return_pct"`
	TradeCount      int    `json:"trade_count"`
	WinCount        int    `json:"win_count"`
	LossCount       int    `json:"loss_count"`
	OpenPositions   int    `json:"open_positions"`
	Enabled         bool   `json:"enabled"`
	DisabledReason  string `json:"disabled_reason,omitempty"`
}

type AccountsResp struct {
	Accounts []Account `json:"accounts"`
}

type AccountDetailReq struct {
	AgentID string `path:"agentId"`
}

type EquityPoint struct {
	CycleID string `json:"cycle_id"`
	Equity  string `json:"equity"`
	Balance string `json:"balance"`
	Ts      string `json:"ts"`
}

type AccountDetailResp struct {
	Account   Account       `json:"account"`
	Positions []Position    `json:"positions"`
	Equity    []EquityPoint `json:"equity,omitempty"`
}

type Position struct {
	ID               string `json:"id"`
	AgentID          string `json:"agent_id"`
	Symbol           string `json:"symbol"`
	Side             string `json:"side"`
	EntryPrice       string `json:"entry_price"`
	Quantity         string `json:"quantity"`
	Leverage         int    `json:"leverage"`
	MarginUsed       string `json:"margin_used"`
	StopLossPrice    string `json:"stop_loss_price,omitempty"`
	TakeProfitPrice  string `json:"take_profit_price,omitempty"`
	LiquidationPrice string `json:"liquidation_price"`
	MarkPrice        string `json:"mark_price"`
	UnrealisedPnL    string `json:"unrealised_pnl"`
	OpenedAt         string `json:"opened_at"`
}

type PositionsReq struct {
	Agent string `form:"agent,optional"`
}

type PositionsResp struct {
	Positions []Position `json:"positions"`
}

type Trade struct {
	ID          string `json:"id"`
	AgentID     string `json:"agent_id"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	EntryPrice  string `json:"entry_price"`
	ExitPrice   string `json:"exit_price"`
	Quantity    string `json:"quantity"`
	Leverage    int    `json:"leverage"`
	RealisedPnL string `json:"realised_pnl"`
	PnLPct      string `json:"pnl_pct"`
	Fees        string `json:"fees"`
	ExitReason  string `json:"exit_reason"`
	OpenedAt    string `json:"opened_at"`
	ClosedAt    string `json:"closed_at"`
}

type TradesReq struct {
	Agent string `form:"agent,optional"`
	Limit int    `form:"limit,optional"`
}

type TradesResp struct {
	Trades []Trade `json:"trades"`
}

type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	AgentID       string `json:"agent_id"`
	Name          string `json:"name"`
	Model         string `json:"model"`
	Equity        string `json:"equity"`
	Balance       string `json:"balance"`
	RealisedPnL   string `json:"realised_pnl"`
	UnrealisedPnL string `json:"unrealised_pnl"`
	ReturnPct     string `json:"return_pct"`
	TradeCount    int    `json:"trade_count"`
	WinRatePct    string `json:"win_rate_pct"`
	OpenPositions int    `json:"open_positions"`
	Enabled       bool   `json:"enabled"`
}

type LeaderboardResp struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	GeneratedAt string             `json:"generated_at"`
}

type MarketReq struct {
	Symbol string `form:"symbol,optional"`
}

type MarketIndicators struct {
	RSI14      float64 `json:"rsi_14"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`
	SMA20      float64 `json:"sma_20"`
	SMA50      float64 `json:"sma_50"`
}

type MarketSnapshot struct {
	Symbol       string            `json:"symbol"`
	Price        string            `json:"price"`
	LastPrice    string            `json:"last_price"`
	Bid          string            `json:"bid"`
	Ask          string            `json:"ask"`
	Volume24h    string            `json:"volume_24h"`
	ChangePct24h string            `json:"change_pct_24h"`
	High24h      string            `json:"high_24h"`
	Low24h       string            `json:"low_24h"`
	Indicators   *MarketIndicators `json:"indicators,omitempty"`
	KlineCount   int               `json:"kline_count"`
	FetchedAt    string            `json:"fetched_at"`
}

type MarketResp struct {
	Snapshots []MarketSnapshot `json:"snapshots"`
}

type SchedulerStatusResp struct {
	Running        bool              `json:"running"`
	Paused         bool              `json:"paused"`
	CycleInterval  string            `json:"cycle_interval"`
	CycleSeq       uint64            `json:"cycle_seq"`
	LastCycleID    string            `json:"last_cycle_id,omitempty"`
	LastStartedAt  string            `json:"last_started_at,omitempty"`
	LastFinishedAt string            `json:"last_finished_at,omitempty"`
	LastDurationMs int64             `json:"last_duration_ms"`
	LastError      string            `json:"last_error,omitempty"`
	NextRunAt      string            `json:"next_run_at,omitempty"`
	SkippedOverlap uint64            `json:"skipped_overlap"`
	SkippedPaused  uint64            `json:"skipped_paused"`
	CyclesRun      uint64            `json:"cycles_run"`
	CyclesFailed   uint64            `json:"cycles_failed"`
	EventDrops     map[string]uint64 `json:"event_drops,omitempty"`
}

type SchedulerActionResp struct {
	Ok        bool                `json:"ok"`
	Action    string              `json:"action"`
	Scheduler SchedulerStatusResp `json:"scheduler"`
}

type ErrorResp struct {
	Error string `json:"error"`
}
