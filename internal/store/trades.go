package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// TradeRecord mirrors the trades table: one immutable row per closed leg.
//
//	CREATE TABLE public.trades (
//	    id           TEXT PRIMARY KEY,
//	    agent_id     TEXT NOT NULL,
//	    position_id  TEXT NOT NULL,
//	    cycle_id     TEXT NOT NULL,
//	    symbol       TEXT NOT NULL,
//	    side         TEXT NOT NULL,
//	    entry_price  NUMERIC(30,10) NOT NULL,
//	    exit_price   NUMERIC(30,10) NOT NULL,
//	    quantity     NUMERIC(30,10) NOT NULL,
//	    leverage     INTEGER NOT NULL,
//	    realised_pnl NUMERIC(30,10) NOT NULL,
//	    pnl_pct      NUMERIC(30,10) NOT NULL,
//	    fees         NUMERIC(30,10) NOT NULL,
//	    exit_reason  TEXT NOT NULL,
//	    opened_at    TIMESTAMPTZ NOT NULL,
//	    closed_at    TIMESTAMPTZ NOT NULL,
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE INDEX trades_agent_closed_idx ON public.trades (agent_id, closed_at DESC);
type TradeRecord struct {
	ID          string
	AgentID     string
	PositionID  string
	CycleID     string
	Symbol      string
	Side        string
	EntryPrice  decimal.Decimal
	ExitPrice   decimal.Decimal
	Quantity    decimal.Decimal
	Leverage    int
	RealisedPnL decimal.Decimal
	PnLPct      decimal.Decimal
	Fees        decimal.Decimal
	ExitReason  string
	OpenedAt    time.Time
	ClosedAt    time.Time
}

// TradesRepo appends and reads closed-trade history.
type TradesRepo interface {
	// Insert writes one trade row. Replaying the same trade id is a no-op.
	Insert(ctx context.Context, rec TradeRecord) error
	// RecentByAgent returns trades ordered by close time descending.
	RecentByAgent(ctx context.Context, agentID string, limit int) ([]TradeRecord, error)
}

type tradesRepo struct {
	conn sqlx.SqlConn
}

func newTradesRepo(deps Dependencies) TradesRepo {
	return &tradesRepo{
		conn: deps.DBConn,
	}
}

func (r *tradesRepo) Insert(ctx context.Context, rec TradeRecord) error {
	statement := `
INSERT INTO public.trades (
    id, agent_id, position_id, cycle_id, symbol, side,
    entry_price, exit_price, quantity, leverage,
    realised_pnl, pnl_pct, fees, exit_reason,
    opened_at, closed_at, created_at
) VALUES (
    $1, $2, $3, $4, $5, $6,
    $7, $8, $9, $10,
    $11, $12, $13, $14,
    $15, $16, NOW()
);
`
	_, err := r.conn.ExecCtx(
		ctx,
		statement,
		rec.ID,
		rec.AgentID,
		rec.PositionID,
		rec.CycleID,
		rec.Symbol,
		rec.Side,
		rec.EntryPrice,
		rec.ExitPrice,
		rec.Quantity,
		rec.Leverage,
		rec.RealisedPnL,
		rec.PnLPct,
		rec.Fees,
		rec.ExitReason,
		rec.OpenedAt,
		rec.ClosedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("tradesRepo.Insert exec: %w", err)
	}
	return nil
}

func (r *tradesRepo) RecentByAgent(ctx context.Context, agentID string, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 200
	}

	query := `
SELECT
    id,
    agent_id,
    position_id,
    cycle_id,
    symbol,
    side,
    entry_price,
    exit_price,
    quantity,
    leverage,
    realised_pnl,
    pnl_pct,
    fees,
    exit_reason,
    opened_at,
    closed_at
FROM public.trades
WHERE agent_id = $1
ORDER BY closed_at DESC
LIMIT $2`

	var rows []tradeRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, query, agentID, limit); err != nil {
		return nil, fmt.Errorf("tradesRepo.RecentByAgent query: %w", err)
	}

	result := make([]TradeRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, TradeRecord{
			ID:          row.ID,
			AgentID:     row.AgentID,
			PositionID:  row.PositionID,
			CycleID:     row.CycleID,
			Symbol:      row.Symbol,
			Side:        row.Side,
			EntryPrice:  row.EntryPrice,
			ExitPrice:   row.ExitPrice,
			Quantity:    row.Quantity,
			Leverage:    row.Leverage,
			RealisedPnL: row.RealisedPnL,
			PnLPct:      row.PnLPct,
			Fees:        row.Fees,
			ExitReason:  row.ExitReason,
			OpenedAt:    row.OpenedAt,
			ClosedAt:    row.ClosedAt,
		})
	}
	return result, nil
}

type tradeRow struct {
	ID          string          `db:"id"`
	AgentID     string          `db:"agent_id"`
	PositionID  string          `db:"position_id"`
	CycleID     string          `db:"cycle_id"`
	Symbol      string          `db:"symbol"`
	Side        string          `db:"side"`
	EntryPrice  decimal.Decimal `db:"entry_price"`
	ExitPrice   decimal.Decimal `db:"exit_price"`
	Quantity    decimal.Decimal `db:"quantity"`
	Leverage    int             `db:"leverage"`
	RealisedPnL decimal.Decimal `db:"realised_pnl"`
	PnLPct      decimal.Decimal `db:"pnl_pct"`
	Fees        decimal.Decimal `db:"fees"`
	ExitReason  string          `db:"exit_reason"`
	OpenedAt    time.Time       `db:"opened_at"`
	ClosedAt    time.Time       `db:"closed_at"`
}
