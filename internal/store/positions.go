package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// PositionRecord mirrors the positions table while normalising nullable fields.
//
//	CREATE TABLE public.positions (
//	    id                TEXT PRIMARY KEY,
//	    agent_id          TEXT NOT NULL,
//	    cycle_id          TEXT NOT NULL,
//	    symbol            TEXT NOT NULL,
//	    side              TEXT NOT NULL,
//	    status            TEXT NOT NULL,
//	    entry_price       NUMERIC(30,10) NOT NULL,
//	    quantity          NUMERIC(30,10) NOT NULL,
//	    leverage          INTEGER NOT NULL,
//	    margin_used       NUMERIC(30,10) NOT NULL,
//	    stop_loss_price   NUMERIC(30,10),
//	    take_profit_price NUMERIC(30,10),
//	    liquidation_price NUMERIC(30,10),
//	    mark_price        NUMERIC(30,10),
//	    unrealised_pnl    NUMERIC(30,10),
//	    fees              NUMERIC(30,10) NOT NULL DEFAULT 0,
//	    client_order_id   TEXT NOT NULL,
//	    exit_price        NUMERIC(30,10),
//	    realised_pnl      NUMERIC(30,10),
//	    exit_reason       TEXT,
//	    opened_at         TIMESTAMPTZ NOT NULL,
//	    closed_at         TIMESTAMPTZ,
//	    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE INDEX positions_agent_status_idx ON public.positions (agent_id, status);
type PositionRecord struct {
	ID               string
	AgentID          string
	CycleID          string
	Symbol           string
	Side             string
	Status           string
	EntryPrice       decimal.Decimal
	Quantity         decimal.Decimal
	Leverage         int
	MarginUsed       decimal.Decimal
	StopLossPrice    *decimal.Decimal
	TakeProfitPrice  *decimal.Decimal
	LiquidationPrice *decimal.Decimal
	MarkPrice        *decimal.Decimal
	UnrealisedPnL    *decimal.Decimal
	Fees             decimal.Decimal
	ClientOrderID    string
	ExitPrice        *decimal.Decimal
	RealisedPnL      *decimal.Decimal
	ExitReason       *string
	OpenedAt         time.Time
	ClosedAt         *time.Time
}

// PositionsRepo persists the position lifecycle and serves open books.
type PositionsRepo interface {
	// UpsertOpen writes or refreshes an open position row.
	UpsertOpen(ctx context.Context, rec PositionRecord) error
	// MarkClosed transitions a row to its terminal status. Missing rows are
	// not an error; reconciliation can close positions the store never saw.
	MarkClosed(ctx context.Context, positionID, status string, exitPrice, realisedPnL decimal.Decimal, exitReason string, closedAt time.Time) error
	// ActiveByAgents returns all open positions keyed by agent ID. When
	// agentIDs is empty it returns every open position.
	ActiveByAgents(ctx context.Context, agentIDs []string) (map[string][]PositionRecord, error)
	// HistoryByAgent returns closed positions ordered by close time descending.
	HistoryByAgent(ctx context.Context, agentID string, limit int) ([]PositionRecord, error)
}

type positionsRepo struct {
	conn sqlx.SqlConn
}

func newPositionsRepo(deps Dependencies) PositionsRepo {
	return &positionsRepo{
		conn: deps.DBConn,
	}
}

func (r *positionsRepo) UpsertOpen(ctx context.Context, rec PositionRecord) error {
	statement := `
INSERT INTO public.positions (
    id, agent_id, cycle_id, symbol, side, status,
    entry_price, quantity, leverage, margin_used,
    stop_loss_price, take_profit_price, liquidation_price,
    mark_price, unrealised_pnl, fees, client_order_id,
    opened_at, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, 'OPEN',
    $6, $7, $8, $9,
    $10, $11, $12,
    $13, $14, $15, $16,
    $17, NOW(), NOW()
)
ON CONFLICT (id) DO UPDATE SET
    cycle_id = EXCLUDED.cycle_id,
    status = 'OPEN',
    quantity = EXCLUDED.quantity,
    margin_used = EXCLUDED.margin_used,
    stop_loss_price = EXCLUDED.stop_loss_price,
    take_profit_price = EXCLUDED.take_profit_price,
    liquidation_price = EXCLUDED.liquidation_price,
    mark_price = EXCLUDED.mark_price,
    unrealised_pnl = EXCLUDED.unrealised_pnl,
    fees = EXCLUDED.fees,
    updated_at = NOW();
`
	_, err := r.conn.ExecCtx(
		ctx,
		statement,
		rec.ID,
		rec.AgentID,
		rec.CycleID,
		rec.Symbol,
		rec.Side,
		rec.EntryPrice,
		rec.Quantity,
		rec.Leverage,
		rec.MarginUsed,
		decimalPtrArg(rec.StopLossPrice),
		decimalPtrArg(rec.TakeProfitPrice),
		decimalPtrArg(rec.LiquidationPrice),
		decimalPtrArg(rec.MarkPrice),
		decimalPtrArg(rec.UnrealisedPnL),
		rec.Fees,
		rec.ClientOrderID,
		rec.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("positionsRepo.UpsertOpen exec: %w", err)
	}
	return nil
}

func (r *positionsRepo) MarkClosed(ctx context.Context, positionID, status string, exitPrice, realisedPnL decimal.Decimal, exitReason string, closedAt time.Time) error {
	statement := `
UPDATE public.positions
SET status = $2,
    exit_price = $3,
    realised_pnl = $4,
    exit_reason = $5,
    closed_at = $6,
    unrealised_pnl = NULL,
    updated_at = NOW()
WHERE id = $1;
`
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}
	if _, err := r.conn.ExecCtx(ctx, statement, positionID, status, exitPrice, realisedPnL, exitReason, closedAt); err != nil {
		return fmt.Errorf("positionsRepo.MarkClosed exec: %w", err)
	}
	return nil
}

func (r *positionsRepo) ActiveByAgents(ctx context.Context, agentIDs []string) (map[string][]PositionRecord, error) {
	query := positionSelect + `
WHERE status = 'OPEN'
%s
ORDER BY agent_id, symbol`

	var (
		args   []any
		clause string
	)
	if len(agentIDs) > 0 {
		clause = "AND agent_id = ANY($1)"
		args = append(args, pq.Array(agentIDs))
	}

	finalQuery := fmt.Sprintf(query, clause)
	var rows []positionRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, finalQuery, args...); err != nil {
		return nil, fmt.Errorf("positionsRepo.ActiveByAgents query: %w", err)
	}

	result := make(map[string][]PositionRecord)
	for _, row := range rows {
		rec := row.record()
		result[row.AgentID] = append(result[row.AgentID], rec)
	}
	return result, nil
}

func (r *positionsRepo) HistoryByAgent(ctx context.Context, agentID string, limit int) ([]PositionRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	query := positionSelect + `
WHERE agent_id = $1 AND status <> 'OPEN'
ORDER BY closed_at DESC NULLS LAST
LIMIT $2`

	var rows []positionRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, query, agentID, limit); err != nil {
		return nil, fmt.Errorf("positionsRepo.HistoryByAgent query: %w", err)
	}

	result := make([]PositionRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.record())
	}
	return result, nil
}

const positionSelect = `
SELECT
    id,
    agent_id,
    cycle_id,
    symbol,
    side,
    status,
    entry_price,
    quantity,
    leverage,
    margin_used,
    stop_loss_price,
    take_profit_price,
    liquidation_price,
    mark_price,
    unrealised_pnl,
    fees,
    client_order_id,
    exit_price,
    realised_pnl,
    exit_reason,
    opened_at,
    closed_at
FROM public.positions`

type positionRow struct {
	ID               string              `db:"id"`
	AgentID          string              `db:"agent_id"`
	CycleID          string              `db:"cycle_id"`
	Symbol           string              `db:"symbol"`
	Side             string              `db:"side"`
	Status           string              `db:"status"`
	EntryPrice       decimal.Decimal     `db:"entry_price"`
	Quantity         decimal.Decimal     `db:"quantity"`
	Leverage         int                 `db:"leverage"`
	MarginUsed       decimal.Decimal     `db:"margin_used"`
	StopLossPrice    decimal.NullDecimal `db:"stop_loss_price"`
	TakeProfitPrice  decimal.NullDecimal `db:"take_profit_price"`
	LiquidationPrice decimal.NullDecimal `db:"liquidation_price"`
	MarkPrice        decimal.NullDecimal `db:"mark_price"`
	UnrealisedPnL    decimal.NullDecimal `db:"unrealised_pnl"`
	Fees             decimal.Decimal     `db:"fees"`
	ClientOrderID    string              `db:"client_order_id"`
	ExitPrice        decimal.NullDecimal `db:"exit_price"`
	RealisedPnL      decimal.NullDecimal `db:"realised_pnl"`
	ExitReason       sql.NullString      `db:"exit_reason"`
	OpenedAt         time.Time           `db:"opened_at"`
	ClosedAt         sql.NullTime        `db:"closed_at"`
}

func (row positionRow) record() PositionRecord {
	rec := PositionRecord{
		ID:            row.ID,
		AgentID:       row.AgentID,
		CycleID:       row.CycleID,
		Symbol:        row.Symbol,
		Side:          row.Side,
		Status:        row.Status,
		EntryPrice:    row.EntryPrice,
		Quantity:      row.Quantity,
		Leverage:      row.Leverage,
		MarginUsed:    row.MarginUsed,
		Fees:          row.Fees,
		ClientOrderID: row.ClientOrderID,
		OpenedAt:      row.OpenedAt,
	}
	rec.StopLossPrice = decimalPtr(row.StopLossPrice)
	rec.TakeProfitPrice = decimalPtr(row.TakeProfitPrice)
	rec.LiquidationPrice = decimalPtr(row.LiquidationPrice)
	rec.MarkPrice = decimalPtr(row.MarkPrice)
	rec.UnrealisedPnL = decimalPtr(row.UnrealisedPnL)
	rec.ExitPrice = decimalPtr(row.ExitPrice)
	rec.RealisedPnL = decimalPtr(row.RealisedPnL)
	if row.ExitReason.Valid {
		value := row.ExitReason.String
		rec.ExitReason = &value
	}
	if row.ClosedAt.Valid {
		value := row.ClosedAt.Time
		rec.ClosedAt = &value
	}
	return rec
}

func decimalPtr(value decimal.NullDecimal) *decimal.Decimal {
	if !value.Valid {
		return nil
	}
	d := value.Decimal
	return &d
}

func decimalPtrArg(ptr *decimal.Decimal) decimal.NullDecimal {
	if ptr == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *ptr, Valid: true}
}
