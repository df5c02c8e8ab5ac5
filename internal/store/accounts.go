package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// AccountStateRecord mirrors the account_states table: the latest paper
// account snapshot per agent, overwritten every cycle.
//
//	CREATE TABLE public.account_states (
//	    agent_id        TEXT PRIMARY KEY,
//	    cycle_id        TEXT NOT NULL,
//	    balance         NUMERIC(30,10) NOT NULL,
//	    equity          NUMERIC(30,10) NOT NULL,
//	    margin_used     NUMERIC(30,10) NOT NULL,
//	    realised_pnl    NUMERIC(30,10) NOT NULL,
//	    unrealised_pnl  NUMERIC(30,10) NOT NULL,
//	    trade_count     INTEGER NOT NULL,
//	    win_count       INTEGER NOT NULL,
//	    loss_count      INTEGER NOT NULL,
//	    open_positions  INTEGER NOT NULL,
//	    enabled         BOOLEAN NOT NULL,
//	    disabled_reason TEXT,
//	    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type AccountStateRecord struct {
	AgentID        string
	CycleID        string
	Balance        decimal.Decimal
	Equity         decimal.Decimal
	MarginUsed     decimal.Decimal
	RealisedPnL    decimal.Decimal
	UnrealisedPnL  decimal.Decimal
	TradeCount     int
	WinCount       int
	LossCount      int
	OpenPositions  int
	Enabled        bool
	DisabledReason *string
	UpdatedAt      time.Time
}

// AccountsRepo persists and reads the latest account state per agent.
type AccountsRepo interface {
	// UpsertState overwrites the account row for rec.AgentID.
	UpsertState(ctx context.Context, rec AccountStateRecord) error
	// GetByAgent returns the stored state, or sql.ErrNoRows when absent.
	GetByAgent(ctx context.Context, agentID string) (*AccountStateRecord, error)
	// ListAll returns every stored account state ordered by agent id.
	ListAll(ctx context.Context) ([]AccountStateRecord, error)
}

type accountsRepo struct {
	conn sqlx.SqlConn
}

func newAccountsRepo(deps Dependencies) AccountsRepo {
	return &accountsRepo{
		conn: deps.DBConn,
	}
}

func (r *accountsRepo) UpsertState(ctx context.Context, rec AccountStateRecord) error {
	statement := `
INSERT INTO public.account_states (
    agent_id, cycle_id, balance, equity, margin_used, realised_pnl, unrealised_pnl,
    trade_count, win_count, loss_count, open_positions, enabled, disabled_reason, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7,
    $8, $9, $10, $11, $12, $13, NOW()
)
ON CONFLICT (agent_id) DO UPDATE SET
    cycle_id = EXCLUDED.cycle_id,
    balance = EXCLUDED.balance,
    equity = EXCLUDED.equity,
    margin_used = EXCLUDED.margin_used,
    realised_pnl = EXCLUDED.realised_pnl,
    unrealised_pnl = EXCLUDED.unrealised_pnl,
    trade_count = EXCLUDED.trade_count,
    win_count = EXCLUDED.win_count,
    loss_count = EXCLUDED.loss_count,
    open_positions = EXCLUDED.open_positions,
    enabled = EXCLUDED.enabled,
    disabled_reason = EXCLUDED.disabled_reason,
    updated_at = NOW();
`
	reasonArg := sql.NullString{}
	if rec.DisabledReason != nil && *rec.DisabledReason != "" {
		reasonArg = sql.NullString{String: *rec.DisabledReason, Valid: true}
	}
	_, err := r.conn.ExecCtx(
		ctx,
		statement,
		rec.AgentID,
		rec.CycleID,
		rec.Balance,
		rec.Equity,
		rec.MarginUsed,
		rec.RealisedPnL,
		rec.UnrealisedPnL,
		rec.TradeCount,
		rec.WinCount,
		rec.LossCount,
		rec.OpenPositions,
		rec.Enabled,
		reasonArg,
	)
	if err != nil {
		return fmt.Errorf("accountsRepo.UpsertState exec: %w", err)
	}
	return nil
}

func (r *accountsRepo) GetByAgent(ctx context.Context, agentID string) (*AccountStateRecord, error) {
	query := accountStateSelect + ` WHERE agent_id = $1`

	var row accountStateRow
	if err := r.conn.QueryRowCtx(ctx, &row, query, agentID); err != nil {
		return nil, fmt.Errorf("accountsRepo.GetByAgent query: %w", err)
	}
	rec := row.record()
	return &rec, nil
}

func (r *accountsRepo) ListAll(ctx context.Context) ([]AccountStateRecord, error) {
	query := accountStateSelect + ` ORDER BY agent_id`

	var rows []accountStateRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("accountsRepo.ListAll query: %w", err)
	}

	result := make([]AccountStateRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.record())
	}
	return result, nil
}

const accountStateSelect = `
SELECT
    agent_id,
    cycle_id,
    balance,
    equity,
    margin_used,
    realised_pnl,
    unrealised_pnl,
    trade_count,
    win_count,
    loss_count,
    open_positions,
    enabled,
    disabled_reason,
    updated_at
FROM public.account_states`

type accountStateRow struct {
	AgentID        string          `db:"agent_id"`
	CycleID        string          `db:"cycle_id"`
	Balance        decimal.Decimal `db:"balance"`
	Equity         decimal.Decimal `db:"equity"`
	MarginUsed     decimal.Decimal `db:"margin_used"`
	RealisedPnL    decimal.Decimal `db:"realised_pnl"`
	UnrealisedPnL  decimal.Decimal `db:"unrealised_pnl"`
	TradeCount     int             `db:"trade_count"`
	WinCount       int             `db:"win_count"`
	LossCount      int             `db:"loss_count"`
	OpenPositions  int             `db:"open_positions"`
	Enabled        bool            `db:"enabled"`
	DisabledReason sql.NullString  `db:"disabled_reason"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func (row accountStateRow) record() AccountStateRecord {
	rec := AccountStateRecord{
		AgentID:       row.AgentID,
		CycleID:       row.CycleID,
		Balance:       row.Balance,
		Equity:        row.Equity,
		MarginUsed:    row.MarginUsed,
		RealisedPnL:   row.RealisedPnL,
		UnrealisedPnL: row.UnrealisedPnL,
		TradeCount:    row.TradeCount,
		WinCount:      row.WinCount,
		LossCount:     row.LossCount,
		OpenPositions: row.OpenPositions,
		Enabled:       row.Enabled,
		UpdatedAt:     row.UpdatedAt,
	}
	if row.DisabledReason.Valid {
		value := row.DisabledReason.String
		rec.DisabledReason = &value
	}
	return rec
}

// EquityPointRecord mirrors the equity_points table: one equity sample per
// agent per cycle, feeding the leaderboard sparkline.
//
//	CREATE TABLE public.equity_points (
//	    id        BIGSERIAL PRIMARY KEY,
//	    agent_id  TEXT NOT NULL,
//	    cycle_id  TEXT NOT NULL,
//	    equity    NUMERIC(30,10) NOT NULL,
//	    balance   NUMERIC(30,10) NOT NULL,
//	    ts        TIMESTAMPTZ NOT NULL,
//	    UNIQUE (agent_id, cycle_id)
//	);
type EquityPointRecord struct {
	AgentID string
	CycleID string
	Equity  decimal.Decimal
	Balance decimal.Decimal
	Ts      time.Time
}

// EquityRepo appends per-cycle equity samples.
type EquityRepo interface {
	// UpsertPoint writes one sample; replaying a cycle overwrites in place.
	UpsertPoint(ctx context.Context, rec EquityPointRecord) error
	// SeriesByAgent returns samples ordered by time ascending, newest limit
	// entries when limit > 0.
	SeriesByAgent(ctx context.Context, agentID string, limit int) ([]EquityPointRecord, error)
}

type equityRepo struct {
	conn sqlx.SqlConn
}

func newEquityRepo(deps Dependencies) EquityRepo {
	return &equityRepo{
		conn: deps.DBConn,
	}
}

func (r *equityRepo) UpsertPoint(ctx context.Context, rec EquityPointRecord) error {
	statement := `
INSERT INTO public.equity_points (agent_id, cycle_id, equity, balance, ts)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (agent_id, cycle_id) DO UPDATE SET
    equity = EXCLUDED.equity,
    balance = EXCLUDED.balance,
    ts = EXCLUDED.ts;
`
	ts := rec.Ts
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if _, err := r.conn.ExecCtx(ctx, statement, rec.AgentID, rec.CycleID, rec.Equity, rec.Balance, ts); err != nil {
		return fmt.Errorf("equityRepo.UpsertPoint exec: %w", err)
	}
	return nil
}

func (r *equityRepo) SeriesByAgent(ctx context.Context, agentID string, limit int) ([]EquityPointRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `
SELECT agent_id, cycle_id, equity, balance, ts
FROM (
    SELECT agent_id, cycle_id, equity, balance, ts
    FROM public.equity_points
    WHERE agent_id = $1
    ORDER BY ts DESC
    LIMIT $2
) recent
ORDER BY ts ASC`

	var rows []equityPointRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, query, agentID, limit); err != nil {
		return nil, fmt.Errorf("equityRepo.SeriesByAgent query: %w", err)
	}

	result := make([]EquityPointRecord, 0, len(rows))
	for _, row := range rows {
		result = append(result, EquityPointRecord{
			AgentID: row.AgentID,
			CycleID: row.CycleID,
			Equity:  row.Equity,
			Balance: row.Balance,
			Ts:      row.Ts,
		})
	}
	return result, nil
}

type equityPointRow struct {
	AgentID string          `db:"agent_id"`
	CycleID string          `db:"cycle_id"`
	Equity  decimal.Decimal `db:"equity"`
	Balance decimal.Decimal `db:"balance"`
	Ts      time.Time       `db:"ts"`
}
