package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// CycleRecord mirrors the cycles table: one summary row per scheduler pass.
//
//	CREATE TABLE public.cycles (
//	    cycle_id          TEXT PRIMARY KEY,
//	    seq               BIGINT NOT NULL,
//	    started_at        TIMESTAMPTZ NOT NULL,
//	    finished_at       TIMESTAMPTZ NOT NULL,
//	    agents_run        INTEGER NOT NULL,
//	    executed          INTEGER NOT NULL,
//	    held              INTEGER NOT NULL,
//	    rejected          INTEGER NOT NULL,
//	    failed            INTEGER NOT NULL,
//	    triggers          INTEGER NOT NULL,
//	    reconcile_added   INTEGER NOT NULL,
//	    reconcile_updated INTEGER NOT NULL,
//	    reconcile_removed INTEGER NOT NULL,
//	    error             TEXT
//	);
type CycleRecord struct {
	CycleID          string
	Seq              int64
	StartedAt        time.Time
	FinishedAt       time.Time
	AgentsRun        int
	Executed         int
	Held             int
	Rejected         int
	Failed           int
	Triggers         int
	ReconcileAdded   int
	ReconcileUpdated int
	ReconcileRemoved int
	Error            string
}

// CyclesRepo appends cycle summaries and serves the most recent ones.
type CyclesRepo interface {
	// Upsert writes a cycle summary; a crash-replayed cycle id overwrites.
	Upsert(ctx context.Context, rec CycleRecord) error
	// Recent returns summaries ordered by sequence descending.
	Recent(ctx context.Context, limit int) ([]CycleRecord, error)
}

type cyclesRepo struct {
	conn sqlx.SqlConn
}

func newCyclesRepo(deps Dependencies) CyclesRepo {
	return &cyclesRepo{
		conn: deps.DBConn,
	}
}

func (r *cyclesRepo) Upsert(ctx context.Context, rec CycleRecord) error {
	statement := `
INSERT INTO public.cycles (
    cycle_id, seq, started_at, finished_at,
    agents_run, executed, held, rejected, failed, triggers,
    reconcile_added, reconcile_updated, reconcile_removed, error
) VALUES (
    $1, $2, $3, $4,
    $5, $6, $7, $8, $9, $10,
    $11, $12, $13, $14
)
ON CONFLICT (cycle_id) DO UPDATE SET
    finished_at = EXCLUDED.finished_at,
    agents_run = EXCLUDED.agents_run,
    executed = EXCLUDED.executed,
    held = EXCLUDED.held,
    rejected = EXCLUDED.rejected,
    failed = EXCLUDED.failed,
    triggers = EXCLUDED.triggers,
    reconcile_added = EXCLUDED.reconcile_added,
    reconcile_updated = EXCLUDED.reconcile_updated,
    reconcile_removed = EXCLUDED.reconcile_removed,
    error = EXCLUDED.error;
`
	errArg := sql.NullString{}
	if rec.Error != "" {
		errArg = sql.NullString{String: rec.Error, Valid: true}
	}
	_, err := r.conn.ExecCtx(
		ctx,
		statement,
		rec.CycleID,
		rec.Seq,
		rec.StartedAt,
		rec.FinishedAt,
		rec.AgentsRun,
		rec.Executed,
		rec.Held,
		rec.Rejected,
		rec.Failed,
		rec.Triggers,
		rec.ReconcileAdded,
		rec.ReconcileUpdated,
		rec.ReconcileRemoved,
		errArg,
	)
	if err != nil {
		return fmt.Errorf("cyclesRepo.Upsert exec: %w", err)
	}
	return nil
}

func (r *cyclesRepo) Recent(ctx context.Context, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
SELECT
    cycle_id,
    seq,
    started_at,
    finished_at,
    agents_run,
    executed,
    held,
    rejected,
    failed,
    triggers,
    reconcile_added,
    reconcile_updated,
    reconcile_removed,
    error
FROM public.cycles
ORDER BY seq DESC
LIMIT $1`

	var rows []cycleRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("cyclesRepo.Recent query: %w", err)
	}

	result := make([]CycleRecord, 0, len(rows))
	for _, row := range rows {
		rec := CycleRecord{
			CycleID:          row.CycleID,
			Seq:              row.Seq,
			StartedAt:        row.StartedAt,
			FinishedAt:       row.FinishedAt,
			AgentsRun:        row.AgentsRun,
			Executed:         row.Executed,
			Held:             row.Held,
			Rejected:         row.Rejected,
			Failed:           row.Failed,
			Triggers:         row.Triggers,
			ReconcileAdded:   row.ReconcileAdded,
			ReconcileUpdated: row.ReconcileUpdated,
			ReconcileRemoved: row.ReconcileRemoved,
		}
		if row.Error.Valid {
			rec.Error = row.Error.String
		}
		result = append(result, rec)
	}
	return result, nil
}

type cycleRow struct {
	CycleID          string         `db:"cycle_id"`
	Seq              int64          `db:"seq"`
	StartedAt        time.Time      `db:"started_at"`
	FinishedAt       time.Time      `db:"finished_at"`
	AgentsRun        int            `db:"agents_run"`
	Executed         int            `db:"executed"`
	Held             int            `db:"held"`
	Rejected         int            `db:"rejected"`
	Failed           int            `db:"failed"`
	Triggers         int            `db:"triggers"`
	ReconcileAdded   int            `db:"reconcile_added"`
	ReconcileUpdated int            `db:"reconcile_updated"`
	ReconcileRemoved int            `db:"reconcile_removed"`
	Error            sql.NullString `db:"error"`
}

// MarketSnapshotRecord mirrors the market_snapshots table: the per-symbol
// market view an agent decided against, kept for audit.
//
//	CREATE TABLE public.market_snapshots (
//	    id         BIGSERIAL PRIMARY KEY,
//	    cycle_id   TEXT NOT NULL,
//	    symbol     TEXT NOT NULL,
//	    price      NUMERIC(30,10) NOT NULL,
//	    payload    JSONB NOT NULL,
//	    fetched_at TIMESTAMPTZ NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    UNIQUE (cycle_id, symbol)
//	);
type MarketSnapshotRecord struct {
	CycleID   string
	Symbol    string
	Price     decimal.Decimal
	Payload   []byte
	FetchedAt time.Time
}

// SnapshotsRepo appends audited market snapshots.
type SnapshotsRepo interface {
	// Insert writes one snapshot row; a replayed (cycle_id, symbol) pair is
	// a no-op.
	Insert(ctx context.Context, rec MarketSnapshotRecord) error
}

type snapshotsRepo struct {
	conn sqlx.SqlConn
}

func newSnapshotsRepo(deps Dependencies) SnapshotsRepo {
	return &snapshotsRepo{
		conn: deps.DBConn,
	}
}

func (r *snapshotsRepo) Insert(ctx context.Context, rec MarketSnapshotRecord) error {
	statement := `
INSERT INTO public.market_snapshots (cycle_id, symbol, price, payload, fetched_at, created_at)
VALUES ($1, $2, $3, $4, $5, NOW());
`
	fetchedAt := rec.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	_, err := r.conn.ExecCtx(
		ctx,
		statement,
		rec.CycleID,
		rec.Symbol,
		rec.Price,
		string(rec.Payload),
		fetchedAt,
	)
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("snapshotsRepo.Insert exec: %w", err)
	}
	return nil
}
