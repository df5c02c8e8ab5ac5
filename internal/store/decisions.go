package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// DecisionRecord mirrors the decisions table: one row per agent per cycle.
//
//	CREATE TABLE public.decisions (
//	    id         BIGSERIAL PRIMARY KEY,
//	    cycle_id   TEXT NOT NULL,
//	    agent_id   TEXT NOT NULL,
//	    model      TEXT NOT NULL,
//	    status     TEXT NOT NULL,
//	    action     TEXT,
//	    symbol     TEXT,
//	    decision   JSONB,
//	    raw_text   TEXT,
//	    error      TEXT,
//	    tokens_in  INTEGER NOT NULL DEFAULT 0,
//	    tokens_out INTEGER NOT NULL DEFAULT 0,
//	    latency_ms BIGINT NOT NULL DEFAULT 0,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    UNIQUE (cycle_id, agent_id)
//	);
type DecisionRecord struct {
	CycleID      string
	AgentID      string
	Model        string
	Status       string
	Action       *string
	Symbol       *string
	DecisionJSON []byte
	RawText      string
	Error        string
	TokensIn     int
	TokensOut    int
	LatencyMs    int64
	CreatedAt    time.Time
}

// DecisionsRepo appends decision outcomes and reads them back per agent.
type DecisionsRepo interface {
	// Insert writes one decision row. A replayed (cycle_id, agent_id) pair is
	// a no-op so crash-retried cycles never double-count.
	Insert(ctx context.Context, rec DecisionRecord) error
	// RecentByAgent returns decisions ordered by creation time descending.
	RecentByAgent(ctx context.Context, agentID string, limit int) ([]DecisionRecord, error)
}

type decisionsRepo struct {
	conn sqlx.SqlConn
}

func newDecisionsRepo(deps Dependencies) DecisionsRepo {
	return &decisionsRepo{
		conn: deps.DBConn,
	}
}

func (r *decisionsRepo) Insert(ctx context.Context, rec DecisionRecord) error {
	statement := `
INSERT INTO public.decisions (
    cycle_id, agent_id, model, status, action, symbol,
    decision, raw_text, error, tokens_in, tokens_out, latency_ms, created_at
) VALUES (
    $1, $2, $3, $4, $5, $6,
    $7, $8, $9, $10, $11, $12, $13
);
`
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var decisionArg any
	if len(rec.DecisionJSON) > 0 {
		decisionArg = string(rec.DecisionJSON)
	}
	_, err := r.conn.ExecCtx(
		ctx,
		statement,
		rec.CycleID,
		rec.AgentID,
		rec.Model,
		rec.Status,
		nullString(rec.Action),
		nullString(rec.Symbol),
		decisionArg,
		rec.RawText,
		rec.Error,
		rec.TokensIn,
		rec.TokensOut,
		rec.LatencyMs,
		createdAt,
	)
	if err != nil && isUniqueViolation(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decisionsRepo.Insert exec: %w", err)
	}
	return nil
}

func (r *decisionsRepo) RecentByAgent(ctx context.Context, agentID string, limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
SELECT
    cycle_id,
    agent_id,
    model,
    status,
    action,
    symbol,
    decision,
    raw_text,
    error,
    tokens_in,
    tokens_out,
    latency_ms,
    created_at
FROM public.decisions
WHERE agent_id = $1
ORDER BY created_at DESC
LIMIT $2`

	var rows []decisionRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, query, agentID, limit); err != nil {
		return nil, fmt.Errorf("decisionsRepo.RecentByAgent query: %w", err)
	}

	result := make([]DecisionRecord, 0, len(rows))
	for _, row := range rows {
		rec := DecisionRecord{
			CycleID:   row.CycleID,
			AgentID:   row.AgentID,
			Model:     row.Model,
			Status:    row.Status,
			TokensIn:  row.TokensIn,
			TokensOut: row.TokensOut,
			LatencyMs: row.LatencyMs,
			CreatedAt: row.CreatedAt,
		}
		if row.Action.Valid {
			value := row.Action.String
			rec.Action = &value
		}
		if row.Symbol.Valid {
			value := row.Symbol.String
			rec.Symbol = &value
		}
		if row.Decision.Valid {
			rec.DecisionJSON = []byte(row.Decision.String)
		}
		if row.RawText.Valid {
			rec.RawText = row.RawText.String
		}
		if row.Error.Valid {
			rec.Error = row.Error.String
		}
		result = append(result, rec)
	}
	return result, nil
}

type decisionRow struct {
	CycleID   string         `db:"cycle_id"`
	AgentID   string         `db:"agent_id"`
	Model     string         `db:"model"`
	Status    string         `db:"status"`
	Action    sql.NullString `db:"action"`
	Symbol    sql.NullString `db:"symbol"`
	Decision  sql.NullString `db:"decision"`
	RawText   sql.NullString `db:"raw_text"`
	Error     sql.NullString `db:"error"`
	TokensIn  int            `db:"tokens_in"`
	TokensOut int            `db:"tokens_out"`
	LatencyMs int64          `db:"latency_ms"`
	CreatedAt time.Time      `db:"created_at"`
}

// RejectionRecord mirrors the rejections table: sampled risk verdicts kept
// for prompt feedback and operator review.
//
//	CREATE TABLE public.rejections (
//	    id         BIGSERIAL PRIMARY KEY,
//	    cycle_id   TEXT NOT NULL,
//	    agent_id   TEXT NOT NULL,
//	    check_name TEXT NOT NULL,
//	    reason     TEXT NOT NULL,
//	    detail     TEXT,
//	    decision   JSONB,
//	    price      NUMERIC(30,10),
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type RejectionRecord struct {
	CycleID      string
	AgentID      string
	Check        string
	Reason       string
	Detail       string
	DecisionJSON []byte
	Price        decimal.Decimal
	CreatedAt    time.Time
}

// RejectionsRepo appends sampled risk rejections.
type RejectionsRepo interface {
	Insert(ctx context.Context, rec RejectionRecord) error
}

type rejectionsRepo struct {
	conn sqlx.SqlConn
}

func newRejectionsRepo(deps Dependencies) RejectionsRepo {
	return &rejectionsRepo{
		conn: deps.DBConn,
	}
}

func (r *rejectionsRepo) Insert(ctx context.Context, rec RejectionRecord) error {
	statement := `
INSERT INTO public.rejections (cycle_id, agent_id, check_name, reason, detail, decision, price, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var decisionArg any
	if len(rec.DecisionJSON) > 0 {
		decisionArg = string(rec.DecisionJSON)
	}
	_, err := r.conn.ExecCtx(
		ctx,
		statement,
		rec.CycleID,
		rec.AgentID,
		rec.Check,
		rec.Reason,
		rec.Detail,
		decisionArg,
		rec.Price,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("rejectionsRepo.Insert exec: %w", err)
	}
	return nil
}

// ModelCallRecord mirrors the model_calls table: token, latency and dollar
// cost per LLM invocation.
//
//	CREATE TABLE public.model_calls (
//	    id            BIGSERIAL PRIMARY KEY,
//	    cycle_id      TEXT NOT NULL,
//	    agent_id      TEXT NOT NULL,
//	    model         TEXT NOT NULL,
//	    prompt_digest TEXT,
//	    tokens_in     INTEGER NOT NULL DEFAULT 0,
//	    tokens_out    INTEGER NOT NULL DEFAULT 0,
//	    latency_ms    BIGINT NOT NULL DEFAULT 0,
//	    cost_usd      DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    error         TEXT,
//	    error_kind    TEXT,
//	    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type ModelCallRecord struct {
	CycleID      string
	AgentID      string
	Model        string
	PromptDigest string
	TokensIn     int
	TokensOut    int
	LatencyMs    int64
	CostUSD      float64
	Error        string
	ErrorKind    string
	CreatedAt    time.Time
}

// ModelCallsRepo appends per-call token accounting.
type ModelCallsRepo interface {
	Insert(ctx context.Context, rec ModelCallRecord) error
}

type modelCallsRepo struct {
	conn sqlx.SqlConn
}

func newModelCallsRepo(deps Dependencies) ModelCallsRepo {
	return &modelCallsRepo{
		conn: deps.DBConn,
	}
}

func (r *modelCallsRepo) Insert(ctx context.Context, rec ModelCallRecord) error {
	statement := `
INSERT INTO public.model_calls (cycle_id, agent_id, model, prompt_digest, tokens_in, tokens_out, latency_ms, cost_usd, error, error_kind, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.conn.ExecCtx(
		ctx,
		statement,
		rec.CycleID,
		rec.AgentID,
		rec.Model,
		rec.PromptDigest,
		rec.TokensIn,
		rec.TokensOut,
		rec.LatencyMs,
		rec.CostUSD,
		rec.Error,
		rec.ErrorKind,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("modelCallsRepo.Insert exec: %w", err)
	}
	return nil
}

func nullString(ptr *string) sql.NullString {
	if ptr == nil || *ptr == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *ptr, Valid: true}
}
