package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// AgentRecord mirrors the agents table.
//
//	CREATE TABLE public.agents (
//	    id              TEXT PRIMARY KEY,
//	    name            TEXT NOT NULL,
//	    model           TEXT NOT NULL,
//	    prompt_digest   TEXT,
//	    enabled         BOOLEAN NOT NULL DEFAULT TRUE,
//	    disabled_reason TEXT,
//	    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type AgentRecord struct {
	ID             string
	Name           string
	Model          string
	PromptDigest   string
	Enabled        bool
	DisabledReason *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AgentsRepo maintains the competitor roster.
type AgentsRepo interface {
	// Upsert registers an agent or refreshes its display fields. The enabled
	// flag is only written on first insert so an operator kill switch is not
	// undone by a restart.
	Upsert(ctx context.Context, rec AgentRecord) error
	// List returns all agents ordered by id.
	List(ctx context.Context) ([]AgentRecord, error)
	// SetEnabled toggles the operator kill switch for one agent.
	SetEnabled(ctx context.Context, agentID string, enabled bool, reason string) error
}

type agentsRepo struct {
	conn sqlx.SqlConn
}

func newAgentsRepo(deps Dependencies) AgentsRepo {
	return &agentsRepo{
		conn: deps.DBConn,
	}
}

func (r *agentsRepo) Upsert(ctx context.Context, rec AgentRecord) error {
	statement := `
INSERT INTO public.agents (id, name, model, prompt_digest, enabled, created_at, updated_at)
VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW())
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    model = EXCLUDED.model,
    prompt_digest = EXCLUDED.prompt_digest,
    updated_at = NOW();
`
	if _, err := r.conn.ExecCtx(ctx, statement, rec.ID, rec.Name, rec.Model, rec.PromptDigest); err != nil {
		return fmt.Errorf("agentsRepo.Upsert exec: %w", err)
	}
	return nil
}

func (r *agentsRepo) List(ctx context.Context) ([]AgentRecord, error) {
	query := `
SELECT id, name, model, prompt_digest, enabled, disabled_reason, created_at, updated_at
FROM public.agents
ORDER BY id`

	var rows []agentRow
	if err := r.conn.QueryRowsCtx(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("agentsRepo.List query: %w", err)
	}

	result := make([]AgentRecord, 0, len(rows))
	for _, row := range rows {
		rec := AgentRecord{
			ID:        row.ID,
			Name:      row.Name,
			Model:     row.Model,
			Enabled:   row.Enabled,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		}
		if row.PromptDigest.Valid {
			rec.PromptDigest = row.PromptDigest.String
		}
		if row.DisabledReason.Valid {
			value := row.DisabledReason.String
			rec.DisabledReason = &value
		}
		result = append(result, rec)
	}
	return result, nil
}

func (r *agentsRepo) SetEnabled(ctx context.Context, agentID string, enabled bool, reason string) error {
	statement := `
UPDATE public.agents
SET enabled = $2,
    disabled_reason = CASE WHEN $2 THEN NULL ELSE $3 END,
    updated_at = NOW()
WHERE id = $1;
`
	reasonArg := sql.NullString{}
	if reason != "" {
		reasonArg = sql.NullString{String: reason, Valid: true}
	}
	if _, err := r.conn.ExecCtx(ctx, statement, agentID, enabled, reasonArg); err != nil {
		return fmt.Errorf("agentsRepo.SetEnabled exec: %w", err)
	}
	return nil
}

type agentRow struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Model          string         `db:"model"`
	PromptDigest   sql.NullString `db:"prompt_digest"`
	Enabled        bool           `db:"enabled"`
	DisabledReason sql.NullString `db:"disabled_reason"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}
