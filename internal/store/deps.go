package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	cachekeys "arena-api/internal/cache"
)

// Dependencies bundles the shared infrastructure required by repository
// implementations. Cache and TTL are optional; repositories that cache fall
// back to straight queries when Cache is nil.
type Dependencies struct {
	DBConn sqlx.SqlConn
	Cache  cache.Cache
	TTL    cachekeys.TTLSet
}

// Set exposes strongly typed repositories to application logic.
type Set struct {
	Agents      AgentsRepo
	Accounts    AccountsRepo
	Equity      EquityRepo
	Positions   PositionsRepo
	Trades      TradesRepo
	Decisions   DecisionsRepo
	Rejections  RejectionsRepo
	ModelCalls  ModelCallsRepo
	Cycles      CyclesRepo
	Snapshots   SnapshotsRepo
	Leaderboard LeaderboardRepo
}

// New constructs the repository set, validating required dependencies.
func New(deps Dependencies) (*Set, error) {
	if deps.DBConn == nil {
		return nil, errors.New("store: missing DBConn dependency")
	}

	return &Set{
		Agents:      newAgentsRepo(deps),
		Accounts:    newAccountsRepo(deps),
		Equity:      newEquityRepo(deps),
		Positions:   newPositionsRepo(deps),
		Trades:      newTradesRepo(deps),
		Decisions:   newDecisionsRepo(deps),
		Rejections:  newRejectionsRepo(deps),
		ModelCalls:  newModelCallsRepo(deps),
		Cycles:      newCyclesRepo(deps),
		Snapshots:   newSnapshotsRepo(deps),
		Leaderboard: newLeaderboardRepo(deps),
	}, nil
}

// isUniqueViolation matches Postgres error 23505 as surfaced by the pgx
// stdlib driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
