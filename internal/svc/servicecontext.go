package svc

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/shopspring/decimal"
	gocache "github.com/zeromicro/go-zero/core/stores/cache"
	"github.com/zeromicro/go-zero/core/stores/redis"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/core/syncx"

	cachekeys "arena-api/internal/cache"
	"arena-api/internal/config"
	"arena-api/internal/persistence"
	"arena-api/internal/store"
	arenapkg "arena-api/pkg/arena"
	llmpkg "arena-api/pkg/llm"
	marketpkg "arena-api/pkg/market"
	venuepkg "arena-api/pkg/venue"
	_ "arena-api/pkg/venue/binance"
	_ "arena-api/pkg/venue/sim"
)

// startupTimeout bounds the store reads that seed accounts at boot.
const startupTimeout = 10 * time.Second

type ServiceContext struct {
	Config config.Config

	// Store-backed collaborators; nil without a Postgres DSN, in which case
	// the arena runs from memory only.
	Store   *store.Set
	Cache   gocache.Cache
	TTL     cachekeys.TTLSet
	Persist *persistence.Service

	VenueName      string
	Venue          venuepkg.Venue
	VenueProviders map[string]venuepkg.Venue

	Market *marketpkg.Service
	LLM    llmpkg.LLMClient

	ArenaConfig *arenapkg.Config
	Registry    *arenapkg.Registry
	Bus         *arenapkg.Bus
	Executor    *arenapkg.TradeExecutor
	Reconciler  *arenapkg.Reconciler
	Pipeline    *arenapkg.Pipeline
	Scheduler   *arenapkg.Scheduler
	Recorder    arenapkg.Recorder

	StartedAt time.Time
}

func NewServiceContext(c config.Config) *ServiceContext {
	svc := &ServiceContext{
		Config:    c,
		TTL:       cachekeys.NewTTLSet(c.TTL),
		StartedAt: time.Now().UTC(),
	}

	// Venue first: market data, execution and reconciliation all hang off it.
	venueCfg := c.Venue.Value
	if venueCfg == nil {
		log.Fatalf("venue config required: set venue.file in %s", c.MainPath())
	}
	if c.IsTestEnv() {
		applyTestPolicy(venueCfg, c.LLM.Value)
	}
	providers, err := venueCfg.BuildProviders()
	if err != nil {
		log.Fatalf("failed to build venue providers: %v", err)
	}
	name, defaultVenue, err := venueCfg.DefaultProvider(providers)
	if err != nil {
		log.Fatalf("failed to select venue provider: %v", err)
	}
	svc.VenueProviders = providers
	svc.VenueName = name
	svc.Venue = venuepkg.NewBreakerVenue(defaultVenue)

	marketCfg := c.Market.Value
	if marketCfg == nil {
		marketCfg = marketpkg.DefaultConfig()
	}
	svc.Market, err = marketpkg.NewService(svc.Venue, marketCfg)
	if err != nil {
		log.Fatalf("failed to init market service: %v", err)
	}

	arenaCfg := c.Arena.Value
	if arenaCfg == nil {
		log.Fatalf("arena config required: set arena.file in %s", c.MainPath())
	}
	svc.ArenaConfig = arenaCfg

	svc.Registry, err = arenapkg.NewRegistry(arenaCfg)
	if err != nil {
		log.Fatalf("failed to build agent registry: %v", err)
	}

	// Redis before Postgres so the store can share the cache node.
	if len(c.Redis.Host) > 0 {
		rds := redis.MustNewRedis(c.Redis)
		svc.Cache = gocache.NewNode(rds, syncx.NewSingleFlight(), gocache.NewStat("arena"), sql.ErrNoRows)
	}

	if c.Postgres.DSN != "" {
		conn := sqlx.NewSqlConn("pgx", c.Postgres.DSN)
		svc.Store, err = store.New(store.Dependencies{DBConn: conn, Cache: svc.Cache, TTL: svc.TTL})
		if err != nil {
			log.Fatalf("failed to init store: %v", err)
		}
	}

	if p := persistence.NewService(persistence.Config{Repos: svc.Store, Cache: svc.Cache, TTL: svc.TTL}); p != nil {
		svc.Persist = p
		svc.Recorder = p
	} else {
		svc.Recorder = arenapkg.NewNopRecorder()
	}

	if svc.Store != nil {
		svc.seedFromStore()
	}

	limits := arenaCfg.RiskLimits()
	svc.Bus = arenapkg.NewBus()
	svc.Executor = arenapkg.NewTradeExecutor(svc.Venue, limits)
	svc.Reconciler = arenapkg.NewReconciler(svc.Venue, svc.Registry, svc.Market)

	// The decision stack is optional: without an LLM section the read API and
	// reconcile still work, the scheduler stays nil and start refuses to run.
	if llmCfg := c.LLM.Value; llmCfg != nil {
		client, err := llmpkg.NewClient(llmCfg)
		if err != nil {
			log.Fatalf("failed to init llm client: %v", err)
		}
		svc.LLM = client
		svc.Pipeline = arenapkg.NewPipeline(client, svc.Executor, svc.Recorder, svc.Bus, limits, arenaCfg.Arena)
		svc.Scheduler = arenapkg.NewScheduler(arenaCfg.Arena, arenapkg.SchedulerDeps{
			Registry:   svc.Registry,
			Market:     svc.Market,
			Pipeline:   svc.Pipeline,
			Executor:   svc.Executor,
			Reconciler: svc.Reconciler,
			Recorder:   svc.Recorder,
			Bus:        svc.Bus,
		})
	}

	return svc
}

// seedFromStore replays the last persisted account state into the fresh
// registry and syncs the roster into the agents table. Positions are not
// restored; the first reconcile pass rebuilds the book from the venue. A
// configured DSN that cannot serve these reads refuses to start rather than
// silently resetting every balance.
func (s *ServiceContext) seedFromStore() {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	for _, ag := range s.Registry.Agents() {
		rec := store.AgentRecord{
			ID:           ag.ID(),
			Name:         ag.Name(),
			Model:        ag.Model(),
			PromptDigest: ag.PromptDigest(),
			Enabled:      true,
		}
		if err := s.Store.Agents.Upsert(ctx, rec); err != nil {
			log.Fatalf("failed to sync agent %s: %v", ag.ID(), err)
		}

		state, err := s.Store.Accounts.GetByAgent(ctx, ag.ID())
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			log.Fatalf("failed to load account state for %s: %v", ag.ID(), err)
		}
		acct := ag.Account()
		acct.Restore(state.Balance, state.RealisedPnL, state.TradeCount, state.WinCount, state.LossCount)
		if !state.Enabled {
			reason := "disabled at last shutdown"
			if state.DisabledReason != nil && *state.DisabledReason != "" {
				reason = *state.DisabledReason
			}
			acct.Disable(reason)
		}
	}
}

// InitialBalance returns the configured starting balance as a decimal, the
// denominator for every return-percentage computation.
func (s *ServiceContext) InitialBalance() decimal.Decimal {
	return decimal.NewFromFloat(s.ArenaConfig.Arena.InitialBalance)
}

// testEnvModel is the low-cost router model test runs decide with, whatever
// the configured default.
const testEnvModel = "google/gemini-2.5-flash-lite"

// applyTestPolicy rewires external endpoints for test runs: every venue
// provider is pinned to its testnet and decisions route through testEnvModel.
// llmCfg may be nil when no LLM section is configured.
func applyTestPolicy(venueCfg *venuepkg.Config, llmCfg *llmpkg.Config) {
	for _, provider := range venueCfg.Providers {
		provider.Testnet = true
	}
	if llmCfg != nil {
		llmCfg.DefaultModel = testEnvModel
	}
}

// AssertOneWayMode fails when the venue account is not in one-way position
// mode. Hedge mode would double-book the reconciler's view of the book.
func (s *ServiceContext) AssertOneWayMode(ctx context.Context) error {
	oneWay, err := s.Venue.PositionMode(ctx)
	if err != nil {
		return err
	}
	if !oneWay {
		return errors.New("venue account is in hedge mode; switch it to one-way position mode")
	}
	return nil
}
