package arena

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"arena-api/pkg/account"
	"arena-api/pkg/market"
	"arena-api/pkg/venue"
)

const reconcileFetchTimeout = 8 * time.Second

// PositionSource is the single venue surface reconciliation needs.
type PositionSource interface {
	OpenPositions(ctx context.Context) ([]venue.VenuePosition, error)
}

// RemovedTrade pairs a reconciliation-settled trade with its owner, so the
// caller can persist and publish it.
type RemovedTrade struct {
	AgentID string
	Trade   account.Trade
}

// AgentPosition pairs a position copy with its owning agent id.
type AgentPosition struct {
	AgentID  string
	Position account.Position
}

// ReconcileReport aggregates one reconciliation pass across all agents.
type ReconcileReport struct {
	StartedAt      time.Time
	FinishedAt     time.Time
	Added          int
	Updated        int
	Removed        int
	Unowned        int
	PerAgent       map[string]account.ReplaceReport
	Trades         []RemovedTrade
	AddedPositions []AgentPosition
}

// Reconciler aligns every agent's book with the venue. The venue is the
// source of truth: positions it no longer shows are settled away, positions
// it shows that the book lacks are adopted under their tagged owner.
type Reconciler struct {
	venue    PositionSource
	registry *Registry
	market   *market.Service
	now      func() time.Time
}

// ReconcilerOption customises Reconciler construction.
type ReconcilerOption func(*Reconciler)

// WithReconcilerClock overrides the wall clock, for tests.
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler wires a reconciler to the venue, the agent registry and the
// market cache used to price removals.
func NewReconciler(v PositionSource, reg *Registry, mkt *market.Service, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		venue:    v,
		registry: reg,
		market:   mkt,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile fetches the venue's open positions and replaces each agent's book
// with its tagged share. A fetch error aborts the pass with every book
// unchanged. Positions whose tag parses to no known agent are counted and
// logged, never adopted.
func (r *Reconciler) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, reconcileFetchTimeout)
	defer cancel()

	venuePositions, err := r.venue.OpenPositions(fetchCtx)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{
		StartedAt: r.now(),
		PerAgent:  make(map[string]account.ReplaceReport, r.registry.Len()),
	}

	grouped := make(map[string][]account.ExternalPosition)
	for _, vp := range venuePositions {
		agentID, symbol, _, perr := ParseTag(vp.ClientOrderID)
		if perr != nil {
			report.Unowned++
			logx.WithContext(ctx).Infof("arena: reconcile: unowned venue position %s qty=%s: %v", vp.Symbol, vp.Quantity, perr)
			continue
		}
		if _, known := r.registry.Get(agentID); !known {
			report.Unowned++
			logx.WithContext(ctx).Infof("arena: reconcile: venue position %s tagged to unknown agent %q", vp.Symbol, agentID)
			continue
		}
		if symbol != vp.Symbol {
			// Tag and venue disagree; trust the venue.
			symbol = vp.Symbol
		}
		grouped[agentID] = append(grouped[agentID], account.ExternalPosition{
			Symbol:        symbol,
			Side:          sideFromVenue(vp.Side),
			Quantity:      vp.Quantity,
			EntryPrice:    vp.EntryPrice,
			Leverage:      vp.Leverage,
			ClientOrderID: vp.ClientOrderID,
		})
	}

	prices := r.cachedPrices()
	now := r.now()

	for _, agent := range r.registry.Agents() {
		rep, err := agent.Account().Replace(grouped[agent.ID()], prices, now)
		if err != nil {
			logx.WithContext(ctx).Errorf("arena: reconcile: agent %s: %v", agent.ID(), err)
		}
		if rep == nil {
			continue
		}
		report.PerAgent[agent.ID()] = *rep
		report.Added += len(rep.Added)
		report.Updated += len(rep.Updated)
		report.Removed += len(rep.Removed)
		for _, p := range rep.Added {
			report.AddedPositions = append(report.AddedPositions, AgentPosition{AgentID: agent.ID(), Position: p})
		}
		for _, rm := range rep.Removed {
			if rm.Trade != nil {
				report.Trades = append(report.Trades, RemovedTrade{AgentID: agent.ID(), Trade: *rm.Trade})
			}
		}
	}

	report.FinishedAt = r.now()
	return report, nil
}

// cachedPrices snapshots the market cache once per pass so every agent's
// removals settle at the same prices.
func (r *Reconciler) cachedPrices() map[string]decimal.Decimal {
	if r.market == nil {
		return nil
	}
	snaps := r.market.CachedAll()
	prices := make(map[string]decimal.Decimal, len(snaps))
	for _, s := range snaps {
		prices[s.Symbol] = s.Price
	}
	return prices
}

func sideFromVenue(side venue.PositionSide) account.Side {
	if side == venue.PositionShort {
		return account.SideShort
	}
	return account.SideLong
}
