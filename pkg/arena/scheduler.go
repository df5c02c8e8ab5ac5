package arena

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"

	"arena-api/pkg/market"
)

// SchedulerDeps bundles everything a cycle touches.
type SchedulerDeps struct {
	Registry   *Registry
	Market     *market.Service
	Pipeline   *Pipeline
	Executor   *TradeExecutor
	Reconciler *Reconciler
	Recorder   Recorder
	Bus        *Bus
}

// SchedulerStatus is a point-in-time view of the cycle loop.
type SchedulerStatus struct {
	Running        bool      `json:"running"`
	Paused         bool      `json:"paused"`
	CycleInterval  string    `json:"cycle_interval"`
	CycleSeq       uint64    `json:"cycle_seq"`
	LastCycleID    string    `json:"last_cycle_id,omitempty"`
	LastStartedAt  time.Time `json:"last_started_at"`
	LastFinishedAt time.Time `json:"last_finished_at"`
	LastDurationMs int64     `json:"last_duration_ms"`
	LastError      string    `json:"last_error,omitempty"`
	NextRunAt      time.Time `json:"next_run_at"`
	SkippedOverlap uint64    `json:"skipped_overlap"`
	SkippedPaused  uint64    `json:"skipped_paused"`
	CyclesRun      uint64    `json:"cycles_run"`
	CyclesFailed   uint64    `json:"cycles_failed"`
}

// Scheduler drives the arena: one cycle per interval, never two at once.
// A cycle that outlives its interval makes the next tick a counted skip, so
// load sheds by running fewer cycles rather than overlapping them.
type Scheduler struct {
	interval time.Duration
	slack    time.Duration
	symbols  []string

	registry   *Registry
	market     *market.Service
	pipeline   *Pipeline
	executor   *TradeExecutor
	reconciler *Reconciler
	recorder   Recorder
	bus        *Bus
	now        func() time.Time

	running  atomic.Bool
	paused   atomic.Bool
	closed   atomic.Bool
	seq      atomic.Uint64
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu             sync.Mutex
	lastCycleID    string
	lastStartedAt  time.Time
	lastFinishedAt time.Time
	lastError      string
	nextRunAt      time.Time
	cyclesRun      uint64
	cyclesFailed   uint64
	skippedOverlap uint64
	skippedPaused  uint64
}

// SchedulerOption customises Scheduler construction.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock overrides the wall clock, for tests.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler wires the cycle loop. The recorder defaults to a no-op.
func NewScheduler(cfg ArenaConfig, deps SchedulerDeps, opts ...SchedulerOption) *Scheduler {
	rec := deps.Recorder
	if rec == nil {
		rec = NewNopRecorder()
	}
	s := &Scheduler{
		interval:   cfg.CycleInterval,
		slack:      cfg.CycleSlack,
		symbols:    cfg.Symbols,
		registry:   deps.Registry,
		market:     deps.Market,
		pipeline:   deps.Pipeline,
		executor:   deps.Executor,
		reconciler: deps.Reconciler,
		recorder:   rec,
		bus:        deps.Bus,
		now:        func() time.Time { return time.Now().UTC() },
		stopChan:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the loop. The first cycle runs immediately; subsequent
// cycles follow the ticker. Start returns at once.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.noteNextRun()
	s.tryRun(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.noteNextRun()
			s.tryRun(ctx)
		}
	}
}

// noteNextRun records when the ticker fires next. Delayed ticks coalesce:
// the ticker delivers at most one pending fire, so a stalled loop catches up
// with a single cycle rather than a burst.
func (s *Scheduler) noteNextRun() {
	s.mu.Lock()
	s.nextRunAt = s.now().Add(s.interval)
	s.mu.Unlock()
}

func (s *Scheduler) tryRun(ctx context.Context) {
	if s.closed.Load() {
		return
	}
	if s.paused.Load() {
		s.mu.Lock()
		s.skippedPaused++
		s.mu.Unlock()
		return
	}
	if !s.running.CompareAndSwap(false, true) {
		s.mu.Lock()
		s.skippedOverlap++
		skipped := s.skippedOverlap
		cycleID := s.lastCycleID
		s.mu.Unlock()
		logx.Infof("arena: cycle still running, tick skipped (total skips %d)", skipped)
		s.publish(Event{Type: EventCycleSkipped, CycleID: cycleID, Payload: map[string]interface{}{
			"reason": "previous cycle running", "total_skips": skipped,
		}})
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCycle(ctx)
	}()
}

// TriggerNow starts a cycle outside the ticker, pause notwithstanding.
// It returns ErrCycleRunning while one is in flight.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSchedulerClosed
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrCycleRunning
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runCycle(ctx)
	}()
	return nil
}

// Pause stops new cycles; the in-flight cycle, if any, finishes.
func (s *Scheduler) Pause() error {
	if !s.paused.CompareAndSwap(false, true) {
		return ErrAlreadyPaused
	}
	return nil
}

// Resume lifts a pause.
func (s *Scheduler) Resume() error {
	if !s.paused.CompareAndSwap(true, false) {
		return ErrNotPaused
	}
	return nil
}

// Shutdown stops the loop and waits for the in-flight cycle to finish.
func (s *Scheduler) Shutdown() {
	s.closed.Store(true)
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// Status reports the loop's current state.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SchedulerStatus{
		Running:        s.running.Load(),
		Paused:         s.paused.Load(),
		CycleInterval:  s.interval.String(),
		CycleSeq:       s.seq.Load(),
		LastCycleID:    s.lastCycleID,
		LastStartedAt:  s.lastStartedAt,
		LastFinishedAt: s.lastFinishedAt,
		LastError:      s.lastError,
		NextRunAt:      s.nextRunAt,
		SkippedOverlap: s.skippedOverlap,
		SkippedPaused:  s.skippedPaused,
		CyclesRun:      s.cyclesRun,
		CyclesFailed:   s.cyclesFailed,
	}
	if !s.lastStartedAt.IsZero() && !s.lastFinishedAt.IsZero() && !s.lastFinishedAt.Before(s.lastStartedAt) {
		st.LastDurationMs = s.lastFinishedAt.Sub(s.lastStartedAt).Milliseconds()
	}
	return st
}

// runCycle executes one full cycle: market snapshot, reconcile, protective
// triggers, agent decisions, mark to market, persistence. The cycle budget is
// the interval minus the slack; work past the budget is cancelled.
func (s *Scheduler) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("arena: cycle panic: %v", r)
			s.mu.Lock()
			s.lastError = fmt.Sprintf("panic: %v", r)
			s.mu.Unlock()
			s.publish(Event{Type: EventSystemError, Payload: map[string]interface{}{
				"component": "scheduler", "error": fmt.Sprintf("cycle panic: %v", r),
			}})
		}
		s.running.Store(false)
	}()

	budget := s.interval - s.slack
	cctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	summary := CycleRecord{
		CycleID:   uuid.NewString(),
		Seq:       s.seq.Add(1),
		StartedAt: s.now(),
	}
	s.mu.Lock()
	s.lastCycleID = summary.CycleID
	s.lastStartedAt = summary.StartedAt
	s.lastError = ""
	s.mu.Unlock()

	s.publish(Event{Type: EventCycleStarted, At: summary.StartedAt, CycleID: summary.CycleID, Payload: map[string]interface{}{"seq": summary.Seq}})

	snaps, err := s.market.Snapshot(cctx, s.symbols)
	if err != nil {
		logx.WithContext(cctx).Errorf("arena: cycle %s: market snapshot: %v", summary.CycleID, err)
	}
	if len(snaps) == 0 {
		summary.Error = "no market data"
		s.publish(Event{Type: EventSystemError, CycleID: summary.CycleID, Payload: map[string]interface{}{
			"component": "scheduler", "error": "no market data, cycle abandoned",
		}})
		s.finishCycle(cctx, summary)
		return
	}
	prices := pricesFrom(snaps)

	s.reconcile(cctx, &summary)

	for _, agent := range s.registry.Agents() {
		agent.Account().MarkToMarket(prices)
	}
	s.fireTriggers(cctx, summary.CycleID, prices, &summary)

	agents := s.registry.Agents()
	outcomes := make([]*AgentOutcome, len(agents))
	g, gctx := errgroup.WithContext(cctx)
	for i, agent := range agents {
		i, agent := i, agent
		g.Go(func() error {
			outcomes[i] = s.pipeline.RunAgent(gctx, summary.CycleID, agent, snaps)
			return nil
		})
	}
	_ = g.Wait()

	summary.AgentsRun = len(agents)
	for _, o := range outcomes {
		if o == nil {
			continue
		}
		switch o.Status {
		case StatusExecuted:
			summary.Executed++
		case StatusHold:
			summary.Held++
		case StatusRejected:
			summary.Rejected++
		case StatusFailed, StatusParseError, StatusModelError:
			summary.Failed++
		}
	}

	for _, agent := range agents {
		agent.Account().MarkToMarket(prices)
		view := agent.Account().Snapshot()
		logRecordError(s.recorder.RecordAccountState(cctx, summary.CycleID, view), "record account state",
			map[string]interface{}{"agent": agent.ID(), "cycle": summary.CycleID})
		s.publish(Event{Type: EventAccountUpdated, CycleID: summary.CycleID, AgentID: agent.ID(), Payload: map[string]interface{}{
			"equity": view.Equity.String(), "balance": view.Balance.String(), "open_positions": len(view.Positions),
		}})
	}
	for _, snap := range snaps {
		logRecordError(s.recorder.RecordMarketSnapshot(cctx, summary.CycleID, snap), "record market snapshot",
			map[string]interface{}{"symbol": snap.Symbol, "cycle": summary.CycleID})
	}

	s.finishCycle(cctx, summary)
}

func (s *Scheduler) reconcile(ctx context.Context, summary *CycleRecord) {
	if s.reconciler == nil {
		return
	}
	rep, err := s.reconciler.Reconcile(ctx)
	if err != nil {
		logx.WithContext(ctx).Errorf("arena: cycle %s: reconcile aborted: %v", summary.CycleID, err)
		summary.Error = fmt.Sprintf("reconcile: %v", err)
		s.publish(Event{Type: EventSystemError, CycleID: summary.CycleID, Payload: map[string]interface{}{
			"component": "reconciler", "error": err.Error(),
		}})
		return
	}
	summary.ReconcileAdded = rep.Added
	summary.ReconcileUpdated = rep.Updated
	summary.ReconcileRemoved = rep.Removed

	for _, ap := range rep.AddedPositions {
		logRecordError(s.recorder.UpsertPosition(ctx, ap.AgentID, summary.CycleID, ap.Position), "upsert adopted position",
			map[string]interface{}{"agent": ap.AgentID, "symbol": ap.Position.Symbol})
		s.publish(Event{Type: EventPositionOpened, CycleID: summary.CycleID, AgentID: ap.AgentID, Payload: ap.Position})
	}
	for _, rt := range rep.Trades {
		logRecordError(s.recorder.RecordTrade(ctx, rt.AgentID, summary.CycleID, rt.Trade), "record reconcile trade",
			map[string]interface{}{"agent": rt.AgentID, "symbol": rt.Trade.Symbol})
		s.publish(Event{Type: EventPositionClosed, CycleID: summary.CycleID, AgentID: rt.AgentID, Payload: rt.Trade})
	}
	if rep.Added+rep.Updated+rep.Removed+rep.Unowned > 0 {
		s.publish(Event{Type: EventReconcileDone, CycleID: summary.CycleID, Payload: map[string]interface{}{
			"added": rep.Added, "updated": rep.Updated, "removed": rep.Removed, "unowned": rep.Unowned,
		}})
	}
}

// fireTriggers closes every position whose liquidation, stop loss or take
// profit level the snapshot prices crossed. A venue error leaves the position
// open for the next cycle.
func (s *Scheduler) fireTriggers(ctx context.Context, cycleID string, prices map[string]decimal.Decimal, summary *CycleRecord) {
	for _, agent := range s.registry.Agents() {
		for _, hit := range agent.Account().EvaluateTriggers(prices) {
			trade, _, err := s.executor.ForceClose(ctx, agent, hit.Position, hit.Reason, hit.Price)
			if err != nil {
				logx.WithContext(ctx).Errorf("arena: cycle %s: trigger close %s %s: %v", cycleID, agent.ID(), hit.Position.Symbol, err)
				s.publish(Event{Type: EventSystemError, CycleID: cycleID, AgentID: agent.ID(), Payload: map[string]interface{}{
					"component": "executor", "error": fmt.Sprintf("trigger close %s: %v", hit.Position.Symbol, err),
				}})
				applyInvariantPolicy(s.bus, agent, cycleID, err, s.now())
				continue
			}
			summary.Triggers++
			logRecordError(s.recorder.RecordTrade(ctx, agent.ID(), cycleID, *trade), "record trigger trade",
				map[string]interface{}{"agent": agent.ID(), "symbol": trade.Symbol, "reason": hit.Reason})
			s.publish(Event{Type: EventTriggerFired, CycleID: cycleID, AgentID: agent.ID(), Payload: map[string]interface{}{
				"symbol": hit.Position.Symbol, "reason": string(hit.Reason), "price": hit.Price.String(),
			}})
			s.publish(Event{Type: EventPositionClosed, CycleID: cycleID, AgentID: agent.ID(), Payload: trade})
		}
	}
}

func (s *Scheduler) finishCycle(ctx context.Context, summary CycleRecord) {
	summary.FinishedAt = s.now()
	logRecordError(s.recorder.RecordCycle(ctx, summary), "record cycle",
		map[string]interface{}{"cycle": summary.CycleID})

	s.mu.Lock()
	s.lastFinishedAt = summary.FinishedAt
	s.cyclesRun++
	if summary.Error != "" {
		s.lastError = summary.Error
		s.cyclesFailed++
	}
	s.mu.Unlock()

	s.publish(Event{Type: EventCycleCompleted, At: summary.FinishedAt, CycleID: summary.CycleID, Payload: summary})
	logx.WithContext(ctx).Infof("arena: cycle %s done in %s: executed=%d held=%d rejected=%d failed=%d triggers=%d",
		summary.CycleID, summary.FinishedAt.Sub(summary.StartedAt), summary.Executed, summary.Held, summary.Rejected, summary.Failed, summary.Triggers)
}

func (s *Scheduler) publish(ev Event) {
	if s.bus == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	s.bus.Publish(ev)
}
