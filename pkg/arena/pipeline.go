package arena

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"arena-api/pkg/account"
	"arena-api/pkg/decision"
	"arena-api/pkg/llm"
	"arena-api/pkg/market"
	"arena-api/pkg/risk"
)

// AgentOutcome is the result of one agent's turn in a cycle.
type AgentOutcome struct {
	AgentID   string
	Status    DecisionStatus
	Decision  *decision.Decision
	Rejection *risk.Result
	Position  *account.Position
	Trade     *account.Trade
	Err       error
	TokensIn  int
	TokensOut int
	LatencyMs int64
}

// Pipeline runs one agent through prompt building, the model call, decision
// parsing and execution, then persists whatever happened. Persistence errors
// are logged and swallowed; they never fail the turn.
type Pipeline struct {
	client       llm.LLMClient
	executor     *TradeExecutor
	recorder     Recorder
	bus          *Bus
	limits       risk.Limits
	recentTrades int
	sampleRate   float64
	sample       func() float64
	now          func() time.Time
}

// PipelineOption customises Pipeline construction.
type PipelineOption func(*Pipeline)

// WithPipelineClock overrides the wall clock, for tests.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithRejectionSampler overrides the uniform sampler that decides which
// rejections are persisted, for tests.
func WithRejectionSampler(sample func() float64) PipelineOption {
	return func(p *Pipeline) {
		if sample != nil {
			p.sample = sample
		}
	}
}

// NewPipeline wires the decision pipeline.
func NewPipeline(client llm.LLMClient, exec *TradeExecutor, rec Recorder, bus *Bus, limits risk.Limits, cfg ArenaConfig, opts ...PipelineOption) *Pipeline {
	if rec == nil {
		rec = NewNopRecorder()
	}
	p := &Pipeline{
		client:       client,
		executor:     exec,
		recorder:     rec,
		bus:          bus,
		limits:       limits,
		recentTrades: cfg.RecentTrades,
		sampleRate:   cfg.RejectionSampleRate,
		sample:       rand.Float64,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunAgent executes one agent's turn. Disabled agents sit the cycle out.
func (p *Pipeline) RunAgent(ctx context.Context, cycleID string, agent *Agent, snaps map[string]*market.Snapshot) *AgentOutcome {
	outcome := &AgentOutcome{AgentID: agent.ID(), Status: StatusSkipped}
	if !agent.Account().Enabled() {
		return outcome
	}

	now := p.now()
	view := agent.Account().Snapshot()
	trades := agent.Account().RecentTrades(p.recentTrades)
	userPrompt := RenderUserPrompt(BuildContextInputs(view, trades, snaps, p.limits, now))

	agent.Account().RecordDecision(now)
	transcript, err := llm.Decide(ctx, p.client, llm.DecideRequest{
		Model:        agent.Model(),
		SystemPrompt: agent.SystemPrompt(),
		UserPrompt:   userPrompt,
		Temperature:  agent.Temperature(),
		MaxTokens:    agent.MaxTokens(),
	})
	if err != nil {
		outcome.Status = StatusModelError
		outcome.Err = err
		p.persistModelCall(ctx, cycleID, agent, nil, err, now)
		p.persistDecision(ctx, cycleID, agent, outcome, "", now)
		p.publishOutcome(cycleID, outcome, now)
		return outcome
	}
	outcome.TokensIn = transcript.TokensIn
	outcome.TokensOut = transcript.TokensOut
	outcome.LatencyMs = transcript.LatencyMs
	p.persistModelCall(ctx, cycleID, agent, transcript, nil, now)

	dec, err := decision.Parse(transcript.Text)
	if err != nil {
		outcome.Status = StatusParseError
		outcome.Err = err
		p.persistDecision(ctx, cycleID, agent, outcome, transcript.Text, now)
		p.publishOutcome(cycleID, outcome, now)
		return outcome
	}
	outcome.Decision = dec

	result := p.executor.Execute(ctx, agent, dec, pricesFrom(snaps))
	outcome.Status = result.Outcome
	outcome.Rejection = result.Rejection
	outcome.Position = result.Position
	outcome.Trade = result.Trade
	outcome.Err = result.Err
	applyInvariantPolicy(p.bus, agent, cycleID, result.Err, now)

	p.persistDecision(ctx, cycleID, agent, outcome, transcript.Text, now)
	p.persistExecution(ctx, cycleID, agent, outcome, snaps, now)
	p.publishOutcome(cycleID, outcome, now)
	return outcome
}

func (p *Pipeline) persistModelCall(ctx context.Context, cycleID string, agent *Agent, tr *llm.Transcript, callErr error, now time.Time) {
	rec := ModelCallRecord{
		CycleID:      cycleID,
		AgentID:      agent.ID(),
		Model:        agent.Model(),
		PromptDigest: agent.PromptDigest(),
		CreatedAt:    now,
	}
	if callErr != nil {
		rec.Error = callErr.Error()
		rec.ErrorKind = string(llm.ClassifyError(callErr))
	}
	if tr != nil {
		rec.TokensIn = tr.TokensIn
		rec.TokensOut = tr.TokensOut
		rec.LatencyMs = tr.LatencyMs
		rec.CostUSD = tr.CostUSD
	}
	logRecordError(p.recorder.RecordModelCall(ctx, rec), "record model call",
		map[string]interface{}{"agent": agent.ID(), "cycle": cycleID})
}

func (p *Pipeline) persistDecision(ctx context.Context, cycleID string, agent *Agent, outcome *AgentOutcome, raw string, now time.Time) {
	rec := DecisionRecord{
		CycleID:   cycleID,
		AgentID:   agent.ID(),
		Model:     agent.Model(),
		Status:    outcome.Status,
		Decision:  outcome.Decision,
		RawText:   raw,
		TokensIn:  outcome.TokensIn,
		TokensOut: outcome.TokensOut,
		LatencyMs: outcome.LatencyMs,
		CreatedAt: now,
	}
	if outcome.Err != nil {
		rec.Error = outcome.Err.Error()
	}
	logRecordError(p.recorder.RecordDecision(ctx, rec), "record decision",
		map[string]interface{}{"agent": agent.ID(), "cycle": cycleID, "status": outcome.Status})
}

func (p *Pipeline) persistExecution(ctx context.Context, cycleID string, agent *Agent, outcome *AgentOutcome, snaps map[string]*market.Snapshot, now time.Time) {
	switch outcome.Status {
	case StatusRejected:
		if outcome.Rejection == nil || p.sample() >= p.sampleRate {
			return
		}
		rec := RejectionRecord{
			CycleID:   cycleID,
			AgentID:   agent.ID(),
			Check:     outcome.Rejection.Check,
			Reason:    outcome.Rejection.Reason,
			Detail:    outcome.Rejection.Detail,
			Decision:  outcome.Decision,
			CreatedAt: now,
		}
		if outcome.Decision != nil {
			if snap, ok := snaps[outcome.Decision.Symbol]; ok && snap != nil {
				rec.Price = snap.Price
			}
		}
		logRecordError(p.recorder.RecordRejection(ctx, rec), "record rejection",
			map[string]interface{}{"agent": agent.ID(), "cycle": cycleID, "reason": rec.Reason})
	case StatusExecuted:
		if outcome.Position != nil {
			logRecordError(p.recorder.UpsertPosition(ctx, agent.ID(), cycleID, *outcome.Position), "upsert position",
				map[string]interface{}{"agent": agent.ID(), "symbol": outcome.Position.Symbol})
		}
		if outcome.Trade != nil {
			logRecordError(p.recorder.RecordTrade(ctx, agent.ID(), cycleID, *outcome.Trade), "record trade",
				map[string]interface{}{"agent": agent.ID(), "symbol": outcome.Trade.Symbol})
		}
	}
}

func (p *Pipeline) publishOutcome(cycleID string, outcome *AgentOutcome, now time.Time) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(Event{
		Type:    EventAgentDecision,
		At:      now,
		CycleID: cycleID,
		AgentID: outcome.AgentID,
		Payload: outcomePayload(outcome),
	})
	if outcome.Err != nil {
		p.bus.Publish(Event{Type: EventSystemError, At: now, CycleID: cycleID, AgentID: outcome.AgentID, Payload: map[string]interface{}{
			"component": "pipeline", "status": string(outcome.Status), "error": outcome.Err.Error(),
		}})
	}
	if outcome.Status != StatusExecuted {
		return
	}
	if outcome.Position != nil {
		p.bus.Publish(Event{Type: EventPositionOpened, At: now, CycleID: cycleID, AgentID: outcome.AgentID, Payload: outcome.Position})
	}
	if outcome.Trade != nil {
		p.bus.Publish(Event{Type: EventPositionClosed, At: now, CycleID: cycleID, AgentID: outcome.AgentID, Payload: outcome.Trade})
	}
}

// applyInvariantPolicy disables an agent whose book failed a consistency
// check. The rest of the roster keeps trading; re-enabling is an operator
// action.
func applyInvariantPolicy(bus *Bus, agent *Agent, cycleID string, err error, at time.Time) {
	if err == nil || !errors.Is(err, account.ErrInvariant) {
		return
	}
	agent.Account().Disable(err.Error())
	logx.Errorf("arena: agent %s disabled after invariant violation: %v", agent.ID(), err)
	if bus != nil {
		bus.Publish(Event{Type: EventAgentDisabled, At: at, CycleID: cycleID, AgentID: agent.ID(), Payload: map[string]interface{}{
			"reason": err.Error(),
		}})
	}
}

// outcomePayload keeps decision events small enough for bounded outboxes.
func outcomePayload(outcome *AgentOutcome) map[string]interface{} {
	payload := map[string]interface{}{"status": string(outcome.Status)}
	if outcome.Decision != nil {
		payload["action"] = string(outcome.Decision.Action)
		if outcome.Decision.Symbol != "" {
			payload["symbol"] = outcome.Decision.Symbol
		}
	}
	if outcome.Rejection != nil {
		payload["reason"] = outcome.Rejection.Reason
	}
	if outcome.Err != nil {
		payload["error"] = outcome.Err.Error()
	}
	return payload
}

func pricesFrom(snaps map[string]*market.Snapshot) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(snaps))
	for sym, s := range snaps {
		if s != nil && s.Price.Sign() > 0 {
			prices[sym] = s.Price
		}
	}
	return prices
}
