package arena

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"arena-api/pkg/account"
	"arena-api/pkg/decision"
	"arena-api/pkg/market"
)

// DecisionStatus classifies how far a decision travelled through the pipeline.
type DecisionStatus string

const (
	StatusExecuted   DecisionStatus = "executed"
	StatusHold       DecisionStatus = "hold"
	StatusRejected   DecisionStatus = "rejected"
	StatusFailed     DecisionStatus = "failed"
	StatusParseError DecisionStatus = "parse_error"
	StatusModelError DecisionStatus = "model_error"
	StatusSkipped    DecisionStatus = "skipped"
)

// DecisionRecord captures one agent decision attempt, whatever its fate.
type DecisionRecord struct {
	CycleID   string
	AgentID   string
	Model     string
	Status    DecisionStatus
	Decision  *decision.Decision
	RawText   string
	Error     string
	TokensIn  int
	TokensOut int
	LatencyMs int64
	CreatedAt time.Time
}

// RejectionRecord is a sampled risk rejection with the verdict that fired.
type RejectionRecord struct {
	CycleID   string
	AgentID   string
	Check     string
	Reason    string
	Detail    string
	Decision  *decision.Decision
	Price     decimal.Decimal
	CreatedAt time.Time
}

// ModelCallRecord tracks token, latency and dollar cost per model invocation.
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

// CycleRecord summarises one completed scheduler cycle.
type CycleRecord struct {
	CycleID          string
	Seq              uint64
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

// Recorder receives every durable state change the arena produces. Writes
// must never block or fail the trading path; implementations log and move on.
type Recorder interface {
	RecordDecision(ctx context.Context, rec DecisionRecord) error
	RecordRejection(ctx context.Context, rec RejectionRecord) error
	RecordModelCall(ctx context.Context, rec ModelCallRecord) error
	RecordTrade(ctx context.Context, agentID, cycleID string, trade account.Trade) error
	UpsertPosition(ctx context.Context, agentID, cycleID string, pos account.Position) error
	RecordAccountState(ctx context.Context, cycleID string, view *account.View) error
	RecordMarketSnapshot(ctx context.Context, cycleID string, snap *market.Snapshot) error
	RecordCycle(ctx context.Context, rec CycleRecord) error
}

type noopRecorder struct{}

func (noopRecorder) RecordDecision(ctx context.Context, rec DecisionRecord) error   { return nil }
func (noopRecorder) RecordRejection(ctx context.Context, rec RejectionRecord) error { return nil }
func (noopRecorder) RecordModelCall(ctx context.Context, rec ModelCallRecord) error { return nil }
func (noopRecorder) RecordTrade(ctx context.Context, agentID, cycleID string, trade account.Trade) error {
	return nil
}
func (noopRecorder) UpsertPosition(ctx context.Context, agentID, cycleID string, pos account.Position) error {
	return nil
}
func (noopRecorder) RecordAccountState(ctx context.Context, cycleID string, view *account.View) error {
	return nil
}
func (noopRecorder) RecordMarketSnapshot(ctx context.Context, cycleID string, snap *market.Snapshot) error {
	return nil
}
func (noopRecorder) RecordCycle(ctx context.Context, rec CycleRecord) error { return nil }

// NewNopRecorder guarantees callers always have a recorder to invoke.
func NewNopRecorder() Recorder { return noopRecorder{} }

func logRecordError(err error, msg string, fields map[string]interface{}) {
	if err == nil {
		return
	}
	logx.WithContext(context.Background()).Errorf("arena: %s: %v fields=%v", msg, err, fields)
}
