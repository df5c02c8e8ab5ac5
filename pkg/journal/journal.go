// Package journal writes one JSON audit file per completed arena cycle: the
// cycle summary plus every event observed while the cycle was in flight. The
// writer is a bus subscriber, so journalling never sits on the trading path;
// when it falls behind the bus drops events instead of stalling a cycle.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"arena-api/pkg/arena"
)

const (
	subscriberName   = "journal"
	subscriberBuffer = 256
)

// EventEntry is one bus event folded into a cycle file.
type EventEntry struct {
	Type    arena.EventType `json:"type"`
	At      time.Time       `json:"at"`
	AgentID string          `json:"agent_id,omitempty"`
	Payload interface{}     `json:"payload,omitempty"`
}

// Entry is the on-disk record of one cycle.
type Entry struct {
	CycleID    string       `json:"cycle_id"`
	Seq        uint64       `json:"seq"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	DurationMs int64        `json:"duration_ms"`
	AgentsRun  int          `json:"agents_run"`
	Executed   int          `json:"executed"`
	Held       int          `json:"held"`
	Rejected   int          `json:"rejected"`
	Failed     int          `json:"failed"`
	Triggers   int          `json:"triggers"`
	Error      string       `json:"error,omitempty"`
	Events     []EventEntry `json:"events,omitempty"`
}

// Writer journals completed cycles into a directory, one file per cycle.
// Events are keyed by cycle id between the started and completed markers;
// events outside any open cycle are ignored.
type Writer struct {
	dir     string
	bus     *arena.Bus
	pending map[string]*Entry
	wg      sync.WaitGroup
}

// NewWriter prepares the journal directory. Nothing is consumed until Start.
func NewWriter(dir string, bus *arena.Bus) (*Writer, error) {
	if dir == "" {
		return nil, errors.New("journal: directory is required")
	}
	if bus == nil {
		return nil, errors.New("journal: bus is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create %s: %w", dir, err)
	}
	return &Writer{dir: dir, bus: bus, pending: make(map[string]*Entry)}, nil
}

// Start subscribes to the bus and journals until the bus closes.
func (w *Writer) Start() error {
	sub, err := w.bus.Subscribe(subscriberName, subscriberBuffer)
	if err != nil {
		return err
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for ev := range sub.Events() {
			w.consume(ev)
		}
		if n := len(w.pending); n > 0 {
			logx.Infof("journal: bus closed with %d cycle(s) still in flight", n)
		}
	}()
	return nil
}

// Close blocks until the consumer has drained its channel. The channel only
// closes when the bus does, so call Bus.Close first.
func (w *Writer) Close() {
	w.wg.Wait()
}

func (w *Writer) consume(ev arena.Event) {
	switch ev.Type {
	case arena.EventCycleStarted:
		w.pending[ev.CycleID] = &Entry{CycleID: ev.CycleID, StartedAt: ev.At}
	case arena.EventCycleCompleted:
		entry, ok := w.pending[ev.CycleID]
		if !ok {
			// Completed marker without a start: the started event was
			// dropped or the writer subscribed mid-cycle.
			entry = &Entry{CycleID: ev.CycleID}
		}
		delete(w.pending, ev.CycleID)
		if summary, yes := ev.Payload.(arena.CycleRecord); yes {
			entry.Seq = summary.Seq
			entry.StartedAt = summary.StartedAt
			entry.FinishedAt = summary.FinishedAt
			entry.AgentsRun = summary.AgentsRun
			entry.Executed = summary.Executed
			entry.Held = summary.Held
			entry.Rejected = summary.Rejected
			entry.Failed = summary.Failed
			entry.Triggers = summary.Triggers
			entry.Error = summary.Error
		} else {
			entry.FinishedAt = ev.At
		}
		if entry.FinishedAt.IsZero() {
			entry.FinishedAt = time.Now().UTC()
		}
		entry.DurationMs = entry.FinishedAt.Sub(entry.StartedAt).Milliseconds()
		if err := w.write(entry); err != nil {
			logx.Errorf("journal: write cycle %s: %v", entry.CycleID, err)
		}
	default:
		if ev.CycleID == "" {
			return
		}
		entry, ok := w.pending[ev.CycleID]
		if !ok {
			return
		}
		entry.Events = append(entry.Events, EventEntry{Type: ev.Type, At: ev.At, AgentID: ev.AgentID, Payload: ev.Payload})
	}
}

func (w *Writer) write(entry *Entry) error {
	name := fmt.Sprintf("cycle_%s_%06d.json", entry.FinishedAt.UTC().Format("20060102_150405"), entry.Seq)
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(w.dir, name), data, 0o644)
}
