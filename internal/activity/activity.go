// Package activity keeps a bounded, append-only record of ledger-confirmed
// events for the activity feed.
//
// The in-memory Log is the source of truth for display: a fixed-capacity ring
// that evicts the oldest entry once full. An optional Sink (the pgx-backed
// Archive) receives a best-effort copy of every appended event for durable
// history; a failing sink never blocks or fails an append.
package activity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventType identifies which ledger transition an event records.
type EventType string

const (
	TypeEventVerified   EventType = "EventVerified"
	TypeAidApproved     EventType = "AidApproved"
	TypeMissionComplete EventType = "MissionComplete"
	TypePayoutProcessed EventType = "PayoutProcessed"
)

// Event is one confirmed on-ledger transition.
type Event struct {
	Type      EventType `json:"type"`
	RequestID uint64    `json:"request_id"`
	TxHash    string    `json:"tx_hash"`
	Timestamp time.Time `json:"timestamp"`
}

// Capacity is the maximum number of events the Log retains.
const Capacity = 50

// sinkTimeout bounds how long an append waits on the durable sink.
const sinkTimeout = 5 * time.Second

// Sink receives a durable copy of each appended event.
// *Archive satisfies this interface.
type Sink interface {
	Store(ctx context.Context, ev Event) error
}

// AppendRecorder is an optional callback invoked once per appended event.
type AppendRecorder func()

// Log is a thread-safe fixed-capacity event ring. Eviction is FIFO: once the
// ring holds Capacity entries, each append drops the oldest.
type Log struct {
	mu       sync.RWMutex
	events   []Event
	sink     Sink
	onAppend AppendRecorder
	logger   *zap.Logger
}

// NewLog creates an empty Log.
func NewLog(logger *zap.Logger) *Log {
	return &Log{
		events: make([]Event, 0, Capacity),
		logger: logger,
	}
}

// SetSink attaches a durable sink. Must be called before the first Append.
func (l *Log) SetSink(s Sink) {
	l.sink = s
}

// SetAppendRecorder configures the metrics callback. Must be called before
// the first Append.
func (l *Log) SetAppendRecorder(fn AppendRecorder) {
	l.onAppend = fn
}

// Append records an event, evicting the oldest entries if the ring is full.
// The sink copy is best-effort: a sink error is logged and swallowed.
func (l *Log) Append(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	l.events = append(l.events, ev)
	if n := len(l.events) - Capacity; n > 0 {
		l.events = append(l.events[:0], l.events[n:]...)
	}
	l.mu.Unlock()

	if l.onAppend != nil {
		l.onAppend()
	}

	if l.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		if err := l.sink.Store(ctx, ev); err != nil {
			l.logger.Warn("activity archive write failed",
				zap.String("type", string(ev.Type)),
				zap.Uint64("request_id", ev.RequestID),
				zap.Error(err),
			)
		}
	}
}

// Snapshot returns the current contents, oldest first, without mutating.
func (l *Log) Snapshot() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
