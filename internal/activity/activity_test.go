package activity_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/aegis-relief/aegis/internal/activity"
	"go.uber.org/zap"
)

func TestAppend_andSnapshot(t *testing.T) {
	l := activity.NewLog(zap.NewNop())

	l.Append(activity.Event{Type: activity.TypeEventVerified, RequestID: 42, TxHash: "0xaa"})
	l.Append(activity.Event{Type: activity.TypeAidApproved, RequestID: 42, TxHash: "0xbb"})

	snap := l.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 events, got %d", len(snap))
	}
	if snap[0].Type != activity.TypeEventVerified || snap[1].Type != activity.TypeAidApproved {
		t.Errorf("events out of order: %v, %v", snap[0].Type, snap[1].Type)
	}
	if snap[0].Timestamp.IsZero() {
		t.Error("expected Append to stamp a timestamp")
	}
}

func TestAppend_evictsOldestBeyondCapacity(t *testing.T) {
	l := activity.NewLog(zap.NewNop())

	for i := 0; i < activity.Capacity+1; i++ {
		l.Append(activity.Event{
			Type:      activity.TypeEventVerified,
			RequestID: uint64(i),
			TxHash:    fmt.Sprintf("0x%02x", i),
		})
	}

	snap := l.Snapshot()
	if len(snap) != activity.Capacity {
		t.Fatalf("expected %d events after overflow, got %d", activity.Capacity, len(snap))
	}
	if snap[0].RequestID != 1 {
		t.Errorf("oldest event not evicted: front is request %d, want 1", snap[0].RequestID)
	}
	if last := snap[len(snap)-1].RequestID; last != uint64(activity.Capacity) {
		t.Errorf("newest event: got request %d, want %d", last, activity.Capacity)
	}
	for i := 1; i < len(snap); i++ {
		if snap[i].RequestID != snap[i-1].RequestID+1 {
			t.Fatalf("relative order broken at index %d", i)
		}
	}
}

func TestAppend_concurrent(t *testing.T) {
	l := activity.NewLog(zap.NewNop())

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				l.Append(activity.Event{Type: activity.TypeMissionComplete, RequestID: uint64(g)})
			}
		}(g)
	}
	wg.Wait()

	if got := l.Len(); got != activity.Capacity {
		t.Errorf("after 200 concurrent appends: len %d, want %d", got, activity.Capacity)
	}
}

func TestSnapshot_isACopy(t *testing.T) {
	l := activity.NewLog(zap.NewNop())
	l.Append(activity.Event{Type: activity.TypeAidApproved, RequestID: 7})

	snap := l.Snapshot()
	snap[0].RequestID = 999

	if l.Snapshot()[0].RequestID != 7 {
		t.Error("mutating a snapshot leaked into the log")
	}
}

type failingSink struct{ calls int }

func (s *failingSink) Store(_ context.Context, _ activity.Event) error {
	s.calls++
	return errors.New("archive down")
}

func TestAppend_sinkFailureDoesNotDropEvent(t *testing.T) {
	l := activity.NewLog(zap.NewNop())
	sink := &failingSink{}
	l.SetSink(sink)

	l.Append(activity.Event{Type: activity.TypeEventVerified, RequestID: 1})

	if sink.calls != 1 {
		t.Errorf("sink called %d times, want 1", sink.calls)
	}
	if l.Len() != 1 {
		t.Error("event lost when sink failed")
	}
}
