package eventlog

import (
	"context"
	"testing"
	"time"

	v1 "github.com/kandev/conductor/pkg/api/v1"
)

func TestNewMemoryStoreDefaultMax(t *testing.T) {
	s := NewMemoryStore(0)
	if s.maxPerExec != 5000 {
		t.Errorf("expected default maxPerExec = 5000, got %d", s.maxPerExec)
	}

	s = NewMemoryStore(-1)
	if s.maxPerExec != 5000 {
		t.Errorf("expected default maxPerExec = 5000, got %d", s.maxPerExec)
	}
}

func TestSaveAndGetExecution(t *testing.T) {
	s := NewMemoryStore(100)
	ctx := context.Background()

	exec := &v1.Execution{ExecutionID: "e1", DesignID: "d1", Status: v1.ExecutionRunning, StartedAt: time.Now()}
	if err := s.SaveExecution(ctx, exec); err != nil {
		t.Fatalf("SaveExecution failed: %v", err)
	}

	got, err := s.GetExecution(ctx, "e1")
	if err != nil {
		t.Fatalf("GetExecution failed: %v", err)
	}
	if got.Status != v1.ExecutionRunning {
		t.Errorf("expected status running, got %s", got.Status)
	}

	// Mutating the returned copy must not affect the store.
	got.Status = v1.ExecutionFailed
	again, _ := s.GetExecution(ctx, "e1")
	if again.Status != v1.ExecutionRunning {
		t.Error("GetExecution should return an independent copy")
	}
}

func TestGetExecutionNotFound(t *testing.T) {
	s := NewMemoryStore(100)
	_, err := s.GetExecution(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for missing execution")
	}
}

func TestAppendAndGetEvents(t *testing.T) {
	s := NewMemoryStore(100)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = s.AppendEvent(ctx, "e1", v1.ExecutionEvent{Kind: v1.EventChunk, Timestamp: time.Now().Add(time.Duration(i) * time.Second)})
	}

	events, err := s.GetEvents(ctx, "e1", 0, time.Time{})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 5 {
		t.Errorf("expected 5 events, got %d", len(events))
	}
}

func TestGetEventsTrimExcess(t *testing.T) {
	s := NewMemoryStore(3)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		_ = s.AppendEvent(ctx, "e1", v1.ExecutionEvent{Kind: v1.EventChunk, BlockID: "b", Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	events, _ := s.GetEvents(ctx, "e1", 0, time.Time{})
	if len(events) != 3 {
		t.Errorf("expected 3 events after trimming, got %d", len(events))
	}
}

func TestGetEventsWithSince(t *testing.T) {
	s := NewMemoryStore(100)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 5; i++ {
		_ = s.AppendEvent(ctx, "e1", v1.ExecutionEvent{Kind: v1.EventChunk, Timestamp: base.Add(time.Duration(i) * time.Hour)})
	}

	events, _ := s.GetEvents(ctx, "e1", 0, base.Add(2*time.Hour))
	if len(events) != 2 {
		t.Errorf("expected 2 events after since filter, got %d", len(events))
	}
}

func TestGetEventsWithLimit(t *testing.T) {
	s := NewMemoryStore(100)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = s.AppendEvent(ctx, "e1", v1.ExecutionEvent{Kind: v1.EventChunk, Timestamp: time.Now()})
	}

	events, _ := s.GetEvents(ctx, "e1", 3, time.Time{})
	if len(events) != 3 {
		t.Errorf("expected 3 events with limit, got %d", len(events))
	}
}

func TestGetEventsEmptyExecution(t *testing.T) {
	s := NewMemoryStore(100)
	events, err := s.GetEvents(context.Background(), "missing", 0, time.Time{})
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected 0 events for missing execution, got %d", len(events))
	}
}
