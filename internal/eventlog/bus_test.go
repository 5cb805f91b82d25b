package eventlog

import (
	"context"
	"sync"
	"testing"
	"time"

	v1 "github.com/kandev/conductor/pkg/api/v1"
)

func TestBusPublishPersists(t *testing.T) {
	store := NewMemoryStore(100)
	bus := NewBus(store, nil)

	bus.Publish(context.Background(), "e1", v1.ExecutionEvent{Kind: v1.EventStart})

	events, _ := store.GetEvents(context.Background(), "e1", 0, time.Time{})
	if len(events) != 1 {
		t.Fatalf("expected 1 persisted event, got %d", len(events))
	}
}

func TestBusPublishNotifiesListener(t *testing.T) {
	store := NewMemoryStore(100)
	bus := NewBus(store, nil)

	var mu sync.Mutex
	var received []v1.ExecutionEvent
	unsubscribe := bus.Subscribe("e1", func(e v1.ExecutionEvent) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})
	defer unsubscribe()

	bus.Publish(context.Background(), "e1", v1.ExecutionEvent{Kind: v1.EventChunk})

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 received event, got %d", len(received))
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	store := NewMemoryStore(100)
	bus := NewBus(store, nil)

	var mu sync.Mutex
	count := 0
	unsubscribe := bus.Subscribe("e1", func(e v1.ExecutionEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	bus.Publish(context.Background(), "e1", v1.ExecutionEvent{Kind: v1.EventChunk})
	unsubscribe()
	bus.Publish(context.Background(), "e1", v1.ExecutionEvent{Kind: v1.EventChunk})

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("expected 1 event delivered before unsubscribe, got %d", count)
	}
}

func TestBusSubscribersAreIndependent(t *testing.T) {
	store := NewMemoryStore(100)
	bus := NewBus(store, nil)

	var mu sync.Mutex
	countA, countB := 0, 0
	unsubA := bus.Subscribe("e1", func(e v1.ExecutionEvent) { mu.Lock(); countA++; mu.Unlock() })
	unsubB := bus.Subscribe("e1", func(e v1.ExecutionEvent) { mu.Lock(); countB++; mu.Unlock() })
	defer unsubA()
	defer unsubB()

	bus.Publish(context.Background(), "e1", v1.ExecutionEvent{Kind: v1.EventChunk})

	mu.Lock()
	defer mu.Unlock()
	if countA != 1 || countB != 1 {
		t.Errorf("expected both subscribers notified once, got A=%d B=%d", countA, countB)
	}
}

func TestBusRecentReplaysBacklog(t *testing.T) {
	store := NewMemoryStore(100)
	bus := NewBus(store, nil)

	bus.Publish(context.Background(), "e1", v1.ExecutionEvent{Kind: v1.EventStart})
	bus.Publish(context.Background(), "e1", v1.ExecutionEvent{Kind: v1.EventChunk})

	recent := bus.Recent("e1")
	if len(recent) != 2 {
		t.Fatalf("expected 2 buffered events, got %d", len(recent))
	}
}

func TestBusForgetClearsState(t *testing.T) {
	store := NewMemoryStore(100)
	bus := NewBus(store, nil)

	bus.Publish(context.Background(), "e1", v1.ExecutionEvent{Kind: v1.EventStart})
	bus.Forget("e1")

	if recent := bus.Recent("e1"); len(recent) != 0 {
		t.Errorf("expected no buffered events after Forget, got %d", len(recent))
	}
}
