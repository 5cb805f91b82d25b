package deployment

import (
	"context"
	"testing"
	"time"

	"github.com/kandev/conductor/internal/eventlog"
	"github.com/kandev/conductor/internal/pattern"
	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// stubRunner completes immediately with a fixed status, optionally blocking
// on a signal channel first so tests can exercise Cancel before completion.
type stubRunner struct {
	status v1.ExecutionStatus
	block  chan struct{} // if non-nil, Execute waits for ctx.Done() or this to close
}

func (r *stubRunner) Execute(ctx context.Context, d *v1.Design, rootTask string, emit pattern.EventSink) (v1.ResultData, v1.ExecutionStatus, error) {
	if emit != nil {
		emit(v1.ExecutionEvent{Kind: v1.EventStart})
	}
	if r.block != nil {
		select {
		case <-ctx.Done():
			return v1.ResultData{}, v1.ExecutionCancelled, nil
		case <-r.block:
		}
	}
	return v1.ResultData{Results: map[string]v1.BlockResult{"b1": {BlockID: "b1", Status: "completed"}}}, r.status, nil
}

func newTestExecutor(runner DesignRunner) (*Executor, eventlog.Store) {
	store := eventlog.NewMemoryStore(100)
	bus := eventlog.NewBus(store, nil)
	return NewExecutor(runner, store, bus, nil), store
}

func TestTriggerCompletesAndPersistsStatus(t *testing.T) {
	exec, store := newTestExecutor(&stubRunner{status: v1.ExecutionCompleted})
	d := &v1.Design{ID: "d1"}

	executionID := exec.Trigger(context.Background(), d, "task", nil)

	deadline := time.After(time.Second)
	for {
		got, err := store.GetExecution(context.Background(), executionID)
		if err == nil && got.Status.Terminal() {
			if got.Status != v1.ExecutionCompleted {
				t.Fatalf("expected completed, got %s", got.Status)
			}
			if got.CompletedAt == nil || got.CompletedAt.Before(got.StartedAt) {
				t.Fatal("expected completed_at >= started_at")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("execution never reached terminal state")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestOnStartedCalledBeforeRunCompletes(t *testing.T) {
	exec, _ := newTestExecutor(&stubRunner{status: v1.ExecutionCompleted})
	d := &v1.Design{ID: "d1"}

	var startedID string
	done := make(chan struct{})
	exec.OnTerminal(func(executionID string) { close(done) })

	executionID := exec.Trigger(context.Background(), d, "task", func(id string) { startedID = id })
	if startedID != executionID {
		t.Fatalf("onStarted id = %q, want %q", startedID, executionID)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("onTerminal never fired")
	}
}

func TestCancelUnknownExecutionReturnsNotFound(t *testing.T) {
	exec, _ := newTestExecutor(&stubRunner{status: v1.ExecutionCompleted})
	err := exec.Cancel(context.Background(), "never-existed")
	if err == nil {
		t.Fatal("expected ErrExecutionNotFound for an id unknown to both runner and store")
	}
}

func TestCancelRunningExecutionPropagates(t *testing.T) {
	block := make(chan struct{})
	exec, store := newTestExecutor(&stubRunner{status: v1.ExecutionCancelled, block: block})
	d := &v1.Design{ID: "d1"}

	executionID := exec.Trigger(context.Background(), d, "task", nil)
	if err := exec.Cancel(context.Background(), executionID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	deadline := time.After(time.Second)
	for {
		got, err := store.GetExecution(context.Background(), executionID)
		if err == nil && got.Status == v1.ExecutionCancelled {
			return
		}
		select {
		case <-deadline:
			t.Fatal("execution never reached cancelled state")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}
