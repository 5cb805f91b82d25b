// Package deployment wraps a Design execution in an asynchronous
// trigger→poll lifecycle, optionally re-triggered on a cron schedule.
package deployment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/conductor/internal/common/logger"
	"github.com/kandev/conductor/internal/design"
	"github.com/kandev/conductor/internal/eventlog"
	"github.com/kandev/conductor/internal/pattern"
	v1 "github.com/kandev/conductor/pkg/api/v1"
)

var (
	// ErrExecutionNotFound is returned when the execution id is unknown both
	// to this process and to the Store. An id the Store knows but this
	// process is not running (e.g. after a restart) is not an error, but
	// cancellation only takes effect against a live, in-process run.
	ErrExecutionNotFound = errors.New("execution not found")
)

// DesignRunner is the subset of design.Runner the Executor depends on, kept
// narrow so tests can substitute a stub.
type DesignRunner interface {
	Execute(ctx context.Context, d *v1.Design, rootTask string, emit pattern.EventSink) (v1.ResultData, v1.ExecutionStatus, error)
}

var _ DesignRunner = (*design.Runner)(nil)

// tracked mirrors the teacher's TaskExecution bookkeeping, generalized from
// one agent container per task to one background goroutine per design
// execution.
type tracked struct {
	executionID string
	designID    string
	startedAt   time.Time
	cancel      context.CancelFunc
}

// Executor runs Designs asynchronously: Trigger starts a background run and
// returns immediately; Status polls the current snapshot from the event
// log's Store; Cancel trips the run's cancellation token.
type Executor struct {
	runner DesignRunner
	store  eventlog.Store
	bus    *eventlog.Bus
	log    *logger.Logger

	mu      sync.RWMutex
	running map[string]*tracked

	// onTerminal, if set, is called with an execution's id once its
	// background run has finished (any terminal status). Deployment's
	// Service uses it to clear a schedule's in-flight marker.
	onTerminal func(executionID string)
}

// NewExecutor builds a deployment Executor.
func NewExecutor(runner DesignRunner, store eventlog.Store, bus *eventlog.Bus, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.Default()
	}
	return &Executor{
		runner:  runner,
		store:   store,
		bus:     bus,
		log:     log.WithFields(zap.String("component", "deployment.executor")),
		running: make(map[string]*tracked),
	}
}

// OnTerminal registers a callback invoked once per execution when its
// background run completes.
func (e *Executor) OnTerminal(fn func(executionID string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTerminal = fn
}

// Trigger starts a design execution in the background and returns
// immediately with its execution id. If onStarted is non-nil, it is called
// synchronously with the new execution's id before the background
// goroutine starts, so a caller's own bookkeeping (e.g.
// Tracker.RecordTrigger) is guaranteed to observe the id before onTerminal
// could possibly fire for it.
func (e *Executor) Trigger(ctx context.Context, d *v1.Design, rootTask string, onStarted func(executionID string)) (executionID string) {
	executionID = uuid.New().String()
	runCtx, cancel := context.WithCancel(context.Background())

	now := time.Now()
	exec := &v1.Execution{
		ExecutionID: executionID,
		DesignID:    d.ID,
		Status:      v1.ExecutionPending,
		StartedAt:   now,
		ResultData:  v1.ResultData{InProgress: true},
		InProgress:  true,
	}
	if err := e.store.SaveExecution(ctx, exec); err != nil {
		e.log.Error("failed to persist initial execution record", zap.String("execution_id", executionID), zap.Error(err))
	}

	e.mu.Lock()
	e.running[executionID] = &tracked{executionID: executionID, designID: d.ID, startedAt: now, cancel: cancel}
	e.mu.Unlock()

	if onStarted != nil {
		onStarted(executionID)
	}

	go e.run(runCtx, executionID, d, rootTask)

	return executionID
}

func (e *Executor) run(ctx context.Context, executionID string, d *v1.Design, rootTask string) {
	defer func() {
		e.mu.Lock()
		delete(e.running, executionID)
		onTerminal := e.onTerminal
		e.mu.Unlock()
		e.bus.Forget(executionID)
		if onTerminal != nil {
			onTerminal(executionID)
		}
	}()

	running := &v1.Execution{
		ExecutionID: executionID,
		DesignID:    d.ID,
		Status:      v1.ExecutionRunning,
		StartedAt:   time.Now(),
		ResultData:  v1.ResultData{InProgress: true},
		InProgress:  true,
	}
	if err := e.store.SaveExecution(ctx, running); err != nil {
		e.log.Error("failed to persist running status", zap.String("execution_id", executionID), zap.Error(err))
	}

	emit := func(ev v1.ExecutionEvent) {
		e.bus.Publish(ctx, executionID, ev)
		e.persistPartial(ctx, executionID, d.ID, running.StartedAt, ev)
	}

	resultData, status, runErr := e.runner.Execute(ctx, d, rootTask, emit)
	if runErr != nil && resultData.Error == "" {
		resultData.Error = runErr.Error()
	}
	resultData.InProgress = false

	completedAt := time.Now()
	final := &v1.Execution{
		ExecutionID: executionID,
		DesignID:    d.ID,
		Status:      status,
		StartedAt:   running.StartedAt,
		CompletedAt: &completedAt,
		ResultData:  resultData,
		InProgress:  false,
	}
	if err := e.store.SaveExecution(ctx, final); err != nil {
		e.log.Error("failed to persist final execution record", zap.String("execution_id", executionID), zap.Error(err))
	}

	var terminalKind v1.EventKind
	var payload interface{}
	if status == v1.ExecutionCompleted {
		terminalKind = v1.EventComplete
		payload = v1.CompletePayload{Type: "complete", Result: v1.BlockResult{Status: string(status)}}
	} else {
		terminalKind = v1.EventError
		payload = v1.ErrorPayload{Type: "error", Error: resultData.Error}
	}
	e.bus.Publish(ctx, executionID, v1.ExecutionEvent{
		Kind:      terminalKind,
		Payload:   payload,
		Timestamp: completedAt,
	})
}

// persistPartial folds one ExecutionEvent's block_complete payload (if any)
// into the execution's result_data, so polling callers see results grow
// monotonically before the run terminates, per spec §4.5.
func (e *Executor) persistPartial(ctx context.Context, executionID, designID string, startedAt time.Time, ev v1.ExecutionEvent) {
	complete, ok := ev.Payload.(v1.CompletePayload)
	if !ok || ev.Kind != v1.EventBlockComplete {
		return
	}

	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		exec = &v1.Execution{ExecutionID: executionID, DesignID: designID, Status: v1.ExecutionRunning, StartedAt: startedAt}
	}
	if exec.ResultData.Results == nil {
		exec.ResultData.Results = make(map[string]v1.BlockResult)
	}
	exec.ResultData.Results[complete.Result.BlockID] = complete.Result
	exec.ResultData.InProgress = true
	exec.InProgress = true

	if err := e.store.SaveExecution(ctx, exec); err != nil {
		e.log.Error("failed to persist partial result", zap.String("execution_id", executionID), zap.Error(err))
	}
}

// Status returns the current snapshot for an execution.
func (e *Executor) Status(ctx context.Context, executionID string) (*v1.Execution, error) {
	return e.store.GetExecution(ctx, executionID)
}

// Cancel transitions a running execution to cancelled. Cancelling an
// execution that is terminal, or known to the Store but not running in this
// process, is a no-op reported as success; an id the Store does not know
// returns ErrExecutionNotFound.
func (e *Executor) Cancel(ctx context.Context, executionID string) error {
	e.mu.RLock()
	t, ok := e.running[executionID]
	e.mu.RUnlock()

	if !ok {
		exec, err := e.store.GetExecution(ctx, executionID)
		if err != nil {
			return ErrExecutionNotFound
		}
		if !exec.Status.Terminal() {
			e.log.Warn("cancel requested for execution with no live runner", zap.String("execution_id", executionID))
		}
		return nil
	}

	t.cancel()
	return nil
}
