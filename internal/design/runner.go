package design

import (
	"context"
	"sync"
	"time"

	"github.com/kandev/conductor/internal/common/logger"
	"github.com/kandev/conductor/internal/pattern"
	v1 "github.com/kandev/conductor/pkg/api/v1"
	"go.uber.org/zap"
)

// WorkspaceProvider establishes and tears down a block's working directory.
// internal/broker implements this; tests may substitute a no-op.
type WorkspaceProvider interface {
	Acquire(ctx context.Context, block v1.Block) (cwd string, release func(), err error)
}

type noopWorkspaces struct{ root string }

func (n noopWorkspaces) Acquire(ctx context.Context, block v1.Block) (string, func(), error) {
	return n.root, func() {}, nil
}

// Runner executes a Design's block graph: topological scheduling, a
// configurable parallelism cap enforced with a reserve-then-release
// discipline around the ready-queue pop, per-block context assembly, and
// cooperative cancellation.
type Runner struct {
	Runtime           *pattern.Runtime
	Workspaces        WorkspaceProvider
	MaxParallelBlocks int
	CancelGrace       time.Duration
	Log               *logger.Logger
}

type blockOutcome struct {
	id     string
	result v1.BlockResult
	failed bool
}

// Execute runs the design to completion (or to a terminal cancelled/failed
// state) and returns the final ResultData plus the overall ExecutionStatus.
// emit is called for every ExecutionEvent the run produces, in emission
// order per block but not necessarily in declaration order across blocks.
func (r *Runner) Execute(ctx context.Context, d *v1.Design, rootTask string, emit pattern.EventSink) (v1.ResultData, v1.ExecutionStatus, error) {
	if emit == nil {
		emit = func(v1.ExecutionEvent) {}
	}

	g, err := buildGraph(d)
	if err != nil {
		return v1.ResultData{}, v1.ExecutionFailed, err
	}
	// Cycle detection happens before any block — let alone any agent call —
	// starts, per invariant 4.
	if _, err := g.topologicalOrder(); err != nil {
		return v1.ResultData{}, v1.ExecutionFailed, err
	}

	ws := r.Workspaces
	if ws == nil {
		ws = noopWorkspaces{}
	}
	maxParallel := r.MaxParallelBlocks
	if maxParallel <= 0 {
		maxParallel = 1
	}

	total := len(g.blocksByID)
	inDegree := make(map[string]int, total)
	for id := range g.blocksByID {
		inDegree[id] = len(g.predecessors[id])
	}

	var mu sync.Mutex
	results := make(map[string]v1.BlockResult, total)
	resolved := make(map[string]bool, total) // completed, failed, or blocked
	anyFailed := false

	rq := newReadyQueue()
	for _, id := range g.roots() {
		rq.Push(id)
	}

	sem := make(chan struct{}, maxParallel)
	// reserved tracks slots claimed but not yet occupying sem, to avoid a
	// TOCTOU window between the ready-queue pop and the semaphore send.
	reserved := 0

	outcomes := make(chan blockOutcome, total)
	var wg sync.WaitGroup
	remaining := total
	cancelled := false

	// blockDescendants marks everything transitively reachable from id (but
	// not id itself) as resolved-without-running, since a failed predecessor
	// permanently prevents its dependents from starting.
	var blockDescendants func(id string)
	blockDescendants = func(id string) {
		for _, succ := range g.successors[id] {
			if resolved[succ] {
				continue
			}
			resolved[succ] = true
			remaining--
			blockDescendants(succ)
		}
	}

	dispatch := func() {
		for {
			mu.Lock()
			id, ok := rq.Pop()
			if !ok {
				mu.Unlock()
				return
			}
			activeOrReserved := len(sem) + reserved
			if activeOrReserved >= maxParallel {
				rq.Push(id)
				mu.Unlock()
				return
			}
			reserved++
			mu.Unlock()

			sem <- struct{}{}
			mu.Lock()
			reserved--
			mu.Unlock()

			wg.Add(1)
			go r.runBlock(ctx, g, id, rootTask, &mu, results, ws, emit, sem, outcomes, &wg)
		}
	}

	dispatch()

	for remaining > 0 {
		select {
		case <-ctx.Done():
			cancelled = true
		case out := <-outcomes:
			mu.Lock()
			resolved[out.id] = true
			remaining--
			results[out.id] = out.result
			if out.failed {
				anyFailed = true
				blockDescendants(out.id)
			} else if !cancelled {
				for _, succ := range g.successors[out.id] {
					inDegree[succ]--
					if inDegree[succ] == 0 && !resolved[succ] {
						rq.Push(succ)
					}
				}
			}
			mu.Unlock()
			if !cancelled {
				dispatch()
			}
		}

		if cancelled {
			break
		}
	}

	if cancelled {
		grace := r.CancelGrace
		if grace <= 0 {
			grace = 5 * time.Second
		}
		deadline := time.After(grace)
	drain:
		for remaining > 0 {
			select {
			case out := <-outcomes:
				mu.Lock()
				resolved[out.id] = true
				remaining--
				results[out.id] = out.result
				if out.failed {
					anyFailed = true
				}
				mu.Unlock()
			case <-deadline:
				break drain
			}
		}
	}

	wg.Wait()

	status := v1.ExecutionCompleted
	switch {
	case cancelled:
		status = v1.ExecutionCancelled
	case anyFailed:
		status = v1.ExecutionFailed
	}

	mu.Lock()
	defer mu.Unlock()
	resultData := v1.ResultData{
		Results:    results,
		InProgress: false,
	}
	if anyFailed {
		resultData.Error = "one or more blocks failed"
	}
	return resultData, status, nil
}

func (r *Runner) runBlock(
	ctx context.Context,
	g *graph,
	blockID string,
	rootTask string,
	mu *sync.Mutex,
	results map[string]v1.BlockResult,
	ws WorkspaceProvider,
	emit pattern.EventSink,
	sem chan struct{},
	outcomes chan<- blockOutcome,
	wg *sync.WaitGroup,
) {
	defer wg.Done()
	defer func() { <-sem }()

	block := g.blocksByID[blockID]
	log := r.log()

	emit(v1.ExecutionEvent{Kind: v1.EventStart, BlockID: blockID, Timestamp: timeNow()})

	cwd, release, err := ws.Acquire(ctx, *block)
	if err != nil {
		log.Warn("workspace acquisition failed", zap.String("block_id", blockID), zap.Error(err))
		result := v1.BlockResult{BlockID: blockID, Status: "failed", Error: err.Error()}
		emit(v1.ExecutionEvent{Kind: v1.EventError, BlockID: blockID, Payload: v1.ErrorPayload{Type: "error", Error: err.Error()}, Timestamp: timeNow()})
		outcomes <- blockOutcome{id: blockID, result: result, failed: true}
		return
	}
	defer release()

	mu.Lock()
	ctxText := assembleContext(g, blockID, results)
	mu.Unlock()

	isRoot := len(g.predecessors[blockID]) == 0
	task := block.Task
	if isRoot && rootTask != "" {
		task = rootTask
	}

	executor, err := pattern.New(block.Pattern, r.Runtime)
	if err != nil {
		result := v1.BlockResult{BlockID: blockID, Status: "failed", Error: err.Error()}
		outcomes <- blockOutcome{id: blockID, result: result, failed: true}
		return
	}

	// Patterns read the task from the block, so the resolved task is set on
	// the copy handed to the executor.
	runnable := *block
	runnable.Task = task
	result, _ := executor.Execute(ctx, runnable, pattern.Input{
		Task:           task,
		Context:        ctxText.Context,
		Cwd:            cwd,
		AgentOverrides: ctxText.Overrides,
	}, emit)

	if result.Status == "completed" {
		emit(v1.ExecutionEvent{Kind: v1.EventBlockComplete, BlockID: blockID, Payload: v1.CompletePayload{Type: "complete", Result: result}, Timestamp: timeNow()})
	} else if result.Status == "failed" {
		emit(v1.ExecutionEvent{Kind: v1.EventError, BlockID: blockID, Payload: v1.ErrorPayload{Type: "error", Error: result.Error}, Timestamp: timeNow()})
	}

	outcomes <- blockOutcome{id: blockID, result: result, failed: result.Status == "failed"}
}

func (r *Runner) log() *logger.Logger {
	if r.Log != nil {
		return r.Log
	}
	return logger.Default()
}

func timeNow() time.Time { return time.Now() }
