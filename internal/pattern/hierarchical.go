package pattern

import (
	"context"
	"fmt"
	"strings"
	"sync"

	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// Hierarchical runs a manager agent that produces a delegation plan, fans
// the named subtasks out to workers, then feeds their outputs back to the
// manager for a final synthesis pass.
type Hierarchical struct{ Runtime *Runtime }

type delegation struct {
	Worker  string
	Subtask string
}

// parseDelegationPlan reads the manager's free-form plan, one delegation per
// line in "worker_name: subtask" form. Blank lines and lines without a
// colon are ignored.
func parseDelegationPlan(text string) []delegation {
	var plan []delegation
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		worker := strings.TrimSpace(line[:idx])
		subtask := strings.TrimSpace(line[idx+1:])
		if worker == "" {
			continue
		}
		plan = append(plan, delegation{Worker: worker, Subtask: subtask})
	}
	return plan
}

func (p *Hierarchical) Execute(ctx context.Context, block v1.Block, in Input, emit EventSink) (v1.BlockResult, error) {
	emit = emitOrNoop(emit)
	outputs := make(map[string]v1.AgentOutput, len(block.Agents)+1)

	manager, ok := block.AgentByName(block.Manager)
	if !ok {
		return blockFailedResult(block.ID, outputs, fmt.Errorf("hierarchical block %q: manager %q not found", block.ID, block.Manager)), nil
	}

	planOut := p.Runtime.runAgent(ctx, block.ID, manager, block.Task, contextFor(in, manager.Name), in.Cwd, emit)
	outputs[manager.Name+"#plan"] = planOut
	if planOut.Error != "" {
		return blockFailedResult(block.ID, outputs, errorOf(planOut)), nil
	}

	plan := parseDelegationPlan(planOut.Text)
	for _, d := range plan {
		if _, ok := block.AgentByName(d.Worker); !ok {
			return blockFailedResult(block.ID, outputs, fmt.Errorf("hierarchical block %q: manager named unknown worker %q", block.ID, d.Worker)), nil
		}
	}

	workerOutputs := make([]v1.AgentOutput, len(plan))
	if block.ParallelWorkers {
		var mu sync.Mutex
		fns := make([]func(), len(plan))
		for i, d := range plan {
			i, d := i, d
			fns[i] = func() {
				worker, _ := block.AgentByName(d.Worker)
				out := p.Runtime.runAgent(ctx, block.ID, worker, d.Subtask, contextFor(in, worker.Name), in.Cwd, emit)
				mu.Lock()
				workerOutputs[i] = out
				mu.Unlock()
			}
		}
		runConcurrently(fns)
	} else {
		for i, d := range plan {
			worker, _ := block.AgentByName(d.Worker)
			workerOutputs[i] = p.Runtime.runAgent(ctx, block.ID, worker, d.Subtask, contextFor(in, worker.Name), in.Cwd, emit)
		}
	}

	var synthesisInput strings.Builder
	for i, out := range workerOutputs {
		key := fmt.Sprintf("%s#%d", plan[i].Worker, i)
		outputs[key] = out
		if out.Error != "" {
			continue
		}
		if synthesisInput.Len() > 0 {
			synthesisInput.WriteString("\n\n")
		}
		fmt.Fprintf(&synthesisInput, "=== From %s ===\n%s", plan[i].Worker, out.Text)
	}

	synthesisContext := contextFor(in, manager.Name)
	if synthesisContext != "" {
		synthesisContext += "\n\n"
	}
	synthesisContext += synthesisInput.String()

	synthesis := p.Runtime.runAgent(ctx, block.ID, manager, block.Task, synthesisContext, in.Cwd, emit)
	outputs[manager.Name] = synthesis
	if synthesis.Error != "" {
		return blockFailedResult(block.ID, outputs, errorOf(synthesis)), nil
	}

	return v1.BlockResult{
		BlockID:         block.ID,
		PerAgentOutputs: outputs,
		FinalOutput:     synthesis.Text,
		Status:          "completed",
	}, nil
}
