package pattern

import (
	"sync"

	"context"

	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// Parallel runs every agent in a block concurrently on the same task with
// no cross-visibility, then optionally synthesizes the results with an
// aggregator agent.
type Parallel struct{ Runtime *Runtime }

func (p *Parallel) Execute(ctx context.Context, block v1.Block, in Input, emit EventSink) (v1.BlockResult, error) {
	emit = emitOrNoop(emit)

	var workers []v1.Agent
	var aggregator *v1.Agent
	for i := range block.Agents {
		a := block.Agents[i]
		if block.Aggregator != "" && a.Name == block.Aggregator {
			aggregator = &a
			continue
		}
		workers = append(workers, a)
	}

	outputs := make(map[string]v1.AgentOutput, len(block.Agents))
	var mu sync.Mutex

	fns := make([]func(), 0, len(workers))
	for _, agent := range workers {
		agent := agent
		fns = append(fns, func() {
			out := p.Runtime.runAgent(ctx, block.ID, agent, block.Task, contextFor(in, agent.Name), in.Cwd, emit)
			mu.Lock()
			outputs[agent.Name] = out
			mu.Unlock()
		})
	}
	runConcurrently(fns)

	order := make([]string, len(workers))
	for i, a := range workers {
		order[i] = a.Name
	}
	succeededNames, succeededTexts := successfulOutputs(order, outputs)

	if len(succeededNames) == 0 {
		return blockFailedResult(block.ID, outputs, &outputError{"all agents failed"}), nil
	}

	if aggregator == nil {
		return v1.BlockResult{
			BlockID:         block.ID,
			PerAgentOutputs: outputs,
			FinalOutput:     labelledConcat(succeededNames, succeededTexts),
			Status:          "completed",
		}, nil
	}

	aggContext := contextFor(in, aggregator.Name)
	if aggContext != "" {
		aggContext += "\n\n"
	}
	aggContext += labelledConcat(succeededNames, succeededTexts)

	aggOut := p.Runtime.runAgent(ctx, block.ID, *aggregator, block.Task, aggContext, in.Cwd, emit)
	outputs[aggregator.Name] = aggOut

	if aggOut.Error != "" {
		return blockFailedResult(block.ID, outputs, errorOf(aggOut)), nil
	}

	return v1.BlockResult{
		BlockID:         block.ID,
		PerAgentOutputs: outputs,
		FinalOutput:     aggOut.Text,
		Status:          "completed",
	}, nil
}
