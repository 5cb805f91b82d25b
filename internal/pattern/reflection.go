package pattern

import (
	"context"
	"fmt"

	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// Reflection runs a single agent for `rounds` iterations: the first on the
// block's task, each later one asking it to critique and revise its previous
// output. It has its own loop, recording per-round outputs under the same
// "<name>#round<N>" keys debate uses, with one participant and no peer
// broadcast.
type Reflection struct{ Runtime *Runtime }

func (p *Reflection) Execute(ctx context.Context, block v1.Block, in Input, emit EventSink) (v1.BlockResult, error) {
	emit = emitOrNoop(emit)

	if len(block.Agents) == 0 {
		return blockFailedResult(block.ID, nil, fmt.Errorf("reflection block %q: no agent declared", block.ID)), nil
	}
	agent := block.Agents[0]

	rounds := block.Rounds
	if rounds <= 0 {
		rounds = 1
	}

	outputs := make(map[string]v1.AgentOutput, rounds)
	agentCtx := contextFor(in, agent.Name)
	task := block.Task
	var lastText string

	for round := 1; round <= rounds; round++ {
		out := p.Runtime.runAgent(ctx, block.ID, agent, task, agentCtx, in.Cwd, emit)
		outputs[fmt.Sprintf("%s#round%d", agent.Name, round)] = out
		if out.Error != "" {
			return blockFailedResult(block.ID, outputs, errorOf(out)), nil
		}
		lastText = out.Text
		task = fmt.Sprintf("Critique and revise your own prior output:\n%s\n\nOriginal task:\n%s", out.Text, block.Task)
	}

	return v1.BlockResult{
		BlockID:         block.ID,
		PerAgentOutputs: outputs,
		FinalOutput:     lastText,
		Status:          "completed",
	}, nil
}
