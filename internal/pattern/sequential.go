package pattern

import (
	"context"
	"strings"

	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// Sequential runs a block's agents strictly in declared order, each seeing
// every prior agent's output concatenated after its own task.
type Sequential struct{ Runtime *Runtime }

func (p *Sequential) Execute(ctx context.Context, block v1.Block, in Input, emit EventSink) (v1.BlockResult, error) {
	emit = emitOrNoop(emit)
	outputs := make(map[string]v1.AgentOutput, len(block.Agents))

	var prior strings.Builder
	var lastText string

	for _, agent := range block.Agents {
		select {
		case <-ctx.Done():
			return v1.BlockResult{BlockID: block.ID, PerAgentOutputs: outputs, Status: "cancelled"}, nil
		default:
		}

		task := block.Task
		if prior.Len() > 0 {
			task = block.Task + "\n\n" + prior.String()
		}
		agentCtx := contextFor(in, agent.Name)

		out := p.Runtime.runAgent(ctx, block.ID, agent, task, agentCtx, in.Cwd, emit)
		outputs[agent.Name] = out

		if out.Error != "" {
			return blockFailedResult(block.ID, outputs, errorOf(out)), nil
		}

		lastText = out.Text
		if prior.Len() > 0 {
			prior.WriteString("\n\n")
		}
		prior.WriteString(out.Text)
	}

	return v1.BlockResult{
		BlockID:         block.ID,
		PerAgentOutputs: outputs,
		FinalOutput:     lastText,
		Status:          "completed",
	}, nil
}

func errorOf(out v1.AgentOutput) error {
	return &outputError{out.Error}
}

type outputError struct{ msg string }

func (e *outputError) Error() string { return e.msg }
