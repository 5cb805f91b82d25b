package pattern

import (
	"context"
	"fmt"
	"strings"

	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// Routing runs a router agent that names exactly one specialist to handle
// the task; only that specialist is invoked.
type Routing struct{ Runtime *Runtime }

// parseRouteDecision extracts the specialist name (and optional reformulated
// task) from the router's free-form output. The convention is a first line
// naming the specialist, with any remaining lines treated as the
// reformulated task; a bare specialist name with nothing else reuses the
// original task.
func parseRouteDecision(text string) (specialist, reformulated string) {
	lines := strings.SplitN(strings.TrimSpace(text), "\n", 2)
	specialist = strings.TrimSpace(lines[0])
	if len(lines) > 1 {
		reformulated = strings.TrimSpace(lines[1])
	}
	return specialist, reformulated
}

func (p *Routing) Execute(ctx context.Context, block v1.Block, in Input, emit EventSink) (v1.BlockResult, error) {
	emit = emitOrNoop(emit)
	outputs := make(map[string]v1.AgentOutput, 2)

	router, ok := block.AgentByName(block.Router)
	if !ok {
		return blockFailedResult(block.ID, outputs, fmt.Errorf("routing block %q: router %q not found", block.ID, block.Router)), nil
	}

	routeOut := p.Runtime.runAgent(ctx, block.ID, router, block.Task, contextFor(in, router.Name), in.Cwd, emit)
	outputs[router.Name] = routeOut
	if routeOut.Error != "" {
		return blockFailedResult(block.ID, outputs, errorOf(routeOut)), nil
	}

	specialistName, reformulated := parseRouteDecision(routeOut.Text)
	specialist, ok := block.AgentByName(specialistName)
	if !ok {
		return blockFailedResult(block.ID, outputs, fmt.Errorf("routing block %q: router named unknown specialist %q", block.ID, specialistName)), nil
	}

	task := block.Task
	if reformulated != "" {
		task = reformulated
	}

	specOut := p.Runtime.runAgent(ctx, block.ID, specialist, task, contextFor(in, specialist.Name), in.Cwd, emit)
	outputs[specialist.Name] = specOut
	if specOut.Error != "" {
		return blockFailedResult(block.ID, outputs, errorOf(specOut)), nil
	}

	return v1.BlockResult{
		BlockID:         block.ID,
		PerAgentOutputs: outputs,
		FinalOutput:     specOut.Text,
		Status:          "completed",
	}, nil
}
