package pattern

import (
	"context"
	"fmt"
	"sync"

	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// Debate runs a set of participants for a fixed number of rounds, each
// round presenting every participant with its own prior statement and the
// joined prior statements of its peers; an optional moderator closes with a
// summary.
type Debate struct{ Runtime *Runtime }

func (p *Debate) Execute(ctx context.Context, block v1.Block, in Input, emit EventSink) (v1.BlockResult, error) {
	emit = emitOrNoop(emit)

	rounds := block.Rounds
	if rounds <= 0 {
		rounds = 1
	}

	var participants []v1.Agent
	var moderator *v1.Agent
	for i := range block.Agents {
		a := block.Agents[i]
		if block.Moderator != "" && a.Name == block.Moderator {
			moderator = &a
			continue
		}
		participants = append(participants, a)
	}
	order := agentNamesOf(participants)

	outputs := make(map[string]v1.AgentOutput, len(block.Agents)*rounds)
	priorStatements := make(map[string]string, len(participants))

	for round := 1; round <= rounds; round++ {
		roundOutputs := make(map[string]v1.AgentOutput, len(participants))
		var mu sync.Mutex

		fns := make([]func(), len(participants))
		for i, agent := range participants {
			i, agent := i, agent
			fns[i] = func() {
				peers := othersOf(order, agent.Name, priorStatements)
				roundContext := contextFor(in, agent.Name)
				if round > 1 {
					own := priorStatements[agent.Name]
					joined := labelledConcat(peers.names, peers.texts)
					if roundContext != "" {
						roundContext += "\n\n"
					}
					roundContext += fmt.Sprintf("Your prior statement:\n%s\n\nPeers' prior statements:\n%s", own, joined)
				}

				out := p.Runtime.runAgent(ctx, block.ID, agent, block.Task, roundContext, in.Cwd, emit)
				mu.Lock()
				roundOutputs[agent.Name] = out
				mu.Unlock()
			}
		}
		runConcurrently(fns)

		for name, out := range roundOutputs {
			outputs[fmt.Sprintf("%s#round%d", name, round)] = out
			if out.Error == "" {
				priorStatements[name] = out.Text
			}
		}
	}

	succeededNames, succeededTexts := successfulOutputs(order, priorStatements2Outputs(priorStatements))
	if len(succeededNames) == 0 {
		return blockFailedResult(block.ID, outputs, &outputError{"all participants failed in every round"}), nil
	}

	if moderator == nil {
		return v1.BlockResult{
			BlockID:         block.ID,
			PerAgentOutputs: outputs,
			FinalOutput:     labelledConcat(succeededNames, succeededTexts),
			Status:          "completed",
		}, nil
	}

	modContext := contextFor(in, moderator.Name)
	if modContext != "" {
		modContext += "\n\n"
	}
	modContext += labelledConcat(succeededNames, succeededTexts)

	modOut := p.Runtime.runAgent(ctx, block.ID, *moderator, block.Task, modContext, in.Cwd, emit)
	outputs[moderator.Name] = modOut
	if modOut.Error != "" {
		return blockFailedResult(block.ID, outputs, errorOf(modOut)), nil
	}

	return v1.BlockResult{
		BlockID:         block.ID,
		PerAgentOutputs: outputs,
		FinalOutput:     modOut.Text,
		Status:          "completed",
	}, nil
}

func agentNamesOf(agents []v1.Agent) []string {
	names := make([]string, len(agents))
	for i, a := range agents {
		names[i] = a.Name
	}
	return names
}

type peerStatements struct {
	names []string
	texts map[string]string
}

// othersOf returns every participant's prior statement except the given
// agent's own, in declaration order, for round r-1.
func othersOf(order []string, exclude string, prior map[string]string) peerStatements {
	texts := make(map[string]string)
	var names []string
	for _, name := range order {
		if name == exclude {
			continue
		}
		if text, ok := prior[name]; ok {
			names = append(names, name)
			texts[name] = text
		}
	}
	return peerStatements{names: names, texts: texts}
}

func priorStatements2Outputs(prior map[string]string) map[string]v1.AgentOutput {
	out := make(map[string]v1.AgentOutput, len(prior))
	for name, text := range prior {
		out[name] = v1.AgentOutput{AgentName: name, Text: text}
	}
	return out
}
