// Package pattern implements the five (six, with reflection) agent
// interaction patterns a block may declare. Every executor shares the same
// shape: consume a block and a task, drive one or more agent calls through
// internal/agentclient, and relay streaming events as they occur.
package pattern

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kandev/conductor/internal/agentclient"
	apperrors "github.com/kandev/conductor/internal/common/errors"
	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// EventSink receives streaming events as a block executes. Implementations
// must not block indefinitely; the event bus owns buffering.
type EventSink func(v1.ExecutionEvent)

// Input bundles everything a pattern executor needs beyond the block
// itself: the root task, the assembled context, the working directory
// established by the broker, and any agent-level context overrides
// (agent name -> context text) collected by the design graph runner.
type Input struct {
	Task            string
	Context         string
	Cwd             string
	AgentOverrides  map[string]string
}

// Executor is the shape every pattern implements.
type Executor interface {
	Execute(ctx context.Context, block v1.Block, in Input, emit EventSink) (v1.BlockResult, error)
}

// Runtime is the shared dependency every pattern executor is built from.
type Runtime struct {
	Client      *agentclient.Client
	CancelGrace time.Duration
}

func noopSink(v1.ExecutionEvent) {}

func emitOrNoop(emit EventSink) EventSink {
	if emit == nil {
		return noopSink
	}
	return emit
}

func chunkEvent(blockID, agentName, text string) v1.ExecutionEvent {
	return v1.ExecutionEvent{
		Kind:      v1.EventChunk,
		BlockID:   blockID,
		AgentName: agentName,
		Payload:   v1.ChunkPayload{Type: "chunk", Agent: agentName, Data: text},
		Timestamp: time.Now(),
	}
}

// contextFor resolves the context text a given agent should see: its
// per-agent override if one exists, else the block-level input context.
func contextFor(in Input, agentName string) string {
	if in.AgentOverrides != nil {
		if ctx, ok := in.AgentOverrides[agentName]; ok {
			return ctx
		}
	}
	return in.Context
}

// runAgent drives one agent call to completion, relaying its chunks through
// emit and returning its AgentOutput. It never returns a Go error: failures
// are captured in the AgentOutput itself, matching the "errors are values
// attached to events" design note.
func (rt *Runtime) runAgent(ctx context.Context, blockID string, agent v1.Agent, task, agentContext, cwd string, emit EventSink) v1.AgentOutput {
	stream, err := rt.Client.Run(ctx, agent, task, agentContext, cwd)
	if err != nil {
		return v1.AgentOutput{AgentName: agent.Name, Error: err.Error()}
	}

	for chunk := range stream.Chunks() {
		emit(chunkEvent(blockID, agent.Name, chunk))
	}

	text, usage, err := stream.Wait()
	out := v1.AgentOutput{AgentName: agent.Name, Text: text, Usage: usage}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// LabelledConcat joins named texts as "=== From <name> ===\n<content>",
// blank-line separated, in the given order. Exported so the design graph
// runner's context assembly (block-level and agent-level edges) renders
// context identically to within-pattern aggregation.
func LabelledConcat(order []string, texts map[string]string) string {
	return labelledConcat(order, texts)
}

// labelledConcat joins named texts as "=== From <name> ===\n<content>",
// blank-line separated, in the given order.
func labelledConcat(order []string, texts map[string]string) string {
	var b strings.Builder
	first := true
	for _, name := range order {
		text, ok := texts[name]
		if !ok {
			continue
		}
		if !first {
			b.WriteString("\n\n")
		}
		first = false
		fmt.Fprintf(&b, "=== From %s ===\n%s", name, text)
	}
	return b.String()
}

// successfulOutputs filters per-agent outputs down to those without an
// error, preserving the given declaration order.
func successfulOutputs(order []string, outputs map[string]v1.AgentOutput) (names []string, texts map[string]string) {
	texts = make(map[string]string)
	for _, name := range order {
		out, ok := outputs[name]
		if !ok || out.Error != "" {
			continue
		}
		names = append(names, name)
		texts[name] = out.Text
	}
	return names, texts
}

// agentNames returns the declared agent names of a block, in order.
func agentNames(block v1.Block) []string {
	names := make([]string, len(block.Agents))
	for i, a := range block.Agents {
		names[i] = a.Name
	}
	return names
}

func sortedKeys(m map[string]v1.AgentOutput) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// runConcurrently runs each fn in its own goroutine and waits for all to
// finish. Reacting to cancellation is each fn's own responsibility.
func runConcurrently(fns []func()) {
	var wg sync.WaitGroup
	wg.Add(len(fns))
	for _, fn := range fns {
		fn := fn
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	wg.Wait()
}

// New returns the Executor for the given pattern name.
func New(pattern v1.Pattern, rt *Runtime) (Executor, error) {
	switch pattern {
	case v1.PatternSequential:
		return &Sequential{Runtime: rt}, nil
	case v1.PatternParallel:
		return &Parallel{Runtime: rt}, nil
	case v1.PatternHierarchical:
		return &Hierarchical{Runtime: rt}, nil
	case v1.PatternDebate:
		return &Debate{Runtime: rt}, nil
	case v1.PatternRouting:
		return &Routing{Runtime: rt}, nil
	case v1.PatternReflection:
		return &Reflection{Runtime: rt}, nil
	default:
		return nil, fmt.Errorf("unknown pattern %q", pattern)
	}
}

// blockFailedResult builds a failed BlockResult carrying the first
// underlying cause, per the BlockFailed taxonomy entry.
func blockFailedResult(blockID string, outputs map[string]v1.AgentOutput, cause error) v1.BlockResult {
	return v1.BlockResult{
		BlockID:         blockID,
		PerAgentOutputs: outputs,
		Status:          "failed",
		Error:           apperrors.BlockFailed(blockID, cause).Error(),
	}
}
