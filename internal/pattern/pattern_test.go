package pattern

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/kandev/conductor/internal/agentclient"
	v1 "github.com/kandev/conductor/pkg/api/v1"
)

func newRuntime(backend agentclient.LLMBackend) *Runtime {
	return &Runtime{Client: agentclient.NewClient(backend, nil, nil, 0, nil)}
}

// echoBackend replies per-agent based on a fixed map, falling back to an
// echo of the task, so tests can script each agent's answer independently.
type echoBackend struct {
	replies map[string]string
	fail    map[string]error
}

func (b *echoBackend) Stream(ctx context.Context, req agentclient.BackendRequest) (<-chan agentclient.BackendChunk, error) {
	out := make(chan agentclient.BackendChunk, 1)
	go func() {
		defer close(out)
		if err, ok := b.fail[req.SystemPrompt]; ok {
			out <- agentclient.BackendChunk{Err: err}
			return
		}
		reply, ok := b.replies[req.SystemPrompt]
		if !ok {
			reply = req.Task
		}
		out <- agentclient.BackendChunk{Text: reply}
	}()
	return out, nil
}

// agent uses SystemPrompt as its lookup key into echoBackend so tests can
// script responses per agent without needing a router keyed by name.
func agentKeyed(name string) v1.Agent {
	return v1.Agent{Name: name, SystemPrompt: name, Role: v1.AgentRoleWorker}
}

func TestSequentialPipeline(t *testing.T) {
	backend := &echoBackend{replies: map[string]string{
		"A": "A: hello",
		"B": "B: A: hello",
	}}
	rt := newRuntime(backend)
	exec := &Sequential{Runtime: rt}

	block := v1.Block{
		ID:      "blk1",
		Pattern: v1.PatternSequential,
		Task:    "hello",
		Agents:  []v1.Agent{agentKeyed("A"), agentKeyed("B")},
	}

	result, err := exec.Execute(context.Background(), block, Input{Task: "hello"}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Status != "completed" {
		t.Fatalf("expected completed, got %s: %s", result.Status, result.Error)
	}
	if result.FinalOutput != "B: A: hello" {
		t.Errorf("final output = %q", result.FinalOutput)
	}
}

func TestParallelWithAggregator(t *testing.T) {
	backend := &echoBackend{
		replies: map[string]string{"X": "X-OUT", "Z": "synthesis"},
		fail:    map[string]error{"Y": errors.New("vendor error")},
	}
	rt := newRuntime(backend)
	exec := &Parallel{Runtime: rt}

	block := v1.Block{
		ID:         "blk2",
		Pattern:    v1.PatternParallel,
		Task:       "task",
		Agents:     []v1.Agent{agentKeyed("X"), agentKeyed("Y"), agentKeyed("Z")},
		Aggregator: "Z",
	}

	result, err := exec.Execute(context.Background(), block, Input{}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Status != "completed" {
		t.Fatalf("expected completed, got %s: %s", result.Status, result.Error)
	}
	if result.FinalOutput != "synthesis" {
		t.Errorf("final output = %q, want synthesis", result.FinalOutput)
	}
	if result.PerAgentOutputs["Y"].Error == "" {
		t.Error("expected Y to have recorded an error")
	}
	if result.PerAgentOutputs["X"].Text != "X-OUT" {
		t.Error("expected X's output preserved")
	}
}

func TestRoutingOnlyInvokesNamedSpecialist(t *testing.T) {
	invoked := map[string]bool{}
	backend := &trackingBackend{
		inner:   &echoBackend{replies: map[string]string{"router": "specialist_b"}},
		invoked: invoked,
	}
	rt := newRuntime(backend)
	exec := &Routing{Runtime: rt}

	block := v1.Block{
		ID:      "blk3",
		Pattern: v1.PatternRouting,
		Task:    "task",
		Agents: []v1.Agent{
			agentKeyed("router"),
			agentKeyed("specialist_a"),
			agentKeyed("specialist_b"),
			agentKeyed("specialist_c"),
		},
		Router: "router",
	}

	result, err := exec.Execute(context.Background(), block, Input{}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Status != "completed" {
		t.Fatalf("expected completed, got %s: %s", result.Status, result.Error)
	}
	if invoked["specialist_a"] || invoked["specialist_c"] {
		t.Error("non-routed specialists should never be invoked")
	}
	if !invoked["specialist_b"] {
		t.Error("routed specialist should have been invoked")
	}
}

type trackingBackend struct {
	inner   agentclient.LLMBackend
	invoked map[string]bool
}

func (b *trackingBackend) Stream(ctx context.Context, req agentclient.BackendRequest) (<-chan agentclient.BackendChunk, error) {
	b.invoked[req.SystemPrompt] = true
	return b.inner.Stream(ctx, req)
}

func TestDebateExactCallCount(t *testing.T) {
	backend := &countingBackend{inner: &echoBackend{}}
	rt := newRuntime(backend)
	exec := &Debate{Runtime: rt}

	block := v1.Block{
		ID:        "blk4",
		Pattern:   v1.PatternDebate,
		Task:      "T",
		Agents:    []v1.Agent{agentKeyed("P"), agentKeyed("Q"), agentKeyed("M")},
		Rounds:    2,
		Moderator: "M",
	}

	result, err := exec.Execute(context.Background(), block, Input{}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Status != "completed" {
		t.Fatalf("expected completed, got %s: %s", result.Status, result.Error)
	}
	if got := atomic.LoadInt64(&backend.count); got != 5 {
		t.Errorf("expected exactly 5 agent calls, got %d", got)
	}
}

type countingBackend struct {
	inner agentclient.LLMBackend
	count int64
}

func (b *countingBackend) Stream(ctx context.Context, req agentclient.BackendRequest) (<-chan agentclient.BackendChunk, error) {
	atomic.AddInt64(&b.count, 1)
	return b.inner.Stream(ctx, req)
}
