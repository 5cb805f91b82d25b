package design

import (
	"context"
	"testing"

	"github.com/kandev/conductor/internal/agentclient"
	"github.com/kandev/conductor/internal/pattern"
	v1 "github.com/kandev/conductor/pkg/api/v1"
)

func newTestRunner(backend agentclient.LLMBackend) *Runner {
	client := agentclient.NewClient(backend, nil, nil, 0, nil)
	return &Runner{Runtime: &pattern.Runtime{Client: client}, MaxParallelBlocks: 4}
}

// keyedBackend replies per the agent's SystemPrompt, identical convention to
// internal/pattern's tests, so a design's per-block agents can be scripted
// independently of execution order.
type keyedBackend struct{ replies map[string]string }

func (b *keyedBackend) Stream(ctx context.Context, req agentclient.BackendRequest) (<-chan agentclient.BackendChunk, error) {
	out := make(chan agentclient.BackendChunk, 1)
	reply, ok := b.replies[req.SystemPrompt]
	if !ok {
		reply = req.Task
	}
	out <- agentclient.BackendChunk{Text: reply}
	close(out)
	return out, nil
}

func ag(name string) v1.Agent {
	return v1.Agent{Name: name, SystemPrompt: name, Role: v1.AgentRoleWorker}
}

func TestCyclicDesignRejected(t *testing.T) {
	d := &v1.Design{
		ID: "d1",
		Blocks: []v1.Block{
			{ID: "b1", Pattern: v1.PatternSequential, Agents: []v1.Agent{ag("a")}, Task: "t"},
			{ID: "b2", Pattern: v1.PatternSequential, Agents: []v1.Agent{ag("b")}, Task: "t"},
		},
		Connections: []v1.Connection{
			{Kind: v1.ConnectionBlockLevel, SourceBlock: "b1", TargetBlock: "b2"},
			{Kind: v1.ConnectionBlockLevel, SourceBlock: "b2", TargetBlock: "b1"},
		},
	}

	r := newTestRunner(&keyedBackend{})
	_, status, err := r.Execute(context.Background(), d, "root", nil)
	if err == nil {
		t.Fatal("expected cyclic design to be rejected")
	}
	if status != v1.ExecutionFailed {
		t.Errorf("expected ExecutionFailed status, got %s", status)
	}
}

func TestBlockLevelChain(t *testing.T) {
	backend := &keyedBackend{replies: map[string]string{
		"a": "A-OUT",
		"b": "B saw: " + "",
	}}
	d := &v1.Design{
		ID: "d2",
		Blocks: []v1.Block{
			{ID: "b1", Pattern: v1.PatternSequential, Agents: []v1.Agent{ag("a")}, Task: "t1"},
			{ID: "b2", Pattern: v1.PatternSequential, Agents: []v1.Agent{ag("b")}, Task: "t2"},
		},
		Connections: []v1.Connection{
			{Kind: v1.ConnectionBlockLevel, SourceBlock: "b1", TargetBlock: "b2"},
		},
	}

	r := newTestRunner(backend)
	var events []v1.ExecutionEvent
	data, status, err := r.Execute(context.Background(), d, "root", func(e v1.ExecutionEvent) { events = append(events, e) })
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if status != v1.ExecutionCompleted {
		t.Fatalf("expected completed, got %s", status)
	}
	if data.Results["b1"].FinalOutput != "A-OUT" {
		t.Errorf("b1 final output = %q", data.Results["b1"].FinalOutput)
	}
	foundBlockComplete := 0
	for _, e := range events {
		if e.Kind == v1.EventBlockComplete {
			foundBlockComplete++
		}
	}
	if foundBlockComplete != 2 {
		t.Errorf("expected 2 block_complete events, got %d", foundBlockComplete)
	}
}

// TestAgentLevelRewiring covers S3: B1 (parallel, agents a,b), B2 (sequential,
// agents c,d). Edges: B1.a -> B2.c (agent-level), B1 -> B2 (block-level). c
// must see a's specific output; d must see B1's block-level aggregate.
func TestAgentLevelRewiring(t *testing.T) {
	backend := &keyedBackend{replies: map[string]string{
		"a": "A-SPECIFIC",
		"b": "B-SPECIFIC",
		"c": "c-done",
		"d": "d-done",
	}}
	d := &v1.Design{
		ID: "d3",
		Blocks: []v1.Block{
			{ID: "B1", Pattern: v1.PatternParallel, Agents: []v1.Agent{ag("a"), ag("b")}, Task: "t1"},
			{ID: "B2", Pattern: v1.PatternSequential, Agents: []v1.Agent{ag("c"), ag("d")}, Task: "t2"},
		},
		Connections: []v1.Connection{
			{Kind: v1.ConnectionAgentLevel, SourceBlock: "B1", SourceAgent: "a", TargetBlock: "B2", TargetAgent: "c"},
			{Kind: v1.ConnectionBlockLevel, SourceBlock: "B1", TargetBlock: "B2"},
		},
	}

	r := newTestRunner(backend)
	g, err := buildGraph(d)
	if err != nil {
		t.Fatalf("buildGraph failed: %v", err)
	}

	b1Result := v1.BlockResult{
		BlockID: "B1",
		PerAgentOutputs: map[string]v1.AgentOutput{
			"a": {AgentName: "a", Text: "A-SPECIFIC"},
			"b": {AgentName: "b", Text: "B-SPECIFIC"},
		},
		FinalOutput: "=== From a ===\nA-SPECIFIC\n\n=== From b ===\nB-SPECIFIC",
	}
	results := map[string]v1.BlockResult{"B1": b1Result}

	assembled := assembleContext(g, "B2", results)
	if assembled.Overrides["c"] != "=== From a ===\nA-SPECIFIC" {
		t.Errorf("c override = %q", assembled.Overrides["c"])
	}
	if assembled.Context == "" {
		t.Error("expected block-level context for B2")
	}
	if _, overridden := assembled.Overrides["d"]; overridden {
		t.Error("d should not have an agent-level override")
	}
}
