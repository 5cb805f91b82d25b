package design

import (
	"sort"

	"github.com/kandev/conductor/internal/pattern"
	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// assembledContext is what a block sees when it starts: the block-level
// context text plus any per-agent overrides collected from agent-level
// edges.
type assembledContext struct {
	Context   string
	Overrides map[string]string
}

// assembleContext gathers every edge that targets blockID and builds the
// context a block sees, per §4.3: block-level edges contribute the source
// block's final_output; agent-level edges override the block-level source
// for their named target agent only. Concatenation uses
// "=== From <source_name> ===" labels, ordered by ascending source block id.
func assembleContext(g *graph, blockID string, results map[string]v1.BlockResult) assembledContext {
	type labelled struct {
		sourceBlockID string
		text          string
	}
	var blockLevel []labelled
	overrides := make(map[string]string)

	for _, conn := range g.design.Connections {
		if conn.TargetBlock != blockID {
			continue
		}
		sourceResult, ok := results[conn.SourceBlock]
		if !ok {
			continue
		}

		switch conn.Kind {
		case v1.ConnectionAgentLevel:
			if conn.TargetAgent == "" || conn.SourceAgent == "" {
				continue
			}
			if out, ok := sourceResult.PerAgentOutputs[conn.SourceAgent]; ok && out.Error == "" {
				overrides[conn.TargetAgent] = labelledOne(conn.SourceAgent, out.Text)
			}
		default: // block-level
			blockLevel = append(blockLevel, labelled{sourceBlockID: conn.SourceBlock, text: sourceResult.FinalOutput})
		}
	}

	sort.Slice(blockLevel, func(i, j int) bool { return blockLevel[i].sourceBlockID < blockLevel[j].sourceBlockID })

	order := make([]string, len(blockLevel))
	texts := make(map[string]string, len(blockLevel))
	for i, bl := range blockLevel {
		order[i] = bl.sourceBlockID
		texts[bl.sourceBlockID] = bl.text
	}

	return assembledContext{
		Context:   concatLabelled(order, texts),
		Overrides: overrides,
	}
}

func labelledOne(sourceName, text string) string {
	return concatLabelled([]string{sourceName}, map[string]string{sourceName: text})
}

// concatLabelled mirrors pattern.LabelledConcat's format so block-level and
// agent-level context assembly, and within-pattern aggregation, read
// identically to a log viewer.
func concatLabelled(order []string, texts map[string]string) string {
	return pattern.LabelledConcat(order, texts)
}
