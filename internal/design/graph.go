// Package design executes a Design: a DAG of blocks connected by
// block-level and agent-level edges, producing per-block results while
// honoring cancellation and a configurable parallelism cap.
package design

import (
	"sort"

	apperrors "github.com/kandev/conductor/internal/common/errors"
	v1 "github.com/kandev/conductor/pkg/api/v1"
)

// graph is the validated, in-memory representation of a Design used by the
// runner: adjacency lists plus the reverse (predecessor) edges needed to
// compute the ready set.
type graph struct {
	design       *v1.Design
	blocksByID   map[string]*v1.Block
	successors   map[string][]string // block id -> block ids that depend on it
	predecessors map[string][]string // block id -> block ids it depends on
}

// buildGraph indexes a Design's blocks and connections. Every connection,
// block-level or agent-level, adds a scheduling edge from its source block to
// its target block, so a target block starts only after each block it reads
// an agent-level override from has completed.
func buildGraph(d *v1.Design) (*graph, error) {
	g := &graph{
		design:       d,
		blocksByID:   make(map[string]*v1.Block, len(d.Blocks)),
		successors:   make(map[string][]string),
		predecessors: make(map[string][]string),
	}

	for i := range d.Blocks {
		b := &d.Blocks[i]
		if _, dup := g.blocksByID[b.ID]; dup {
			return nil, apperrors.BadRequest("duplicate block id: " + b.ID)
		}
		g.blocksByID[b.ID] = b
	}

	for _, conn := range d.Connections {
		if _, ok := g.blocksByID[conn.SourceBlock]; !ok {
			return nil, apperrors.BadRequest("connection references unknown source block: " + conn.SourceBlock)
		}
		if _, ok := g.blocksByID[conn.TargetBlock]; !ok {
			return nil, apperrors.BadRequest("connection references unknown target block: " + conn.TargetBlock)
		}
		if conn.SourceBlock == conn.TargetBlock {
			continue
		}
		g.successors[conn.SourceBlock] = appendUnique(g.successors[conn.SourceBlock], conn.TargetBlock)
		g.predecessors[conn.TargetBlock] = appendUnique(g.predecessors[conn.TargetBlock], conn.SourceBlock)
	}

	return g, nil
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

// topologicalOrder returns a valid topological ordering of block ids via
// Kahn's algorithm, or DesignCyclic if the graph contains a cycle. Ties are
// broken by ascending block id for determinism.
func (g *graph) topologicalOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.blocksByID))
	for id := range g.blocksByID {
		inDegree[id] = len(g.predecessors[id])
	}

	ready := newReadyQueue()
	for id, deg := range inDegree {
		if deg == 0 {
			ready.Push(id)
		}
	}

	var order []string
	for {
		id, ok := ready.Pop()
		if !ok {
			break
		}
		order = append(order, id)
		for _, succ := range g.successors[id] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				ready.Push(succ)
			}
		}
	}

	if len(order) != len(g.blocksByID) {
		return nil, apperrors.DesignCyclic(g.design.ID)
	}
	return order, nil
}

// roots returns the block ids with no predecessors, sorted ascending.
func (g *graph) roots() []string {
	var roots []string
	for id := range g.blocksByID {
		if len(g.predecessors[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}
