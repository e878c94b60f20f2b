package graph

import (
	"fmt"
	"sort"
	"strings"
)

// CycleResult reports every cycle found in a graph.
type CycleResult struct {
	HasCycles     bool       `json:"has_cycles"`
	Cycles        [][]string `json:"cycles"`
	AffectedNodes []string   `json:"affected_nodes"`
	Suggestions   []string   `json:"suggestions"`
}

// DFS colours. A grey node is on the current exploration stack; reaching a
// grey node again means a back edge, i.e. a cycle.
const (
	white = iota
	grey
	black
)

type dfsFrame struct {
	node string
	next int // index of the next successor edge to explore
}

// DetectCycles finds all cycles in the graph using an iterative
// three-colour depth-first search. Exploration continues after the first
// hit so every cycle is reported. Each cycle is recorded as the node chain
// from the back edge's target through the stack, closed by repeating the
// target.
func DetectCycles(g *Graph) *CycleResult {
	result := &CycleResult{Cycles: [][]string{}, AffectedNodes: []string{}, Suggestions: []string{}}

	colour := make(map[string]int, len(g.Nodes))
	onPath := make(map[string]int) // node -> index in path while grey
	affected := make(map[string]bool)

	// Deterministic traversal order regardless of map iteration.
	roots := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		roots = append(roots, id)
	}
	sort.Strings(roots)

	for _, root := range roots {
		if colour[root] != white {
			continue
		}

		stack := []dfsFrame{{node: root}}
		path := []string{}

		for len(stack) > 0 {
			frame := &stack[len(stack)-1]

			if frame.next == 0 && colour[frame.node] == white {
				colour[frame.node] = grey
				onPath[frame.node] = len(path)
				path = append(path, frame.node)
			}

			succs := g.Successors(frame.node)
			if frame.next < len(succs) {
				target := succs[frame.next].ToID
				frame.next++

				switch colour[target] {
				case white:
					stack = append(stack, dfsFrame{node: target})
				case grey:
					// Back edge: slice the path from the target's first
					// occurrence and close the loop.
					start := onPath[target]
					cycle := make([]string, 0, len(path)-start+1)
					cycle = append(cycle, path[start:]...)
					cycle = append(cycle, target)
					result.Cycles = append(result.Cycles, cycle)
					for _, id := range cycle {
						affected[id] = true
					}
				}
				continue
			}

			colour[frame.node] = black
			delete(onPath, frame.node)
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
		}
	}

	result.HasCycles = len(result.Cycles) > 0
	for id := range affected {
		result.AffectedNodes = append(result.AffectedNodes, id)
	}
	sort.Strings(result.AffectedNodes)

	for _, cycle := range result.Cycles {
		result.Suggestions = append(result.Suggestions, suggestionForCycle(g, cycle))
	}

	return result
}

// suggestionForCycle renders a mechanical remediation hint for one cycle.
// The chain uses node titles when available so the message is readable
// without a second lookup.
func suggestionForCycle(g *Graph, cycle []string) string {
	labels := make([]string, len(cycle))
	for i, id := range cycle {
		if node, ok := g.Nodes[id]; ok && node.Title != "" {
			labels[i] = node.Title
		} else {
			labels[i] = id
		}
	}
	chain := strings.Join(labels, " -> ")
	last := labels[len(labels)-2]
	first := labels[len(labels)-1]
	return fmt.Sprintf("Remove one dependency in the chain %s, for example the dependency from %s to %s", chain, last, first)
}
