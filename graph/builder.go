package graph

import (
	"depgraph.evalgo.org/common"
)

// Build materialises work items and edges into a Graph. Duration defaults
// by work-item type are applied here.
//
// When the caller restricted the node set (a work-item-id filter), the edge
// query may return edges touching items outside the filter. Such dangling
// edges are discarded so the CPM passes never look up a missing endpoint.
func Build(items []common.WorkItem, edges []common.DependencyEdge) *Graph {
	g := &Graph{
		Nodes:        make(map[string]*Node, len(items)),
		successors:   make(map[string][]*Edge),
		predecessors: make(map[string][]*Edge),
	}

	for _, item := range items {
		duration := DefaultDurationDays(item.Type)
		if item.EstimatedDurationDays != nil && *item.EstimatedDurationDays > 0 {
			duration = *item.EstimatedDurationDays
		}
		g.Nodes[item.ID] = &Node{
			ID:           item.ID,
			Title:        item.Title,
			Type:         item.Type,
			Status:       item.Status,
			DurationDays: duration,
		}
	}

	for _, stored := range edges {
		// Drop edges whose endpoints are not both in the node set.
		if _, ok := g.Nodes[stored.FromID]; !ok {
			continue
		}
		if _, ok := g.Nodes[stored.ToID]; !ok {
			continue
		}
		edge := &Edge{
			ID:             stored.ID,
			FromID:         stored.FromID,
			ToID:           stored.ToID,
			DependencyType: stored.DependencyType,
			LagDays:        stored.LagDays,
		}
		g.Edges = append(g.Edges, edge)
		g.successors[edge.FromID] = append(g.successors[edge.FromID], edge)
		g.predecessors[edge.ToID] = append(g.predecessors[edge.ToID], edge)
	}

	return g
}
