// Package graph materialises a tenant's dependency edges into an in-memory
// graph and provides cycle detection, critical path computation and
// bottleneck analysis over it. All functions are pure: they share no state
// between requests and a graph is discarded when its request completes.
package graph

import (
	"time"

	"depgraph.evalgo.org/common"
)

// Default duration in days by work-item type, applied when a work item
// carries no estimate.
const (
	defaultObjectiveDays  = 90
	defaultStrategyDays   = 60
	defaultInitiativeDays = 30
	defaultTaskDays       = 7
	defaultSubtaskDays    = 3
	defaultOtherDays      = 7
)

// DefaultDurationDays returns the fallback duration for a work-item type.
func DefaultDurationDays(itemType string) int {
	switch itemType {
	case common.TypeObjective:
		return defaultObjectiveDays
	case common.TypeStrategy:
		return defaultStrategyDays
	case common.TypeInitiative:
		return defaultInitiativeDays
	case common.TypeTask:
		return defaultTaskDays
	case common.TypeSubtask:
		return defaultSubtaskDays
	default:
		return defaultOtherDays
	}
}

// Node is a work item materialised into the graph. The scheduling fields
// are zero until ComputeCriticalPath annotates them.
type Node struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Type         string `json:"type"`
	Status       string `json:"status"`
	DurationDays int    `json:"duration_days"`

	EarliestStart  *time.Time `json:"earliest_start,omitempty"`
	EarliestFinish *time.Time `json:"earliest_finish,omitempty"`
	LatestStart    *time.Time `json:"latest_start,omitempty"`
	LatestFinish   *time.Time `json:"latest_finish,omitempty"`
	SlackDays      int        `json:"slack_days"`
	IsCritical     bool       `json:"is_critical"`
}

// Edge mirrors a stored dependency edge plus the criticality flag assigned
// by the critical path computation.
type Edge struct {
	ID             string                `json:"id"`
	FromID         string                `json:"from_id"`
	ToID           string                `json:"to_id"`
	DependencyType common.DependencyType `json:"dependency_type"`
	LagDays        int                   `json:"lag_days"`
	IsCritical     bool                  `json:"is_critical"`
}

// Graph is the in-memory dependency graph for one tenant, optionally
// restricted to a work-item subset. Adjacency is indexed both ways so the
// forward and backward CPM passes stay O(V+E).
type Graph struct {
	Nodes map[string]*Node `json:"nodes"`
	Edges []*Edge          `json:"edges"`

	// successors[u] lists edges leaving u; predecessors[v] lists edges
	// entering v.
	successors   map[string][]*Edge
	predecessors map[string][]*Edge
}

// Successors returns the edges leaving node id.
func (g *Graph) Successors(id string) []*Edge {
	return g.successors[id]
}

// Predecessors returns the edges entering node id.
func (g *Graph) Predecessors(id string) []*Edge {
	return g.predecessors[id]
}

// Indegree returns the number of edges entering node id.
func (g *Graph) Indegree(id string) int {
	return len(g.predecessors[id])
}

// Outdegree returns the number of edges leaving node id.
func (g *Graph) Outdegree(id string) int {
	return len(g.successors[id])
}
