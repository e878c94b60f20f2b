package graph

import (
	"fmt"
	"sort"
	"time"
)

const secondsPerDay = 86400

// NodeSchedule holds the integer day offsets computed for one node,
// relative to the project origin t=0.
type NodeSchedule struct {
	EarliestStart  int `json:"earliest_start_days"`
	EarliestFinish int `json:"earliest_finish_days"`
	LatestStart    int `json:"latest_start_days"`
	LatestFinish   int `json:"latest_finish_days"`
	Slack          int `json:"slack_days"`
}

// CPMResult is the outcome of a critical path computation. The graph passed
// to ComputeCriticalPath is annotated in place; this struct carries the
// aggregates.
type CPMResult struct {
	CriticalPath      []string                `json:"critical_path"`
	TotalDurationDays int                     `json:"total_duration_days"`
	ProjectEndDate    time.Time               `json:"project_end_date"`
	Schedule          map[string]NodeSchedule `json:"schedule"`
}

// ComputeCriticalPath runs the forward and backward passes over an acyclic
// graph and annotates every node with earliest/latest start and finish,
// slack and the critical flag, and every edge with its critical flag.
//
// All arithmetic is in integer days from a project origin at t=0; calendar
// timestamps are derived afterwards by offsetting from now. Every edge is
// treated as finish-to-start with its lag; the stored dependency type is
// returned on edges but does not alter the computation.
//
// Multiple sinks are each anchored at their own early finish (LF = EF), so
// every sink gets zero slack even when only the latest one constrains the
// project end. Callers relying on a single genuine critical chain should
// compare sink finish times against TotalDurationDays.
func ComputeCriticalPath(g *Graph, now time.Time) (*CPMResult, error) {
	order, err := topologicalOrder(g)
	if err != nil {
		return nil, err
	}

	es := make(map[string]int, len(order))
	ef := make(map[string]int, len(order))
	ls := make(map[string]int, len(order))
	lf := make(map[string]int, len(order))

	// Forward pass: ES(n) = max over predecessors p of EF(p) + lag(p->n),
	// or 0 for a source node.
	for _, id := range order {
		start := 0
		for i, in := range g.Predecessors(id) {
			candidate := ef[in.FromID] + in.LagDays
			if i == 0 || candidate > start {
				start = candidate
			}
		}
		es[id] = start
		ef[id] = start + g.Nodes[id].DurationDays
	}

	total := 0
	for _, id := range order {
		if ef[id] > total {
			total = ef[id]
		}
	}

	// Backward pass in reverse topological order. Sinks anchor at their own
	// early finish rather than the global completion time.
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		succs := g.Successors(id)
		if len(succs) == 0 {
			lf[id] = ef[id]
		} else {
			finish := 0
			first := true
			for _, out := range succs {
				candidate := ls[out.ToID] - out.LagDays
				if first || candidate < finish {
					finish = candidate
					first = false
				}
			}
			lf[id] = finish
		}
		ls[id] = lf[id] - g.Nodes[id].DurationDays
	}

	result := &CPMResult{
		TotalDurationDays: total,
		ProjectEndDate:    now.Add(time.Duration(total*secondsPerDay) * time.Second),
		Schedule:          make(map[string]NodeSchedule, len(order)),
	}

	for _, id := range order {
		node := g.Nodes[id]
		slack := ls[id] - es[id]

		node.SlackDays = slack
		node.IsCritical = slack == 0
		node.EarliestStart = dayOffset(now, es[id])
		node.EarliestFinish = dayOffset(now, ef[id])
		node.LatestStart = dayOffset(now, ls[id])
		node.LatestFinish = dayOffset(now, lf[id])

		result.Schedule[id] = NodeSchedule{
			EarliestStart:  es[id],
			EarliestFinish: ef[id],
			LatestStart:    ls[id],
			LatestFinish:   lf[id],
			Slack:          slack,
		}
		if node.IsCritical {
			result.CriticalPath = append(result.CriticalPath, id)
		}
	}

	// An edge is critical only when both endpoints are.
	for _, edge := range g.Edges {
		edge.IsCritical = g.Nodes[edge.FromID].IsCritical && g.Nodes[edge.ToID].IsCritical
	}

	return result, nil
}

// topologicalOrder returns the node ids in an order respecting every edge,
// using Kahn's algorithm. Ties are broken lexicographically so repeated
// computations over the same graph produce identical output.
func topologicalOrder(g *Graph) ([]string, error) {
	indegree := make(map[string]int, len(g.Nodes))
	for id := range g.Nodes {
		indegree[id] = g.Indegree(id)
	}

	var queue []string
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(g.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		var released []string
		for _, out := range g.Successors(id) {
			indegree[out.ToID]--
			if indegree[out.ToID] == 0 {
				released = append(released, out.ToID)
			}
		}
		sort.Strings(released)
		queue = append(queue, released...)
	}

	if len(order) != len(g.Nodes) {
		return nil, fmt.Errorf("graph contains a cycle: %d of %d nodes unreachable in topological order", len(g.Nodes)-len(order), len(g.Nodes))
	}

	return order, nil
}

func dayOffset(now time.Time, days int) *time.Time {
	t := now.Add(time.Duration(days*secondsPerDay) * time.Second)
	return &t
}
