package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depgraph.evalgo.org/common"
)

var cpmNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func buildGraph(durations map[string]int, edges []common.DependencyEdge) *Graph {
	var items []common.WorkItem
	for id, days := range durations {
		items = append(items, workItem(id, common.TypeTask, days))
	}
	return Build(items, edges)
}

func TestComputeCriticalPathLinearChain(t *testing.T) {
	g := buildGraph(
		map[string]int{"a": 5, "b": 3, "c": 2},
		[]common.DependencyEdge{depEdge("a", "b", 0), depEdge("b", "c", 0)},
	)

	result, err := ComputeCriticalPath(g, cpmNow)
	require.NoError(t, err)

	assert.Equal(t, 10, result.TotalDurationDays)
	assert.Equal(t, cpmNow.AddDate(0, 0, 10), result.ProjectEndDate)
	assert.Equal(t, []string{"a", "b", "c"}, result.CriticalPath)

	assert.Equal(t, NodeSchedule{EarliestStart: 0, EarliestFinish: 5, LatestStart: 0, LatestFinish: 5}, result.Schedule["a"])
	assert.Equal(t, NodeSchedule{EarliestStart: 5, EarliestFinish: 8, LatestStart: 5, LatestFinish: 8}, result.Schedule["b"])
	assert.Equal(t, NodeSchedule{EarliestStart: 8, EarliestFinish: 10, LatestStart: 8, LatestFinish: 10}, result.Schedule["c"])

	for _, edge := range g.Edges {
		assert.True(t, edge.IsCritical)
	}
}

func TestComputeCriticalPathDiamondWithLag(t *testing.T) {
	// a forks into b and c; both join at d. The c branch carries a two day
	// lag into d and dominates, leaving b four days of slack.
	g := buildGraph(
		map[string]int{"a": 2, "b": 3, "c": 5, "d": 2},
		[]common.DependencyEdge{
			depEdge("a", "b", 0),
			depEdge("a", "c", 0),
			depEdge("b", "d", 0),
			depEdge("c", "d", 2),
		},
	)

	result, err := ComputeCriticalPath(g, cpmNow)
	require.NoError(t, err)

	assert.Equal(t, 11, result.TotalDurationDays)
	assert.Equal(t, []string{"a", "c", "d"}, result.CriticalPath)

	assert.Equal(t, 4, result.Schedule["b"].Slack)
	assert.False(t, g.Nodes["b"].IsCritical)
	assert.Zero(t, result.Schedule["a"].Slack)
	assert.Zero(t, result.Schedule["c"].Slack)
	assert.Zero(t, result.Schedule["d"].Slack)

	for _, edge := range g.Edges {
		critical := edge.FromID != "b" && edge.ToID != "b"
		assert.Equal(t, critical, edge.IsCritical, "edge %s", edge.ID)
	}
}

func TestComputeCriticalPathEmptyGraph(t *testing.T) {
	g := Build(nil, nil)

	result, err := ComputeCriticalPath(g, cpmNow)
	require.NoError(t, err)

	assert.Zero(t, result.TotalDurationDays)
	assert.Equal(t, cpmNow, result.ProjectEndDate)
	assert.Empty(t, result.CriticalPath)
}

func TestComputeCriticalPathSingleNode(t *testing.T) {
	g := buildGraph(map[string]int{"a": 4}, nil)

	result, err := ComputeCriticalPath(g, cpmNow)
	require.NoError(t, err)

	assert.Equal(t, 4, result.TotalDurationDays)
	assert.Equal(t, []string{"a"}, result.CriticalPath)
	assert.True(t, g.Nodes["a"].IsCritical)
	require.NotNil(t, g.Nodes["a"].EarliestFinish)
	assert.Equal(t, cpmNow.AddDate(0, 0, 4), *g.Nodes["a"].EarliestFinish)
}

func TestComputeCriticalPathDisconnectedComponents(t *testing.T) {
	// Each component's sink anchors at its own early finish, so the shorter
	// chain still reports zero slack.
	g := buildGraph(
		map[string]int{"a": 5, "b": 5, "c": 2, "d": 2},
		[]common.DependencyEdge{depEdge("a", "b", 0), depEdge("c", "d", 0)},
	)

	result, err := ComputeCriticalPath(g, cpmNow)
	require.NoError(t, err)

	assert.Equal(t, 10, result.TotalDurationDays)
	for _, id := range []string{"a", "b", "c", "d"} {
		assert.Zero(t, result.Schedule[id].Slack, "node %s", id)
	}
}

func TestComputeCriticalPathNegativeLag(t *testing.T) {
	g := buildGraph(
		map[string]int{"a": 5, "b": 3},
		[]common.DependencyEdge{depEdge("a", "b", -2)},
	)

	result, err := ComputeCriticalPath(g, cpmNow)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Schedule["b"].EarliestStart)
	assert.Equal(t, 6, result.TotalDurationDays)
}

func TestComputeCriticalPathRejectsCycle(t *testing.T) {
	g := buildGraph(
		map[string]int{"a": 1, "b": 1},
		[]common.DependencyEdge{depEdge("a", "b", 0), depEdge("b", "a", 0)},
	)

	_, err := ComputeCriticalPath(g, cpmNow)
	assert.ErrorContains(t, err, "cycle")
}

func TestComputeCriticalPathScheduleInvariants(t *testing.T) {
	g := buildGraph(
		map[string]int{"a": 3, "b": 4, "c": 1, "d": 6, "e": 2},
		[]common.DependencyEdge{
			depEdge("a", "c", 1),
			depEdge("b", "c", 0),
			depEdge("c", "d", 0),
			depEdge("c", "e", 3),
		},
	)

	result, err := ComputeCriticalPath(g, cpmNow)
	require.NoError(t, err)

	for id, s := range result.Schedule {
		node := g.Nodes[id]
		assert.Equal(t, s.EarliestStart+node.DurationDays, s.EarliestFinish, "node %s", id)
		assert.Equal(t, s.LatestStart+node.DurationDays, s.LatestFinish, "node %s", id)
		assert.Equal(t, s.LatestStart-s.EarliestStart, s.Slack, "node %s", id)
		assert.GreaterOrEqual(t, s.Slack, 0, "node %s", id)
		assert.Equal(t, s.Slack == 0, node.IsCritical, "node %s", id)

		if g.Outdegree(id) == 0 {
			assert.Zero(t, s.Slack, "sink %s", id)
		}
	}
}
