package graph

import (
	"sort"

	"depgraph.evalgo.org/common"
)

// Thresholds for bottleneck qualification.
const (
	highDependencyThreshold = 3  // indegree above this flags a node
	highBlockingThreshold   = 3  // outdegree above this flags a node
	longDurationThreshold   = 30 // days
)

// Risk factor tags attached to bottleneck nodes.
const (
	RiskHighDependencyCount = "High dependency count"
	RiskBlocksManyItems     = "Blocks many items"
	RiskCurrentlyBlocked    = "Currently blocked"
	RiskLongDuration        = "Long duration"
)

// mitigations maps each risk factor tag to a fixed remediation hint.
var mitigations = map[string]string{
	RiskHighDependencyCount: "Review incoming dependencies and remove any that are not strictly required",
	RiskBlocksManyItems:     "Split this work item so downstream items can start earlier",
	RiskCurrentlyBlocked:    "Resolve the blocker or reassign the work item",
	RiskLongDuration:        "Break this work item into smaller increments to reduce schedule exposure",
}

// Bottleneck is a critical node whose shape or state makes it a schedule
// risk.
type Bottleneck struct {
	WorkItemID            string   `json:"work_item_id"`
	Title                 string   `json:"title"`
	DelayImpactDays       int      `json:"delay_impact_days"`
	RiskFactors           []string `json:"risk_factors"`
	MitigationSuggestions []string `json:"mitigation_suggestions"`
}

// Bottlenecks identifies schedule bottlenecks in an annotated graph. A node
// qualifies when it is critical (zero slack) and at least one risk factor
// applies. Results are sorted by delay impact, largest first.
func Bottlenecks(g *Graph) []Bottleneck {
	var out []Bottleneck

	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		node := g.Nodes[id]
		if !node.IsCritical {
			continue
		}

		var factors []string
		if g.Indegree(id) > highDependencyThreshold {
			factors = append(factors, RiskHighDependencyCount)
		}
		if g.Outdegree(id) > highBlockingThreshold {
			factors = append(factors, RiskBlocksManyItems)
		}
		if node.Status == common.StatusBlocked {
			factors = append(factors, RiskCurrentlyBlocked)
		}
		if node.DurationDays > longDurationThreshold {
			factors = append(factors, RiskLongDuration)
		}
		if len(factors) == 0 {
			continue
		}

		suggestions := make([]string, 0, len(factors))
		for _, factor := range factors {
			suggestions = append(suggestions, mitigations[factor])
		}

		out = append(out, Bottleneck{
			WorkItemID:            id,
			Title:                 node.Title,
			DelayImpactDays:       node.DurationDays,
			RiskFactors:           factors,
			MitigationSuggestions: suggestions,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DelayImpactDays > out[j].DelayImpactDays
	})

	return out
}

// RiskScore scores an annotated graph in [0, 1]:
//
//	min(1, (0.3*critical + 0.5*blocked + 0.2*long) / N)
//
// where long counts nodes with duration above 30 days. An empty graph
// scores 0.
func RiskScore(g *Graph) float64 {
	n := len(g.Nodes)
	if n == 0 {
		return 0
	}

	var critical, blocked, long int
	for _, node := range g.Nodes {
		if node.IsCritical {
			critical++
		}
		if node.Status == common.StatusBlocked {
			blocked++
		}
		if node.DurationDays > longDurationThreshold {
			long++
		}
	}

	score := (0.3*float64(critical) + 0.5*float64(blocked) + 0.2*float64(long)) / float64(n)
	if score > 1 {
		score = 1
	}
	return score
}

// CompletionProbability derives the completion probability from the risk
// score, floored at 0.1.
func CompletionProbability(riskScore float64) float64 {
	p := 1 - riskScore
	if p < 0.1 {
		p = 0.1
	}
	return p
}
