// Package deps implements the dependency edge lifecycle and the graph read
// operations. Mutations run inside a single store transaction that holds a
// per-tenant lock; events are published after the transaction commits.
package deps

import (
	"context"
	"time"

	"github.com/google/uuid"

	"depgraph.evalgo.org/common"
	"depgraph.evalgo.org/graph"
)

// maxProbeDepth bounds the stored-edge reachability search used by the
// would-create-cycle probe.
const maxProbeDepth = 20

// Tx is the transactional view of the store available inside a mutation.
// Every query is scoped to one tenant.
type Tx interface {
	GetEdge(ctx context.Context, tenantID, id string) (*common.DependencyEdge, error)
	MissingWorkItems(ctx context.Context, tenantID string, ids []string) ([]string, error)

	// FindPath searches the stored edges from startID towards targetID up to
	// maxDepth hops and returns the node chain when a path exists, nil
	// otherwise.
	FindPath(ctx context.Context, tenantID, startID, targetID string, maxDepth int) ([]string, error)

	EdgeExists(ctx context.Context, tenantID, fromID, toID string) (bool, error)
	InsertEdge(ctx context.Context, edge *common.DependencyEdge) error
	UpdateEdge(ctx context.Context, edge *common.DependencyEdge) error
	DeleteEdge(ctx context.Context, tenantID, id string) error
}

// Store is the persistence boundary the service depends on.
type Store interface {
	// Mutate runs fn inside one transaction holding the per-tenant mutation
	// lock. A non-nil error from fn rolls the transaction back.
	Mutate(ctx context.Context, tenantID string, fn func(tx Tx) error) error

	GetEdge(ctx context.Context, tenantID, id string) (*common.DependencyEdge, error)
	ListEdges(ctx context.Context, tenantID string) ([]common.DependencyEdge, error)
	ListEdgesTouching(ctx context.Context, tenantID string, workItemIDs []string) ([]common.DependencyEdge, error)
	ListWorkItems(ctx context.Context, tenantID string) ([]common.WorkItem, error)
	ListWorkItemsByID(ctx context.Context, tenantID string, ids []string) ([]common.WorkItem, error)
}

// Publisher is the event bus boundary. Publication is fire-and-forget and
// non-transactional with the store.
type Publisher interface {
	PublishDependencyEvent(event common.DependencyEvent) error
	PublishRecalcRequest(req common.RecalcRequest) error
}

// Service implements the dependency graph operations for authenticated
// principals.
type Service struct {
	store Store
	bus   Publisher
}

// NewService creates a dependency service over the given store and bus.
func NewService(store Store, bus Publisher) *Service {
	return &Service{store: store, bus: bus}
}

// CreateEdgeInput is the payload for CreateEdge.
type CreateEdgeInput struct {
	FromID         string                 `json:"from_id"`
	ToID           string                 `json:"to_id"`
	DependencyType common.DependencyType  `json:"dependency_type"`
	LagDays        int                    `json:"lag_days"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// CreateEdge validates and persists a new dependency edge inside one
// transaction, then emits a recalc request and a created event.
//
// Failure modes, in check order: WORK_ITEMS_NOT_FOUND when either endpoint
// is missing from the tenant, CYCLE_DETECTED when a stored path already
// leads from the target back to the source, DUPLICATE_DEPENDENCY when the
// (tenant, from, to) pair exists.
func (s *Service) CreateEdge(ctx context.Context, principal common.Principal, in CreateEdgeInput) (*common.DependencyEdge, error) {
	if in.FromID == "" || in.ToID == "" || in.DependencyType == "" {
		return nil, ErrMissingFields("from_id", "to_id", "dependency_type")
	}
	if !in.DependencyType.Valid() {
		return nil, ErrInvalidRequest("unknown dependency type: " + string(in.DependencyType))
	}
	if in.FromID == in.ToID {
		return nil, ErrCycleDetected([]string{in.FromID, in.ToID})
	}

	now := time.Now().UTC()
	edge := &common.DependencyEdge{
		ID:             uuid.NewString(),
		TenantID:       principal.TenantID,
		FromID:         in.FromID,
		ToID:           in.ToID,
		DependencyType: in.DependencyType,
		LagDays:        in.LagDays,
		CreatedAt:      now,
		CreatedBy:      principal.ID,
		UpdatedAt:      now,
		Metadata:       in.Metadata,
	}

	err := s.store.Mutate(ctx, principal.TenantID, func(tx Tx) error {
		missing, err := tx.MissingWorkItems(ctx, principal.TenantID, []string{in.FromID, in.ToID})
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return ErrWorkItemsNotFound(missing)
		}

		// A stored path to -> ... -> from means the new edge from -> to
		// closes a cycle.
		path, err := tx.FindPath(ctx, principal.TenantID, in.ToID, in.FromID, maxProbeDepth)
		if err != nil {
			return err
		}
		if path != nil {
			return ErrCycleDetected(append(path, in.ToID))
		}

		exists, err := tx.EdgeExists(ctx, principal.TenantID, in.FromID, in.ToID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateDependency(in.FromID, in.ToID)
		}

		return tx.InsertEdge(ctx, edge)
	})
	if err != nil {
		return nil, err
	}

	s.emit(principal, common.EventCreated, edge.ID, map[string]interface{}{
		"dependency": edge,
	})

	return edge, nil
}

// GetEdge returns one edge by id within the principal's tenant.
func (s *Service) GetEdge(ctx context.Context, principal common.Principal, id string) (*common.DependencyEdge, error) {
	edge, err := s.store.GetEdge(ctx, principal.TenantID, id)
	if err != nil {
		return nil, err
	}
	if edge == nil {
		return nil, ErrDependencyNotFound(id)
	}
	return edge, nil
}

// ListEdges returns the tenant's edges, optionally restricted to edges
// touching one work item.
func (s *Service) ListEdges(ctx context.Context, principal common.Principal, workItemID string) ([]common.DependencyEdge, error) {
	if workItemID == "" {
		return s.store.ListEdges(ctx, principal.TenantID)
	}
	return s.store.ListEdgesTouching(ctx, principal.TenantID, []string{workItemID})
}

// UpdateEdgePatch carries the optional fields of an edge update. Nil fields
// are left untouched.
type UpdateEdgePatch struct {
	DependencyType *common.DependencyType `json:"dependency_type,omitempty"`
	LagDays        *int                   `json:"lag_days,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

func (p UpdateEdgePatch) empty() bool {
	return p.DependencyType == nil && p.LagDays == nil && p.Metadata == nil
}

// UpdateEdge applies a partial update to an edge. An empty patch returns
// the stored edge unchanged and emits no event.
func (s *Service) UpdateEdge(ctx context.Context, principal common.Principal, id string, patch UpdateEdgePatch) (*common.DependencyEdge, error) {
	if patch.DependencyType != nil && !patch.DependencyType.Valid() {
		return nil, ErrInvalidRequest("unknown dependency type: " + string(*patch.DependencyType))
	}

	var before, after *common.DependencyEdge
	err := s.store.Mutate(ctx, principal.TenantID, func(tx Tx) error {
		existing, err := tx.GetEdge(ctx, principal.TenantID, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrDependencyNotFound(id)
		}

		if patch.empty() {
			after = existing
			return nil
		}

		snapshot := *existing
		before = &snapshot

		if patch.DependencyType != nil {
			existing.DependencyType = *patch.DependencyType
		}
		if patch.LagDays != nil {
			existing.LagDays = *patch.LagDays
		}
		if patch.Metadata != nil {
			existing.Metadata = patch.Metadata
		}
		existing.UpdatedAt = time.Now().UTC()

		if err := tx.UpdateEdge(ctx, existing); err != nil {
			return err
		}
		after = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	if before != nil {
		s.emit(principal, common.EventUpdated, id, map[string]interface{}{
			"before": before,
			"after":  after,
			"patch":  patch,
		})
	}

	return after, nil
}

// DeleteEdge removes an edge and emits a deleted event carrying the prior
// snapshot.
func (s *Service) DeleteEdge(ctx context.Context, principal common.Principal, id string) error {
	var snapshot *common.DependencyEdge
	err := s.store.Mutate(ctx, principal.TenantID, func(tx Tx) error {
		existing, err := tx.GetEdge(ctx, principal.TenantID, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrDependencyNotFound(id)
		}
		snapshot = existing
		return tx.DeleteEdge(ctx, principal.TenantID, id)
	})
	if err != nil {
		return err
	}

	s.emit(principal, common.EventDeleted, id, map[string]interface{}{
		"dependency": snapshot,
	})

	return nil
}

// Graph builds the tenant's dependency graph, optionally restricted to a
// set of work-item ids. Edges touching items outside the restriction are
// dropped by the builder.
func (s *Service) Graph(ctx context.Context, principal common.Principal, workItemIDs []string) (*graph.Graph, error) {
	var (
		items []common.WorkItem
		edges []common.DependencyEdge
		err   error
	)

	if len(workItemIDs) == 0 {
		items, err = s.store.ListWorkItems(ctx, principal.TenantID)
		if err != nil {
			return nil, err
		}
		edges, err = s.store.ListEdges(ctx, principal.TenantID)
	} else {
		items, err = s.store.ListWorkItemsByID(ctx, principal.TenantID, workItemIDs)
		if err != nil {
			return nil, err
		}
		edges, err = s.store.ListEdgesTouching(ctx, principal.TenantID, workItemIDs)
	}
	if err != nil {
		return nil, err
	}

	return graph.Build(items, edges), nil
}

// Analysis is the full critical path report for a tenant.
type Analysis struct {
	Graph                 *graph.Graph       `json:"graph"`
	CriticalPath          []string           `json:"critical_path"`
	TotalDurationDays     int                `json:"total_duration_days"`
	ProjectEndDate        time.Time          `json:"project_end_date"`
	Bottlenecks           []graph.Bottleneck `json:"bottlenecks"`
	RiskScore             float64            `json:"risk_score"`
	CompletionProbability float64            `json:"completion_probability"`
	HasCycles             bool               `json:"has_cycles"`
	Cycles                [][]string         `json:"cycles,omitempty"`
}

// CriticalPath recomputes the whole-graph critical path for the tenant and
// derives the bottleneck and risk report from it. Nothing is cached; every
// call rebuilds the graph from the store.
func (s *Service) CriticalPath(ctx context.Context, principal common.Principal) (*Analysis, error) {
	g, err := s.Graph(ctx, principal, nil)
	if err != nil {
		return nil, err
	}

	// The store keeps each tenant acyclic, but a graph with cycles would
	// wedge the passes, so check before computing.
	cycles := graph.DetectCycles(g)
	if cycles.HasCycles {
		return &Analysis{
			Graph:                 g,
			HasCycles:             true,
			Cycles:                cycles.Cycles,
			CompletionProbability: 0.1,
			RiskScore:             1,
		}, nil
	}

	cpm, err := graph.ComputeCriticalPath(g, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	risk := graph.RiskScore(g)
	return &Analysis{
		Graph:                 g,
		CriticalPath:          cpm.CriticalPath,
		TotalDurationDays:     cpm.TotalDurationDays,
		ProjectEndDate:        cpm.ProjectEndDate,
		Bottlenecks:           graph.Bottlenecks(g),
		RiskScore:             risk,
		CompletionProbability: graph.CompletionProbability(risk),
	}, nil
}

// Cycles runs whole-graph cycle detection for the tenant.
func (s *Service) Cycles(ctx context.Context, principal common.Principal) (*graph.CycleResult, error) {
	g, err := s.Graph(ctx, principal, nil)
	if err != nil {
		return nil, err
	}
	return graph.DetectCycles(g), nil
}

// emit publishes the recalc request and the mutation event for a committed
// change. Publication is best-effort: failures are logged by the bus
// implementation and never fail the mutation.
func (s *Service) emit(principal common.Principal, kind common.EventKind, dependencyID string, payload map[string]interface{}) {
	now := time.Now().UTC()

	_ = s.bus.PublishRecalcRequest(common.RecalcRequest{
		TenantID:    principal.TenantID,
		RequestedBy: principal.ID,
		Timestamp:   now,
	})

	_ = s.bus.PublishDependencyEvent(common.DependencyEvent{
		Kind:         kind,
		DependencyID: dependencyID,
		TenantID:     principal.TenantID,
		UserID:       principal.ID,
		Payload:      payload,
		Timestamp:    now,
	})
}
