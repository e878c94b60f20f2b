package common

import "time"

// DependencyType describes how a dependency edge constrains scheduling.
// The type is stored and returned on edges; the critical path computation
// currently treats every edge as finish-to-start (see graph package).
type DependencyType string

const (
	FinishToStart  DependencyType = "finish_to_start"
	StartToStart   DependencyType = "start_to_start"
	FinishToFinish DependencyType = "finish_to_finish"
	StartToFinish  DependencyType = "start_to_finish"
)

// Valid reports whether d is one of the four recognised dependency types.
func (d DependencyType) Valid() bool {
	switch d {
	case FinishToStart, StartToStart, FinishToFinish, StartToFinish:
		return true
	}
	return false
}

// Work item types used for duration defaulting.
const (
	TypeObjective  = "objective"
	TypeStrategy   = "strategy"
	TypeInitiative = "initiative"
	TypeTask       = "task"
	TypeSubtask    = "subtask"
)

// StatusBlocked is the one work-item status the analysis layer recognises
// semantically. The status set is otherwise open.
const StatusBlocked = "blocked"

// WorkItem is a read-only view of a work item owned by an external service.
// The dependency service never mutates work items.
type WorkItem struct {
	ID                    string `json:"id"`
	TenantID              string `json:"tenant_id"`
	Type                  string `json:"type"`
	Title                 string `json:"title"`
	Status                string `json:"status"`
	EstimatedDurationDays *int   `json:"estimated_duration_days,omitempty"`
}

// DependencyEdge is a directed dependency between two work items of the
// same tenant. (tenant_id, from_id, to_id) is unique and the edge set per
// tenant forms a DAG at all times.
type DependencyEdge struct {
	ID             string                 `json:"id"`
	TenantID       string                 `json:"tenant_id"`
	FromID         string                 `json:"from_id"`
	ToID           string                 `json:"to_id"`
	DependencyType DependencyType         `json:"dependency_type"`
	LagDays        int                    `json:"lag_days"`
	CreatedAt      time.Time              `json:"created_at"`
	CreatedBy      string                 `json:"created_by"`
	UpdatedAt      time.Time              `json:"updated_at"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventKind classifies dependency mutation events.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// DependencyEvent is published on the dependencies exchange after a
// successful mutation. Payload carries before/after snapshots for updates.
type DependencyEvent struct {
	Kind         EventKind              `json:"kind"`
	DependencyID string                 `json:"dependency_id"`
	TenantID     string                 `json:"tenant_id"`
	UserID       string                 `json:"user_id"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Principal is the authenticated caller deposited on the request by the
// upstream auth middleware. Every operation is scoped to the principal's
// tenant; cross-tenant access is forbidden.
type Principal struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
	Email    string   `json:"email"`
}

// RecalcRequest asks downstream consumers to recompute the critical path
// for a tenant. Consumers must be idempotent; delivery is at-most-once.
type RecalcRequest struct {
	TenantID    string    `json:"tenant_id"`
	RequestedBy string    `json:"requested_by"`
	Timestamp   time.Time `json:"timestamp"`
}
