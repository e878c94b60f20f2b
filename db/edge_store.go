package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"depgraph.evalgo.org/common"
	"depgraph.evalgo.org/deps"
)

// querier is satisfied by both the connection pool and a pgx transaction,
// so the same query code serves pooled reads and transactional mutations.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const edgeColumns = `id, tenant_id, from_id, to_id, dependency_type, lag_days, created_at, created_by, updated_at, metadata`

// edgeQueries implements the tenant-scoped queries over any querier.
type edgeQueries struct {
	q querier
}

// EdgeStore is the PostgreSQL adapter for dependency edges and the
// read-only work-item replica. It implements deps.Store.
type EdgeStore struct {
	db *PostgresDB
	edgeQueries
}

// NewEdgeStore creates an edge store over a pooled database.
func NewEdgeStore(db *PostgresDB) *EdgeStore {
	return &EdgeStore{db: db, edgeQueries: edgeQueries{q: db.pool}}
}

// EdgeTx is the transactional view handed to mutation callbacks. It
// implements deps.Tx.
type EdgeTx struct {
	edgeQueries
}

// Mutate runs fn inside one transaction. A per-tenant advisory lock is
// taken first so concurrent mutations within a tenant serialise; without
// it, two inserts that each pass their cycle probe could jointly close a
// cycle. The lock is released automatically at commit or rollback.
func (s *EdgeStore) Mutate(ctx context.Context, tenantID string, fn func(tx deps.Tx) error) error {
	tx, err := s.db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tenantID); err != nil {
		return fmt.Errorf("failed to acquire tenant lock: %w", err)
	}

	if err := fn(&EdgeTx{edgeQueries{q: tx}}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetEdge returns the edge with the given id in the tenant, or nil when no
// such edge exists.
func (e edgeQueries) GetEdge(ctx context.Context, tenantID, id string) (*common.DependencyEdge, error) {
	row := e.q.QueryRow(ctx, `SELECT `+edgeColumns+` FROM dependency_edges WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	edge, err := scanEdge(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get edge: %w", err)
	}
	return edge, nil
}

// ListEdges returns every edge in the tenant.
func (e edgeQueries) ListEdges(ctx context.Context, tenantID string) ([]common.DependencyEdge, error) {
	rows, err := e.q.Query(ctx, `SELECT `+edgeColumns+` FROM dependency_edges WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	return collectEdges(rows)
}

// ListEdgesTouching returns edges with either endpoint in workItemIDs.
func (e edgeQueries) ListEdgesTouching(ctx context.Context, tenantID string, workItemIDs []string) ([]common.DependencyEdge, error) {
	rows, err := e.q.Query(ctx,
		`SELECT `+edgeColumns+` FROM dependency_edges
		 WHERE tenant_id = $1 AND (from_id = ANY($2) OR to_id = ANY($2)) ORDER BY created_at`,
		tenantID, workItemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	return collectEdges(rows)
}

// ListWorkItems returns every work item in the tenant.
func (e edgeQueries) ListWorkItems(ctx context.Context, tenantID string) ([]common.WorkItem, error) {
	rows, err := e.q.Query(ctx,
		`SELECT id, tenant_id, type, title, status, estimated_duration_days FROM work_items WHERE tenant_id = $1`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	return collectWorkItems(rows)
}

// ListWorkItemsByID returns the tenant's work items whose id is in ids.
func (e edgeQueries) ListWorkItemsByID(ctx context.Context, tenantID string, ids []string) ([]common.WorkItem, error) {
	rows, err := e.q.Query(ctx,
		`SELECT id, tenant_id, type, title, status, estimated_duration_days FROM work_items WHERE tenant_id = $1 AND id = ANY($2)`,
		tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	return collectWorkItems(rows)
}

// MissingWorkItems returns the subset of ids with no work item in the
// tenant.
func (e edgeQueries) MissingWorkItems(ctx context.Context, tenantID string, ids []string) ([]string, error) {
	rows, err := e.q.Query(ctx, `SELECT id FROM work_items WHERE tenant_id = $1 AND id = ANY($2)`, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to check work items: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan work item id: %w", err)
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating work items: %w", err)
	}

	var missing []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !found[id] && !seen[id] {
			missing = append(missing, id)
			seen[id] = true
		}
	}
	return missing, nil
}

// EdgeExists reports whether an edge from fromID to toID exists in the
// tenant.
func (e edgeQueries) EdgeExists(ctx context.Context, tenantID, fromID, toID string) (bool, error) {
	var exists bool
	err := e.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM dependency_edges WHERE tenant_id = $1 AND from_id = $2 AND to_id = $3)`,
		tenantID, fromID, toID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check edge existence: %w", err)
	}
	return exists, nil
}

// FindPath searches the stored edges breadth-first from startID towards
// targetID, at most maxDepth hops, without materialising the whole graph.
// It returns the node chain start..target when a path exists, nil
// otherwise.
func (e edgeQueries) FindPath(ctx context.Context, tenantID, startID, targetID string, maxDepth int) ([]string, error) {
	parent := map[string]string{}
	visited := map[string]bool{startID: true}
	frontier := []string{startID}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		rows, err := e.q.Query(ctx,
			`SELECT from_id, to_id FROM dependency_edges WHERE tenant_id = $1 AND from_id = ANY($2)`,
			tenantID, frontier)
		if err != nil {
			return nil, fmt.Errorf("failed to expand reachability frontier: %w", err)
		}

		var next []string
		for rows.Next() {
			var fromID, toID string
			if err := rows.Scan(&fromID, &toID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan edge: %w", err)
			}
			if visited[toID] {
				continue
			}
			visited[toID] = true
			parent[toID] = fromID
			if toID == targetID {
				rows.Close()
				return reconstructPath(parent, startID, targetID), nil
			}
			next = append(next, toID)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error iterating edges: %w", err)
		}
		rows.Close()

		frontier = next
	}

	return nil, nil
}

func reconstructPath(parent map[string]string, startID, targetID string) []string {
	var reversed []string
	for id := targetID; ; {
		reversed = append(reversed, id)
		if id == startID {
			break
		}
		id = parent[id]
	}

	path := make([]string, len(reversed))
	for i, id := range reversed {
		path[len(reversed)-1-i] = id
	}
	return path
}

// InsertEdge writes a new edge row.
func (e edgeQueries) InsertEdge(ctx context.Context, edge *common.DependencyEdge) error {
	_, err := e.q.Exec(ctx,
		`INSERT INTO dependency_edges (`+edgeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		edge.ID, edge.TenantID, edge.FromID, edge.ToID, string(edge.DependencyType),
		edge.LagDays, edge.CreatedAt, nullableID(edge.CreatedBy), edge.UpdatedAt, edge.Metadata)
	if err != nil {
		return fmt.Errorf("failed to insert edge: %w", err)
	}
	return nil
}

// UpdateEdge writes back the mutable fields of an edge.
func (e edgeQueries) UpdateEdge(ctx context.Context, edge *common.DependencyEdge) error {
	tag, err := e.q.Exec(ctx,
		`UPDATE dependency_edges SET dependency_type = $1, lag_days = $2, metadata = $3, updated_at = $4
		 WHERE tenant_id = $5 AND id = $6`,
		string(edge.DependencyType), edge.LagDays, edge.Metadata, edge.UpdatedAt, edge.TenantID, edge.ID)
	if err != nil {
		return fmt.Errorf("failed to update edge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("edge not found: %s", edge.ID)
	}
	return nil
}

// DeleteEdge removes an edge row.
func (e edgeQueries) DeleteEdge(ctx context.Context, tenantID, id string) error {
	tag, err := e.q.Exec(ctx, `DELETE FROM dependency_edges WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete edge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("edge not found: %s", id)
	}
	return nil
}

func scanEdge(row pgx.Row) (*common.DependencyEdge, error) {
	edge := &common.DependencyEdge{}
	var depType string
	var createdBy *string
	err := row.Scan(&edge.ID, &edge.TenantID, &edge.FromID, &edge.ToID, &depType,
		&edge.LagDays, &edge.CreatedAt, &createdBy, &edge.UpdatedAt, &edge.Metadata)
	if err != nil {
		return nil, err
	}
	edge.DependencyType = common.DependencyType(depType)
	if createdBy != nil {
		edge.CreatedBy = *createdBy
	}
	return edge, nil
}

func collectEdges(rows pgx.Rows) ([]common.DependencyEdge, error) {
	defer rows.Close()

	var edges []common.DependencyEdge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, *edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}
	return edges, nil
}

func collectWorkItems(rows pgx.Rows) ([]common.WorkItem, error) {
	defer rows.Close()

	var items []common.WorkItem
	for rows.Next() {
		item := common.WorkItem{}
		if err := rows.Scan(&item.ID, &item.TenantID, &item.Type, &item.Title, &item.Status, &item.EstimatedDurationDays); err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating work items: %w", err)
	}
	return items, nil
}

// nullableID maps the empty string to NULL for uuid columns.
func nullableID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// Ensure EdgeStore satisfies the service boundary.
var _ deps.Store = (*EdgeStore)(nil)
var _ deps.Tx = (*EdgeTx)(nil)
