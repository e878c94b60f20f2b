package db

import (
	"context"
	"fmt"
)

// Schema for the dependency graph tables. Work items are owned by an
// external service; the table here is the local replica the edge checks
// read from. The unique constraint enforces the no-parallel-edges
// invariant at the store level as a backstop to the in-transaction check.
const schema = `
CREATE TABLE IF NOT EXISTS work_items (
	id uuid PRIMARY KEY,
	tenant_id uuid NOT NULL,
	type text NOT NULL,
	title text NOT NULL DEFAULT '',
	status text NOT NULL DEFAULT 'open',
	estimated_duration_days int,
	created_at timestamptz NOT NULL DEFAULT NOW(),
	updated_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_work_items_tenant ON work_items (tenant_id);

CREATE TABLE IF NOT EXISTS dependency_edges (
	id uuid PRIMARY KEY,
	tenant_id uuid NOT NULL,
	from_id uuid NOT NULL,
	to_id uuid NOT NULL,
	dependency_type text NOT NULL,
	lag_days int NOT NULL DEFAULT 0,
	created_at timestamptz NOT NULL,
	created_by uuid,
	updated_at timestamptz NOT NULL,
	metadata jsonb,
	UNIQUE (tenant_id, from_id, to_id)
);

CREATE INDEX IF NOT EXISTS idx_dependency_edges_tenant ON dependency_edges (tenant_id);
CREATE INDEX IF NOT EXISTS idx_dependency_edges_from ON dependency_edges (tenant_id, from_id);
CREATE INDEX IF NOT EXISTS idx_dependency_edges_to ON dependency_edges (tenant_id, to_id);
`

// EnsureSchema creates the tables and indexes if they do not exist. Safe to
// run on every startup.
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	if err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
