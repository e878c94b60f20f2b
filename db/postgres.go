// Package db implements the PostgreSQL store adapter for work items and
// dependency edges using the pgx driver with connection pooling.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"depgraph.evalgo.org/config"
)

// PostgresDB wraps a pgx connection pool. The pool is bounded by the
// configured maximum; idle connections are closed after the idle timeout
// and waiting for a connection is bounded by the acquire timeout.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// NewPostgresDB creates a pooled PostgreSQL connection from the database
// configuration and verifies it with a ping.
func NewPostgresDB(ctx context.Context, cfg config.DatabaseConfig) (*PostgresDB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MaxConnIdleTime = cfg.IdleTimeout
	poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// NewPostgresDBFromPool wraps an existing pool; used by tests.
func NewPostgresDBFromPool(pool *pgxpool.Pool) *PostgresDB {
	return &PostgresDB{pool: pool}
}

// Close closes the connection pool.
func (db *PostgresDB) Close() {
	db.pool.Close()
}

// Exec executes a SQL statement.
func (db *PostgresDB) Exec(ctx context.Context, sql string, args ...interface{}) error {
	_, err := db.pool.Exec(ctx, sql, args...)
	return err
}

// Query executes a query that returns rows. Caller must close the rows.
func (db *PostgresDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}

// QueryRow executes a query that returns a single row.
func (db *PostgresDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

// Pool returns the underlying connection pool for transactions and advanced
// operations.
func (db *PostgresDB) Pool() *pgxpool.Pool {
	return db.pool
}
