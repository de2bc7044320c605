// Package storage provides the PostgreSQL storage layer for Samplefront.
//
// It manages connection pooling (via pgxpool, optionally through PgBouncer),
// a dedicated connection for LISTEN/NOTIFY (direct to Postgres), embedded
// SQL migrations, and query methods for all tables.
//
// Two engine invariants are enforced here rather than in application code,
// because a stale in-memory snapshot cannot enforce them:
//
//   - attribution is a compare-and-set on resulted_in_order
//     (MarkSampleAttributed), so concurrent order-completion events can
//     never attribute the same sample twice;
//   - at most one incomplete task per (reference entity, task type) pair,
//     via a partial unique index consumed with ON CONFLICT DO NOTHING
//     (CreateTasks).
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgxpool.Pool for normal queries and a dedicated pgx.Conn for
// LISTEN/NOTIFY (direct to Postgres; poolers don't forward notifications).
type DB struct {
	pool       *pgxpool.Pool
	notifyConn *pgx.Conn
	logger     *slog.Logger
}

// New creates a new DB with a connection pool.
// poolDSN may point at PgBouncer (or directly to Postgres in dev).
// notifyDSN, when non-empty, must point directly to Postgres.
func New(ctx context.Context, poolDSN, notifyDSN string, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(poolDSN)
	if err != nil {
		return nil, fmt.Errorf("storage: parse pool DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	var notifyConn *pgx.Conn
	if notifyDSN != "" {
		notifyConn, err = pgx.Connect(ctx, notifyDSN)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("storage: connect notify: %w", err)
		}
	}

	return &DB{
		pool:       pool,
		notifyConn: notifyConn,
		logger:     logger,
	}, nil
}

// Pool returns the underlying connection pool for use by other packages.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// HasNotifyConn reports whether a dedicated LISTEN/NOTIFY connection exists.
func (db *DB) HasNotifyConn() bool {
	return db.notifyConn != nil
}

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close shuts down the connection pool and notify connection.
func (db *DB) Close(ctx context.Context) {
	db.pool.Close()
	if db.notifyConn != nil {
		if err := db.notifyConn.Close(ctx); err != nil {
			db.logger.Warn("storage: close notify connection", "error", err)
		}
	}
}
