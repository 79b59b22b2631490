// Package db provides PostgreSQL access for the candidate pipeline and
// work-time accounting services.
package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/staffing-pipeline/internal/pipelineerr"
)

// DefaultLockTimeout bounds how long a transaction waits on a row lock before
// the database reports lock_not_available.
const DefaultLockTimeout = 5 * time.Second

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// Option customizes a DB.
type Option func(*DB)

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(db *DB) {
		if d > 0 {
			db.lockTimeout = d
		}
	}
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string, opts ...Option) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{pool: pool, lockTimeout: DefaultLockTimeout}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Ping checks database connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// InTx runs fn inside a read-committed transaction. Row locks taken by fn are
// held until commit. Any error from fn rolls everything back.
func (db *DB) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError("begin transaction", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			log.Printf("[db] rollback failed: %v", rErr)
		}
	}()

	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`,
		fmt.Sprintf("%dms", db.lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}

	if err := fn(&queries{conn: tx}); err != nil {
		return mapError("transaction", err)
	}

	if err := tx.Commit(ctx); err != nil {
		mapped := mapError("commit", err)
		var conflict *pipelineerr.ConcurrencyConflictError
		if errors.As(mapped, &conflict) {
			return mapped
		}
		return &pipelineerr.CommitUncertainError{Operation: "commit", Cause: err}
	}
	return nil
}

// queries implements Queries over either the pool or a transaction.
type queries struct {
	conn dbtx
}

// PostgreSQL error codes the services react to.
const (
	codeUniqueViolation      = "23505"
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeQueryCanceled        = "57014"
)

// mapError converts lock and serialization failures into a
// ConcurrencyConflictError. Other errors pass through unchanged.
func mapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable, codeSerializationFailure, codeDeadlockDetected, codeQueryCanceled:
			return &pipelineerr.ConcurrencyConflictError{Operation: operation, Cause: err}
		}
	}
	return err
}

// isUniqueViolation reports whether err is a unique constraint violation on
// the named constraint (any constraint when name is empty).
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
