package db

import (
	"context"
	"database/sql"
)

// Queries provides access to all database operations. It wraps a *sql.DB (or,
// inside a transaction, anything that satisfies the same subset of methods)
// so the same query functions work whether called at the top level or from
// inside a caller-managed transaction.
type Queries struct {
	db DBTX
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// New creates a new Queries instance over a database handle.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to the given transaction, so the same method
// set can be used inside a transaction without duplicating every query.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// RunInTx opens a serializable transaction against db, invokes fn with a
// Queries bound to it, and commits on success or rolls back on error/panic.
// Batch processing (§4.H) and any other multi-statement write uses this.
func RunInTx(ctx context.Context, database *sql.DB, fn func(*Queries) error) error {
	tx, err := database.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(New(tx)); err != nil {
		return err
	}
	return tx.Commit()
}
