package tx

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Runner executes a function within a transactional boundary. Every state
// transition runs to completion inside one boundary: commit on success, full
// rollback on any error, no partial state visible either way.
type Runner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SerialRunner serializes transitions on a single mutex. Paired with the
// in-memory stores it reproduces the single-writer ledger model: one
// operation at a time, each executed to completion with no interleaving.
// Store mutations inside the boundary must follow all validations so a
// failed transition leaves no partial state behind.
type SerialRunner struct {
	mu sync.Mutex
}

// NewSerialRunner creates the single-writer boundary for in-memory stores.
func NewSerialRunner() *SerialRunner {
	return &SerialRunner{}
}

// RunInTx executes fn while holding the global transition lock.
func (r *SerialRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx)
}

// SQLRunner wraps transitions in a database transaction. Stores pick the
// transaction out of context via From, so the same store code serves both
// transactional and direct paths.
type SQLRunner struct {
	db *sql.DB
}

// NewSQLRunner creates the transactional boundary for SQL-backed stores.
func NewSQLRunner(db *sql.DB) *SQLRunner {
	return &SQLRunner{db: db}
}

// RunInTx begins a transaction, runs fn with it in context, and commits only
// on full success.
func (r *SQLRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(WithTx(ctx, dbTx)); err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
